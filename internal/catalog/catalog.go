// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog is the Channel Registry & persistence component (spec
// §3, §6): it holds every channel's queue, current-movie snapshot and
// schedule, and rewrites channels.json atomically after every mutation so
// the on-disk queue never diverges from the in-memory one across a
// process restart (spec §3 "the queue is persisted after every append or
// shift").
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/lindelatv/channeld/internal/log"
	"github.com/lindelatv/channeld/internal/model"
)

// Catalog is the single in-memory source of truth for every channel's
// persisted state, backed by a JSON file rewritten whole (never appended)
// via write-temp-then-rename (spec §9 "Atomic persistence").
type Catalog struct {
	mu   sync.RWMutex
	path string

	channels map[string]*model.Channel
}

// Load reads path if it exists and returns a populated Catalog. A missing
// file is not an error — it yields an empty catalog, matching a first run.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path, channels: make(map[string]*model.Channel)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var raw map[string]*model.Channel
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for id, ch := range raw {
		ch.ID = id
		c.channels[id] = ch
	}
	return c, nil
}

// Get returns a deep copy of the channel record, or nil if it doesn't exist.
func (c *Catalog) Get(id string) *model.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[id].Clone()
}

// List returns a deep copy of every channel record, in no particular order.
func (c *Catalog) List() []*model.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch.Clone())
	}
	return out
}

// EnsureChannel returns the existing record for id, creating and
// persisting a fresh one (with an empty queue) if absent. If id is empty,
// a new uuid is generated. Returns the (possibly newly created) channel id.
func (c *Catalog) EnsureChannel(id, name, outputDir string) (string, error) {
	c.mu.Lock()
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := c.channels[id]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.channels[id] = &model.Channel{
		ID:        id,
		Name:      name,
		OutputDir: outputDir,
	}
	err := c.persistLocked()
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	catalogLogger := log.WithComponent("catalog")
	catalogLogger.Info().Str("channel_id", id).Str("name", name).Msg("channel created")
	return id, nil
}

// Mutate applies fn to the channel's record under the catalog lock and
// persists the result atomically. fn must not retain the pointer it is
// given beyond the call. Returns an error wrapping ErrNotFound if id is
// unknown.
func (c *Catalog) Mutate(id string, fn func(ch *model.Channel) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[id]
	if !ok {
		return fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	if err := fn(ch); err != nil {
		return err
	}
	return c.persistLocked()
}

// persistLocked rewrites the catalog file whole via renameio: temp file,
// fsync, atomic rename. Callers must already hold c.mu.
func (c *Catalog) persistLocked() error {
	data, err := json.MarshalIndent(c.channels, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(c.path)
	if err != nil {
		return fmt.Errorf("create pending catalog file: %w", err)
	}
	defer func() {
		if cerr := pendingFile.Cleanup(); cerr != nil {
			cleanupLogger := log.WithComponent("catalog")
			cleanupLogger.Debug().Err(cerr).Msg("cleanup pending catalog file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write catalog data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace catalog file: %w", err)
	}
	return nil
}

// ErrNotFound is returned when a channel id is unknown to the catalog.
var ErrNotFound = fmt.Errorf("channel not found")
