// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lindelatv/channeld/internal/catalog"
	"github.com/lindelatv/channeld/internal/config"
)

func testSetup(t *testing.T) (*Server, *Registry) {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.Load(filepath.Join(dir, "channels.json"))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.OutputRoot = filepath.Join(dir, "hls_output")
	cfg.MediaRoot = filepath.Join(dir, "media")
	require.NoError(t, os.MkdirAll(cfg.MediaRoot, 0o755))
	// Point the ad loop at a file that will never exist: Spawn then reports
	// ExitSpawnFailed and the controller sits in its restart-backoff loop,
	// which is harmless for tests that never wait on playback state.
	cfg.AdFilePath = filepath.Join(dir, "ads", "missing.mp4")

	reg := NewRegistry(cat, cfg)
	srv := NewServer(reg, cfg.MediaRoot)
	return srv, reg
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleInit_CreatesAndIsIdempotent(t *testing.T) {
	srv, _ := testSetup(t)
	handler := srv.Routes()
	t.Cleanup(func() { srv.registry.StopAll() })

	w := doRequest(t, handler, http.MethodPost, "/channels", initRequest{ID: "ch1", Name: "Channel One"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp initResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ch1", resp.ID)

	// Re-init is idempotent: same id, no error, no duplicate controller.
	w2 := doRequest(t, handler, http.MethodPost, "/channels", initRequest{ID: "ch1", Name: "Channel One"})
	require.Equal(t, http.StatusOK, w2.Code)
}

func TestHandleInit_RequiresName(t *testing.T) {
	srv, _ := testSetup(t)
	handler := srv.Routes()
	t.Cleanup(func() { srv.registry.StopAll() })

	w := doRequest(t, handler, http.MethodPost, "/channels", initRequest{ID: "ch1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStatus_UnknownChannelIs404(t *testing.T) {
	srv, _ := testSetup(t)
	handler := srv.Routes()
	t.Cleanup(func() { srv.registry.StopAll() })

	w := doRequest(t, handler, http.MethodGet, "/channels/nope/status", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStatus_KnownChannelReturnsSnapshot(t *testing.T) {
	srv, reg := testSetup(t)
	handler := srv.Routes()
	t.Cleanup(func() { srv.registry.StopAll() })

	_, err := reg.Init(context.Background(), "ch1", "Channel One")
	require.NoError(t, err)

	var code int
	require.Eventually(t, func() bool {
		w := doRequest(t, handler, http.MethodGet, "/channels/ch1/status", nil)
		code = w.Code
		return code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, code)
}

func TestHandleEnqueue_RejectsPathEscapingMediaRoot(t *testing.T) {
	srv, reg := testSetup(t)
	handler := srv.Routes()
	t.Cleanup(func() { srv.registry.StopAll() })

	_, err := reg.Init(context.Background(), "ch1", "Channel One")
	require.NoError(t, err)

	w := doRequest(t, handler, http.MethodPost, "/channels/ch1/queue", enqueueRequest{
		Title:    "Escape Attempt",
		FilePath: "../../../etc/passwd",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEnqueue_AcceptsValidPath(t *testing.T) {
	srv, reg := testSetup(t)
	handler := srv.Routes()
	t.Cleanup(func() { srv.registry.StopAll() })

	_, err := reg.Init(context.Background(), "ch1", "Channel One")
	require.NoError(t, err)

	w := doRequest(t, handler, http.MethodPost, "/channels/ch1/queue", enqueueRequest{
		Title:    "Good Movie",
		FilePath: "movies/good.mp4",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var entries []map[string]any
	require.Eventually(t, func() bool {
		w := doRequest(t, handler, http.MethodGet, "/channels/ch1/queue", nil)
		if w.Code != http.StatusOK {
			return false
		}
		return json.Unmarshal(w.Body.Bytes(), &entries) == nil && len(entries) > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "Good Movie", entries[0]["title"])
}

func TestHandleSchedule_UnknownChannelIs404(t *testing.T) {
	srv, _ := testSetup(t)
	handler := srv.Routes()
	t.Cleanup(func() { srv.registry.StopAll() })

	w := doRequest(t, handler, http.MethodGet, "/channels/nope/schedule", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDebug_ReturnsDiagnostics(t *testing.T) {
	srv, reg := testSetup(t)
	handler := srv.Routes()
	t.Cleanup(func() { srv.registry.StopAll() })

	_, err := reg.Init(context.Background(), "ch1", "Channel One")
	require.NoError(t, err)

	var body map[string]any
	require.Eventually(t, func() bool {
		w := doRequest(t, handler, http.MethodGet, "/channels/ch1/debug", nil)
		if w.Code != http.StatusOK {
			return false
		}
		return json.Unmarshal(w.Body.Bytes(), &body) == nil && body["activeSlot"] != nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, []any{"A", "B"}, body["activeSlot"])
}
