// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command channeld runs the linear channel playback engine: it loads the
// channel catalog, starts one controller per bootstrap channel (spec §6),
// and serves the Core API over HTTP until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lindelatv/channeld/internal/api"
	"github.com/lindelatv/channeld/internal/catalog"
	"github.com/lindelatv/channeld/internal/config"
	"github.com/lindelatv/channeld/internal/log"
)

var (
	version = "v0.1.0"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to bootstrap config file (YAML)")
	listenAddr := flag.String("listen", ":8080", "HTTP listen address")
	flag.Parse()

	if *showVersion {
		fmt.Printf("channeld %s\n", version)
		os.Exit(0)
	}

	log.Configure(log.Config{Level: "info", Service: "channeld"})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load channel catalog")
	}

	registry := api.NewRegistry(cat, cfg)
	for id, name := range cfg.Channels {
		if _, err := registry.Init(ctx, id, name); err != nil {
			logger.Error().Err(err).Str("channel_id", id).Msg("failed to initialize bootstrap channel")
		}
	}

	server := api.NewServer(registry, cfg.MediaRoot)

	// Hot-reload: edits to the bootstrap file take effect for new
	// channel.init calls and new enqueue confinement roots without a
	// restart; already-running controllers are unaffected.
	cfgHolder := config.NewHolder(cfg, *configPath)
	cfgHolder.OnChange(func(next config.Config) {
		registry.UpdateConfig(next)
		server.SetMediaRoot(next.MediaRoot)
	})
	go func() {
		if err := cfgHolder.Watch(ctx); err != nil {
			logger.Warn().Err(err).Msg("config watcher stopped")
		}
	}()
	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", *listenAddr).Msg("channeld listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server exited unexpectedly")
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	registry.StopAll()
}
