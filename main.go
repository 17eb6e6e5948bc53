// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/shelfmon/internal/config"
	"github.com/ffutop/shelfmon/internal/history"
	"github.com/ffutop/shelfmon/internal/monitor"
	"github.com/ffutop/shelfmon/internal/regmap"
	"github.com/ffutop/shelfmon/transport/rtu"
)

func main() {
	configFile := pflag.String("config", "", "Path to config file")
	pflag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting shelf monitor...")

	db, err := regmap.LoadDirectory(cfg.RegmapDir)
	if err != nil {
		slog.Error("Failed to load register maps", "dir", cfg.RegmapDir, "err", err)
		os.Exit(1)
	}
	slog.Info("Loaded register maps", "dir", cfg.RegmapDir, "maps", len(db.Maps()))

	var storage history.Storage
	switch cfg.Persistence.Type {
	case "mmap":
		storage = history.NewMmapStorage(cfg.Persistence.Path)
	case "memory":
		storage = history.NewMemoryStorage()
	default:
		slog.Error("Unknown persistence type", "type", cfg.Persistence.Type)
		os.Exit(1)
	}

	client := rtu.NewClient(cfg.Serial)
	defer client.Close()

	mon := monitor.New(client, db, storage, cfg.PollInterval, cfg.Serial.RqstPause)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mon.Probe(ctx); err != nil {
		slog.Error("Bus probe failed", "err", err)
		os.Exit(1)
	}
	if devices := mon.Devices(); len(devices) == 0 {
		slog.Warn("No devices answered the probe, polling will start once one is configured")
	} else {
		slog.Info("Probe complete", "devices", len(devices))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mon.Run(ctx); err != nil {
			slog.Error("Monitor stopped with error", "err", err)
		}
	}()

	// SIGUSR1 dumps the decoded history, SIGINT/SIGTERM shut down.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	for sig := range sigChan {
		if sig == syscall.SIGUSR1 {
			dumpSnapshot(mon)
			continue
		}
		break
	}

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()
	if err := storage.Close(); err != nil {
		slog.Error("Failed to close history storage", "err", err)
	}
	slog.Info("Goodbye.")
}

// dumpSnapshot writes the decoded register history of every device to
// stdout as JSON.
func dumpSnapshot(mon *monitor.Monitor) {
	snap, err := mon.Snapshot()
	if err != nil {
		slog.Error("Snapshot failed", "err", err)
		return
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		slog.Error("Snapshot encoding failed", "err", err)
		return
	}
	fmt.Println(string(out))
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
