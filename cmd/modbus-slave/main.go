// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command modbus-slave serves register stores over Modbus TCP, RTU and
// RTU over TCP, as described by a YAML configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-engine/internal/config"
	"github.com/ffutop/modbus-engine/sched"
)

func main() {
	flags := config.Flags(os.Args[0])
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("Failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	// Load Configuration
	cfg, err := config.LoadFlags(flags)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus Slave...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var endpoints []*endpoint
	for _, sc := range cfg.Slaves {
		ep, err := newEndpoint(sc, sched.SystemClock{})
		if err != nil {
			slog.Error("Failed to set up slave", "name", sc.Name, "err", err)
			continue
		}
		if err := ep.server.Start(ctx); err != nil {
			slog.Error("Failed to start slave", "name", sc.Name, "err", err)
			ep.close()
			continue
		}
		endpoints = append(endpoints, ep)
	}

	if len(endpoints) == 0 {
		slog.Error("No valid slaves configured. Exiting.")
		os.Exit(1)
	}

	// All endpoints share one goroutine.
	scheduler := sched.New()
	for _, ep := range endpoints {
		ep.schedule(scheduler)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx)
	}()

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()
	<-done
	for _, ep := range endpoints {
		ep.close()
	}
	slog.Info("Goodbye.")
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
