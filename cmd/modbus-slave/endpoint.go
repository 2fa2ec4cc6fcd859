// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ffutop/modbus-engine/internal/config"
	"github.com/ffutop/modbus-engine/model"
	"github.com/ffutop/modbus-engine/model/persistence"
	"github.com/ffutop/modbus-engine/sched"
	"github.com/ffutop/modbus-engine/slave"
	"github.com/ffutop/modbus-engine/transport"
	"github.com/ffutop/modbus-engine/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-engine/transport/rtu-over-tcp"
	"github.com/ffutop/modbus-engine/transport/tcp"
)

// endpoint is one configured slave: a store, its storage, the server
// exposing it and the optional uptime ticker.
type endpoint struct {
	name    string
	store   *model.Store
	storage persistence.Storage
	mux     *slave.Mux
	server  transport.Server
	uptime  *sched.Ticker
}

func newEndpoint(sc config.SlaveConfig, clock sched.Clock) (*endpoint, error) {
	store := model.New()
	if sc.Seed != "" {
		seed, err := model.LoadSeed(sc.Seed)
		if err != nil {
			return nil, err
		}
		seed.Apply(store)
	}
	if sc.Uptime.Enabled {
		store.AddInputRegister(sc.Uptime.Address, 0)
	}

	// persisted values win over the seed
	storage, err := persistence.New(sc.Persistence.Type, sc.Persistence.Path)
	if err != nil {
		return nil, fmt.Errorf("slave %s: %w", sc.Name, err)
	}
	if err := storage.Load(store); err != nil {
		storage.Close()
		return nil, fmt.Errorf("slave %s: failed to load registers: %w", sc.Name, err)
	}
	if err := storage.Save(store); err != nil {
		storage.Close()
		return nil, fmt.Errorf("slave %s: failed to save registers: %w", sc.Name, err)
	}
	store.SetObserver(storage)

	ep := &endpoint{name: sc.Name, store: store, storage: storage}
	if ep.mux, err = newMux(sc, store); err != nil {
		storage.Close()
		return nil, err
	}

	switch sc.Type {
	case config.TypeTCP:
		s := tcp.NewServer(sc.Tcp.Address, ep.mux)
		s.Debug, s.Clock = sc.Debug, clock
		ep.server = s
	case config.TypeRTUOverTCP:
		s := rtuovertcp.NewServer(sc.Tcp.Address, ep.mux)
		s.Debug, s.Clock = sc.Debug, clock
		ep.server = s
	case config.TypeRTU:
		s := rtu.NewServer(sc.Serial, ep.mux)
		s.Debug, s.Clock = sc.Debug, clock
		ep.server = s
	default:
		storage.Close()
		return nil, fmt.Errorf("slave %s: unsupported type '%s'", sc.Name, sc.Type)
	}

	if sc.Uptime.Enabled {
		start := clock.Now()
		address := sc.Uptime.Address
		ep.uptime = sched.Every(clock, sc.Uptime.Interval, func(now time.Time) {
			if err := store.WriteRegister(model.InputRegister, address, uptimeSeconds(now.Sub(start))); err != nil {
				slog.Warn("Failed to update uptime", "slave", sc.Name, "err", err)
			}
		})
	}
	slog.Info("Configured slave", "name", sc.Name, "type", sc.Type, "units", sc.UnitIDs, "persistence", sc.Persistence.Type)
	return ep, nil
}

// uptimeSeconds saturates at 0xFFFF, about 18.2 hours.
func uptimeSeconds(d time.Duration) uint16 {
	if s := d / time.Second; s < math.MaxUint16 {
		return uint16(s)
	}
	return math.MaxUint16
}

func newMux(sc config.SlaveConfig, store *model.Store) (*slave.Mux, error) {
	ids, err := slave.ParseSlaveIDs(sc.UnitIDs)
	if err != nil {
		return nil, fmt.Errorf("slave %s: %w", sc.Name, err)
	}
	mux := slave.NewMux(sc.Name)
	for _, id := range ids {
		s, err := slave.New(id, store)
		if err != nil {
			return nil, fmt.Errorf("slave %s: %w", sc.Name, err)
		}
		s.Debug = sc.Debug
		mux.HandleSlave(s)
	}
	return mux, nil
}

func (ep *endpoint) schedule(s *sched.Scheduler) {
	s.Add(ep.server.Step)
	if ep.uptime != nil {
		s.Add(ep.uptime.Step)
	}
}

func (ep *endpoint) close() {
	if err := ep.server.Stop(); err != nil {
		slog.Error("Failed to stop slave", "name", ep.name, "err", err)
	}
	if err := ep.storage.Close(); err != nil {
		slog.Error("Failed to close storage", "name", ep.name, "err", err)
	}
}
