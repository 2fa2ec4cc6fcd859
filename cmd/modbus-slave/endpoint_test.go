// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ffutop/modbus-engine/internal/config"
	"github.com/ffutop/modbus-engine/model"
	"github.com/ffutop/modbus-engine/modbus"
	"github.com/ffutop/modbus-engine/sched"
	"github.com/ffutop/modbus-engine/transport/tcp"
)

const seedYAML = `
coils:
  1000: true
  1001: false
holding_registers:
  1000: 0x0001
  1001: 0x0203
`

func tcpSlave(t *testing.T, dir string) config.SlaveConfig {
	seed := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedYAML), 0644))
	return config.SlaveConfig{
		Name:        "plc",
		Type:        config.TypeTCP,
		UnitIDs:     "1,3",
		Seed:        seed,
		Tcp:         config.TcpConfig{Address: "127.0.0.1:0"},
		Persistence: config.PersistenceConfig{Type: "file", Path: filepath.Join(dir, "plc.bin")},
	}
}

func run(t *testing.T, ep *endpoint) *tcp.Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, ep.server.Start(ctx))
	scheduler := sched.New()
	ep.schedule(scheduler)
	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx)
	}()

	c := tcp.NewClient(ep.server.(*tcp.Server).Addr().String())
	c.Timeout = 5 * time.Second
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() {
		c.Close()
		cancel()
		<-done
		ep.close()
	})
	return c
}

func TestEndpoint_ServesAndPersists(t *testing.T) {
	dir := t.TempDir()
	sc := tcpSlave(t, dir)
	ctx := context.Background()

	ep, err := newEndpoint(sc, sched.SystemClock{})
	require.NoError(t, err)
	c := run(t, ep)

	regs, err := c.ReadHoldingRegisters(ctx, 3, 1000, 2)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x0001, 0x0203}, regs)
	require.NoError(t, c.WriteSingleRegister(ctx, 1, 1001, 0xBEEF))

	_, err = c.ReadCoils(ctx, 2, 1000, 2)
	require.ErrorIs(t, err, &modbus.ExceptionError{Code: modbus.ExceptionCodeGatewayPathUnavailable})

	// a restarted endpoint keeps the written value over the seed
	c.Close()
	ep.close()
	ep, err = newEndpoint(sc, sched.SystemClock{})
	require.NoError(t, err)
	defer ep.close()
	regs, err = ep.store.ReadRegisters(model.HoldingRegister, 1000, 2)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x0001, 0xBEEF}, regs)
}

func TestEndpoint_Uptime(t *testing.T) {
	clock := sched.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ep, err := newEndpoint(config.SlaveConfig{
		Name:    "uptime",
		Type:    config.TypeTCP,
		UnitIDs: "1",
		Tcp:     config.TcpConfig{Address: "127.0.0.1:0"},
		Uptime:  config.UptimeConfig{Enabled: true, Address: 7, Interval: time.Second},
	}, clock)
	require.NoError(t, err)
	defer ep.close()

	scheduler := &sched.Scheduler{Clock: clock}
	ep.schedule(scheduler)

	scheduler.RunOnce()
	regs, err := ep.store.ReadRegisters(model.InputRegister, 7, 1)
	require.NoError(t, err)
	require.Equal(t, []uint16{0}, regs)

	clock.Advance(3 * time.Second)
	scheduler.RunOnce()
	regs, err = ep.store.ReadRegisters(model.InputRegister, 7, 1)
	require.NoError(t, err)
	require.Equal(t, []uint16{3}, regs)

	clock.Advance(24 * time.Hour)
	scheduler.RunOnce()
	regs, err = ep.store.ReadRegisters(model.InputRegister, 7, 1)
	require.NoError(t, err)
	require.Equal(t, []uint16{0xFFFF}, regs)
}

func TestEndpoint_Invalid(t *testing.T) {
	tests := map[string]config.SlaveConfig{
		"UnitIDs":     {Name: "a", Type: config.TypeTCP, UnitIDs: "0"},
		"Seed":        {Name: "b", Type: config.TypeTCP, UnitIDs: "1", Seed: "/nonexistent/seed.yaml"},
		"Persistence": {Name: "c", Type: config.TypeTCP, UnitIDs: "1", Persistence: config.PersistenceConfig{Type: "sql"}},
		"Type":        {Name: "d", Type: "ascii", UnitIDs: "1"},
	}
	for name, sc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newEndpoint(sc, sched.SystemClock{})
			require.Error(t, err)
		})
	}
}
