// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"
)

// freeAddr reserves a local port for servers that cannot report theirs.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestClient_Interop(t *testing.T) {
	srv := mbserver.NewServer()
	srv.HoldingRegisters[0] = 12345
	srv.HoldingRegisters[1] = 54321
	srv.Coils[0] = 1
	srv.Coils[1] = 0
	srv.InputRegisters[10] = 0x0A0B
	addr := freeAddr(t)
	require.NoError(t, srv.ListenTCP(addr))
	defer srv.Close()

	c := NewClient(addr)
	c.Timeout = 5 * time.Second
	ctx := context.Background()
	require.Eventually(t, func() bool { return c.Connect(ctx) == nil }, 5*time.Second, 10*time.Millisecond)
	defer c.Close()

	regs, err := c.ReadHoldingRegisters(ctx, 1, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []uint16{12345, 54321}, regs)

	coils, err := c.ReadCoils(ctx, 1, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, coils)

	regs, err = c.ReadInputRegisters(ctx, 1, 10, 1)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x0A0B}, regs)

	require.NoError(t, c.WriteSingleCoil(ctx, 1, 1, true))
	require.NoError(t, c.WriteMultipleRegisters(ctx, 1, 100, []uint16{1, 2, 3}))
	require.NoError(t, c.WriteMultipleCoils(ctx, 1, 20, []bool{true, false, true}))

	regs, err = c.ReadHoldingRegisters(ctx, 1, 100, 3)
	require.NoError(t, err)
	require.Equal(t, []uint16{1, 2, 3}, regs)
	coils, err = c.ReadCoils(ctx, 1, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []bool{true, true}, coils)
}
