// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuovertcp carries RTU frames, CRC included, over TCP
// connections.
package rtuovertcp

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ffutop/modbus-engine/modbus"
	rtupacket "github.com/ffutop/modbus-engine/modbus/rtu"
	"github.com/ffutop/modbus-engine/sched"
	"github.com/ffutop/modbus-engine/transport"
	"github.com/ffutop/modbus-engine/transport/rtu"
)

const (
	// DefaultPollInterval is the pause between two steps of Serve.
	DefaultPollInterval = time.Millisecond
	// DefaultFrameGap is the silence that ends a frame of unknown length.
	// TCP segments arrive in bursts, so it is far longer than t3.5.
	DefaultFrameGap = 50 * time.Millisecond
)

// Server implements a Modbus RTU over TCP Server.
// Every connection is scanned for RTU frames like a serial line.
type Server struct {
	Address      string
	Handler      transport.Handler
	Debug        bool
	Clock        sched.Clock
	FrameGap     time.Duration
	PollInterval time.Duration

	ctx      context.Context
	listener *transport.Listener
	mu       sync.Mutex
	conns    []*conn
	stopped  atomic.Bool
}

type conn struct {
	*transport.Conn
	scanner rtu.FrameScanner
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string, handler transport.Handler) *Server {
	return &Server{
		Address:      address,
		Handler:      handler,
		Clock:        sched.SystemClock{},
		FrameGap:     DefaultFrameGap,
		PollInterval: DefaultPollInterval,
	}
}

// Start starts listening.
func (s *Server) Start(ctx context.Context) error {
	if s.Handler == nil {
		return fmt.Errorf("rtu over tcp server: no handler")
	}
	if s.Clock == nil {
		s.Clock = sched.SystemClock{}
	}
	listener, err := transport.Listen(s.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.ctx = ctx
	s.mu.Unlock()
	s.stopped.Store(false)
	slog.Info("RTU over TCP server listening", "addr", listener.Addr())
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Step answers the complete requests buffered on every connection.
func (s *Server) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() || s.listener == nil {
		return
	}

	gap := s.FrameGap
	if gap <= 0 {
		gap = DefaultFrameGap
	}
	for _, c := range s.listener.Accepted() {
		s.conns = append(s.conns, &conn{Conn: c, scanner: rtu.FrameScanner{Gap: gap}})
	}

	now := s.Clock.Now()
	alive := s.conns[:0]
	for _, c := range s.conns {
		if s.step(c, now) {
			alive = append(alive, c)
			continue
		}
		c.Close()
	}
	for i := len(alive); i < len(s.conns); i++ {
		s.conns[i] = nil
	}
	s.conns = alive
}

func (s *Server) step(c *conn, now time.Time) bool {
	var chunk [rtupacket.MaxSize]byte
	for c.Available() > 0 {
		n, err := c.Read(chunk[:])
		if err != nil || n == 0 {
			break
		}
		c.scanner.Push(now, chunk[:n])
	}

	for {
		frame, ok := c.scanner.Next(now)
		if !ok {
			break
		}
		if !s.handle(c, frame) {
			return false
		}
	}
	if n := c.scanner.Flush(now); n > 0 && s.Debug {
		slog.Debug("Discarded incomplete frame", "addr", c.RemoteAddr, "bytes", n)
	}
	if c.Closed() {
		slog.Info("RTU over TCP client disconnected", "addr", c.RemoteAddr, "err", c.Err())
		return false
	}
	return true
}

func (s *Server) handle(c *conn, frame []byte) bool {
	if s.Debug {
		slog.Debug("recv from modbus master", "addr", c.RemoteAddr, "request", hex.EncodeToString(frame))
	}
	adu, err := rtupacket.Decode(frame)
	if err != nil {
		slog.Warn("RTU frame decode failed", "err", err)
		return true
	}
	if !s.Handler.Addressed(adu.SlaveID) {
		return true
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	resp := s.Handler.ServeModbus(ctx, adu.SlaveID, adu.Pdu)
	if adu.SlaveID == modbus.BroadcastID {
		return true
	}

	respADU := &rtupacket.ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: resp}
	raw, err := respADU.Encode()
	if err != nil {
		slog.Error("Failed to encode response", "err", err)
		return true
	}
	if s.Debug {
		slog.Debug("send to modbus master", "addr", c.RemoteAddr, "response", hex.EncodeToString(raw))
	}
	if _, err := c.Write(raw); err != nil {
		slog.Error("Failed to write response", "addr", c.RemoteAddr, "err", err)
		return false
	}
	return true
}

// Serve steps the server until ctx is done or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for {
		if s.stopped.Load() || ctx.Err() != nil {
			return nil
		}
		s.Step()
		s.Clock.Sleep(interval)
	}
}

// Stop closes the listener and every connection.
func (s *Server) Stop() error {
	s.stopped.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
		s.listener = nil
	}
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
	return err
}
