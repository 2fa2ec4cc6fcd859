// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package tcp hosts Modbus TCP masters and slaves.
package tcp

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
	tcppacket "github.com/ffutop/modbus-engine/modbus/tcp"
	"github.com/ffutop/modbus-engine/sched"
	"github.com/ffutop/modbus-engine/transport"
)

// DefaultPollInterval is the pause between two steps of Serve.
const DefaultPollInterval = time.Millisecond

// UnitIDNone is the unit identifier a TCP master sends when it addresses
// the server itself rather than a unit behind it.
const UnitIDNone = 0xFF

// Server implements a Modbus TCP Server.
type Server struct {
	Address      string
	Handler      transport.Handler
	Debug        bool
	Clock        sched.Clock
	PollInterval time.Duration

	ctx      context.Context
	listener *transport.Listener
	mu       sync.Mutex
	conns    []*conn
	stopped  atomic.Bool
}

type conn struct {
	*transport.Conn
	buf []byte
}

// NewServer creates a new TCP Server.
func NewServer(address string, handler transport.Handler) *Server {
	return &Server{
		Address:      address,
		Handler:      handler,
		Clock:        sched.SystemClock{},
		PollInterval: DefaultPollInterval,
	}
}

// Start starts listening. Connections are accepted in the background and
// served by Step.
func (s *Server) Start(ctx context.Context) error {
	if s.Handler == nil {
		return fmt.Errorf("tcp server: no handler")
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
	slog.Info("Modbus TCP server listening", "addr", listener.Addr())
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

// Step answers at most one request on each connection.
func (s *Server) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() || s.listener == nil {
		return
	}

	for _, c := range s.listener.Accepted() {
		s.conns = append(s.conns, &conn{Conn: c})
	}
	alive := s.conns[:0]
	for _, c := range s.conns {
		if s.step(c) {
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

// step serves c and reports whether it stays open.
func (s *Server) step(c *conn) bool {
	var chunk [tcppacket.MaxSize]byte
	for len(c.buf) < tcppacket.MaxSize && c.Available() > 0 {
		n, err := c.Read(chunk[:tcppacket.MaxSize-len(c.buf)])
		if err != nil || n == 0 {
			break
		}
		c.buf = append(c.buf, chunk[:n]...)
	}

	length, err := tcppacket.FrameLength(c.buf)
	if err != nil {
		slog.Warn("Invalid MBAP header, closing connection", "addr", c.RemoteAddr, "err", err)
		return false
	}
	if length == 0 || len(c.buf) < length {
		if c.Closed() {
			slog.Info("TCP client disconnected", "addr", c.RemoteAddr, "err", c.Err())
			return false
		}
		return true
	}

	frame := c.buf[:length]
	ok := s.handle(c, frame)
	c.buf = append(c.buf[:0], c.buf[length:]...)
	return ok
}

func (s *Server) handle(c *conn, frame []byte) bool {
	if s.Debug {
		slog.Debug("recv from modbus master", "addr", c.RemoteAddr, "request", hex.EncodeToString(frame))
	}
	adu, err := tcppacket.Decode(frame)
	if err != nil {
		slog.Warn("Failed to decode TCP request", "addr", c.RemoteAddr, "err", err)
		return false
	}

	var resp modbus.ProtocolDataUnit
	if adu.SlaveID == UnitIDNone || s.Handler.Addressed(adu.SlaveID) {
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		resp = s.Handler.ServeModbus(ctx, adu.SlaveID, adu.Pdu)
	} else {
		resp = modbus.Exception(adu.Pdu.FunctionCode, modbus.ExceptionCodeGatewayPathUnavailable)
	}

	respADU := &tcppacket.ApplicationDataUnit{
		TransactionID: adu.TransactionID,
		SlaveID:       adu.SlaveID,
		Pdu:           resp,
	}
	raw, err := respADU.Encode()
	if err != nil {
		slog.Error("Failed to encode TCP response", "err", err)
		return true
	}
	if s.Debug {
		slog.Debug("send to modbus master", "addr", c.RemoteAddr, "response", hex.EncodeToString(raw))
	}
	if _, err := c.Write(raw); err != nil {
		slog.Error("Failed to write response to connection", "addr", c.RemoteAddr, "err", err)
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
	clock := s.Clock
	if clock == nil {
		clock = sched.SystemClock{}
	}
	for {
		if s.stopped.Load() || ctx.Err() != nil {
			return nil
		}
		s.Step()
		clock.Sleep(interval)
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
