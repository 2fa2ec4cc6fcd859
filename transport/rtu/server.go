// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ffutop/modbus-engine/internal/config"
	"github.com/ffutop/modbus-engine/modbus"
	rtupacket "github.com/ffutop/modbus-engine/modbus/rtu"
	"github.com/ffutop/modbus-engine/sched"
	"github.com/ffutop/modbus-engine/transport"
)

// DefaultPollInterval is the pause between two steps of Serve.
const DefaultPollInterval = time.Millisecond

// Server implements a Modbus RTU slave endpoint.
// It waits on the serial bus for requests from an external master.
type Server struct {
	Config  config.SerialConfig
	Handler transport.Handler
	Debug   bool

	// Stream overrides the serial port, e.g. with a transport.Pipe.
	Stream       transport.Stream
	Clock        sched.Clock
	Direction    Direction
	PollInterval time.Duration

	ctx     context.Context
	port    io.Closer
	scanner FrameScanner
	stopped atomic.Bool
	failed  bool
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig, handler transport.Handler) *Server {
	return &Server{
		Config:       cfg,
		Handler:      handler,
		Clock:        sched.SystemClock{},
		PollInterval: DefaultPollInterval,
	}
}

// Start opens the serial port unless a Stream was provided.
func (s *Server) Start(ctx context.Context) error {
	if s.Handler == nil {
		return fmt.Errorf("rtu server: no handler")
	}
	if s.Clock == nil {
		s.Clock = sched.SystemClock{}
	}
	if s.Stream == nil {
		port, err := Open(s.Config)
		if err != nil {
			return err
		}
		s.Stream, s.port = port, port
	}
	timing := Timing(s.Config)
	s.Stream = withDirection(s.Stream, s.Direction, timing, s.Clock)
	s.scanner.Gap = timing.InterFrameDelay()
	s.ctx = ctx
	s.stopped.Store(false)
	slog.Info("RTU Server listening", "device", s.Config.Device, "frameGap", s.scanner.Gap)
	return nil
}

// Step consumes the buffered bytes and answers every complete request.
func (s *Server) Step() {
	if s.stopped.Load() || s.Stream == nil {
		return
	}

	var chunk [rtupacket.MaxSize]byte
	now := s.Clock.Now()
	for s.Stream.Available() > 0 {
		n, err := s.Stream.Read(chunk[:])
		if err != nil {
			if !s.failed {
				slog.Error("Failed to read from serial port", "device", s.Config.Device, "err", err)
				s.failed = true
			}
			return
		}
		if n == 0 {
			break
		}
		s.scanner.Push(now, chunk[:n])
	}

	for {
		frame, ok := s.scanner.Next(now)
		if !ok {
			break
		}
		s.handle(frame)
	}
	if n := s.scanner.Flush(now); n > 0 && s.Debug {
		slog.Debug("Discarded incomplete frame", "device", s.Config.Device, "bytes", n)
	}
}

func (s *Server) handle(frame []byte) {
	if s.Debug {
		slog.Debug("recv from modbus master", "request", hex.EncodeToString(frame))
	}
	adu, err := rtupacket.Decode(frame)
	if err != nil {
		return
	}
	if !s.Handler.Addressed(adu.SlaveID) {
		return
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	resp := s.Handler.ServeModbus(ctx, adu.SlaveID, adu.Pdu)
	if adu.SlaveID == modbus.BroadcastID {
		return
	}

	respADU := &rtupacket.ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: resp}
	raw, err := respADU.Encode()
	if err != nil {
		slog.Error("Failed to encode RTU response", "err", err)
		return
	}
	if s.Debug {
		slog.Debug("send to modbus master", "response", hex.EncodeToString(raw))
	}
	if _, err := s.Stream.Write(raw); err != nil {
		slog.Error("Failed to write response to serial port", "device", s.Config.Device, "err", err)
	}
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

// Stop stops Serve and closes the serial port opened by Start.
func (s *Server) Stop() error {
	s.stopped.Store(true)
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}
