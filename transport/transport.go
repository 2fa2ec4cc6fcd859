// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport defines the byte stream the protocol engine runs on and
// the contract between servers and the slave logic they host.
package transport

import (
	"context"

	"github.com/ffutop/modbus-engine/modbus"
)

// Stream is a non-blocking, full-duplex byte stream: a serial line, a
// socket or an in-memory pipe. Read returns (0, nil) when nothing is
// buffered. Errors are returned as produced by the endpoint; callers wrap
// them in *modbus.TransportError.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Available returns the number of bytes Read can return without waiting.
	Available() int
}

// Handler serves decoded requests on behalf of one or more unit ids.
// The returned PDU is either a normal response or an exception.
type Handler interface {
	Addressed(unitID byte) bool
	ServeModbus(ctx context.Context, unitID byte, pdu modbus.ProtocolDataUnit) modbus.ProtocolDataUnit
}

// Server is a slave endpoint hosting a Handler.
type Server interface {
	// Start opens the endpoint. It does not block.
	Start(ctx context.Context) error
	// Step handles whatever is buffered and returns.
	Step()
	// Serve calls Step until ctx is done or Stop is called.
	Serve(ctx context.Context) error
	Stop() error
}

// Drain discards every buffered byte and returns how many were dropped.
func Drain(s Stream) (int, error) {
	var buf [256]byte
	total := 0
	for s.Available() > 0 {
		n, err := s.Read(buf[:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
