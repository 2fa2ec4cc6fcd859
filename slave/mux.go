// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ffutop/modbus-engine/modbus"
	"github.com/ffutop/modbus-engine/transport"
)

// Mux routes requests to handlers by unit id, so that one endpoint can host
// several slaves.
type Mux struct {
	Name         string
	Routes       map[byte]transport.Handler
	DefaultRoute transport.Handler
}

// NewMux creates an empty Mux.
func NewMux(name string) *Mux {
	return &Mux{
		Name:   name,
		Routes: make(map[byte]transport.Handler),
	}
}

// Handle routes every id in ids to h.
func (m *Mux) Handle(ids []byte, h transport.Handler) {
	for _, id := range ids {
		m.Routes[id] = h
	}
}

// HandleSlave routes the slave's own id to it.
func (m *Mux) HandleSlave(s *Slave) {
	m.Handle([]byte{s.ID}, s)
}

// Addressed reports whether some handler serves unitID. Broadcast concerns
// the Mux as soon as one route exists.
func (m *Mux) Addressed(unitID byte) bool {
	if unitID == modbus.BroadcastID {
		return len(m.Routes) > 0 || m.DefaultRoute != nil
	}
	if _, ok := m.Routes[unitID]; ok {
		return true
	}
	return m.DefaultRoute != nil
}

// ServeModbus is the central dispatch function. A broadcast is served once
// per distinct handler, and slaves sharing a store count as one; the last
// response is returned and is never sent on an RTU line.
func (m *Mux) ServeModbus(ctx context.Context, unitID byte, pdu modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if unitID == modbus.BroadcastID {
		resp := modbus.Exception(pdu.FunctionCode, modbus.ExceptionCodeGatewayPathUnavailable)
		seen := make(map[any]struct{})
		for _, h := range m.handlers() {
			var key any = h
			if s, ok := h.(*Slave); ok {
				key = s.Store
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			resp = h.ServeModbus(ctx, unitID, pdu)
		}
		return resp
	}

	var target transport.Handler
	if h, ok := m.Routes[unitID]; ok {
		target = h
	} else if m.DefaultRoute != nil {
		target = m.DefaultRoute
	} else {
		slog.Warn("No route found for unit ID", "mux", m.Name, "unitID", unitID)
		return modbus.Exception(pdu.FunctionCode, modbus.ExceptionCodeGatewayPathUnavailable)
	}
	return target.ServeModbus(ctx, unitID, pdu)
}

// handlers lists the routed handlers by ascending unit id, then the default.
func (m *Mux) handlers() []transport.Handler {
	var hs []transport.Handler
	for id := 0; id < 256; id++ {
		if h, ok := m.Routes[byte(id)]; ok {
			hs = append(hs, h)
		}
	}
	if m.DefaultRoute != nil {
		hs = append(hs, m.DefaultRoute)
	}
	return hs
}

// ParseSlaveIDs parses a string of slave IDs (e.g. "1,2,5-10") into a slice of bytes.
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err := parseID(lo)
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := parseID(hi)
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				ids = append(ids, byte(i))
			}
			continue
		}
		id, err := parseID(part)
		if err != nil {
			return nil, fmt.Errorf("invalid id: %w", err)
		}
		ids = append(ids, byte(id))
	}
	return ids, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if id < modbus.MinSlaveID || id > modbus.MaxSlaveID {
		return 0, fmt.Errorf("id out of range: %d", id)
	}
	return id, nil
}
