// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"testing"

	"github.com/ffutop/modbus-engine/model"
	"github.com/ffutop/modbus-engine/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) *Slave {
	t.Helper()
	store := model.New()
	store.AddCoil(1000, true)
	store.AddCoil(1001, false)
	store.AddCoil(1002, true)
	store.AddDiscreteInput(0, true)
	store.AddHoldingRegister(1000, 0x0001)
	store.AddHoldingRegister(1001, 0x0203)
	store.AddInputRegister(0, 0x1234)
	s, err := New(1, store)
	require.NoError(t, err)
	return s
}

func pdu(fc byte, data ...byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{FunctionCode: fc, Data: data}
}

func TestNew_ID(t *testing.T) {
	_, err := New(0, nil)
	assert.Error(t, err)
	_, err = New(248, nil)
	assert.Error(t, err)
	s, err := New(247, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.Store)
	assert.True(t, s.Addressed(247))
	assert.True(t, s.Addressed(modbus.BroadcastID))
	assert.False(t, s.Addressed(1))
}

func TestServeModbus(t *testing.T) {
	tests := []struct {
		name string
		req  modbus.ProtocolDataUnit
		want modbus.ProtocolDataUnit
	}{
		{"ReadCoils", pdu(0x01, 0x03, 0xE8, 0x00, 0x03), pdu(0x01, 0x01, 0x05)},
		{"ReadDiscreteInputs", pdu(0x02, 0x00, 0x00, 0x00, 0x01), pdu(0x02, 0x01, 0x01)},
		{"ReadHoldingRegisters", pdu(0x03, 0x03, 0xE8, 0x00, 0x02), pdu(0x03, 0x04, 0x00, 0x01, 0x02, 0x03)},
		{"ReadInputRegisters", pdu(0x04, 0x00, 0x00, 0x00, 0x01), pdu(0x04, 0x02, 0x12, 0x34)},
		{"WriteSingleCoil", pdu(0x05, 0x03, 0xE9, 0xFF, 0x00), pdu(0x05, 0x03, 0xE9, 0xFF, 0x00)},
		{"WriteSingleRegister", pdu(0x06, 0x03, 0xE8, 0xAB, 0xCD), pdu(0x06, 0x03, 0xE8, 0xAB, 0xCD)},
		{"WriteMultipleCoils", pdu(0x0F, 0x03, 0xE8, 0x00, 0x03, 0x01, 0x02), pdu(0x0F, 0x03, 0xE8, 0x00, 0x03)},
		{"WriteMultipleRegisters", pdu(0x10, 0x03, 0xE8, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x00, 0x0B), pdu(0x10, 0x03, 0xE8, 0x00, 0x02)},

		{"UnknownFunction", pdu(0x2B, 0x0E, 0x01, 0x00), pdu(0xAB, 0x01)},
		{"ReadCoilsMissing", pdu(0x01, 0x00, 0x00, 0x00, 0x01), pdu(0x81, 0x02)},
		{"ReadCoilsPastBlock", pdu(0x01, 0x03, 0xE8, 0x00, 0x04), pdu(0x81, 0x02)},
		{"ReadCoilsZeroQuantity", pdu(0x01, 0x03, 0xE8, 0x00, 0x00), pdu(0x81, 0x03)},
		{"ReadCoilsTooMany", pdu(0x01, 0x00, 0x00, 0x07, 0xD1), pdu(0x81, 0x03)},
		{"ReadRegistersTooMany", pdu(0x03, 0x00, 0x00, 0x00, 0x7E), pdu(0x83, 0x03)},
		{"ReadRegistersAddressOverflow", pdu(0x03, 0xFF, 0xFF, 0x00, 0x02), pdu(0x83, 0x02)},
		{"ReadRegistersShort", pdu(0x03, 0x03, 0xE8), pdu(0x83, 0x03)},
		{"WriteSingleCoilBadValue", pdu(0x05, 0x03, 0xE8, 0x12, 0x34), pdu(0x85, 0x03)},
		{"WriteSingleCoilMissing", pdu(0x05, 0x00, 0x00, 0xFF, 0x00), pdu(0x85, 0x02)},
		{"WriteSingleRegisterMissing", pdu(0x06, 0x00, 0x00, 0x00, 0x01), pdu(0x86, 0x02)},
		{"WriteMultipleCoilsByteCount", pdu(0x0F, 0x03, 0xE8, 0x00, 0x03, 0x02, 0x01, 0x00), pdu(0x8F, 0x03)},
		{"WriteMultipleCoilsTooMany", pdu(0x0F, 0x00, 0x00, 0x07, 0xB1, 0x01, 0x00), pdu(0x8F, 0x03)},
		{"WriteMultipleRegistersByteCount", pdu(0x10, 0x03, 0xE8, 0x00, 0x02, 0x03, 0x00, 0x0A, 0x00), pdu(0x90, 0x03)},
		{"WriteMultipleRegistersTruncated", pdu(0x10, 0x03, 0xE8, 0x00, 0x02, 0x04, 0x00, 0x0A), pdu(0x90, 0x03)},
		{"WriteMultipleRegistersMissing", pdu(0x10, 0x03, 0xE9, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x00, 0x0B), pdu(0x90, 0x02)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := fixture(t)
			got := s.ServeModbus(context.Background(), 1, tt.req)
			assert.Equal(t, tt.want, got)
		})
	}
}

// quantityRequest builds a request for quantity items at address 0 with a
// consistent payload for the write functions.
func quantityRequest(fc byte, quantity uint16) modbus.ProtocolDataUnit {
	data := []byte{0x00, 0x00, byte(quantity >> 8), byte(quantity)}
	switch fc {
	case modbus.FuncCodeWriteMultipleCoils:
		n := (int(quantity) + 7) / 8
		data = append(data, byte(n))
		data = append(data, make([]byte, n)...)
	case modbus.FuncCodeWriteMultipleRegisters:
		n := 2 * int(quantity)
		data = append(data, byte(n))
		data = append(data, make([]byte, n)...)
	}
	return pdu(fc, data...)
}

func TestServeModbus_QuantityLimits(t *testing.T) {
	s, err := New(1, nil)
	require.NoError(t, err)
	for _, fc := range []byte{
		modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters,
	} {
		f, ok := modbus.Lookup(fc)
		require.True(t, ok)
		t.Run(f.Name, func(t *testing.T) {
			// the largest quantity passes validation and fails on the empty store
			got := s.ServeModbus(context.Background(), 1, quantityRequest(fc, f.MaxQuantity))
			assert.Equal(t, modbus.Exception(fc, modbus.ExceptionCodeIllegalDataAddress), got)

			got = s.ServeModbus(context.Background(), 1, quantityRequest(fc, f.MaxQuantity+1))
			assert.Equal(t, modbus.Exception(fc, modbus.ExceptionCodeIllegalDataValue), got)
		})
	}
}

func TestServeModbus_WritesReachStore(t *testing.T) {
	s := fixture(t)
	ctx := context.Background()

	s.ServeModbus(ctx, 1, pdu(0x0F, 0x03, 0xE8, 0x00, 0x03, 0x01, 0x02))
	coils, err := s.Store.ReadBits(model.Coil, 1000, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, coils)

	s.ServeModbus(ctx, 1, pdu(0x05, 0x03, 0xEA, 0xFF, 0x00))
	s.ServeModbus(ctx, 1, pdu(0x05, 0x03, 0xE9, 0x00, 0x00))
	coils, _ = s.Store.ReadBits(model.Coil, 1000, 3)
	assert.Equal(t, []bool{false, false, true}, coils)

	s.ServeModbus(ctx, 1, pdu(0x10, 0x03, 0xE8, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x00, 0x0B))
	regs, _ := s.Store.ReadRegisters(model.HoldingRegister, 1000, 2)
	assert.Equal(t, []uint16{0x000A, 0x000B}, regs)
}

func TestServeModbus_RejectedCoilValueLeavesStore(t *testing.T) {
	s := fixture(t)
	resp := s.ServeModbus(context.Background(), 1, pdu(0x05, 0x03, 0xE9, 0x00, 0x01))
	assert.True(t, resp.IsException())
	coils, _ := s.Store.ReadBits(model.Coil, 1001, 1)
	assert.Equal(t, []bool{false}, coils)
}

func TestWriteSingleRegister_Idempotent(t *testing.T) {
	s := fixture(t)
	req := pdu(0x06, 0x03, 0xE9, 0x55, 0xAA)

	first := s.ServeModbus(context.Background(), 1, req)
	second := s.ServeModbus(context.Background(), 1, req)
	assert.Equal(t, first, second)

	regs, _ := s.Store.ReadRegisters(model.HoldingRegister, 1000, 2)
	assert.Equal(t, []uint16{0x0001, 0x55AA}, regs)
}

func TestObservers(t *testing.T) {
	s := fixture(t)
	ctx := context.Background()

	var seen []Request
	record := func(ctx context.Context, r Request) { seen = append(seen, r) }
	require.NoError(t, s.Observers.On(EventReadHoldingRegisters, record))
	require.NoError(t, s.Observers.On(EventWriteSingleCoil, record))
	require.NoError(t, s.Observers.On(EventWriteSingleCoil, func(ctx context.Context, r Request) {
		seen = append(seen, Request{Event: r.Event})
	}))
	assert.Error(t, s.Observers.On(Event(99), record))

	s.ServeModbus(ctx, 1, pdu(0x03, 0x03, 0xE8, 0x00, 0x02))
	s.ServeModbus(ctx, 1, pdu(0x01, 0x03, 0xE8, 0x00, 0x03)) // no observer
	s.ServeModbus(ctx, 1, pdu(0x05, 0x00, 0x00, 0xFF, 0x00)) // exception
	s.ServeModbus(ctx, 0, pdu(0x05, 0x03, 0xE8, 0x00, 0x00))

	require.Len(t, seen, 3)
	assert.Equal(t, Request{
		Event:     EventReadHoldingRegisters,
		SlaveID:   1,
		Address:   1000,
		Quantity:  2,
		Registers: []uint16{0x0001, 0x0203},
	}, seen[0])
	assert.Equal(t, Request{
		Event:    EventWriteSingleCoil,
		SlaveID:  0,
		Address:  1000,
		Quantity: 1,
		Bits:     []bool{false},
	}, seen[1])
	assert.Equal(t, Request{Event: EventWriteSingleCoil}, seen[2])
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "WriteMultipleRegisters", EventWriteMultipleRegisters.String())
	assert.Equal(t, "Event(0)", Event(0).String())
}
