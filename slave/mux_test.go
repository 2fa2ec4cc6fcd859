// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"reflect"
	"testing"

	"github.com/ffutop/modbus-engine/model"
	"github.com/ffutop/modbus-engine/modbus"
)

func TestParseSlaveIDs(t *testing.T) {
	tests := []struct {
		input   string
		want    []byte
		wantErr bool
	}{
		{"1", []byte{1}, false},
		{"1,2,3", []byte{1, 2, 3}, false},
		{"1-3", []byte{1, 2, 3}, false},
		{" 1, 5-7 ,10", []byte{1, 5, 6, 7, 10}, false},
		{"", nil, false},
		{"0", nil, true},
		{"248", nil, true},
		{"5-3", nil, true},
		{"a", nil, true},
		{"1-b", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseSlaveIDs(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSlaveIDs(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseSlaveIDs(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestMux(t *testing.T) {
	ctx := context.Background()
	newSlave := func(id byte, value uint16) *Slave {
		store := model.New()
		store.AddHoldingRegister(0, value)
		s, err := New(id, store)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	a, b := newSlave(1, 0xAAAA), newSlave(2, 0xBBBB)

	mux := NewMux("test")
	mux.HandleSlave(a)
	ids, _ := ParseSlaveIDs("2,5-6")
	mux.Handle(ids, b)

	read := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0, 0, 0, 1}}
	cases := []struct {
		unit byte
		want []byte
	}{
		{1, []byte{0x02, 0xAA, 0xAA}},
		{2, []byte{0x02, 0xBB, 0xBB}},
		{6, []byte{0x02, 0xBB, 0xBB}},
	}
	for _, c := range cases {
		if !mux.Addressed(c.unit) {
			t.Fatalf("unit %d not addressed", c.unit)
		}
		resp := mux.ServeModbus(ctx, c.unit, read)
		if !reflect.DeepEqual(resp.Data, c.want) {
			t.Errorf("unit %d: got % X, want % X", c.unit, resp.Data, c.want)
		}
	}

	if mux.Addressed(3) {
		t.Error("unit 3 must not be addressed")
	}
	resp := mux.ServeModbus(ctx, 3, read)
	if resp.FunctionCode != 0x83 || resp.Data[0] != byte(modbus.ExceptionCodeGatewayPathUnavailable) {
		t.Errorf("unrouted unit: got %v", resp)
	}

	// broadcast writes reach every slave once
	write := modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0, 0, 0x12, 0x34}}
	if !mux.Addressed(modbus.BroadcastID) {
		t.Fatal("broadcast not addressed")
	}
	mux.ServeModbus(ctx, modbus.BroadcastID, write)
	for _, s := range []*Slave{a, b} {
		regs, _ := s.Store.ReadRegisters(model.HoldingRegister, 0, 1)
		if regs[0] != 0x1234 {
			t.Errorf("slave %d: register = %#x", s.ID, regs[0])
		}
	}

	mux.DefaultRoute = a
	if !mux.Addressed(100) {
		t.Error("default route must address every unit")
	}
}

type writeCounter struct{ writes int }

func (w *writeCounter) OnWrite(model.Kind, uint16, []uint16) { w.writes++ }

func TestMux_BroadcastSharedStore(t *testing.T) {
	store := model.New()
	store.AddHoldingRegister(0, 0)
	counter := &writeCounter{}
	store.SetObserver(counter)

	mux := NewMux("shared")
	for _, id := range []byte{1, 2, 3} {
		s, err := New(id, store)
		if err != nil {
			t.Fatal(err)
		}
		mux.HandleSlave(s)
	}
	other, _ := New(9, nil)
	other.Store.AddHoldingRegister(0, 0)
	mux.HandleSlave(other)

	write := modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0, 0, 0x00, 0x2A}}
	mux.ServeModbus(context.Background(), modbus.BroadcastID, write)

	if counter.writes != 1 {
		t.Errorf("shared store written %d times, want 1", counter.writes)
	}
	regs, _ := other.Store.ReadRegisters(model.HoldingRegister, 0, 1)
	if regs[0] != 0x2A {
		t.Errorf("separate store: register = %#x", regs[0])
	}
}
