// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"fmt"
	"sync"
)

// Event identifies the kind of request an observer is interested in.
type Event int

const (
	EventReadCoils Event = iota + 1
	EventReadDiscreteInputs
	EventReadHoldingRegisters
	EventReadInputRegisters
	EventWriteSingleCoil
	EventWriteSingleRegister
	EventWriteMultipleCoils
	EventWriteMultipleRegisters
)

func (e Event) String() string {
	switch e {
	case EventReadCoils:
		return "ReadCoils"
	case EventReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case EventReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case EventReadInputRegisters:
		return "ReadInputRegisters"
	case EventWriteSingleCoil:
		return "WriteSingleCoil"
	case EventWriteSingleRegister:
		return "WriteSingleRegister"
	case EventWriteMultipleCoils:
		return "WriteMultipleCoils"
	case EventWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Request describes a request that was served with a normal response.
// Bits is set for coil and discrete input events, Registers otherwise; both
// hold the values read or written.
type Request struct {
	Event     Event
	SlaveID   byte
	Address   uint16
	Quantity  uint16
	Bits      []bool
	Registers []uint16
}

// Observer is called after a request has been answered. It cannot alter
// the response.
type Observer func(ctx context.Context, req Request)

// Observers is the observer table of a slave. The zero value is empty.
type Observers struct {
	mu sync.RWMutex

	readCoils              []Observer
	readDiscreteInputs     []Observer
	readHoldingRegisters   []Observer
	readInputRegisters     []Observer
	writeSingleCoil        []Observer
	writeSingleRegister    []Observer
	writeMultipleCoils     []Observer
	writeMultipleRegisters []Observer
}

// On registers fn for event. Observers of one event run in registration order.
func (o *Observers) On(event Event, fn Observer) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	list := o.list(event)
	if list == nil {
		return fmt.Errorf("slave: unknown event '%v'", event)
	}
	*list = append(*list, fn)
	return nil
}

// list returns the observers of an event. Caller must hold the lock.
func (o *Observers) list(event Event) *[]Observer {
	switch event {
	case EventReadCoils:
		return &o.readCoils
	case EventReadDiscreteInputs:
		return &o.readDiscreteInputs
	case EventReadHoldingRegisters:
		return &o.readHoldingRegisters
	case EventReadInputRegisters:
		return &o.readInputRegisters
	case EventWriteSingleCoil:
		return &o.writeSingleCoil
	case EventWriteSingleRegister:
		return &o.writeSingleRegister
	case EventWriteMultipleCoils:
		return &o.writeMultipleCoils
	case EventWriteMultipleRegisters:
		return &o.writeMultipleRegisters
	}
	return nil
}

func (o *Observers) dispatch(ctx context.Context, req *Request) {
	o.mu.RLock()
	list := o.list(req.Event)
	var fns []Observer
	if list != nil {
		fns = *list
	}
	o.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx, *req)
	}
}
