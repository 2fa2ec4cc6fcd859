// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave implements the Modbus protocol logic of a slave device on
// top of a register store. It is transport independent: servers decode
// frames and hand the PDU to ServeModbus.
package slave

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-engine/model"
	"github.com/ffutop/modbus-engine/modbus"
)

// handler serves one function code. It returns the response and, for a
// normal response, the request description passed to observers.
type handler func(s *Slave, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, *Request)

var handlers = map[byte]handler{
	modbus.FuncCodeReadCoils:              readBits(model.Coil, EventReadCoils),
	modbus.FuncCodeReadDiscreteInputs:     readBits(model.DiscreteInput, EventReadDiscreteInputs),
	modbus.FuncCodeReadHoldingRegisters:   readRegisters(model.HoldingRegister, EventReadHoldingRegisters),
	modbus.FuncCodeReadInputRegisters:     readRegisters(model.InputRegister, EventReadInputRegisters),
	modbus.FuncCodeWriteSingleCoil:        writeSingleCoil,
	modbus.FuncCodeWriteSingleRegister:    writeSingleRegister,
	modbus.FuncCodeWriteMultipleCoils:     writeMultipleCoils,
	modbus.FuncCodeWriteMultipleRegisters: writeMultipleRegisters,
}

// Slave is a Modbus device: an address, a register store and the observers
// notified of served requests.
type Slave struct {
	ID        byte
	Store     *model.Store
	Debug     bool
	Observers Observers
}

// New creates a slave answering to id, which must be between 1 and 247.
func New(id byte, store *model.Store) (*Slave, error) {
	if id < modbus.MinSlaveID || id > modbus.MaxSlaveID {
		return nil, fmt.Errorf("slave: id '%v' must be between '%v' and '%v'", id, modbus.MinSlaveID, modbus.MaxSlaveID)
	}
	if store == nil {
		store = model.New()
	}
	return &Slave{ID: id, Store: store}, nil
}

// Addressed reports whether a frame for unitID concerns this slave.
func (s *Slave) Addressed(unitID byte) bool {
	return unitID == s.ID || unitID == modbus.BroadcastID
}

// ServeModbus executes the request against the store. Protocol failures are
// returned as exception responses; observers run for normal responses only.
func (s *Slave) ServeModbus(ctx context.Context, unitID byte, req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	h, ok := handlers[req.FunctionCode]
	if !ok {
		if s.Debug {
			slog.Debug("Unsupported function code", "slave", s.ID, "func", req.FunctionCode)
		}
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}

	resp, r := h(s, req)
	if s.Debug {
		f, _ := modbus.Lookup(req.FunctionCode)
		slog.Debug("Served request", "slave", s.ID, "unit", unitID, "func", f.Name, "req", req, "resp", resp)
	}
	if r != nil && !resp.IsException() {
		r.SlaveID = unitID
		s.Observers.dispatch(ctx, r)
	}
	return resp
}

// storeException maps a store error to an exception code.
func storeException(err error) modbus.ExceptionCode {
	if errors.Is(err, model.ErrNotFound) {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	return modbus.ExceptionCodeServerDeviceFailure
}

// checkRange validates quantity against the limit of the function
// (exception 03) and the end of the address space (exception 02).
func checkRange(funcCode byte, address, quantity uint16) (modbus.ExceptionCode, bool) {
	f, ok := modbus.Lookup(funcCode)
	if !ok {
		return modbus.ExceptionCodeIllegalFunction, false
	}
	if quantity < 1 || quantity > f.MaxQuantity {
		return modbus.ExceptionCodeIllegalDataValue, false
	}
	if int(address)+int(quantity) > model.MaxAddress+1 {
		return modbus.ExceptionCodeIllegalDataAddress, false
	}
	return 0, true
}

func readBits(kind model.Kind, event Event) handler {
	return func(s *Slave, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, *Request) {
		if len(req.Data) != 4 {
			return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
		}
		address, quantity := modbus.ParseBlock(req.Data)
		if code, ok := checkRange(req.FunctionCode, address, quantity); !ok {
			return modbus.Exception(req.FunctionCode, code), nil
		}

		values, err := s.Store.ReadBits(kind, address, int(quantity))
		if err != nil {
			return modbus.Exception(req.FunctionCode, storeException(err)), nil
		}

		packed := modbus.PackBits(values)
		respData := make([]byte, 1+len(packed))
		respData[0] = byte(len(packed))
		copy(respData[1:], packed)

		return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: respData},
			&Request{Event: event, Address: address, Quantity: quantity, Bits: values}
	}
}

func readRegisters(kind model.Kind, event Event) handler {
	return func(s *Slave, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, *Request) {
		if len(req.Data) != 4 {
			return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
		}
		address, quantity := modbus.ParseBlock(req.Data)
		if code, ok := checkRange(req.FunctionCode, address, quantity); !ok {
			return modbus.Exception(req.FunctionCode, code), nil
		}

		values, err := s.Store.ReadRegisters(kind, address, int(quantity))
		if err != nil {
			return modbus.Exception(req.FunctionCode, storeException(err)), nil
		}

		respData := make([]byte, 1+2*len(values))
		respData[0] = byte(2 * len(values))
		for i, v := range values {
			binary.BigEndian.PutUint16(respData[1+2*i:], v)
		}

		return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: respData},
			&Request{Event: event, Address: address, Quantity: quantity, Registers: values}
	}
}

func writeSingleCoil(s *Slave, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, *Request) {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address, value := modbus.ParseBlock(req.Data)
	if value != modbus.CoilOn && value != modbus.CoilOff {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	on := value == modbus.CoilOn
	if err := s.Store.WriteBit(model.Coil, address, on); err != nil {
		return modbus.Exception(req.FunctionCode, storeException(err)), nil
	}

	return echo(req), &Request{Event: EventWriteSingleCoil, Address: address, Quantity: 1, Bits: []bool{on}}
}

func writeSingleRegister(s *Slave, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, *Request) {
	if len(req.Data) != 4 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address, value := modbus.ParseBlock(req.Data)

	if err := s.Store.WriteRegister(model.HoldingRegister, address, value); err != nil {
		return modbus.Exception(req.FunctionCode, storeException(err)), nil
	}

	return echo(req), &Request{Event: EventWriteSingleRegister, Address: address, Quantity: 1, Registers: []uint16{value}}
}

func writeMultipleCoils(s *Slave, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, *Request) {
	if len(req.Data) < 6 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address, quantity := modbus.ParseBlock(req.Data)
	byteCount := int(req.Data[4])

	if code, ok := checkRange(req.FunctionCode, address, quantity); !ok {
		return modbus.Exception(req.FunctionCode, code), nil
	}
	if byteCount != (int(quantity)+7)/8 || len(req.Data)-5 != byteCount {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	values := modbus.UnpackBits(req.Data[5:], int(quantity))
	if err := s.Store.WriteBits(model.Coil, address, values); err != nil {
		return modbus.Exception(req.FunctionCode, storeException(err)), nil
	}

	return writeResponse(req.FunctionCode, address, quantity),
		&Request{Event: EventWriteMultipleCoils, Address: address, Quantity: quantity, Bits: values}
}

func writeMultipleRegisters(s *Slave, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, *Request) {
	if len(req.Data) < 6 {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address, quantity := modbus.ParseBlock(req.Data)
	byteCount := int(req.Data[4])

	if code, ok := checkRange(req.FunctionCode, address, quantity); !ok {
		return modbus.Exception(req.FunctionCode, code), nil
	}
	if byteCount != 2*int(quantity) || len(req.Data)-5 != byteCount {
		return modbus.Exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(req.Data[5+2*i:])
	}
	if err := s.Store.WriteRegisters(model.HoldingRegister, address, values); err != nil {
		return modbus.Exception(req.FunctionCode, storeException(err)), nil
	}

	return writeResponse(req.FunctionCode, address, quantity),
		&Request{Event: EventWriteMultipleRegisters, Address: address, Quantity: quantity, Registers: values}
}

func echo(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: append([]byte(nil), req.Data...)}
}

func writeResponse(funcCode byte, address, quantity uint16) modbus.ProtocolDataUnit {
	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)
	return modbus.ProtocolDataUnit{FunctionCode: funcCode, Data: respData}
}
