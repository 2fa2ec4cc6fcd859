// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
)

// Function describes one supported function code. Masters use it to
// validate and build requests, slaves to validate quantities.
type Function struct {
	Code        byte
	Name        string
	MaxQuantity uint16 // 0 for single value writes
	Write       bool
}

// Quantity limits per Modbus application protocol V1.1b3.
const (
	MaxReadBits       = 2000
	MaxReadRegisters  = 125
	MaxWriteBits      = 1968
	MaxWriteRegisters = 123
)

var functions = map[byte]*Function{
	FuncCodeReadCoils:              {FuncCodeReadCoils, "ReadCoils", MaxReadBits, false},
	FuncCodeReadDiscreteInputs:     {FuncCodeReadDiscreteInputs, "ReadDiscreteInputs", MaxReadBits, false},
	FuncCodeReadHoldingRegisters:   {FuncCodeReadHoldingRegisters, "ReadHoldingRegisters", MaxReadRegisters, false},
	FuncCodeReadInputRegisters:     {FuncCodeReadInputRegisters, "ReadInputRegisters", MaxReadRegisters, false},
	FuncCodeWriteSingleCoil:        {FuncCodeWriteSingleCoil, "WriteSingleCoil", 0, true},
	FuncCodeWriteSingleRegister:    {FuncCodeWriteSingleRegister, "WriteSingleRegister", 0, true},
	FuncCodeWriteMultipleCoils:     {FuncCodeWriteMultipleCoils, "WriteMultipleCoils", MaxWriteBits, true},
	FuncCodeWriteMultipleRegisters: {FuncCodeWriteMultipleRegisters, "WriteMultipleRegisters", MaxWriteRegisters, true},
}

// Lookup returns the table entry of a function code.
func Lookup(funcCode byte) (*Function, bool) {
	f, ok := functions[funcCode]
	return f, ok
}

// CheckQuantity validates a quantity against the limits of the function
// and the 16-bit address space.
func CheckQuantity(funcCode byte, address, quantity uint16) error {
	f, ok := functions[funcCode]
	if !ok {
		return fmt.Errorf("modbus: unsupported function code '%v'", funcCode)
	}
	if quantity < 1 || quantity > f.MaxQuantity {
		return fmt.Errorf("%w: '%v' must be between '%v' and '%v'", ErrQuantity, quantity, 1, f.MaxQuantity)
	}
	if int(address)+int(quantity) > 0x10000 {
		return fmt.Errorf("%w: address '%v' + quantity '%v' exceeds address space", ErrQuantity, address, quantity)
	}
	return nil
}

// ReadRequest builds the PDU of function codes 1 to 4.
func ReadRequest(funcCode byte, address, quantity uint16) (ProtocolDataUnit, error) {
	if f, ok := functions[funcCode]; !ok || f.Write {
		return ProtocolDataUnit{}, fmt.Errorf("modbus: '%v' is not a read function", funcCode)
	}
	if err := CheckQuantity(funcCode, address, quantity); err != nil {
		return ProtocolDataUnit{}, err
	}
	return ProtocolDataUnit{FunctionCode: funcCode, Data: dataBlock(address, quantity)}, nil
}

// WriteSingleCoilRequest builds a function 5 request with the canonical
// coil encoding.
func WriteSingleCoilRequest(address uint16, value bool) ProtocolDataUnit {
	v := uint16(CoilOff)
	if value {
		v = CoilOn
	}
	return ProtocolDataUnit{FunctionCode: FuncCodeWriteSingleCoil, Data: dataBlock(address, v)}
}

// WriteSingleRegisterRequest builds a function 6 request.
func WriteSingleRegisterRequest(address, value uint16) ProtocolDataUnit {
	return ProtocolDataUnit{FunctionCode: FuncCodeWriteSingleRegister, Data: dataBlock(address, value)}
}

// WriteMultipleCoilsRequest builds a function 15 request.
func WriteMultipleCoilsRequest(address uint16, values []bool) (ProtocolDataUnit, error) {
	quantity := uint16(len(values))
	if len(values) > MaxWriteBits {
		quantity = 0
	}
	if err := CheckQuantity(FuncCodeWriteMultipleCoils, address, quantity); err != nil {
		return ProtocolDataUnit{}, err
	}
	packed := PackBits(values)
	data := make([]byte, 5, 5+len(packed))
	binary.BigEndian.PutUint16(data[0:], address)
	binary.BigEndian.PutUint16(data[2:], quantity)
	data[4] = byte(len(packed))
	return ProtocolDataUnit{FunctionCode: FuncCodeWriteMultipleCoils, Data: append(data, packed...)}, nil
}

// WriteMultipleRegistersRequest builds a function 16 request.
func WriteMultipleRegistersRequest(address uint16, values []uint16) (ProtocolDataUnit, error) {
	quantity := uint16(len(values))
	if len(values) > MaxWriteRegisters {
		quantity = 0
	}
	if err := CheckQuantity(FuncCodeWriteMultipleRegisters, address, quantity); err != nil {
		return ProtocolDataUnit{}, err
	}
	data := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(data[0:], address)
	binary.BigEndian.PutUint16(data[2:], quantity)
	data[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:], v)
	}
	return ProtocolDataUnit{FunctionCode: FuncCodeWriteMultipleRegisters, Data: data}, nil
}

// CheckResponse turns exception responses into *ExceptionError and rejects
// a response to a different function.
func CheckResponse(request, response ProtocolDataUnit) error {
	if response.FunctionCode == request.FunctionCode|ExceptionFlag {
		if len(response.Data) != 1 {
			return Protocolf("exception response length '%v' must be 1", len(response.Data))
		}
		return &ExceptionError{FunctionCode: response.FunctionCode, Code: ExceptionCode(response.Data[0])}
	}
	if response.FunctionCode != request.FunctionCode {
		return Protocolf("response function code '%v' does not match request '%v'", response.FunctionCode, request.FunctionCode)
	}
	return nil
}

// DecodeBits unpacks a function 1/2 response payload.
func DecodeBits(response ProtocolDataUnit, quantity uint16) ([]bool, error) {
	want := (int(quantity) + 7) / 8
	if len(response.Data) < 1 || int(response.Data[0]) != want || len(response.Data) != 1+want {
		return nil, Protocolf("response data size '%v' does not match quantity '%v'", len(response.Data), quantity)
	}
	return UnpackBits(response.Data[1:], int(quantity)), nil
}

// DecodeRegisters unpacks a function 3/4 response payload.
func DecodeRegisters(response ProtocolDataUnit, quantity uint16) ([]uint16, error) {
	want := 2 * int(quantity)
	if len(response.Data) < 1 || int(response.Data[0]) != want || len(response.Data) != 1+want {
		return nil, Protocolf("response data size '%v' does not match quantity '%v'", len(response.Data), quantity)
	}
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(response.Data[1+2*i:])
	}
	return values, nil
}

// VerifyEcho checks a write response: functions 5 and 6 echo the request,
// functions 15 and 16 echo the start address and quantity.
func VerifyEcho(request, response ProtocolDataUnit) error {
	if len(response.Data) != 4 || len(request.Data) < 4 {
		return Protocolf("response data size '%v' does not match expected '%v'", len(response.Data), 4)
	}
	for i := 0; i < 4; i++ {
		if response.Data[i] != request.Data[i] {
			return Protocolf("response echo '% X' does not match request '% X'", response.Data, request.Data[:4])
		}
	}
	return nil
}

// ParseBlock reads the leading address/value pair of a request payload.
func ParseBlock(data []byte) (address, value uint16) {
	return binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[2:4])
}

// PackBits packs booleans LSB first, as coils travel on the wire.
func PackBits(values []bool) []byte {
	packed := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	return packed
}

// UnpackBits is the inverse of PackBits for the first n bits.
func UnpackBits(packed []byte, n int) []bool {
	values := make([]bool, n)
	for i := range values {
		values[i] = packed[i/8]&(1<<uint(i%8)) != 0
	}
	return values
}

func dataBlock(value ...uint16) []byte {
	data := make([]byte, 2*len(value))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}
