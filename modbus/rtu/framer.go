// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-engine/modbus"
)

// ErrUnknownFunction is returned when the frame length of a function code
// cannot be derived from its header.
var ErrUnknownFunction = fmt.Errorf("modbus: function code length unknown")

// CalculateRequestLength returns the expected total length of the Request RTU ADU based on the header.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return 8, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < headerSize {
			return 0, fmt.Errorf("need %d bytes to determine length for 0x%02X, got %d", headerSize, funcCode, len(header))
		}
		return headerSize + int(header[6]) + 2, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02X", ErrUnknownFunction, funcCode)
	}
}

// ResponseLength returns the total length of the response ADU at the head
// of buf, or 0 while buf is too short to tell.
func ResponseLength(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, nil
	}
	funcCode := buf[1]
	if funcCode&modbus.ExceptionFlag != 0 {
		return ExceptionSize, nil
	}
	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters:
		if len(buf) < 3 {
			return 0, nil
		}
		if buf[2] == 0 || int(buf[2]) > MaxSize-ExceptionSize {
			return 0, modbus.Framingf("invalid byte count received: %d", buf[2])
		}
		// [SlaveID, Func, ByteCount, Data(N), CRC(2)]
		return 3 + int(buf[2]) + 2, nil
	case modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		return 8, nil
	default:
		return 0, modbus.Protocolf("unexpected response function code: %d", funcCode)
	}
}

// Packager implements modbus.Packager for RTU framing.
type Packager struct{}

// Encode implements modbus.Packager.
func (Packager) Encode(slaveID byte, pdu modbus.ProtocolDataUnit) ([]byte, error) {
	adu := &ApplicationDataUnit{SlaveID: slaveID, Pdu: pdu}
	return adu.Encode()
}

// Decode implements modbus.Packager.
func (Packager) Decode(raw []byte) (byte, modbus.ProtocolDataUnit, error) {
	adu, err := Decode(raw)
	if err != nil {
		return 0, modbus.ProtocolDataUnit{}, err
	}
	return adu.SlaveID, adu.Pdu, nil
}

// Verify implements modbus.Packager.
func (Packager) Verify(aduRequest, aduResponse []byte) error {
	if len(aduRequest) < MinSize || len(aduResponse) < MinSize {
		return modbus.Framingf("frame length '%v' does not meet minimum '%v'", len(aduResponse), MinSize)
	}
	req := &ApplicationDataUnit{SlaveID: aduRequest[0], Pdu: modbus.ProtocolDataUnit{FunctionCode: aduRequest[1]}}
	resp := &ApplicationDataUnit{SlaveID: aduResponse[0], Pdu: modbus.ProtocolDataUnit{FunctionCode: aduResponse[1], Data: aduResponse[2 : len(aduResponse)-2]}}
	return req.Verify(resp)
}

// ResponseLength implements modbus.Packager.
func (Packager) ResponseLength(buf []byte) (int, error) {
	return ResponseLength(buf)
}
