// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the transport independent part of the protocol:
// protocol data units, function and exception codes, the per-function
// request/response table and the error taxonomy shared by masters and slaves.
package modbus

import (
	"context"
	"fmt"
)

// Function Codes
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10
)

// ExceptionFlag is set on the function code of an exception response.
const ExceptionFlag = 0x80

// BroadcastID addresses every slave on an RTU line. Slaves never answer it.
const BroadcastID = 0

// Slave address limits.
const (
	MinSlaveID = 1
	MaxSlaveID = 247
)

// MaxADUSize is the largest application data unit of any transport.
const MaxADUSize = 260

// Coil values on the wire.
const (
	CoilOn  = 0xFF00
	CoilOff = 0x0000
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU carries the exception flag.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&ExceptionFlag != 0
}

// Exception builds an exception response for the given request function.
func Exception(funcCode byte, code ExceptionCode) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: funcCode | ExceptionFlag,
		Data:         []byte{byte(code)},
	}
}

// Packager frames PDUs for one transport and validates the replies.
type Packager interface {
	// Encode wraps the PDU in an application data unit.
	Encode(slaveID byte, pdu ProtocolDataUnit) ([]byte, error)
	// Decode strips the framing of a complete ADU.
	Decode(adu []byte) (slaveID byte, pdu ProtocolDataUnit, err error)
	// Verify checks that a response ADU answers the request ADU.
	Verify(aduRequest, aduResponse []byte) error
	// ResponseLength returns the total length of the response ADU starting
	// at buf, or 0 when more bytes are needed to tell.
	ResponseLength(buf []byte) (int, error)
}

// Connector specifies the connection handling of a client endpoint.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

func (pdu ProtocolDataUnit) String() string {
	return fmt.Sprintf("fc=0x%02X data=% X", pdu.FunctionCode, pdu.Data)
}
