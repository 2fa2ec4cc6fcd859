// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

// ExceptionCode is the one byte payload of an exception response.
type ExceptionCode byte

// Standard exception codes.
const (
	ExceptionCodeIllegalFunction                    ExceptionCode = 1
	ExceptionCodeIllegalDataAddress                 ExceptionCode = 2
	ExceptionCodeIllegalDataValue                   ExceptionCode = 3
	ExceptionCodeServerDeviceFailure                ExceptionCode = 4
	ExceptionCodeAcknowledge                        ExceptionCode = 5
	ExceptionCodeServerDeviceBusy                   ExceptionCode = 6
	ExceptionCodeMemoryParityError                  ExceptionCode = 8
	ExceptionCodeGatewayPathUnavailable             ExceptionCode = 10
	ExceptionCodeGatewayTargetDeviceFailedToRespond ExceptionCode = 11
)

func (e ExceptionCode) String() string {
	switch e {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		return "server device failure"
	case ExceptionCodeAcknowledge:
		return "acknowledge"
	case ExceptionCodeServerDeviceBusy:
		return "server device busy"
	case ExceptionCodeMemoryParityError:
		return "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		return "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "gateway target device failed to respond"
	}
	return "unknown"
}

// ErrTimeout is returned when no complete response arrived within the window.
var ErrTimeout = errors.New("modbus: request timed out")

// ErrQuantity rejects a request whose quantity is outside the protocol limits.
var ErrQuantity = errors.New("modbus: quantity out of range")

// TransportError is an I/O failure on the underlying byte stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("modbus: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FramingError reports a frame that cannot be trusted: bad CRC, malformed
// MBAP header or truncated buffer.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return "modbus: framing: " + e.Reason
}

// Framingf formats a FramingError.
func Framingf(format string, args ...any) *FramingError {
	return &FramingError{Reason: fmt.Sprintf(format, args...)}
}

// ProtocolError reports a well framed response that does not answer the
// request: wrong unit id, transaction id or function code, or a malformed
// payload.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "modbus: protocol: " + e.Reason
}

// Protocolf formats a ProtocolError.
func Protocolf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// ExceptionError is a well formed exception response from the slave.
type ExceptionError struct {
	FunctionCode byte
	Code         ExceptionCode
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'", byte(e.Code), e.Code, e.FunctionCode&^ExceptionFlag)
}

// Is matches another ExceptionError with the same code.
func (e *ExceptionError) Is(target error) bool {
	t, ok := target.(*ExceptionError)
	return ok && t.Code == e.Code
}
