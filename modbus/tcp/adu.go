// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-engine/modbus"
)

const (
	// HeaderSize is the MBAP header without the unit identifier.
	HeaderSize = 6

	MinSize = 8
	MaxSize = 260
)

// ApplicationDataUnit is an MBAP framed PDU.
type ApplicationDataUnit struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16
	SlaveID       byte
	Pdu           modbus.ProtocolDataUnit
}

// Decode parses a complete MBAP frame. The returned PDU data aliases raw.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	if len(raw) < MinSize {
		err = modbus.Framingf("frame length '%v' does not meet minimum '%v'", len(raw), MinSize)
		return
	}
	if len(raw) > MaxSize {
		err = modbus.Framingf("frame length '%v' must not be bigger than '%v'", len(raw), MaxSize)
		return
	}
	adu = &ApplicationDataUnit{}
	adu.TransactionID = binary.BigEndian.Uint16(raw[0:])
	adu.ProtocolID = binary.BigEndian.Uint16(raw[2:])
	adu.Length = binary.BigEndian.Uint16(raw[4:])
	if adu.ProtocolID != 0 {
		return nil, modbus.Framingf("protocol id '%v' must be '0'", adu.ProtocolID)
	}
	// Length covers unit identifier, function code and data.
	if int(adu.Length) != len(raw)-HeaderSize {
		return nil, modbus.Framingf("length field '%v' does not match remaining '%v' bytes", adu.Length, len(raw)-HeaderSize)
	}
	adu.SlaveID = raw[6]
	adu.Pdu.FunctionCode = raw[7]
	adu.Pdu.Data = raw[8:]
	return
}

// Encode fills in the protocol id and length and emits the frame.
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + MinSize
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	adu.ProtocolID = 0
	adu.Length = uint16(2 + len(adu.Pdu.Data))
	raw = make([]byte, length)

	binary.BigEndian.PutUint16(raw[0:], adu.TransactionID)
	binary.BigEndian.PutUint16(raw[2:], adu.ProtocolID)
	binary.BigEndian.PutUint16(raw[4:], adu.Length)
	raw[6] = adu.SlaveID
	raw[7] = adu.Pdu.FunctionCode
	copy(raw[8:], adu.Pdu.Data)

	return
}

// Verify checks that resp answers req.
func (req *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) (err error) {
	// Transaction ID must match
	if resp.TransactionID != req.TransactionID {
		err = modbus.Protocolf("response transaction id '%v' does not match request '%v'", resp.TransactionID, req.TransactionID)
		return
	}
	if resp.SlaveID != req.SlaveID {
		err = modbus.Protocolf("response unit id '%v' does not match request '%v'", resp.SlaveID, req.SlaveID)
		return
	}
	if resp.Pdu.FunctionCode != req.Pdu.FunctionCode && resp.Pdu.FunctionCode != req.Pdu.FunctionCode|modbus.ExceptionFlag {
		err = modbus.Protocolf("response function code '%v' does not match request '%v'", resp.Pdu.FunctionCode, req.Pdu.FunctionCode)
	}
	return
}

// FrameLength returns the total length of the MBAP frame at the head of
// buf, or 0 until the header has been buffered.
func FrameLength(buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, nil
	}
	if pid := binary.BigEndian.Uint16(buf[2:]); pid != 0 {
		return 0, modbus.Framingf("protocol id '%v' must be '0'", pid)
	}
	length := int(binary.BigEndian.Uint16(buf[4:]))
	if length < 2 || HeaderSize+length > MaxSize {
		return 0, modbus.Framingf("length field '%v' out of range", length)
	}
	return HeaderSize + length, nil
}
