// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-engine/modbus"
	"github.com/ffutop/modbus-engine/modbus/crc"
)

// ApplicationDataUnit is an RTU frame without its checksum.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode checks the length and CRC of a complete frame and strips them.
// The returned PDU data aliases raw.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = modbus.Framingf("frame length '%v' does not meet minimum '%v'", length, MinSize)
		return
	}
	if length > MaxSize {
		err = modbus.Framingf("frame length '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}

	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if expected := crc.Checksum(raw[0 : length-2]); checksum != expected {
		err = modbus.Framingf("crc '%04X' does not match expected '%04X'", checksum, expected)
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = raw[2 : length-2]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	// Append crc, low byte first
	checksum := crc.Checksum(raw[0 : length-2])
	raw[length-1] = byte(checksum >> 8)
	raw[length-2] = byte(checksum)
	return
}

// Verify verifies response length, slave id and function code.
func (adu *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) (err error) {
	// Slave address must match
	if adu.SlaveID != resp.SlaveID {
		err = modbus.Protocolf("response slave id '%v' does not match request '%v'", resp.SlaveID, adu.SlaveID)
		return
	}
	if resp.Pdu.FunctionCode != adu.Pdu.FunctionCode && resp.Pdu.FunctionCode != adu.Pdu.FunctionCode|modbus.ExceptionFlag {
		err = modbus.Protocolf("response function code '%v' does not match request '%v'", resp.Pdu.FunctionCode, adu.Pdu.FunctionCode)
		return
	}
	if resp.Pdu.IsException() && len(resp.Pdu.Data) != 1 {
		err = modbus.Framingf("exception frame length '%v' does not match '%v'", len(resp.Pdu.Data)+4, ExceptionSize)
	}
	return
}
