// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc computes the CRC-16/MODBUS checksum: reflected polynomial
// 0xA001, initial value 0xFFFF, transmitted low byte first.
package crc

const polynomial = 0xA001

var table [256]uint16

func init() {
	for i := range table {
		c := uint16(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = c>>1 ^ polynomial
			} else {
				c >>= 1
			}
		}
		table[i] = c
	}
}

// CRC accumulates a checksum over pushed bytes.
type CRC struct {
	value uint16
}

// Reset restores the initial value.
func (crc *CRC) Reset() *CRC {
	crc.value = 0xFFFF
	return crc
}

// PushBytes feeds bs into the checksum.
func (crc *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		crc.value = crc.value>>8 ^ table[byte(crc.value)^b]
	}
	return crc
}

// Value returns the checksum.
func (crc *CRC) Value() uint16 {
	return crc.value
}

// Checksum is a shorthand for Reset, PushBytes and Value.
func Checksum(bs []byte) uint16 {
	var c CRC
	return c.Reset().PushBytes(bs).Value()
}
