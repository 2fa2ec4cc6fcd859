// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"testing"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestChecksum_ReadHoldingRequest(t *testing.T) {
	// 01 03 00 00 00 01 84 0A on the wire
	if got := Checksum([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}); got != 0x0A84 {
		t.Fatalf("crc expected %04X, actual %04X", 0x0A84, got)
	}
}

func TestCRC_Incremental(t *testing.T) {
	data := []byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03}
	var crc CRC
	crc.Reset().PushBytes(data[:2]).PushBytes(data[2:])
	if crc.Value() != Checksum(data) {
		t.Fatalf("incremental crc %04X differs from one-shot %04X", crc.Value(), Checksum(data))
	}
}
