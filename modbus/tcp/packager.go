// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"sync/atomic"

	"github.com/ffutop/modbus-engine/modbus"
)

// Packager implements modbus.Packager for MBAP framing. Every Encode
// takes the next transaction id.
type Packager struct {
	transactionID atomic.Uint32
}

// Encode implements modbus.Packager.
func (p *Packager) Encode(slaveID byte, pdu modbus.ProtocolDataUnit) ([]byte, error) {
	adu := &ApplicationDataUnit{
		TransactionID: uint16(p.transactionID.Add(1)),
		SlaveID:       slaveID,
		Pdu:           pdu,
	}
	return adu.Encode()
}

// Decode implements modbus.Packager.
func (p *Packager) Decode(raw []byte) (byte, modbus.ProtocolDataUnit, error) {
	adu, err := Decode(raw)
	if err != nil {
		return 0, modbus.ProtocolDataUnit{}, err
	}
	return adu.SlaveID, adu.Pdu, nil
}

// Verify implements modbus.Packager.
func (p *Packager) Verify(aduRequest, aduResponse []byte) error {
	req, err := Decode(aduRequest)
	if err != nil {
		return err
	}
	resp, err := Decode(aduResponse)
	if err != nil {
		return err
	}
	return req.Verify(resp)
}

// ResponseLength implements modbus.Packager.
func (p *Packager) ResponseLength(buf []byte) (int, error) {
	return FrameLength(buf)
}
