// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu hosts RTU masters and slaves on a serial line.
package rtu

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-engine/internal/config"
	rtupacket "github.com/ffutop/modbus-engine/modbus/rtu"
	"github.com/ffutop/modbus-engine/sched"
	"github.com/ffutop/modbus-engine/transport"
	"github.com/grid-x/serial"
)

// SerialConfig maps the line settings to the port configuration. RS485
// settings let the driver switch RTS around transmissions.
func SerialConfig(cfg config.SerialConfig) *serial.Config {
	return &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
		RS485: serial.RS485Config{
			Enabled:            cfg.RS485,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		},
	}
}

// Timing returns the character timing of the line.
func Timing(cfg config.SerialConfig) rtupacket.Timing {
	return rtupacket.Timing{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
	}
}

// Open opens the serial port as a Stream. Read timeouts of the port are
// empty reads.
func Open(cfg config.SerialConfig) (*transport.BufferedStream, error) {
	port, err := serial.Open(SerialConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", cfg.Device, err)
	}
	slog.Debug("Opened serial port", "device", cfg.Device, "baud", cfg.BaudRate, "parity", cfg.Parity)
	return transport.NewBufferedStream(port, transport.WithTimeout(func(err error) bool {
		return errors.Is(err, serial.ErrTimeout)
	})), nil
}

// Direction switches a half-duplex transceiver: true enables the driver,
// false returns the line to receive.
type Direction func(transmit bool) error

// turnaround asserts the direction control around every write and keeps it
// asserted until the last character has left the line, plus one character
// time.
type turnaround struct {
	transport.Stream
	direction Direction
	timing    rtupacket.Timing
	clock     sched.Clock
}

func withDirection(s transport.Stream, d Direction, timing rtupacket.Timing, clock sched.Clock) transport.Stream {
	if d == nil {
		return s
	}
	return &turnaround{Stream: s, direction: d, timing: timing, clock: clock}
}

func (t *turnaround) Write(p []byte) (int, error) {
	if err := t.direction(true); err != nil {
		return 0, fmt.Errorf("failed to assert direction: %w", err)
	}
	n, err := t.Stream.Write(p)
	t.clock.Sleep(t.timing.TransmitTime(n) + t.timing.CharTime())
	if derr := t.direction(false); derr != nil && err == nil {
		err = fmt.Errorf("failed to release direction: %w", derr)
	}
	return n, err
}
