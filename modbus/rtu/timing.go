// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "time"

// Above this baud rate the inter-character and inter-frame gaps are fixed.
const fixedTimingBaudRate = 19200

// Timing derives serial line timings from the character format.
type Timing struct {
	BaudRate int
	DataBits int    // default 8
	StopBits int    // default 1
	Parity   string // "N", "E" or "O"
}

// bitsPerChar counts start, data, parity and stop bits.
func (t Timing) bitsPerChar() int {
	dataBits, stopBits := t.DataBits, t.StopBits
	if dataBits <= 0 {
		dataBits = 8
	}
	if stopBits <= 0 {
		stopBits = 1
	}
	bits := 1 + dataBits + stopBits
	if t.Parity != "" && t.Parity != "N" {
		bits++
	}
	return bits
}

func (t Timing) baudRate() int {
	if t.BaudRate <= 0 {
		return fixedTimingBaudRate
	}
	return t.BaudRate
}

// CharTime is the time one character occupies the line.
func (t Timing) CharTime() time.Duration {
	return time.Duration(t.bitsPerChar()) * time.Second / time.Duration(t.baudRate())
}

// TransmitTime is the time n characters occupy the line.
func (t Timing) TransmitTime(n int) time.Duration {
	return time.Duration(n) * t.CharTime()
}

// InterCharTimeout is 1.5 character times (t1.5).
func (t Timing) InterCharTimeout() time.Duration {
	if t.baudRate() > fixedTimingBaudRate {
		return 750 * time.Microsecond
	}
	return t.CharTime() * 3 / 2
}

// InterFrameDelay is 3.5 character times (t3.5), the silence that
// separates frames.
func (t Timing) InterFrameDelay() time.Duration {
	if t.baudRate() > fixedTimingBaudRate {
		return 1750 * time.Microsecond
	}
	return t.CharTime() * 7 / 2
}
