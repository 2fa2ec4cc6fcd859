// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"time"

	rtupacket "github.com/ffutop/modbus-engine/modbus/rtu"
	"github.com/ffutop/modbus-engine/modbus/crc"
)

// FrameScanner delimits request frames in the byte stream a slave
// receives. Frames are recognised by their length rules and CRC; on a
// mismatch one byte is dropped and scanning resumes. Frames of unknown
// function codes are delimited by line silence.
type FrameScanner struct {
	// Gap is the silence that ends a frame, t3.5 on a serial line.
	Gap time.Duration

	buf  []byte
	last time.Time
}

// Push appends received bytes. now is when the bytes were read, which may
// lag their arrival, so it never ends a frame by itself; stale partial
// frames are dropped by Flush or resynchronised by the CRC check.
func (sc *FrameScanner) Push(now time.Time, data []byte) {
	if len(data) == 0 {
		return
	}
	sc.buf = append(sc.buf, data...)
	sc.last = now
}

// Buffered returns the number of bytes waiting to form a frame.
func (sc *FrameScanner) Buffered() int {
	return len(sc.buf)
}

// Next returns the next complete frame with a valid CRC.
func (sc *FrameScanner) Next(now time.Time) ([]byte, bool) {
	for len(sc.buf) >= 2 {
		length, err := rtupacket.CalculateRequestLength(sc.buf[1], sc.buf)
		switch {
		case errors.Is(err, rtupacket.ErrUnknownFunction):
			if !sc.silent(now) {
				return nil, false
			}
			if valid(sc.buf) {
				return sc.take(len(sc.buf)), true
			}
			sc.drop()
			continue
		case err != nil:
			return nil, false
		case length > rtupacket.MaxSize:
			sc.drop()
			continue
		case len(sc.buf) < length:
			return nil, false
		}
		if valid(sc.buf[:length]) {
			return sc.take(length), true
		}
		sc.drop()
	}
	return nil, false
}

// Flush discards a partial frame once the line has been silent for Gap and
// returns the number of bytes dropped.
func (sc *FrameScanner) Flush(now time.Time) int {
	if len(sc.buf) == 0 || !sc.silent(now) {
		return 0
	}
	n := len(sc.buf)
	sc.buf = sc.buf[:0]
	return n
}

func (sc *FrameScanner) silent(now time.Time) bool {
	return now.Sub(sc.last) >= sc.Gap
}

func (sc *FrameScanner) take(n int) []byte {
	frame := append([]byte(nil), sc.buf[:n]...)
	sc.buf = append(sc.buf[:0], sc.buf[n:]...)
	return frame
}

func (sc *FrameScanner) drop() {
	sc.buf = append(sc.buf[:0], sc.buf[1:]...)
}

func valid(frame []byte) bool {
	n := len(frame)
	if n < rtupacket.MinSize || n > rtupacket.MaxSize {
		return false
	}
	return crc.Checksum(frame[:n-2]) == uint16(frame[n-1])<<8|uint16(frame[n-2])
}
