// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"testing"
	"time"

	"github.com/ffutop/modbus-engine/internal/config"
	"github.com/ffutop/modbus-engine/sched"
	"github.com/ffutop/modbus-engine/transport"
)

func TestFrameScanner_BackToBack(t *testing.T) {
	sc := FrameScanner{Gap: 2 * time.Millisecond}
	a := frame(t, 1, 0x03, 0x00, 0x00, 0x00, 0x01)
	b := frame(t, 1, 0x0F, 0x00, 0x00, 0x00, 0x0A, 0x02, 0xFF, 0x03)

	sc.Push(epoch, append(append([]byte{}, a...), b...))
	got, ok := sc.Next(epoch)
	if !ok || !bytes.Equal(got, a) {
		t.Fatalf("first frame = % X, %v", got, ok)
	}
	got, ok = sc.Next(epoch)
	if !ok || !bytes.Equal(got, b) {
		t.Fatalf("second frame = % X, %v", got, ok)
	}
	if _, ok := sc.Next(epoch); ok {
		t.Fatal("unexpected third frame")
	}
}

func TestFrameScanner_OversizedByteCount(t *testing.T) {
	sc := FrameScanner{Gap: time.Millisecond}
	valid := frame(t, 1, 0x06, 0x00, 0x01, 0x00, 0x02)
	// 0x10 header announcing 0xFF data bytes exceeds the maximum frame size
	sc.Push(epoch, append([]byte{0x01, 0x10, 0x00, 0x00, 0x00, 0x01, 0xFF}, valid...))

	if _, ok := sc.Next(epoch); ok {
		t.Fatal("frame found before the line went quiet")
	}
	got, ok := sc.Next(epoch.Add(sc.Gap))
	if !ok || !bytes.Equal(got, valid) {
		t.Fatalf("frame = % X, %v", got, ok)
	}
}

func TestFrameScanner_LateRead(t *testing.T) {
	sc := FrameScanner{Gap: time.Millisecond}
	req := frame(t, 1, 0x03, 0x00, 0x00, 0x00, 0x01)
	sc.Push(epoch, req[:3])
	if _, ok := sc.Next(epoch); ok {
		t.Fatal("frame found in a partial read")
	}
	// the rest was on the wire already but is read one step late
	later := epoch.Add(5 * time.Millisecond)
	sc.Push(later, req[3:])

	got, ok := sc.Next(later)
	if !ok || !bytes.Equal(got, req) {
		t.Fatalf("frame = % X, %v", got, ok)
	}
}

func TestFrameScanner_StaleBytesResync(t *testing.T) {
	sc := FrameScanner{Gap: time.Millisecond}
	sc.Push(epoch, []byte{0x01, 0x03, 0x00})
	req := frame(t, 1, 0x03, 0x00, 0x00, 0x00, 0x01)
	later := epoch.Add(5 * time.Millisecond)
	sc.Push(later, req)

	if _, ok := sc.Next(later); ok {
		t.Fatal("frame found before the line went quiet")
	}
	got, ok := sc.Next(later.Add(sc.Gap))
	if !ok || !bytes.Equal(got, req) {
		t.Fatalf("frame = % X, %v", got, ok)
	}
	if n := sc.Buffered(); n != 0 {
		t.Fatalf("bytes left: %d", n)
	}
}

type directionLog struct {
	clock  *sched.ManualClock
	events []string
	times  []time.Time
}

func (d *directionLog) set(on bool) error {
	if on {
		d.events = append(d.events, "tx")
	} else {
		d.events = append(d.events, "rx")
	}
	d.times = append(d.times, d.clock.Now())
	return nil
}

func TestTurnaround(t *testing.T) {
	clock := sched.NewManualClock(epoch)
	d := &directionLog{clock: clock}
	a, _ := transport.Pipe()
	cfg := config.SerialConfig{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}
	timing := Timing(cfg)
	s := withDirection(a, d.set, timing, clock)

	if _, err := s.Write(make([]byte, 8)); err != nil {
		t.Fatal(err)
	}
	if len(d.events) != 2 || d.events[0] != "tx" || d.events[1] != "rx" {
		t.Fatalf("events = %v", d.events)
	}
	if held := d.times[1].Sub(d.times[0]); held != timing.TransmitTime(8)+timing.CharTime() {
		t.Fatalf("direction held for %v", held)
	}
	if withDirection(a, nil, timing, clock) != transport.Stream(a) {
		t.Fatal("nil direction must not wrap the stream")
	}
}
