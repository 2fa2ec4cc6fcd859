// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package sched

import "time"

// Ticker calls a function at a fixed interval when stepped. Missed ticks are
// not replayed: a ticker stepped late fires once and realigns on the clock.
type Ticker struct {
	clock    Clock
	interval time.Duration
	next     time.Time
	fn       func(now time.Time)
}

// Every creates a ticker whose first tick is one interval from now.
func Every(clock Clock, interval time.Duration, fn func(now time.Time)) *Ticker {
	return &Ticker{
		clock:    clock,
		interval: interval,
		next:     clock.Now().Add(interval),
		fn:       fn,
	}
}

// Step fires the function if the tick is due.
func (t *Ticker) Step() {
	now := t.clock.Now()
	if now.Before(t.next) {
		return
	}
	t.next = t.next.Add(t.interval)
	if !t.next.After(now) {
		t.next = now.Add(t.interval)
	}
	t.fn(now)
}
