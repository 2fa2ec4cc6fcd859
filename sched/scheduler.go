// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package sched

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the pause between two passes of Run.
const DefaultInterval = time.Millisecond

// Task is one non-blocking unit of work, typically a Step method.
type Task func()

// Scheduler runs tasks cooperatively in registration order. Tasks added
// with Add run on every pass; tasks posted with Post run once, before the
// recurring tasks of the next pass, in the order they were posted.
type Scheduler struct {
	Clock    Clock
	Interval time.Duration

	mu      sync.Mutex
	tasks   []Task
	pending []Task
}

// New creates a scheduler on the system clock.
func New() *Scheduler {
	return &Scheduler{Clock: SystemClock{}, Interval: DefaultInterval}
}

// Add registers a recurring task.
func (s *Scheduler) Add(task Task) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
}

// Post queues a one-shot task. It is safe to call from a running task.
func (s *Scheduler) Post(task Task) {
	s.mu.Lock()
	s.pending = append(s.pending, task)
	s.mu.Unlock()
}

// RunOnce executes one pass.
func (s *Scheduler) RunOnce() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()

	for _, task := range pending {
		task()
	}
	for _, task := range tasks {
		task()
	}
}

// Run executes passes until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	clock := s.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.RunOnce()
		if s.Interval > 0 {
			clock.Sleep(s.Interval)
		}
	}
}
