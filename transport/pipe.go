// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"io"
	"sync"
)

type pipeBuffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// PipeEnd is one side of an in-memory Stream pair.
type PipeEnd struct {
	in  *pipeBuffer
	out *pipeBuffer
}

// Pipe returns two connected streams: bytes written to one are readable
// from the other. Unlike net.Pipe, writes never block.
func Pipe() (*PipeEnd, *PipeEnd) {
	ab, ba := &pipeBuffer{}, &pipeBuffer{}
	return &PipeEnd{in: ba, out: ab}, &PipeEnd{in: ab, out: ba}
}

func (p *PipeEnd) Read(b []byte) (int, error) {
	p.in.mu.Lock()
	defer p.in.mu.Unlock()

	if len(p.in.data) == 0 {
		if p.in.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(b, p.in.data)
	p.in.data = p.in.data[n:]
	return n, nil
}

func (p *PipeEnd) Write(b []byte) (int, error) {
	p.out.mu.Lock()
	defer p.out.mu.Unlock()

	if p.out.closed {
		return 0, io.ErrClosedPipe
	}
	p.out.data = append(p.out.data, b...)
	return len(b), nil
}

func (p *PipeEnd) Available() int {
	p.in.mu.Lock()
	defer p.in.mu.Unlock()
	return len(p.in.data)
}

// Close ends both directions. The peer reads what is left and then io.EOF.
func (p *PipeEnd) Close() error {
	for _, b := range []*pipeBuffer{p.in, p.out} {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
	}
	return nil
}
