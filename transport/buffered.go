// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"errors"
	"io"
	"sync"
)

const readChunkSize = 512

// BufferedStream adapts a blocking endpoint, such as a serial port or a
// net.Conn, to a Stream. A reader goroutine moves incoming bytes into a
// buffer; Read only ever takes from that buffer.
type BufferedStream struct {
	rwc       io.ReadWriteCloser
	isTimeout func(error) bool

	mu     sync.Mutex
	buf    []byte
	err    error
	closed bool
	done   chan struct{}
}

// Option configures a BufferedStream.
type Option func(*BufferedStream)

// WithTimeout sets the predicate recognising read timeouts of the endpoint.
// A timed out read is treated as an empty read rather than a failure.
func WithTimeout(isTimeout func(error) bool) Option {
	return func(s *BufferedStream) { s.isTimeout = isTimeout }
}

// NewBufferedStream starts reading from rwc.
func NewBufferedStream(rwc io.ReadWriteCloser, opts ...Option) *BufferedStream {
	s := &BufferedStream{
		rwc:       rwc,
		isTimeout: IsTimeout,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readLoop()
	return s
}

// IsTimeout reports whether err carries a Timeout() method returning true,
// as net.Error does.
func IsTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func (s *BufferedStream) readLoop() {
	defer close(s.done)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := s.rwc.Read(chunk)
		s.mu.Lock()
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err != nil && !s.isTimeout(err) {
			if s.err == nil {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
	}
}

// Read takes buffered bytes. Once the buffer is empty the error that ended
// the reader, if any, is returned.
func (s *BufferedStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		if s.closed {
			return 0, io.ErrClosedPipe
		}
		return 0, s.err
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return n, nil
}

func (s *BufferedStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	return s.rwc.Write(p)
}

func (s *BufferedStream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Err returns the error that stopped the reader, if any.
func (s *BufferedStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the endpoint and waits for the reader to stop.
func (s *BufferedStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.rwc.Close()
	<-s.done
	return err
}
