// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Conn is an accepted connection read through a BufferedStream.
type Conn struct {
	*BufferedStream
	RemoteAddr net.Addr
}

// Closed reports whether the peer went away and every byte it sent has
// been consumed.
func (c *Conn) Closed() bool {
	return c.Available() == 0 && c.Err() != nil
}

// Listener accepts TCP connections in the background. Servers collect new
// connections with Accepted from their Step.
type Listener struct {
	listener net.Listener

	mu      sync.Mutex
	pending []*Conn
	done    chan struct{}
}

// Listen starts accepting on address.
func Listen(address string) (*Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	ln := &Listener{listener: l, done: make(chan struct{})}
	go ln.acceptLoop()
	return ln, nil
}

func (l *Listener) acceptLoop() {
	defer close(l.done)
	for {
		c, err := l.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		slog.Info("New TCP client connected", "addr", c.RemoteAddr())
		l.mu.Lock()
		l.pending = append(l.pending, &Conn{BufferedStream: NewBufferedStream(c), RemoteAddr: c.RemoteAddr()})
		l.mu.Unlock()
	}
}

// Accepted returns the connections accepted since the last call.
func (l *Listener) Accepted() []*Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	conns := l.pending
	l.pending = nil
	return conns
}

// Addr returns the bound address, useful when listening on port 0.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close stops accepting and closes connections not yet collected.
func (l *Listener) Close() error {
	err := l.listener.Close()
	<-l.done
	for _, c := range l.Accepted() {
		c.Close()
	}
	return err
}
