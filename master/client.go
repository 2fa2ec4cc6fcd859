// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master implements the Modbus master: a FIFO of transactions of
// which exactly one is on the wire, driven either cooperatively through
// Step or by the blocking Send.
package master

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-engine/modbus"
	"github.com/ffutop/modbus-engine/sched"
	"github.com/ffutop/modbus-engine/transport"
)

// ErrNotConnected is returned while the client has no stream.
var ErrNotConnected = errors.New("modbus: not connected")

const (
	// DefaultTimeout is the response window of one attempt.
	DefaultTimeout = 2000 * time.Millisecond
	// DefaultPollInterval is the slice Send sleeps between two steps.
	DefaultPollInterval = 10 * time.Millisecond
	// DefaultAttempts is the number of attempts of the Retry operations.
	DefaultAttempts = 3
)

// Client is a Modbus master on one stream.
type Client struct {
	Stream       transport.Stream
	Packager     modbus.Packager
	Clock        sched.Clock
	Timeout      time.Duration
	PollInterval time.Duration
	Attempts     int
	Debug        bool

	// BroadcastNoReply completes broadcast transactions once written, as
	// slaves on a serial line never answer unit 0.
	BroadcastNoReply bool

	mu     sync.Mutex
	queue  []*Transaction
	active *Transaction
}

// New creates a master with default timing.
func New(stream transport.Stream, packager modbus.Packager) *Client {
	return &Client{
		Stream:       stream,
		Packager:     packager,
		Clock:        sched.SystemClock{},
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		Attempts:     DefaultAttempts,
	}
}

// SetStream replaces the stream, for example after a reconnect. A
// transaction in flight on the old stream will time out.
func (c *Client) SetStream(stream transport.Stream) {
	c.mu.Lock()
	c.Stream = stream
	c.mu.Unlock()
}

// Enqueue queues a single attempt request. cb may be nil.
func (c *Client) Enqueue(slaveID byte, pdu modbus.ProtocolDataUnit, cb Callback) (*Transaction, error) {
	return c.submit(slaveID, pdu, 1, cb)
}

// EnqueueRetry queues a request resent up to Attempts times.
func (c *Client) EnqueueRetry(slaveID byte, pdu modbus.ProtocolDataUnit, cb Callback) (*Transaction, error) {
	return c.submit(slaveID, pdu, c.attempts(), cb)
}

func (c *Client) attempts() int {
	if c.Attempts < 1 {
		return DefaultAttempts
	}
	return c.Attempts
}

func (c *Client) submit(slaveID byte, pdu modbus.ProtocolDataUnit, attempts int, cb Callback) (*Transaction, error) {
	adu, err := c.Packager.Encode(slaveID, pdu)
	if err != nil {
		return nil, err
	}
	tx := newTransaction(slaveID, pdu, adu, attempts, cb)

	c.mu.Lock()
	c.queue = append(c.queue, tx)
	c.mu.Unlock()
	return tx, nil
}

// Pending returns the number of unfinished transactions.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.queue)
	if c.active != nil {
		n++
	}
	return n
}

// Step advances the state machine without blocking: it polls the
// transaction in flight and, once the line is free, sends the next queued
// request. Callbacks run on the calling goroutine after the state changed.
func (c *Client) Step() {
	var finished []*Transaction

	c.mu.Lock()
	if tx := c.active; tx != nil {
		c.poll(tx)
		if tx.state.Finished() {
			finished = append(finished, tx)
			c.active = nil
		}
	}
	for c.active == nil && len(c.queue) > 0 {
		tx := c.queue[0]
		c.queue = c.queue[1:]
		c.send(tx)
		if tx.state.Finished() {
			finished = append(finished, tx)
			continue
		}
		c.active = tx
	}
	c.mu.Unlock()

	for _, tx := range finished {
		c.complete(tx)
	}
}

// send writes the request of tx. Caller must hold the lock.
func (c *Client) send(tx *Transaction) {
	if c.Stream == nil {
		c.fail(tx, StateError, &modbus.TransportError{Op: "write", Err: ErrNotConnected})
		return
	}
	if n, err := transport.Drain(c.Stream); err != nil {
		c.fail(tx, StateError, &modbus.TransportError{Op: "read", Err: err})
		return
	} else if n > 0 {
		slog.Debug("Discarded stale bytes", "count", n)
	}

	if c.Debug {
		slog.Debug("send to modbus slave", "request", hex.EncodeToString(tx.adu))
	}
	if _, err := c.Stream.Write(tx.adu); err != nil {
		c.fail(tx, StateError, &modbus.TransportError{Op: "write", Err: err})
		return
	}
	tx.state = StateSent
	tx.attempts--

	if c.BroadcastNoReply && tx.SlaveID == modbus.BroadcastID {
		tx.state = StateDone
		return
	}
	tx.buf = tx.buf[:0]
	tx.deadline = c.clock().Now().Add(c.timeout())
	tx.state = StateAwaitingResponse
}

// poll collects response bytes of tx. Caller must hold the lock.
func (c *Client) poll(tx *Transaction) {
	if c.Stream == nil {
		c.fail(tx, StateError, &modbus.TransportError{Op: "read", Err: ErrNotConnected})
		return
	}
	var chunk [modbus.MaxADUSize]byte
	for c.Stream.Available() > 0 {
		n, err := c.Stream.Read(chunk[:])
		if err != nil {
			c.fail(tx, StateError, &modbus.TransportError{Op: "read", Err: err})
			return
		}
		if n == 0 {
			break
		}
		tx.buf = append(tx.buf, chunk[:n]...)
	}

	if len(tx.buf) > 0 {
		length, err := c.Packager.ResponseLength(tx.buf)
		if err != nil {
			c.retryOrFail(tx, StateError, err)
			return
		}
		if length > 0 && len(tx.buf) >= length {
			c.accept(tx, tx.buf[:length])
			return
		}
	}

	if !c.clock().Now().Before(tx.deadline) {
		c.retryOrFail(tx, StateTimeout, modbus.ErrTimeout)
	}
}

// accept validates a complete response frame.
func (c *Client) accept(tx *Transaction, raw []byte) {
	raw = append([]byte(nil), raw...)
	if c.Debug {
		slog.Debug("recv from modbus slave", "response", hex.EncodeToString(raw))
	}
	_, pdu, err := c.Packager.Decode(raw)
	if err == nil {
		err = c.Packager.Verify(tx.adu, raw)
	}
	if err == nil {
		err = modbus.CheckResponse(tx.Request, pdu)
	}
	if err != nil {
		c.retryOrFail(tx, StateError, err)
		return
	}
	tx.response = pdu
	tx.state = StateDone
}

func (c *Client) retryOrFail(tx *Transaction, state State, err error) {
	if tx.attempts > 0 && retryable(err) {
		slog.Debug("Retrying modbus request", "slave", tx.SlaveID, "func", tx.Request.FunctionCode, "attemptsLeft", tx.attempts, "err", err)
		c.send(tx)
		return
	}
	c.fail(tx, state, err)
}

func (c *Client) fail(tx *Transaction, state State, err error) {
	tx.state = state
	tx.err = err
}

func (c *Client) complete(tx *Transaction) {
	if tx.err != nil {
		slog.Debug("Modbus request failed", "slave", tx.SlaveID, "func", tx.Request.FunctionCode, "state", tx.state, "err", tx.err)
	}
	close(tx.done)
	if tx.callback != nil {
		tx.callback(tx.response, tx.err)
	}
}

// cancel abandons tx, wherever it is.
func (c *Client) cancel(tx *Transaction, err error) {
	c.mu.Lock()
	select {
	case <-tx.done:
		c.mu.Unlock()
		return
	default:
	}
	if c.active == tx {
		c.active = nil
	} else {
		found := false
		for i, q := range c.queue {
			if q == tx {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			// finished by another goroutine between Step and now
			c.mu.Unlock()
			<-tx.done
			return
		}
	}
	c.fail(tx, StateError, err)
	c.mu.Unlock()
	c.complete(tx)
}

// Send queues a single attempt request and steps the client until it is
// answered, the timeout elapses or ctx is done.
func (c *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	return c.wait(ctx, slaveID, pdu, 1)
}

// SendRetry is Send with up to Attempts attempts. Exception responses are
// not retried.
func (c *Client) SendRetry(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	return c.wait(ctx, slaveID, pdu, c.attempts())
}

func (c *Client) wait(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit, attempts int) (modbus.ProtocolDataUnit, error) {
	tx, err := c.submit(slaveID, pdu, attempts, nil)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	for {
		c.Step()
		select {
		case <-tx.done:
			return tx.Result()
		default:
		}
		if err := ctx.Err(); err != nil {
			c.cancel(tx, err)
			return tx.Result()
		}
		c.clock().Sleep(c.pollInterval())
	}
}

func (c *Client) clock() sched.Clock {
	if c.Clock == nil {
		return sched.SystemClock{}
	}
	return c.Clock
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Client) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}
