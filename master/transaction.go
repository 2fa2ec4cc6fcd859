// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"fmt"
	"time"

	"github.com/ffutop/modbus-engine/modbus"
)

// State is the position of a transaction in its life cycle:
//
//	Idle -> Sent -> AwaitingResponse -> Done | Timeout | Error
type State int

const (
	StateIdle State = iota
	StateSent
	StateAwaitingResponse
	StateDone
	StateTimeout
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSent:
		return "Sent"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateDone:
		return "Done"
	case StateTimeout:
		return "Timeout"
	case StateError:
		return "Error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Finished reports whether s is a terminal state.
func (s State) Finished() bool {
	return s >= StateDone
}

// Callback receives the outcome of a transaction. err is nil exactly when
// the transaction ended in StateDone.
type Callback func(resp modbus.ProtocolDataUnit, err error)

// Transaction is one request and its response.
type Transaction struct {
	SlaveID byte
	Request modbus.ProtocolDataUnit

	state    State
	response modbus.ProtocolDataUnit
	err      error

	adu      []byte
	buf      []byte
	deadline time.Time
	attempts int
	callback Callback
	done     chan struct{}
}

func newTransaction(slaveID byte, req modbus.ProtocolDataUnit, adu []byte, attempts int, cb Callback) *Transaction {
	if attempts < 1 {
		attempts = 1
	}
	return &Transaction{
		SlaveID:  slaveID,
		Request:  req,
		adu:      adu,
		attempts: attempts,
		callback: cb,
		done:     make(chan struct{}),
	}
}

// Done is closed once the transaction reached a terminal state.
func (tx *Transaction) Done() <-chan struct{} {
	return tx.done
}

// Result returns the response and error. It is valid once Done is closed.
func (tx *Transaction) Result() (modbus.ProtocolDataUnit, error) {
	<-tx.done
	return tx.response, tx.err
}

// State returns the terminal state. It is valid once Done is closed.
func (tx *Transaction) State() State {
	<-tx.done
	return tx.state
}

// retryable reports whether another attempt may fix err. Exception
// responses and stream failures are final.
func retryable(err error) bool {
	switch err.(type) {
	case *modbus.ExceptionError, *modbus.TransportError:
		return false
	}
	return true
}
