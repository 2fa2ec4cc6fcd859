// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package model holds the register store a slave serves: one sorted set of
// contiguous blocks per register kind.
package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	MaxAddress = 65535
)

// Kind represents the type of Modbus data table.
type Kind int

const (
	Coil Kind = iota
	DiscreteInput
	HoldingRegister
	InputRegister
)

// Kinds lists every register kind in table order.
var Kinds = []Kind{Coil, DiscreteInput, HoldingRegister, InputRegister}

func (k Kind) String() string {
	switch k {
	case Coil:
		return "coil"
	case DiscreteInput:
		return "discrete input"
	case HoldingRegister:
		return "holding register"
	case InputRegister:
		return "input register"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsBit reports whether the kind holds single-bit values.
func (k Kind) IsBit() bool { return k == Coil || k == DiscreteInput }

var (
	// ErrNotFound is returned when an address range is not covered by one block.
	ErrNotFound = errors.New("model: address not found")
	// ErrKindMismatch is returned when a bit operation targets a register
	// kind or vice versa.
	ErrKindMismatch = errors.New("model: kind does not match value type")
)

// NotFoundError details an ErrNotFound.
type NotFoundError struct {
	Kind  Kind
	Start uint16
	Count int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model: %s range [%d, %d) not found in a single block", e.Kind, e.Start, int(e.Start)+e.Count)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Value is the element type of a block.
type Value interface {
	~bool | ~uint16
}

// Block is a contiguous run of values starting at Start.
type Block[T Value] struct {
	Start  uint16
	Values []T
}

// end is the first address after the block.
func (b *Block[T]) end() int { return int(b.Start) + len(b.Values) }

// WriteObserver is notified after every successful add or write. Bits are
// reported as 0 or 1. It is called outside the store locks.
type WriteObserver interface {
	OnWrite(kind Kind, address uint16, values []uint16)
}

// table is a sorted list of disjoint, non-adjacent blocks.
type table[T Value] struct {
	mu     sync.RWMutex
	blocks []*Block[T]
}

// add inserts or overwrites one value, merging adjacent blocks.
func (t *table[T]) add(address uint16, value T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	addr := int(address)
	i := sort.Search(len(t.blocks), func(i int) bool { return t.blocks[i].end() >= addr })
	if i < len(t.blocks) && int(t.blocks[i].Start) <= addr {
		b := t.blocks[i]
		if addr < b.end() {
			b.Values[addr-int(b.Start)] = value
			return
		}
		// addr == b.end(): grow at the tail, then bridge to the next block
		b.Values = append(b.Values, value)
		if i+1 < len(t.blocks) && int(t.blocks[i+1].Start) == b.end() {
			b.Values = append(b.Values, t.blocks[i+1].Values...)
			t.blocks = append(t.blocks[:i+1], t.blocks[i+2:]...)
		}
		return
	}
	if i < len(t.blocks) && int(t.blocks[i].Start) == addr+1 {
		b := t.blocks[i]
		b.Start = address
		b.Values = append([]T{value}, b.Values...)
		return
	}
	t.blocks = append(t.blocks, nil)
	copy(t.blocks[i+1:], t.blocks[i:])
	t.blocks[i] = &Block[T]{Start: address, Values: []T{value}}
}

// locate returns the block covering [start, start+count) and the offset of
// start in it. Caller must hold the lock.
func (t *table[T]) locate(start uint16, count int) (*Block[T], int, bool) {
	addr := int(start)
	i := sort.Search(len(t.blocks), func(i int) bool { return t.blocks[i].end() > addr })
	if i == len(t.blocks) {
		return nil, 0, false
	}
	b := t.blocks[i]
	if int(b.Start) > addr || addr+count > b.end() {
		return nil, 0, false
	}
	return b, addr - int(b.Start), true
}

func (t *table[T]) read(start uint16, count int) ([]T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, off, ok := t.locate(start, count)
	if !ok {
		return nil, false
	}
	values := make([]T, count)
	copy(values, b.Values[off:off+count])
	return values, true
}

func (t *table[T]) write(start uint16, values []T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, off, ok := t.locate(start, len(values))
	if !ok {
		return false
	}
	copy(b.Values[off:], values)
	return true
}

func (t *table[T]) snapshot() []Block[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	blocks := make([]Block[T], len(t.blocks))
	for i, b := range t.blocks {
		blocks[i] = Block[T]{Start: b.Start, Values: append([]T(nil), b.Values...)}
	}
	return blocks
}

// Store is the register context of a slave. It is safe for concurrent use;
// each kind has its own lock.
type Store struct {
	coils            table[bool]
	discreteInputs   table[bool]
	holdingRegisters table[uint16]
	inputRegisters   table[uint16]

	observer WriteObserver
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// SetObserver installs the write observer. It must be called before the
// store is shared.
func (s *Store) SetObserver(o WriteObserver) {
	s.observer = o
}

func (s *Store) bits(kind Kind) (*table[bool], error) {
	switch kind {
	case Coil:
		return &s.coils, nil
	case DiscreteInput:
		return &s.discreteInputs, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrKindMismatch, kind)
}

func (s *Store) registers(kind Kind) (*table[uint16], error) {
	switch kind {
	case HoldingRegister:
		return &s.holdingRegisters, nil
	case InputRegister:
		return &s.inputRegisters, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrKindMismatch, kind)
}

func (s *Store) notifyBits(kind Kind, address uint16, values []bool) {
	if s.observer == nil {
		return
	}
	raw := make([]uint16, len(values))
	for i, v := range values {
		if v {
			raw[i] = 1
		}
	}
	s.observer.OnWrite(kind, address, raw)
}

func (s *Store) notifyRegisters(kind Kind, address uint16, values []uint16) {
	if s.observer == nil {
		return
	}
	s.observer.OnWrite(kind, address, append([]uint16(nil), values...))
}

// AddBit inserts a coil or discrete input, creating the address if needed.
func (s *Store) AddBit(kind Kind, address uint16, value bool) error {
	t, err := s.bits(kind)
	if err != nil {
		return err
	}
	t.add(address, value)
	s.notifyBits(kind, address, []bool{value})
	return nil
}

// AddRegister inserts a holding or input register, creating the address if needed.
func (s *Store) AddRegister(kind Kind, address, value uint16) error {
	t, err := s.registers(kind)
	if err != nil {
		return err
	}
	t.add(address, value)
	s.notifyRegisters(kind, address, []uint16{value})
	return nil
}

// AddCoil inserts a coil.
func (s *Store) AddCoil(address uint16, value bool) { _ = s.AddBit(Coil, address, value) }

// AddDiscreteInput inserts a discrete input.
func (s *Store) AddDiscreteInput(address uint16, value bool) {
	_ = s.AddBit(DiscreteInput, address, value)
}

// AddHoldingRegister inserts a holding register.
func (s *Store) AddHoldingRegister(address, value uint16) {
	_ = s.AddRegister(HoldingRegister, address, value)
}

// AddInputRegister inserts an input register.
func (s *Store) AddInputRegister(address, value uint16) {
	_ = s.AddRegister(InputRegister, address, value)
}

// ReadBits reads count bits starting at start. The range must lie in one block.
func (s *Store) ReadBits(kind Kind, start uint16, count int) ([]bool, error) {
	t, err := s.bits(kind)
	if err != nil {
		return nil, err
	}
	values, ok := t.read(start, count)
	if !ok {
		return nil, &NotFoundError{Kind: kind, Start: start, Count: count}
	}
	return values, nil
}

// ReadRegisters reads count registers starting at start. The range must lie in one block.
func (s *Store) ReadRegisters(kind Kind, start uint16, count int) ([]uint16, error) {
	t, err := s.registers(kind)
	if err != nil {
		return nil, err
	}
	values, ok := t.read(start, count)
	if !ok {
		return nil, &NotFoundError{Kind: kind, Start: start, Count: count}
	}
	return values, nil
}

// WriteBit overwrites an existing bit.
func (s *Store) WriteBit(kind Kind, address uint16, value bool) error {
	return s.WriteBits(kind, address, []bool{value})
}

// WriteBits overwrites existing bits from start.
func (s *Store) WriteBits(kind Kind, start uint16, values []bool) error {
	t, err := s.bits(kind)
	if err != nil {
		return err
	}
	if !t.write(start, values) {
		return &NotFoundError{Kind: kind, Start: start, Count: len(values)}
	}
	s.notifyBits(kind, start, values)
	return nil
}

// WriteRegister overwrites an existing register.
func (s *Store) WriteRegister(kind Kind, address, value uint16) error {
	return s.WriteRegisters(kind, address, []uint16{value})
}

// WriteRegisters overwrites existing registers from start.
func (s *Store) WriteRegisters(kind Kind, start uint16, values []uint16) error {
	t, err := s.registers(kind)
	if err != nil {
		return err
	}
	if !t.write(start, values) {
		return &NotFoundError{Kind: kind, Start: start, Count: len(values)}
	}
	s.notifyRegisters(kind, start, values)
	return nil
}

// BitBlocks returns a copy of the blocks of a bit kind.
func (s *Store) BitBlocks(kind Kind) ([]Block[bool], error) {
	t, err := s.bits(kind)
	if err != nil {
		return nil, err
	}
	return t.snapshot(), nil
}

// RegisterBlocks returns a copy of the blocks of a register kind.
func (s *Store) RegisterBlocks(kind Kind) ([]Block[uint16], error) {
	t, err := s.registers(kind)
	if err != nil {
		return nil, err
	}
	return t.snapshot(), nil
}
