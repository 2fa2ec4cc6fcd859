// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/ffutop/modbus-engine/model"
)

// Every kind owns a presence map of one byte per address followed by its
// values: one byte per bit, two big-endian bytes per register.
//
// Layout:
// - Coils:             presence 0,      values 65536
// - DiscreteInputs:    presence 131072, values 196608
// - HoldingRegisters:  presence 262144, values 327680
// - InputRegisters:    presence 458752, values 524288
// Total Size: 655360 bytes
const (
	addressSpace = model.MaxAddress + 1
	sizeBits     = addressSpace
	sizeRegs     = addressSpace * 2

	offsetCoils    = 0
	offsetDiscrete = offsetCoils + addressSpace + sizeBits
	offsetHolding  = offsetDiscrete + addressSpace + sizeBits
	offsetInput    = offsetHolding + addressSpace + sizeRegs
	totalSize      = offsetInput + addressSpace + sizeRegs
)

// span is a byte range of the image.
type span struct {
	off, end int
}

// region returns the presence and value offsets of a kind and its value width.
func region(kind model.Kind) (presence, values, width int) {
	switch kind {
	case model.Coil:
		return offsetCoils, offsetCoils + addressSpace, 1
	case model.DiscreteInput:
		return offsetDiscrete, offsetDiscrete + addressSpace, 1
	case model.HoldingRegister:
		return offsetHolding, offsetHolding + addressSpace, 2
	default:
		return offsetInput, offsetInput + addressSpace, 2
	}
}

// image is the serialized form of a store.
type image []byte

// put marks values present from address and returns the touched ranges.
func (img image) put(kind model.Kind, address uint16, values []uint16) [2]span {
	presence, base, width := region(kind)
	n := len(values)
	if int(address)+n > addressSpace {
		n = addressSpace - int(address)
	}
	for i := 0; i < n; i++ {
		img[presence+int(address)+i] = 1
		off := base + (int(address)+i)*width
		if width == 1 {
			img[off] = byte(values[i])
		} else {
			binary.BigEndian.PutUint16(img[off:], values[i])
		}
	}
	return [2]span{
		{presence + int(address), presence + int(address) + n},
		{base + int(address)*width, base + (int(address)+n)*width},
	}
}

// restore adds every present address to the store in ascending order.
func (img image) restore(store *model.Store) error {
	for _, kind := range model.Kinds {
		presence, base, width := region(kind)
		for addr := 0; addr < addressSpace; addr++ {
			if img[presence+addr] == 0 {
				continue
			}
			var err error
			if width == 1 {
				err = store.AddBit(kind, uint16(addr), img[base+addr] != 0)
			} else {
				err = store.AddRegister(kind, uint16(addr), binary.BigEndian.Uint16(img[base+addr*2:]))
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// capture writes the whole store into the image.
func (img image) capture(store *model.Store) error {
	for _, kind := range model.Kinds {
		if kind.IsBit() {
			blocks, err := store.BitBlocks(kind)
			if err != nil {
				return err
			}
			for _, b := range blocks {
				raw := make([]uint16, len(b.Values))
				for i, v := range b.Values {
					if v {
						raw[i] = 1
					}
				}
				img.put(kind, b.Start, raw)
			}
			continue
		}
		blocks, err := store.RegisterBlocks(kind)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			img.put(kind, b.Start, b.Values)
		}
	}
	return nil
}

// openSized opens or creates the backing file and makes it totalSize long.
func openSized(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize file: %w", err)
		}
	}
	return f, nil
}

// readImage reads the complete image of an opened file.
func readImage(f *os.File) (image, error) {
	data := make([]byte, totalSize)
	if _, err := f.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return image(data), nil
}
