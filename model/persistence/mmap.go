// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/modbus-engine/model"
)

// MmapStorage implements persistence using a memory-mapped file. Writes
// land in the mapping and are flushed to disk before OnWrite returns.
type MmapStorage struct {
	path string

	mu   sync.Mutex
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Load maps the file, creating it if necessary, and restores its content.
func (ms *MmapStorage) Load(store *model.Store) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		f, err := openSized(ms.path)
		if err != nil {
			return err
		}
		data, err := mmap.Map(f, mmap.RDWR, 0)
		if err != nil {
			f.Close()
			return fmt.Errorf("mmap failed: %w", err)
		}
		ms.file, ms.data = f, data
	}
	return image(ms.data).restore(store)
}

// Save writes the whole store into the mapping and flushes it.
func (ms *MmapStorage) Save(store *model.Store) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	if err := image(ms.data).capture(store); err != nil {
		return err
	}
	return ms.data.Flush()
}

// OnWrite updates the mapping and flushes it.
func (ms *MmapStorage) OnWrite(kind model.Kind, address uint16, values []uint16) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.data == nil {
		return
	}
	image(ms.data).put(kind, address, values)
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush mmap", "path", ms.path, "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
