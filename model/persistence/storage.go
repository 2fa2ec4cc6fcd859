// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence keeps the register store of a slave across restarts.
package persistence

import (
	"fmt"

	"github.com/ffutop/modbus-engine/model"
)

// Storage persists the content of a register store.
//
// A host restores the store with Load, writes the merged content back with
// Save and then installs the storage as the store's write observer.
type Storage interface {
	// Load adds every persisted address to the store.
	Load(store *model.Store) error

	// Save writes every address of the store.
	Save(store *model.Store) error

	// OnWrite persists one add or write as reported by the store.
	model.WriteObserver

	Close() error
}

// Storage types.
const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeMmap   = "mmap"
)

// New creates a storage of the given type. path is ignored for memory.
func New(typ, path string) (Storage, error) {
	switch typ {
	case "", TypeMemory:
		return NewMemoryStorage(), nil
	case TypeFile:
		if path == "" {
			return nil, fmt.Errorf("persistence: path is required for '%s' storage", typ)
		}
		return NewFileStorage(path), nil
	case TypeMmap:
		if path == "" {
			return nil, fmt.Errorf("persistence: path is required for '%s' storage", typ)
		}
		return NewMmapStorage(path), nil
	}
	return nil, fmt.Errorf("persistence: unsupported storage type '%s'", typ)
}
