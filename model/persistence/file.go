// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ffutop/modbus-engine/model"
)

// FileStorage implements persistence using plain file operations. Every
// write is written through and synced before OnWrite returns.
type FileStorage struct {
	path string

	mu   sync.Mutex
	file *os.File
	data image
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load opens the file, creating it if necessary, and restores its content.
func (fs *FileStorage) Load(store *model.Store) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		f, err := openSized(fs.path)
		if err != nil {
			return err
		}
		data, err := readImage(f)
		if err != nil {
			f.Close()
			return err
		}
		fs.file, fs.data = f, data
	}
	return fs.data.restore(store)
}

// Save writes the whole store and syncs the file.
func (fs *FileStorage) Save(store *model.Store) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return fmt.Errorf("persistence: file '%s' is not loaded", fs.path)
	}
	if err := fs.data.capture(store); err != nil {
		return err
	}
	if _, err := fs.file.WriteAt(fs.data, 0); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return fs.sync()
}

// OnWrite writes the touched ranges and syncs the file.
func (fs *FileStorage) OnWrite(kind model.Kind, address uint16, values []uint16) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return
	}
	for _, s := range fs.data.put(kind, address, values) {
		if _, err := fs.file.WriteAt(fs.data[s.off:s.end], int64(s.off)); err != nil {
			slog.Error("Failed to write file", "path", fs.path, "err", err)
			return
		}
	}
	if err := fs.sync(); err != nil {
		slog.Error("Failed to sync file", "path", fs.path, "err", err)
	}
}

func (fs *FileStorage) sync() error {
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (fs *FileStorage) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file, fs.data = nil, nil
	return err
}
