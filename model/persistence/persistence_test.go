// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"path/filepath"
	"testing"

	"github.com/ffutop/modbus-engine/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore() *model.Store {
	s := model.New()
	s.AddCoil(1000, true)
	s.AddCoil(1001, false)
	s.AddCoil(1002, true)
	s.AddDiscreteInput(0, true)
	s.AddHoldingRegister(1000, 0x0001)
	s.AddHoldingRegister(1001, 0x0203)
	s.AddInputRegister(model.MaxAddress, 0xBEEF)
	return s
}

func TestNew(t *testing.T) {
	s, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	_, err = New(TypeFile, "")
	assert.Error(t, err)
	_, err = New("sql", "x")
	assert.Error(t, err)

	s, err = New(TypeMmap, filepath.Join(t.TempDir(), "m.bin"))
	require.NoError(t, err)
	assert.IsType(t, &MmapStorage{}, s)
}

func TestStorage_SurvivesRestart(t *testing.T) {
	for _, typ := range []string{TypeFile, TypeMmap} {
		t.Run(typ, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "slave.bin")

			st, err := New(typ, path)
			require.NoError(t, err)
			store := seededStore()
			require.NoError(t, st.Load(store))
			require.NoError(t, st.Save(store))
			store.SetObserver(st)

			require.NoError(t, store.WriteRegister(model.HoldingRegister, 1001, 0xCAFE))
			require.NoError(t, store.WriteBits(model.Coil, 1000, []bool{false, true}))
			store.AddHoldingRegister(5, 7)
			require.NoError(t, st.Close())

			st, err = New(typ, path)
			require.NoError(t, err)
			defer st.Close()
			restored := model.New()
			require.NoError(t, st.Load(restored))

			coils, err := restored.ReadBits(model.Coil, 1000, 3)
			require.NoError(t, err)
			assert.Equal(t, []bool{false, true, true}, coils)

			regs, err := restored.ReadRegisters(model.HoldingRegister, 1000, 2)
			require.NoError(t, err)
			assert.Equal(t, []uint16{0x0001, 0xCAFE}, regs)

			regs, err = restored.ReadRegisters(model.HoldingRegister, 5, 1)
			require.NoError(t, err)
			assert.Equal(t, []uint16{7}, regs)

			inputs, err := restored.ReadRegisters(model.InputRegister, model.MaxAddress, 1)
			require.NoError(t, err)
			assert.Equal(t, []uint16{0xBEEF}, inputs)

			_, err = restored.ReadRegisters(model.HoldingRegister, 4, 1)
			assert.ErrorIs(t, err, model.ErrNotFound)
		})
	}
}

func TestStorage_PersistedValuesOverrideSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slave.bin")

	st := NewFileStorage(path)
	store := seededStore()
	require.NoError(t, st.Load(store))
	require.NoError(t, st.Save(store))
	store.SetObserver(st)
	require.NoError(t, store.WriteRegister(model.HoldingRegister, 1000, 99))
	require.NoError(t, st.Close())

	st = NewFileStorage(path)
	defer st.Close()
	store = seededStore()
	require.NoError(t, st.Load(store))

	regs, err := store.ReadRegisters(model.HoldingRegister, 1000, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{99, 0x0203}, regs)
}

func TestImage_Put(t *testing.T) {
	img := make(image, totalSize)
	spans := img.put(model.HoldingRegister, 10, []uint16{0x0102, 0x0304})

	assert.Equal(t, span{offsetHolding + 10, offsetHolding + 12}, spans[0])
	base := offsetHolding + addressSpace
	assert.Equal(t, span{base + 20, base + 24}, spans[1])
	assert.Equal(t, []byte{1, 2, 3, 4}, []byte(img[base+20:base+24]))

	store := model.New()
	require.NoError(t, img.restore(store))
	blocks, err := store.RegisterBlocks(model.HoldingRegister)
	require.NoError(t, err)
	assert.Equal(t, []model.Block[uint16]{{Start: 10, Values: []uint16{0x0102, 0x0304}}}, blocks)
}
