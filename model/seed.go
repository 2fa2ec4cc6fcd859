// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Seed is the initial register content of a slave, as read from YAML:
//
//	coils:
//	  1000: true
//	holding_registers:
//	  1000: 0x0001
//	  1001: 0x0203
type Seed struct {
	Coils            map[uint16]bool   `yaml:"coils"`
	DiscreteInputs   map[uint16]bool   `yaml:"discrete_inputs"`
	HoldingRegisters map[uint16]uint16 `yaml:"holding_registers"`
	InputRegisters   map[uint16]uint16 `yaml:"input_registers"`
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("model: parse seed: %w", err)
	}
	return &seed, nil
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read seed: %w", err)
	}
	return ParseSeed(data)
}

// Apply adds every seeded value to the store in ascending address order.
func (sd *Seed) Apply(s *Store) {
	for _, addr := range sortedKeys(sd.Coils) {
		s.AddCoil(addr, sd.Coils[addr])
	}
	for _, addr := range sortedKeys(sd.DiscreteInputs) {
		s.AddDiscreteInput(addr, sd.DiscreteInputs[addr])
	}
	for _, addr := range sortedKeys(sd.HoldingRegisters) {
		s.AddHoldingRegister(addr, sd.HoldingRegisters[addr])
	}
	for _, addr := range sortedKeys(sd.InputRegisters) {
		s.AddInputRegister(addr, sd.InputRegisters[addr])
	}
}

func sortedKeys[V any](m map[uint16]V) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
