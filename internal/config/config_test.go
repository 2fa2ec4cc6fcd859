// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
slaves:
  - name: plc
    type: TCP
    unit_ids: "1,5-6"
    seed: seed.yaml
    debug: true
    tcp:
      address: "127.0.0.1:5020"
    persistence:
      type: mmap
      path: /var/lib/modbus/plc.bin
    uptime:
      enabled: true
      address: 100
  - type: rtu
    serial:
      device: /dev/ttyUSB0
      parity: e
      baud_rate: 9600
      rs485: true
      delay_rts_before_send: 2ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Slaves, 2)

	plc := cfg.Slaves[0]
	assert.Equal(t, "plc", plc.Name)
	assert.Equal(t, TypeTCP, plc.Type)
	assert.Equal(t, "1,5-6", plc.UnitIDs)
	assert.True(t, plc.Debug)
	assert.Equal(t, "127.0.0.1:5020", plc.Tcp.Address)
	assert.Equal(t, PersistenceConfig{Type: "mmap", Path: "/var/lib/modbus/plc.bin"}, plc.Persistence)
	assert.Equal(t, UptimeConfig{Enabled: true, Address: 100, Interval: time.Second}, plc.Uptime)

	line := cfg.Slaves[1]
	assert.Equal(t, "slave-1", line.Name)
	assert.Equal(t, "1", line.UnitIDs)
	assert.Equal(t, "E", line.Serial.Parity)
	assert.Equal(t, 9600, line.Serial.BaudRate)
	assert.Equal(t, 8, line.Serial.DataBits)
	assert.Equal(t, 1, line.Serial.StopBits)
	assert.Equal(t, 500*time.Millisecond, line.Serial.Timeout)
	assert.Equal(t, 2*time.Second, line.Serial.ResponseTimeout)
	assert.True(t, line.Serial.RS485)
	assert.Equal(t, 2*time.Millisecond, line.Serial.DelayRtsBeforeSend)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"UnknownType": "slaves:\n  - type: ascii\n",
		"MissingTCP":  "slaves:\n  - type: tcp\n",
		"MissingDev":  "slaves:\n  - type: rtu\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFlags(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n  file: /tmp/slave.log\nslaves:\n  - type: tcp\n    tcp:\n      address: \":502\"\n")

	fs := Flags("modbus-slave")
	require.NoError(t, fs.Parse([]string{"-c", path, "--log_level", "debug"}))
	cfg, err := LoadFlags(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/slave.log", cfg.Log.File)

	fs = Flags("modbus-slave")
	require.NoError(t, fs.Parse([]string{"--config", path}))
	cfg, err = LoadFlags(fs)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}
