// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Endpoint types.
const (
	TypeTCP        = "tcp"
	TypeRTU        = "rtu"
	TypeRTUOverTCP = "rtu-over-tcp"
)

// Config defines the global configuration structure
type Config struct {
	Slaves []SlaveConfig `mapstructure:"slaves"`
	Log    LogConfig     `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SlaveConfig defines one slave endpoint and the register store it serves
type SlaveConfig struct {
	Name        string            `mapstructure:"name"`     // Optional name for logging
	Type        string            `mapstructure:"type"`     // "tcp", "rtu", "rtu-over-tcp"
	UnitIDs     string            `mapstructure:"unit_ids"` // Unit ids answered: "1", "1,2", "1-10"
	Seed        string            `mapstructure:"seed"`     // YAML file with the initial registers
	Debug       bool              `mapstructure:"debug"`
	Tcp         TcpConfig         `mapstructure:"tcp"`    // Used if Type is "tcp" or "rtu-over-tcp"
	Serial      SerialConfig      `mapstructure:"serial"` // Used if Type is "rtu"
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Uptime      UptimeConfig      `mapstructure:"uptime"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// UptimeConfig publishes the uptime in seconds in an input register
type UptimeConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  uint16        `mapstructure:"address"`
	Interval time.Duration `mapstructure:"interval"`
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:502" or "192.168.1.100:502"
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device          string        `mapstructure:"device"`
	BaudRate        int           `mapstructure:"baud_rate"`
	DataBits        int           `mapstructure:"data_bits"`
	Parity          string        `mapstructure:"parity"`
	StopBits        int           `mapstructure:"stop_bits"`
	Timeout         time.Duration `mapstructure:"timeout"`          // Read timeout of the port
	ResponseTimeout time.Duration `mapstructure:"response_timeout"` // Master response window

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// Flags defines the command line options of the host. Log settings given
// on the command line override the file.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("log_level", "v", "", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log_file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	return fs
}

// LoadFlags loads the file named by the parsed config flag and applies the
// flag overrides.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	configFile, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}
	return load(configFile, fs)
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	return load(configFile, nil)
}

func load(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-slave/")
		v.AddConfigPath("$HOME/.modbus-slave")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("failed to find config file: %w", err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if fs != nil {
		for key, name := range map[string]string{"log.level": "log_level", "log.file": "log_file"} {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Slaves {
		sc := &config.Slaves[i]
		if err := fixupSlave(sc, i); err != nil {
			return nil, err
		}
		fixupSerial(&sc.Serial)
	}

	return &config, nil
}

func fixupSlave(sc *SlaveConfig, index int) error {
	if sc.Name == "" {
		sc.Name = fmt.Sprintf("slave-%d", index)
	}
	sc.Type = strings.ToLower(sc.Type)
	switch sc.Type {
	case TypeTCP, TypeRTUOverTCP:
		if sc.Tcp.Address == "" {
			return fmt.Errorf("slave %s: tcp.address is required for type '%s'", sc.Name, sc.Type)
		}
	case TypeRTU:
		if sc.Serial.Device == "" {
			return fmt.Errorf("slave %s: serial.device is required for type '%s'", sc.Name, sc.Type)
		}
	default:
		return fmt.Errorf("slave %s: unsupported type '%s'", sc.Name, sc.Type)
	}
	if sc.UnitIDs == "" {
		sc.UnitIDs = "1"
	}
	if sc.Uptime.Enabled && sc.Uptime.Interval == 0 {
		sc.Uptime.Interval = time.Second
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.BaudRate == 0 {
		s.BaudRate = 19200
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.ResponseTimeout == 0 {
		s.ResponseTimeout = 2 * time.Second
	}
}
