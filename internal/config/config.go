// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ffutop/modbus-master/transport"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MODBUS_MASTER_TRANSPORT_SERIAL_DEVICE.
const EnvPrefix = "MODBUS_MASTER"

// Config defines the global configuration structure
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Poll      PollConfig      `mapstructure:"poll"`
	Log       LogConfig       `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// TransportConfig selects and configures the bus channel
type TransportConfig struct {
	Type   string       `mapstructure:"type"`   // "rtu", "rtu-over-tcp", "local"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "rtu"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "rtu-over-tcp"
	Local  LocalConfig  `mapstructure:"local"`  // Used if Type is "local"
}

// PollConfig defines how long a response is waited for
type PollConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

// Policy converts the poll settings for the transport layer.
func (p PollConfig) Policy() transport.PollPolicy {
	return transport.PollPolicy{MaxAttempts: p.Attempts, Interval: p.Interval}
}

// LocalConfig defines settings for the simulated slave device
type LocalConfig struct {
	SlaveID     int               `mapstructure:"slave_id"`
	ChunkSize   int               `mapstructure:"chunk_size"` // 0 delivers whole frames
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "mmap"
	Path string `mapstructure:"path"` // File path for "mmap" type
	// Sync flushes after every write request; otherwise writes reach the
	// file on Save or Close.
	Sync bool `mapstructure:"sync"`
}

// TcpConfig defines the serial device server to dial
type TcpConfig struct {
	Address string        `mapstructure:"address"` // e.g. "192.168.1.100:4001"
	Timeout time.Duration `mapstructure:"timeout"`
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	Driver      string        `mapstructure:"driver"` // "grid-x", "tarm"
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    int           `mapstructure:"stop_bits"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	RqstPause   time.Duration `mapstructure:"rqst_pause"`   // Pause between requests
	IdleTimeout time.Duration `mapstructure:"idle_timeout"` // Close the port after this long unused

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"transport": "transport.type",
	"device":    "transport.serial.device",
	"baud":      "transport.serial.baud_rate",
	"address":   "transport.tcp.address",
	"log-level": "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("transport.type", "rtu")
	v.SetDefault("transport.serial.device", "/dev/ttyUSB0")
	v.SetDefault("transport.serial.driver", "grid-x")
	v.SetDefault("transport.serial.baud_rate", 9600)
	v.SetDefault("transport.serial.data_bits", 8)
	v.SetDefault("transport.serial.parity", "N")
	v.SetDefault("transport.serial.stop_bits", 1)
	v.SetDefault("transport.serial.read_timeout", 10*time.Millisecond)
	v.SetDefault("transport.serial.rqst_pause", time.Duration(0))
	v.SetDefault("transport.serial.idle_timeout", 60*time.Second)
	v.SetDefault("transport.serial.rs485", false)
	v.SetDefault("transport.tcp.address", "127.0.0.1:4001")
	v.SetDefault("transport.tcp.timeout", 10*time.Second)
	v.SetDefault("transport.local.slave_id", 1)
	v.SetDefault("transport.local.chunk_size", 0)
	v.SetDefault("transport.local.persistence.type", "memory")
	v.SetDefault("transport.local.persistence.path", "")
	v.SetDefault("transport.local.persistence.sync", true)

	v.SetDefault("poll.attempts", transport.DefaultPollAttempts)
	v.SetDefault("poll.interval", transport.DefaultPollInterval)
}

// LoadConfig loads configuration from file, environment and flags.
//
// A .env file in the working directory is read first. An explicit
// configFile must exist; without one the usual locations are searched and
// defaults apply when none is found.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-master/")
		v.AddConfigPath("$HOME/.modbus-master")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Transport.Serial)
	if config.Poll.Attempts <= 0 {
		config.Poll.Attempts = transport.DefaultPollAttempts
	}
	if config.Poll.Interval <= 0 {
		config.Poll.Interval = transport.DefaultPollInterval
	}

	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	s.Driver = strings.ToLower(s.Driver)
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 10 * time.Millisecond
	}
}
