// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
transport:
  type: rtu
  serial:
    device: /dev/ttyS1
    baud_rate: 19200
    parity: e
    driver: TARM
poll:
  attempts: 10
  interval: 20ms
`)

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	s := cfg.Transport.Serial
	if s.Device != "/dev/ttyS1" || s.BaudRate != 19200 {
		t.Errorf("serial = %+v", s)
	}
	if s.Parity != "E" || s.Driver != "tarm" {
		t.Errorf("fixup not applied: parity %q driver %q", s.Parity, s.Driver)
	}
	if s.DataBits != 8 || s.StopBits != 1 || s.ReadTimeout != 10*time.Millisecond {
		t.Errorf("defaults not applied: %+v", s)
	}
	policy := cfg.Poll.Policy()
	if policy.MaxAttempts != 10 || policy.Interval != 20*time.Millisecond {
		t.Errorf("Policy() = %+v", policy)
	}
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)
	t.Setenv("HOME", dir)

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Transport.Type != "rtu" || cfg.Poll.Attempts != 40 || cfg.Poll.Interval != 50*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	path := writeConfig(t, "transport:\n  type: rtu\n")
	t.Setenv("MODBUS_MASTER_TRANSPORT_SERIAL_DEVICE", "/dev/ttyAMA0")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("transport", "rtu", "")
	flags.Int("baud", 9600, "")
	if err := flags.Parse([]string{"--transport", "local", "--baud", "38400"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, flags)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Transport.Serial.Device != "/dev/ttyAMA0" {
		t.Errorf("env override not applied: %q", cfg.Transport.Serial.Device)
	}
	if cfg.Transport.Type != "local" || cfg.Transport.Serial.BaudRate != 38400 {
		t.Errorf("flag override not applied: type %q baud %d", cfg.Transport.Type, cfg.Transport.Serial.BaudRate)
	}
}
