// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"fmt"
	"io"

	"github.com/grid-x/serial"
	tarm "github.com/tarm/serial"

	"github.com/ffutop/modbus-master/internal/config"
)

// Serial drivers.
const (
	DriverGridX = "grid-x"
	DriverTarm  = "tarm"
)

// NewSerial returns a Transport over the serial device described by cfg.
func NewSerial(cfg config.SerialConfig) (*Transport, error) {
	open, err := SerialOpener(cfg)
	if err != nil {
		return nil, err
	}
	t := New(cfg.Device, open)
	t.BaudRate = cfg.BaudRate
	t.RqstPause = cfg.RqstPause
	if cfg.ReadTimeout > 0 {
		t.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.IdleTimeout > 0 {
		t.IdleTimeout = cfg.IdleTimeout
	}
	return t, nil
}

// SerialOpener maps cfg onto the configured serial driver.
func SerialOpener(cfg config.SerialConfig) (Opener, error) {
	switch cfg.Driver {
	case "", DriverGridX:
		return gridXOpener(cfg), nil
	case DriverTarm:
		return tarmOpener(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}

func gridXOpener(cfg config.SerialConfig) Opener {
	c := &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.ReadTimeout,
	}
	if cfg.RS485 {
		c.RS485 = serial.RS485Config{
			Enabled:            true,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		}
	}
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return serial.Open(c)
	}
}

func tarmOpener(cfg config.SerialConfig) (Opener, error) {
	if cfg.RS485 {
		return nil, fmt.Errorf("serial driver %q does not support rs485 settings", DriverTarm)
	}
	parity := tarm.ParityNone
	switch cfg.Parity {
	case "", "N":
	case "E":
		parity = tarm.ParityEven
	case "O":
		parity = tarm.ParityOdd
	default:
		return nil, fmt.Errorf("unsupported parity %q", cfg.Parity)
	}
	c := &tarm.Config{
		Name:        cfg.Device,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
		Size:        byte(cfg.DataBits),
		Parity:      parity,
		StopBits:    tarm.StopBits(cfg.StopBits),
	}
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		port, err := tarm.OpenPort(c)
		if err != nil {
			return nil, err
		}
		return &tarmPort{Port: port}, nil
	}, nil
}

// tarmPort reports an expired read timeout, which tarm surfaces as io.EOF,
// as an empty read. Flush comes from the embedded port.
type tarmPort struct {
	*tarm.Port
}

func (p *tarmPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}
