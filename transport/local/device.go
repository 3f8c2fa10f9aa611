// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package local provides a simulated RTU slave reachable through an
// in-process byte channel, so the master can run without hardware.
package local

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ffutop/modbus-master/internal/config"
	localslave "github.com/ffutop/modbus-master/internal/local-slave"
	"github.com/ffutop/modbus-master/internal/local-slave/persistence"
	"github.com/ffutop/modbus-master/modbus"
	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport/rtu"
)

// Device is the simulated slave. It answers every request addressed to
// its slave id and stays silent otherwise, like a device on a shared bus.
type Device struct {
	SlaveID byte
	// ChunkSize splits responses into reads of at most this many bytes.
	// Zero delivers whole frames.
	ChunkSize int

	slave   *localslave.LocalSlave
	storage persistence.Storage
}

// NewDevice creates a Device over the storage selected by cfg.
func NewDevice(cfg config.LocalConfig) (*Device, error) {
	if cfg.SlaveID < modbus.MinSlaveID || cfg.SlaveID > modbus.MaxSlaveID {
		return nil, errors.New("local slave id must be within 1..247")
	}
	storage, err := persistence.New(cfg.Persistence)
	if err != nil {
		return nil, err
	}
	m, err := storage.Load()
	if err != nil {
		slog.Error("Failed to load persistence data, falling back to MemoryStorage", "err", err)
		storage = persistence.NewMemoryStorage()
		m, _ = storage.Load()
	}
	return &Device{
		SlaveID:   byte(cfg.SlaveID),
		ChunkSize: cfg.ChunkSize,
		slave:     localslave.NewLocalSlave(m, storage),
		storage:   storage,
	}, nil
}

// Slave returns the protocol handler, e.g. to seed its tables.
func (d *Device) Slave() *localslave.LocalSlave {
	return d.slave
}

// Open attaches a new channel to the device.
func (d *Device) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	return &Port{device: d}, nil
}

// Close releases the storage.
func (d *Device) Close() error {
	return d.storage.Close()
}

// handle answers one complete request frame, or returns nil when the
// device stays silent.
func (d *Device) handle(frame []byte) []byte {
	adu, err := rtupacket.Decode(frame)
	if err != nil {
		slog.Debug("local slave dropped frame", "frame", hex.EncodeToString(frame), "err", err)
		return nil
	}
	if adu.SlaveID != d.SlaveID {
		return nil
	}
	resp := rtupacket.ApplicationDataUnit{SlaveID: adu.SlaveID, Pdu: d.slave.Process(adu.Pdu)}
	raw, err := resp.Encode()
	if err != nil {
		slog.Error("local slave failed to encode response", "err", err)
		return nil
	}
	return raw
}

// Port is one open channel to a Device. Writes accumulate until a full
// request is buffered; responses are then served by subsequent reads.
type Port struct {
	device *Device

	mu     sync.Mutex
	req    []byte
	resp   []byte
	closed bool
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.req = append(p.req, b...)
	for len(p.req) >= 2 {
		fn := p.req[1]
		if (fn == modbus.FuncCodeWriteMultipleCoils || fn == modbus.FuncCodeWriteMultipleRegisters) && len(p.req) < 7 {
			break
		}
		length, err := rtupacket.CalculateRequestLength(fn, p.req)
		if err != nil {
			// Without a length the frame boundary is lost; drop the line.
			slog.Debug("local slave dropped input", "input", hex.EncodeToString(p.req), "err", err)
			p.req = nil
			break
		}
		if len(p.req) < length {
			break
		}
		frame := p.req[:length]
		p.req = p.req[length:]
		p.resp = append(p.resp, p.device.handle(frame)...)
	}
	return len(b), nil
}

// Read returns buffered response bytes. An empty buffer yields 0, nil.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n := len(p.resp)
	if size := p.device.ChunkSize; size > 0 && n > size {
		n = size
	}
	n = copy(b, p.resp[:n])
	p.resp = p.resp[n:]
	return n, nil
}

// Flush discards pending input in both directions.
func (p *Port) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.req = nil
	p.resp = nil
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return nil
}

// Transport is an RTU transport wired to a simulated Device.
type Transport struct {
	*rtu.Transport
	Device *Device
}

// NewTransport creates the simulated device described by cfg and a
// transport connected to it.
func NewTransport(cfg config.LocalConfig) (*Transport, error) {
	d, err := NewDevice(cfg)
	if err != nil {
		return nil, err
	}
	t := rtu.New("local", d.Open)
	return &Transport{Transport: t, Device: d}, nil
}

// Close closes the channel and the device storage.
func (t *Transport) Close() error {
	return errors.Join(t.Transport.Close(), t.Device.Close())
}
