// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master implements the Modbus RTU master: it validates arguments,
// frames requests, drives one request/response cycle over a Transport and
// decodes the reply.
package master

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
)

// Master issues requests to RTU slaves over a single Transport.
// It is safe for concurrent use; requests are serialized so that exactly
// one is outstanding on the bus.
type Master struct {
	transport transport.Transport
	policy    transport.PollPolicy

	mu sync.Mutex
}

// Option configures a Master.
type Option func(*Master)

// WithPollPolicy overrides the default response polling policy.
func WithPollPolicy(p transport.PollPolicy) Option {
	return func(m *Master) {
		if p.MaxAttempts > 0 {
			m.policy.MaxAttempts = p.MaxAttempts
		}
		if p.Interval > 0 {
			m.policy.Interval = p.Interval
		}
	}
}

// New creates a Master over t.
func New(t transport.Transport, opts ...Option) *Master {
	m := &Master{
		transport: t,
		policy:    transport.DefaultPollPolicy(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close closes the underlying transport.
func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport.Close()
}

// ReadCoils reads count coils starting at address.
func (m *Master) ReadCoils(ctx context.Context, slave byte, address uint16, count int) ([]bool, error) {
	return m.readBits(ctx, slave, modbus.FuncCodeReadCoils, address, count)
}

// ReadDiscreteInputs reads count discrete inputs starting at address.
func (m *Master) ReadDiscreteInputs(ctx context.Context, slave byte, address uint16, count int) ([]bool, error) {
	return m.readBits(ctx, slave, modbus.FuncCodeReadDiscreteInputs, address, count)
}

// ReadHoldingRegisters reads count holding registers starting at address.
func (m *Master) ReadHoldingRegisters(ctx context.Context, slave byte, address uint16, count int, signed bool) ([]int, error) {
	return m.readRegisters(ctx, slave, modbus.FuncCodeReadHoldingRegisters, address, count, signed)
}

// ReadInputRegisters reads count input registers starting at address.
func (m *Master) ReadInputRegisters(ctx context.Context, slave byte, address uint16, count int, signed bool) ([]int, error) {
	return m.readRegisters(ctx, slave, modbus.FuncCodeReadInputRegisters, address, count, signed)
}

// WriteSingleCoil sets one coil. The result reports whether the slave
// echoed the request.
func (m *Master) WriteSingleCoil(ctx context.Context, slave byte, address uint16, value bool) (bool, error) {
	if err := checkSlave(slave); err != nil {
		return false, err
	}
	return m.write(ctx, rtu.Request{
		SlaveID:      slave,
		FunctionCode: modbus.FuncCodeWriteSingleCoil,
		Address:      address,
		Quantity:     modbus.EncodeCoilValue(value),
	})
}

// WriteSingleRegister writes one holding register.
func (m *Master) WriteSingleRegister(ctx context.Context, slave byte, address uint16, value int, signed bool) (bool, error) {
	if err := checkSlave(slave); err != nil {
		return false, err
	}
	if err := modbus.CheckRegisterValue(value, signed); err != nil {
		return false, err
	}
	return m.write(ctx, rtu.Request{
		SlaveID:      slave,
		FunctionCode: modbus.FuncCodeWriteSingleRegister,
		Address:      address,
		Quantity:     uint16(value),
	})
}

// WriteMultipleCoils writes len(values) coils starting at address.
func (m *Master) WriteMultipleCoils(ctx context.Context, slave byte, address uint16, values []bool) (bool, error) {
	if err := checkSlave(slave); err != nil {
		return false, err
	}
	if err := checkCount(len(values), modbus.MaxWriteCoils); err != nil {
		return false, err
	}
	return m.write(ctx, rtu.Request{
		SlaveID:      slave,
		FunctionCode: modbus.FuncCodeWriteMultipleCoils,
		Address:      address,
		Quantity:     uint16(len(values)),
		Payload:      modbus.PackCoils(values),
	})
}

// WriteMultipleRegisters writes len(values) holding registers starting at address.
func (m *Master) WriteMultipleRegisters(ctx context.Context, slave byte, address uint16, values []int, signed bool) (bool, error) {
	if err := checkSlave(slave); err != nil {
		return false, err
	}
	if err := checkCount(len(values), modbus.MaxWriteRegisters); err != nil {
		return false, err
	}
	payload, err := modbus.EncodeRegisters(values, signed)
	if err != nil {
		return false, err
	}
	return m.write(ctx, rtu.Request{
		SlaveID:      slave,
		FunctionCode: modbus.FuncCodeWriteMultipleRegisters,
		Address:      address,
		Quantity:     uint16(len(values)),
		Payload:      payload,
	})
}

func (m *Master) readBits(ctx context.Context, slave, fn byte, address uint16, count int) ([]bool, error) {
	if err := checkSlave(slave); err != nil {
		return nil, err
	}
	if err := checkCount(count, modbus.MaxReadBits); err != nil {
		return nil, err
	}
	payload, err := m.transact(ctx, rtu.Request{SlaveID: slave, FunctionCode: fn, Address: address, Quantity: uint16(count)})
	if err != nil {
		return nil, err
	}
	return modbus.UnpackCoils(payload, count)
}

func (m *Master) readRegisters(ctx context.Context, slave, fn byte, address uint16, count int, signed bool) ([]int, error) {
	if err := checkSlave(slave); err != nil {
		return nil, err
	}
	if err := checkCount(count, modbus.MaxReadRegisters); err != nil {
		return nil, err
	}
	payload, err := m.transact(ctx, rtu.Request{SlaveID: slave, FunctionCode: fn, Address: address, Quantity: uint16(count)})
	if err != nil {
		return nil, err
	}
	return modbus.DecodeRegisters(payload, signed, count)
}

// write runs a write request and compares the confirmation with it.
// An echo that differs from the request is reported as (false, nil).
func (m *Master) write(ctx context.Context, req rtu.Request) (bool, error) {
	payload, err := m.transact(ctx, req)
	if err != nil {
		return false, err
	}
	if !rtu.VerifyEcho(payload, req.Address, req.Quantity) {
		slog.Warn("modbus write not confirmed", "slave", req.SlaveID, "func", modbus.FunctionName(req.FunctionCode), "echo", hex.EncodeToString(payload))
		return false, nil
	}
	return true, nil
}

// transact runs one Send, ReceiveUntil, Validate cycle under the lock and
// returns the validated payload.
func (m *Master) transact(ctx context.Context, req rtu.Request) ([]byte, error) {
	frame, err := rtu.Encode(req)
	if err != nil {
		return nil, err
	}
	log := slog.With("slave", req.SlaveID, "func", modbus.FunctionName(req.FunctionCode), "address", req.Address)

	m.mu.Lock()
	defer m.mu.Unlock()

	log.Debug("modbus request", "state", "sending", "frame", hex.EncodeToString(frame))
	if err := m.transport.Send(ctx, frame); err != nil {
		log.Debug("modbus request", "state", "failed", "err", err)
		return nil, err
	}

	log.Debug("modbus request", "state", "awaiting")
	resp, err := m.transport.ReceiveUntil(ctx, rtu.Completion(req.FunctionCode), m.policy)
	if err != nil {
		log.Debug("modbus request", "state", "failed", "err", err)
		return nil, err
	}

	log.Debug("modbus request", "state", "validating", "response", hex.EncodeToString(resp))
	payload, err := rtu.Validate(resp, req.SlaveID, req.FunctionCode, modbus.IsReadFunction(req.FunctionCode))
	if err != nil {
		log.Debug("modbus request", "state", "failed", "err", err)
		return nil, err
	}
	log.Debug("modbus request", "state", "completed")
	return payload, nil
}

func checkSlave(slave byte) error {
	if slave < modbus.MinSlaveID || slave > modbus.MaxSlaveID {
		return fmt.Errorf("%w: slave id %d must be within %d..%d", modbus.ErrInvalidArgument, slave, modbus.MinSlaveID, modbus.MaxSlaveID)
	}
	return nil
}

func checkCount(count, max int) error {
	if count < 1 || count > max {
		return fmt.Errorf("%w: quantity %d must be within 1..%d", modbus.ErrInvalidArgument, count, max)
	}
	return nil
}
