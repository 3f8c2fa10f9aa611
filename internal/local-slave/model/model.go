// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package model holds the four data tables of the simulated slave device.
package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535
)

var (
	// ErrIllegalAddress reports an access outside the 16-bit address space.
	ErrIllegalAddress = errors.New("model: address range out of bounds")
	// ErrIllegalValue reports a malformed value or payload.
	ErrIllegalValue = errors.New("model: illegal data value")
)

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableCoils TableType = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete_inputs"
	case TableHoldingRegisters:
		return "holding_registers"
	case TableInputRegisters:
		return "input_registers"
	}
	return fmt.Sprintf("table(%d)", int(t))
}

// DataModel is a flat memory model covering the full 16-bit address space
// of every table. Bits are stored one per byte as 0 or 1.
type DataModel struct {
	mu sync.RWMutex

	Coils            []byte
	DiscreteInputs   []byte
	HoldingRegisters []uint16
	InputRegisters   []uint16
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	return &DataModel{
		Coils:            make([]byte, MaxAddress+1),
		DiscreteInputs:   make([]byte, MaxAddress+1),
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
	}
}

// ReadCoils returns quantity coils packed LSB first.
func (m *DataModel) ReadCoils(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return readBits(m.Coils, address, quantity)
}

// ReadDiscreteInputs returns quantity discrete inputs packed LSB first.
func (m *DataModel) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return readBits(m.DiscreteInputs, address, quantity)
}

// ReadHoldingRegisters returns quantity holding registers as big-endian bytes.
func (m *DataModel) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return readRegisters(m.HoldingRegisters, address, quantity)
}

// ReadInputRegisters returns quantity input registers as big-endian bytes.
func (m *DataModel) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return readRegisters(m.InputRegisters, address, quantity)
}

// WriteSingleCoil writes a single coil. value must be 0xFF00 (ON) or 0x0000 (OFF).
func (m *DataModel) WriteSingleCoil(address uint16, value uint16) error {
	var bit byte
	switch value {
	case 0xFF00:
		bit = 1
	case 0x0000:
	default:
		return fmt.Errorf("%w: coil value 0x%04X", ErrIllegalValue, value)
	}

	m.mu.Lock()
	m.Coils[address] = bit
	m.mu.Unlock()
	return nil
}

// WriteMultipleCoils writes quantity coils from LSB-first packed bytes.
func (m *DataModel) WriteMultipleCoils(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return writeBits(m.Coils, address, quantity, data)
}

// WriteSingleRegister writes a single holding register.
func (m *DataModel) WriteSingleRegister(address uint16, value uint16) error {
	m.mu.Lock()
	m.HoldingRegisters[address] = value
	m.mu.Unlock()
	return nil
}

// WriteMultipleRegisters writes quantity holding registers from big-endian bytes.
func (m *DataModel) WriteMultipleRegisters(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return writeRegisters(m.HoldingRegisters, address, quantity, data)
}

// SetDiscreteInputs seeds the read-only discrete input table.
func (m *DataModel) SetDiscreteInputs(address uint16, values []bool) error {
	if err := validateRange(address, len(values)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range values {
		m.DiscreteInputs[int(address)+i] = 0
		if v {
			m.DiscreteInputs[int(address)+i] = 1
		}
	}
	return nil
}

// SetInputRegisters seeds the read-only input register table.
func (m *DataModel) SetInputRegisters(address uint16, values []uint16) error {
	if err := validateRange(address, len(values)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.InputRegisters[address:], values)
	return nil
}

func readBits(table []byte, address, quantity uint16) ([]byte, error) {
	if err := validateRange(address, int(quantity)); err != nil {
		return nil, err
	}
	result := make([]byte, (int(quantity)+7)/8)
	for i := 0; i < int(quantity); i++ {
		if table[int(address)+i] != 0 {
			result[i/8] |= 1 << uint(i%8)
		}
	}
	return result, nil
}

func writeBits(table []byte, address, quantity uint16, data []byte) error {
	if err := validateRange(address, int(quantity)); err != nil {
		return err
	}
	if len(data) < (int(quantity)+7)/8 {
		return fmt.Errorf("%w: %d bytes for %d coils", ErrIllegalValue, len(data), quantity)
	}
	for i := 0; i < int(quantity); i++ {
		table[int(address)+i] = (data[i/8] >> uint(i%8)) & 1
	}
	return nil
}

func readRegisters(table []uint16, address, quantity uint16) ([]byte, error) {
	if err := validateRange(address, int(quantity)); err != nil {
		return nil, err
	}
	result := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(result[i*2:], table[int(address)+i])
	}
	return result, nil
}

func writeRegisters(table []uint16, address, quantity uint16, data []byte) error {
	if err := validateRange(address, int(quantity)); err != nil {
		return err
	}
	if len(data) < int(quantity)*2 {
		return fmt.Errorf("%w: %d bytes for %d registers", ErrIllegalValue, len(data), quantity)
	}
	for i := 0; i < int(quantity); i++ {
		table[int(address)+i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

func validateRange(address uint16, quantity int) error {
	if quantity == 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", ErrIllegalValue)
	}
	// address is 0-based.
	if int(address)+quantity > MaxAddress+1 {
		return fmt.Errorf("%w: %d+%d", ErrIllegalAddress, address, quantity)
	}
	return nil
}
