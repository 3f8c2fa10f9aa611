// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package localslave answers Modbus requests from an in-memory data model.
// It backs the loopback transport used for offline runs and end-to-end tests.
package localslave

import (
	"encoding/binary"
	"errors"
	"log/slog"

	"github.com/ffutop/modbus-master/internal/local-slave/model"
	"github.com/ffutop/modbus-master/internal/local-slave/persistence"
	"github.com/ffutop/modbus-master/modbus"
)

// LocalSlave implements the Modbus protocol logic on top of a DataModel.
type LocalSlave struct {
	model   *model.DataModel
	storage persistence.Storage
}

// NewLocalSlave creates a new LocalSlave. storage may be nil.
func NewLocalSlave(m *model.DataModel, storage persistence.Storage) *LocalSlave {
	return &LocalSlave{model: m, storage: storage}
}

// Model exposes the data tables, e.g. to seed read-only inputs.
func (s *LocalSlave) Model() *model.DataModel {
	return s.model
}

type readFunc func(address, quantity uint16) ([]byte, error)

// Process executes the Modbus Function Code against the memory model.
// Protocol failures are answered with an exception PDU, never an error.
func (s *LocalSlave) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils:
		return s.handleRead(req, modbus.MaxReadBits, s.model.ReadCoils)
	case modbus.FuncCodeReadDiscreteInputs:
		return s.handleRead(req, modbus.MaxReadBits, s.model.ReadDiscreteInputs)
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleRead(req, modbus.MaxReadRegisters, s.model.ReadHoldingRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleRead(req, modbus.MaxReadRegisters, s.model.ReadInputRegisters)
	case modbus.FuncCodeWriteSingleCoil:
		return s.handleWriteSingle(req, model.TableCoils, s.model.WriteSingleCoil)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingle(req, model.TableHoldingRegisters, s.model.WriteSingleRegister)
	case modbus.FuncCodeWriteMultipleCoils:
		return s.handleWriteMultiple(req, modbus.MaxWriteCoils, model.TableCoils, s.model.WriteMultipleCoils)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultiple(req, modbus.MaxWriteRegisters, model.TableHoldingRegisters, s.model.WriteMultipleRegisters)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (s *LocalSlave) handleRead(req modbus.ProtocolDataUnit, limit uint16, read readFunc) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	if quantity < 1 || quantity > limit {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := read(address, quantity)
	if err != nil {
		return exception(req.FunctionCode, exceptionCode(err))
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: respData}
}

func (s *LocalSlave) handleWriteSingle(req modbus.ProtocolDataUnit, table model.TableType, write func(address, value uint16) error) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := write(address, value); err != nil {
		return exception(req.FunctionCode, exceptionCode(err))
	}
	s.onWrite(table, address, 1)
	// Echo request
	return req
}

func (s *LocalSlave) handleWriteMultiple(req modbus.ProtocolDataUnit, limit uint16, table model.TableType, write func(address, quantity uint16, data []byte) error) modbus.ProtocolDataUnit {
	if len(req.Data) < 6 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := int(req.Data[4])

	if quantity < 1 || quantity > limit || len(req.Data)-5 != byteCount {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if err := write(address, quantity, req.Data[5:]); err != nil {
		return exception(req.FunctionCode, exceptionCode(err))
	}
	s.onWrite(table, address, quantity)

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: respData}
}

func (s *LocalSlave) onWrite(table model.TableType, address, quantity uint16) {
	slog.Debug("local slave write", "table", table, "address", address, "quantity", quantity)
	if s.storage != nil {
		s.storage.OnWrite(table, address, quantity)
	}
}

func exceptionCode(err error) byte {
	if errors.Is(err, model.ErrIllegalAddress) {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	return modbus.ExceptionCodeIllegalDataValue
}

func exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | modbus.ExceptionMask,
		Data:         []byte{code},
	}
}
