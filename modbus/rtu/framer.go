// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-master/modbus"
)

// Request describes one master request before framing.
//
// Quantity is the count for reads and multiple writes, and the value for
// single writes. Payload carries the packed coils or encoded registers of a
// multiple write.
type Request struct {
	SlaveID      byte
	FunctionCode byte
	Address      uint16
	Quantity     uint16
	Payload      []byte
}

// PDU lays out the function specific fields of r.
func (r *Request) PDU() (modbus.ProtocolDataUnit, error) {
	switch r.FunctionCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// [Addr(2), Count/Value(2)]
		data := make([]byte, 4)
		binary.BigEndian.PutUint16(data[0:2], r.Address)
		binary.BigEndian.PutUint16(data[2:4], r.Quantity)
		return modbus.ProtocolDataUnit{FunctionCode: r.FunctionCode, Data: data}, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// [Addr(2), Count(2), ByteCount(1), Data(N)]
		if len(r.Payload) > 0xFF {
			return modbus.ProtocolDataUnit{}, fmt.Errorf("%w: payload of %d bytes does not fit the byte count field", modbus.ErrInvalidArgument, len(r.Payload))
		}
		data := make([]byte, 5, 5+len(r.Payload))
		binary.BigEndian.PutUint16(data[0:2], r.Address)
		binary.BigEndian.PutUint16(data[2:4], r.Quantity)
		data[4] = byte(len(r.Payload))
		data = append(data, r.Payload...)
		return modbus.ProtocolDataUnit{FunctionCode: r.FunctionCode, Data: data}, nil
	default:
		return modbus.ProtocolDataUnit{}, fmt.Errorf("%w: unsupported function code 0x%02X", modbus.ErrInvalidArgument, r.FunctionCode)
	}
}

// Encode builds the complete frame of r, CRC appended low byte first.
func Encode(r Request) ([]byte, error) {
	pdu, err := r.PDU()
	if err != nil {
		return nil, err
	}
	adu := &ApplicationDataUnit{SlaveID: r.SlaveID, Pdu: pdu}
	return adu.Encode()
}

// Completion returns the predicate deciding whether a response buffer to a
// request with the given function code holds a whole frame. It only looks at
// the buffer and never modifies it.
//
// The read or write length rule is chosen from the request's function code,
// not from byte 1 of the response; only the exception bit is taken from the
// buffer. A response whose function differs from the request may therefore
// be cut at the wrong length, but Validate rejects it with
// ErrFunctionMismatch either way, so validated responses are unaffected.
func Completion(functionCode byte) func([]byte) bool {
	read := modbus.IsReadFunction(functionCode)
	return func(buf []byte) bool {
		n := len(buf)
		if n < headerSize {
			return false
		}
		switch {
		case modbus.IsException(buf[1]):
			return n >= ExceptionSize
		case read:
			if n < readHeaderSize {
				return false
			}
			return n >= readHeaderSize+int(buf[2])+crcSize
		default:
			return n >= WriteEchoSize
		}
	}
}

// CalculateRequestLength returns the expected total length of the Request RTU ADU based on the header.
func CalculateRequestLength(funcCode byte, header []byte) (int, error) {
	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// Fixed 8 bytes: [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return 8, nil
	case modbus.FuncCodeWriteMultipleCoils,
		modbus.FuncCodeWriteMultipleRegisters:
		// Req: [SlaveID, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < 7 {
			return 0, fmt.Errorf("need 7 bytes to determine length for 0x%02X, got %d", funcCode, len(header))
		}
		byteCount := int(header[6])
		return 7 + byteCount + 2, nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", funcCode)
	}
}
