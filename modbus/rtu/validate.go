// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/crc"
)

// Validate checks a received frame against the request it answers and
// returns the payload between the header and the CRC.
//
// The checks run in a fixed order: presence, CRC, slave id, exception,
// function echo. expectsCount selects the 3-byte read header
// (slave, function, byte count) over the 2-byte write header.
func Validate(resp []byte, slaveID, functionCode byte, expectsCount bool) ([]byte, error) {
	n := len(resp)
	if n == 0 {
		return nil, modbus.ErrNoResponse
	}
	if n < MinSize {
		return nil, fmt.Errorf("%w: %d byte response is shorter than a frame", modbus.ErrFrameCorruption, n)
	}
	if !crc.Valid(resp) {
		return nil, fmt.Errorf("%w: crc % X does not match expected %04X", modbus.ErrFrameCorruption, resp[n-2:], crc.Checksum(resp[:n-2]))
	}
	if resp[0] != slaveID {
		return nil, fmt.Errorf("%w: got %d, want %d", modbus.ErrAddressMismatch, resp[0], slaveID)
	}
	if resp[1] == functionCode|modbus.ExceptionMask {
		if n != ExceptionSize {
			return nil, fmt.Errorf("%w: exception response of %d bytes", modbus.ErrFrameCorruption, n)
		}
		return nil, &modbus.ExceptionError{FunctionCode: functionCode, Code: resp[2]}
	}
	if resp[1] != functionCode {
		return nil, fmt.Errorf("%w: got 0x%02X, want 0x%02X", modbus.ErrFunctionMismatch, resp[1], functionCode)
	}

	header := headerSize
	if expectsCount {
		header = readHeaderSize
	}
	if n < header+crcSize {
		return nil, fmt.Errorf("%w: %d byte response is shorter than its header", modbus.ErrFrameCorruption, n)
	}
	payload := resp[header : n-crcSize]
	if expectsCount && int(resp[2]) != len(payload) {
		return nil, fmt.Errorf("%w: byte count field %d, payload %d bytes", modbus.ErrDecode, resp[2], len(payload))
	}
	return payload, nil
}

// VerifyEcho reports whether a write confirmation payload echoes the address
// and the value (single writes) or count (multiple writes) that were sent.
func VerifyEcho(payload []byte, address, valueOrCount uint16) bool {
	if len(payload) != 4 {
		return false
	}
	return binary.BigEndian.Uint16(payload[0:2]) == address &&
		binary.BigEndian.Uint16(payload[2:4]) == valueOrCount
}
