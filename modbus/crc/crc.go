// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc computes the Modbus CRC-16 (seed 0xFFFF, reflected
// polynomial 0xA001) that trails every RTU frame.
package crc

import "github.com/sigurn/crc16"

var table = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC is an incremental Modbus CRC-16.
type CRC struct {
	value uint16
}

// Reset restores the seed value.
func (crc *CRC) Reset() *CRC {
	crc.value = crc16.Init(table)
	return crc
}

// PushBytes folds data into the running checksum.
func (crc *CRC) PushBytes(data []byte) *CRC {
	crc.value = crc16.Update(crc.value, data, table)
	return crc
}

// Value returns the checksum of everything pushed since Reset.
func (crc *CRC) Value() uint16 {
	return crc16.Complete(crc.value, table)
}

// Checksum returns the Modbus CRC-16 of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, table)
}

// AppendChecksum appends the checksum of frame to it, low byte first.
func AppendChecksum(frame []byte) []byte {
	sum := Checksum(frame)
	return append(frame, byte(sum), byte(sum>>8))
}

// Valid reports whether the trailing two bytes of frame hold the checksum of
// the bytes before them.
func Valid(frame []byte) bool {
	n := len(frame)
	if n < 2 {
		return false
	}
	received := uint16(frame[n-1])<<8 | uint16(frame[n-2])
	return received == Checksum(frame[:n-2])
}
