// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeCoilValue returns the wire value of a single coil write.
func EncodeCoilValue(value bool) uint16 {
	if value {
		return CoilOn
	}
	return CoilOff
}

// CheckRegisterValue reports whether v fits a 16-bit register under the
// given signedness.
func CheckRegisterValue(v int, signed bool) error {
	if signed {
		if v < math.MinInt16 || v > math.MaxInt16 {
			return fmt.Errorf("%w: value %d outside signed 16-bit range", ErrInvalidArgument, v)
		}
		return nil
	}
	if v < 0 || v > math.MaxUint16 {
		return fmt.Errorf("%w: value %d outside unsigned 16-bit range", ErrInvalidArgument, v)
	}
	return nil
}

// EncodeRegisters encodes values as consecutive big-endian 16-bit words.
func EncodeRegisters(values []int, signed bool) ([]byte, error) {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		if err := CheckRegisterValue(v, signed); err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint16(data[2*i:], uint16(v))
	}
	return data, nil
}

// DecodeRegisters splits data into count big-endian 16-bit words.
func DecodeRegisters(data []byte, signed bool, count int) ([]int, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: register payload length %d is odd", ErrDecode, len(data))
	}
	if len(data)/2 != count {
		return nil, fmt.Errorf("%w: got %d registers, want %d", ErrDecode, len(data)/2, count)
	}
	values := make([]int, count)
	for i := range values {
		raw := binary.BigEndian.Uint16(data[2*i:])
		if signed {
			values[i] = int(int16(raw))
		} else {
			values[i] = int(raw)
		}
	}
	return values, nil
}

// PackCoils packs values LSB first, eight per byte. The final byte is zero
// padded.
func PackCoils(values []bool) []byte {
	packed := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	return packed
}

// UnpackCoils is the inverse of PackCoils. Padding bits past count are dropped.
func UnpackCoils(data []byte, count int) ([]bool, error) {
	if want := (count + 7) / 8; len(data) != want {
		return nil, fmt.Errorf("%w: got %d coil bytes, want %d for %d coils", ErrDecode, len(data), want, count)
	}
	values := make([]bool, count)
	for i := range values {
		values[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	return values, nil
}
