// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

import (
	"bytes"
	"testing"
)

func TestCRC(t *testing.T) {
	var crc CRC
	crc.Reset()
	crc.PushBytes([]byte{0x02, 0x07})

	if crc.Value() != 0x1241 {
		t.Fatalf("crc expected %v, actual %v", 0x1241, crc.Value())
	}
}

func TestCRCIncremental(t *testing.T) {
	var crc CRC
	crc.Reset().PushBytes([]byte{0x01, 0x03}).PushBytes([]byte{0x00, 0x00, 0x00, 0x01})
	if crc.Value() != 0x0A84 {
		t.Fatalf("crc expected %04X, actual %04X", 0x0A84, crc.Value())
	}
}

func TestChecksumVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"Short", []byte{0x02, 0x07}, 0x1241},
		{"ReadHoldingRequest", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 0x0A84},
		{"ReadCoilsRequest", []byte{0x11, 0x01, 0x00, 0x13, 0x00, 0x25}, 0x840E},
		{"Empty", nil, 0xFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum() = %04X, want %04X", got, tt.want)
			}
			if again := Checksum(tt.data); again != Checksum(tt.data) {
				t.Errorf("Checksum() not deterministic")
			}
		})
	}
}

func TestAppendChecksum(t *testing.T) {
	got := AppendChecksum([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if !bytes.Equal(got, want) {
		t.Fatalf("AppendChecksum() = %X, want %X", got, want)
	}
	if !Valid(got) {
		t.Errorf("Valid() = false for a freshly appended checksum")
	}
	got[len(got)-1] ^= 0x01
	if Valid(got) {
		t.Errorf("Valid() = true after flipping a CRC bit")
	}
}
