// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/crc"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []byte // without CRC
	}{
		{"ReadCoils", Request{SlaveID: 0x11, FunctionCode: 0x01, Address: 0x0013, Quantity: 0x0025},
			[]byte{0x11, 0x01, 0x00, 0x13, 0x00, 0x25}},
		{"ReadHoldingRegisters", Request{SlaveID: 1, FunctionCode: 0x03, Address: 1000, Quantity: 1},
			[]byte{0x01, 0x03, 0x03, 0xE8, 0x00, 0x01}},
		{"WriteSingleCoil", Request{SlaveID: 1, FunctionCode: 0x05, Address: 0, Quantity: 0xFF00},
			[]byte{0x01, 0x05, 0x00, 0x00, 0xFF, 0x00}},
		{"WriteSingleRegister", Request{SlaveID: 2, FunctionCode: 0x06, Address: 52, Quantity: 0xFFFB},
			[]byte{0x02, 0x06, 0x00, 0x34, 0xFF, 0xFB}},
		{"WriteMultipleCoils", Request{SlaveID: 1, FunctionCode: 0x0F, Address: 0x0013, Quantity: 10, Payload: []byte{0xCD, 0x01}},
			[]byte{0x01, 0x0F, 0x00, 0x13, 0x00, 0x0A, 0x02, 0xCD, 0x01}},
		{"WriteMultipleRegisters", Request{SlaveID: 1, FunctionCode: 0x10, Address: 1, Quantity: 2, Payload: []byte{0x00, 0x0A, 0x01, 0x02}},
			[]byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.req)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			want := crc.AppendChecksum(append([]byte(nil), tt.want...))
			if !bytes.Equal(got, want) {
				t.Errorf("Encode() =\n%X, want\n%X", got, want)
			}
		})
	}
}

func TestEncodeKnownFrame(t *testing.T) {
	got, err := Encode(Request{SlaveID: 1, FunctionCode: modbus.FuncCodeReadHoldingRegisters, Address: 0, Quantity: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = %X, want %X", got, want)
	}
}

func TestEncodeRejects(t *testing.T) {
	if _, err := Encode(Request{SlaveID: 1, FunctionCode: 0x2B}); !errors.Is(err, modbus.ErrInvalidArgument) {
		t.Errorf("unsupported function: expected ErrInvalidArgument, got %v", err)
	}
	big := Request{SlaveID: 1, FunctionCode: modbus.FuncCodeWriteMultipleRegisters, Quantity: 128, Payload: make([]byte, 256)}
	if _, err := Encode(big); !errors.Is(err, modbus.ErrInvalidArgument) {
		t.Errorf("oversized payload: expected ErrInvalidArgument, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	raw := crc.AppendChecksum([]byte{0x01, 0x03, 0x02, 0xAA, 0xBB})
	adu, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if adu.SlaveID != 1 || adu.Pdu.FunctionCode != 3 || !bytes.Equal(adu.Pdu.Data, []byte{0x02, 0xAA, 0xBB}) {
		t.Errorf("Decode() = %+v", adu)
	}

	raw[len(raw)-1] ^= 0xFF
	if _, err := Decode(raw); !errors.Is(err, modbus.ErrFrameCorruption) {
		t.Errorf("bad crc: expected ErrFrameCorruption, got %v", err)
	}
	if _, err := Decode([]byte{0x01, 0x03}); !errors.Is(err, modbus.ErrFrameCorruption) {
		t.Errorf("short frame: expected ErrFrameCorruption, got %v", err)
	}
}

func TestCompletion(t *testing.T) {
	read := Completion(modbus.FuncCodeReadHoldingRegisters)
	full := crc.AppendChecksum([]byte{0x01, 0x03, 0x04, 0x00, 0x01, 0x00, 0x02})

	for i := 0; i < len(full); i++ {
		if read(full[:i]) {
			t.Errorf("read: %d of %d bytes judged complete", i, len(full))
		}
	}
	if !read(full) {
		t.Errorf("read: full frame judged incomplete")
	}

	exception := crc.AppendChecksum([]byte{0x01, 0x83, 0x02})
	if read(exception[:4]) {
		t.Errorf("exception: 4 bytes judged complete")
	}
	if !read(exception) {
		t.Errorf("exception: 5 bytes judged incomplete")
	}

	write := Completion(modbus.FuncCodeWriteSingleCoil)
	echo := crc.AppendChecksum([]byte{0x01, 0x05, 0x00, 0x00, 0xFF, 0x00})
	if write(echo[:7]) {
		t.Errorf("write: 7 bytes judged complete")
	}
	if !write(echo) {
		t.Errorf("write: 8 bytes judged incomplete")
	}

	before := append([]byte(nil), full...)
	read(full)
	if !bytes.Equal(before, full) {
		t.Errorf("predicate modified the buffer")
	}
}

func TestCompletionFollowsRequestFunction(t *testing.T) {
	// A read-shaped reply to a write request is sized by the write rule.
	reply := crc.AppendChecksum([]byte{0x01, 0x03, 0x02, 0x00, 0x07})
	write := Completion(modbus.FuncCodeWriteSingleRegister)
	if write(reply) {
		t.Fatalf("7-byte reply judged complete for a write request")
	}
	padded := append(append([]byte(nil), reply...), 0x00)
	if !write(padded) {
		t.Fatalf("8 bytes judged incomplete for a write request")
	}
	if _, err := Validate(padded, 0x01, modbus.FuncCodeWriteSingleRegister, false); err == nil {
		t.Fatal("reply for another function validated")
	}
	if _, err := Validate(reply, 0x01, modbus.FuncCodeWriteSingleRegister, false); !errors.Is(err, modbus.ErrFunctionMismatch) {
		t.Fatalf("got %v, want ErrFunctionMismatch", err)
	}
}

func TestCalculateRequestLength(t *testing.T) {
	tests := []struct {
		name     string
		funcCode byte
		header   []byte
		want     int
		wantErr  bool
	}{
		{"ReadHoldingRegisters", 0x03, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 8, false},
		{"WriteSingleRegister", 0x06, []byte{0x01, 0x06, 0x00, 0x00, 0xAA, 0xBB}, 8, false},
		{"WriteMultipleRegisters_ShortHeader", 0x10, []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01}, 0, true},
		{"WriteMultipleRegisters_Valid", 0x10, []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01, 0x02}, 7 + 2 + 2, false},
		{"UnknownFunction", 0x99, []byte{0x01, 0x99}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateRequestLength(tt.funcCode, tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("CalculateRequestLength() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("CalculateRequestLength() = %v, want %v", got, tt.want)
			}
		})
	}
}
