// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/modbus/crc"
	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
)

func newPort(t *testing.T, chunk int) (*Device, io.ReadWriteCloser) {
	t.Helper()
	d, err := NewDevice(config.LocalConfig{SlaveID: 1, ChunkSize: chunk})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	p, err := d.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return d, p
}

func readAll(p io.Reader) []byte {
	var out []byte
	buf := make([]byte, 64)
	for {
		n, _ := p.Read(buf)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func TestPortAnswersSplitRequest(t *testing.T) {
	d, p := newPort(t, 0)
	if err := d.Slave().Model().SetInputRegisters(0, []uint16{0x1234}); err != nil {
		t.Fatal(err)
	}

	req := crc.AppendChecksum([]byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x01})
	p.Write(req[:3])
	if got := readAll(p); len(got) != 0 {
		t.Fatalf("answered a partial request: % X", got)
	}
	p.Write(req[3:])

	want := crc.AppendChecksum([]byte{0x01, 0x04, 0x02, 0x12, 0x34})
	if got := readAll(p); !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

func TestPortSilence(t *testing.T) {
	_, p := newPort(t, 0)

	other := crc.AppendChecksum([]byte{0x02, 0x03, 0x00, 0x00, 0x00, 0x01})
	p.Write(other)
	if got := readAll(p); len(got) != 0 {
		t.Fatalf("answered another slave: % X", got)
	}

	corrupt := crc.AppendChecksum([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	corrupt[7] ^= 0xFF
	p.Write(corrupt)
	if got := readAll(p); len(got) != 0 {
		t.Fatalf("answered a corrupt frame: % X", got)
	}
}

func TestPortChunksResponse(t *testing.T) {
	_, p := newPort(t, 2)

	p.Write(crc.AppendChecksum([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x03}))
	buf := make([]byte, 64)
	n, err := p.Read(buf)
	if err != nil || n != 2 {
		t.Fatalf("first read = %d, %v", n, err)
	}
	rest := readAll(p)
	if len(rest) != 3+6+2-2 {
		t.Fatalf("remaining %d bytes", len(rest))
	}
}

func TestTransportRoundTrip(t *testing.T) {
	tr, err := NewTransport(config.LocalConfig{SlaveID: 1, ChunkSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	ctx := context.Background()
	frame, err := rtupacket.Encode(rtupacket.Request{SlaveID: 1, FunctionCode: 0x06, Address: 1000, Quantity: 0xFFFB})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(ctx, frame); err != nil {
		t.Fatal(err)
	}
	resp, err := tr.ReceiveUntil(ctx, rtupacket.Completion(0x06), transport.DefaultPollPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(resp, frame) {
		t.Fatalf("echo % X, want % X", resp, frame)
	}
	if got := tr.Device.Slave().Model().HoldingRegisters[1000]; got != 0xFFFB {
		t.Fatalf("register 1000 = %04X", got)
	}
}

func TestNewDeviceRejectsBroadcastID(t *testing.T) {
	if _, err := NewDevice(config.LocalConfig{SlaveID: 0}); err == nil {
		t.Fatal("expected error for slave id 0")
	}
}
