// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/ffutop/modbus-master/internal/command"
	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/master"
)

func TestServe(t *testing.T) {
	tr, err := newTransport(config.TransportConfig{Type: "local", Local: config.LocalConfig{SlaveID: 1}})
	if err != nil {
		t.Fatal(err)
	}
	m := master.New(tr)
	defer m.Close()

	in := strings.NewReader(`
# comment
write-register 1 1000 -5
read-holding-registers 1 1000 1
read-holding-registers 1 65535 2
bogus
quit
read-coils 1 0 1
`)
	var out bytes.Buffer
	if err := serve(context.Background(), command.Default(), m, in, &out, true); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"ok",
		"[-5]",
		"exception 2: illegal data address",
		`error: unknown command: "bogus"`,
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("output:\n%s", out.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOneShotCommandLine(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		want   command.Invocation
		signed bool
	}{
		{
			name: "negative value with trailing signed",
			args: []string{"write-register", "1", "0", "-5", "--signed"},
			want: command.Invocation{Name: "write-register", Args: []string{"1", "0", "-5"}, Signed: true},
		},
		{
			name:   "global signed before command",
			args:   []string{"--signed", "--transport", "local", "read-holding-registers", "1", "0", "2"},
			want:   command.Invocation{Name: "read-holding-registers", Args: []string{"1", "0", "2"}, Signed: true},
			signed: true,
		},
		{
			name: "short flag after command is an argument",
			args: []string{"write-registers", "1", "0", "-1", "-32768"},
			want: command.Invocation{Name: "write-registers", Args: []string{"1", "0", "-1", "-32768"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, opts := newFlags()
			if err := flags.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}
			if *opts.signed != tt.signed {
				t.Fatalf("global signed = %v, want %v", *opts.signed, tt.signed)
			}
			inv, ok := invocation(flags.Args(), *opts.signed)
			if !ok {
				t.Fatal("no command parsed")
			}
			if !reflect.DeepEqual(inv, tt.want) {
				t.Fatalf("invocation = %+v, want %+v", inv, tt.want)
			}
		})
	}
}

func TestNewTransportUnknownType(t *testing.T) {
	if _, err := newTransport(config.TransportConfig{Type: "udp"}); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
