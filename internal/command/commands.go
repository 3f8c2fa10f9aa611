// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ffutop/modbus-master/master"
)

// Default returns a registry holding the master operations and help.
func Default() *Registry {
	r := NewRegistry()
	commands := []Command{
		{Name: "read-coils", Usage: "<slaves> <address> <count>", MinArgs: 3, MaxArgs: 3, Run: readBits((*master.Master).ReadCoils)},
		{Name: "read-discrete-inputs", Usage: "<slaves> <address> <count>", MinArgs: 3, MaxArgs: 3, Run: readBits((*master.Master).ReadDiscreteInputs)},
		{Name: "read-holding-registers", Usage: "<slaves> <address> <count>", MinArgs: 3, MaxArgs: 3, Run: readRegisters((*master.Master).ReadHoldingRegisters)},
		{Name: "read-input-registers", Usage: "<slaves> <address> <count>", MinArgs: 3, MaxArgs: 3, Run: readRegisters((*master.Master).ReadInputRegisters)},
		{Name: "write-coil", Usage: "<slaves> <address> <on|off>", MinArgs: 3, MaxArgs: 3, Run: writeCoil},
		{Name: "write-register", Usage: "<slaves> <address> <value>", MinArgs: 3, MaxArgs: 3, Run: writeRegister},
		{Name: "write-coils", Usage: "<slaves> <address> <on|off>...", MinArgs: 3, MaxArgs: -1, Run: writeCoils},
		{Name: "write-registers", Usage: "<slaves> <address> <value>...", MinArgs: 3, MaxArgs: -1, Run: writeRegisters},
		{Name: "help", Usage: "", MinArgs: 0, MaxArgs: 0, Run: func(context.Context, *master.Master, Invocation) (string, error) {
			return r.Help(), nil
		}},
	}
	for _, c := range commands {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// target holds the common <slaves> <address> prefix of every operation.
type target struct {
	slaves  []byte
	address uint16
}

func parseTarget(inv Invocation) (target, error) {
	slaves, err := ParseSlaveIDs(inv.Args[0])
	if err != nil {
		return target{}, err
	}
	address, err := parseAddress(inv.Args[1])
	if err != nil {
		return target{}, err
	}
	return target{slaves: slaves, address: address}, nil
}

// each runs op for every slave of t. With several slaves each result line
// is prefixed by its slave id; failures are reported inline and joined.
func (t target) each(op func(slave byte) (string, error)) (string, error) {
	var lines []string
	var errs []error
	for _, slave := range t.slaves {
		out, err := op(slave)
		if err != nil {
			errs = append(errs, fmt.Errorf("slave %d: %w", slave, err))
			out = "error: " + err.Error()
		}
		if len(t.slaves) > 1 {
			out = fmt.Sprintf("slave %d: %s", slave, out)
		}
		lines = append(lines, out)
	}
	if len(t.slaves) == 1 && len(errs) == 1 {
		return "", errors.Unwrap(errs[0])
	}
	return strings.Join(lines, "\n"), errors.Join(errs...)
}

type readBitsFunc func(m *master.Master, ctx context.Context, slave byte, address uint16, count int) ([]bool, error)

func readBits(read readBitsFunc) Handler {
	return func(ctx context.Context, m *master.Master, inv Invocation) (string, error) {
		t, err := parseTarget(inv)
		if err != nil {
			return "", err
		}
		count, err := parseInt(inv.Args[2])
		if err != nil {
			return "", err
		}
		return t.each(func(slave byte) (string, error) {
			values, err := read(m, ctx, slave, t.address, count)
			if err != nil {
				return "", err
			}
			return formatBits(values), nil
		})
	}
}

type readRegistersFunc func(m *master.Master, ctx context.Context, slave byte, address uint16, count int, signed bool) ([]int, error)

func readRegisters(read readRegistersFunc) Handler {
	return func(ctx context.Context, m *master.Master, inv Invocation) (string, error) {
		t, err := parseTarget(inv)
		if err != nil {
			return "", err
		}
		count, err := parseInt(inv.Args[2])
		if err != nil {
			return "", err
		}
		return t.each(func(slave byte) (string, error) {
			values, err := read(m, ctx, slave, t.address, count, inv.Signed)
			if err != nil {
				return "", err
			}
			return fmt.Sprint(values), nil
		})
	}
}

func writeCoil(ctx context.Context, m *master.Master, inv Invocation) (string, error) {
	t, err := parseTarget(inv)
	if err != nil {
		return "", err
	}
	value, err := parseBool(inv.Args[2])
	if err != nil {
		return "", err
	}
	return t.each(func(slave byte) (string, error) {
		return confirmed(m.WriteSingleCoil(ctx, slave, t.address, value))
	})
}

func writeRegister(ctx context.Context, m *master.Master, inv Invocation) (string, error) {
	t, err := parseTarget(inv)
	if err != nil {
		return "", err
	}
	value, err := parseInt(inv.Args[2])
	if err != nil {
		return "", err
	}
	return t.each(func(slave byte) (string, error) {
		return confirmed(m.WriteSingleRegister(ctx, slave, t.address, value, inv.Signed))
	})
}

func writeCoils(ctx context.Context, m *master.Master, inv Invocation) (string, error) {
	t, err := parseTarget(inv)
	if err != nil {
		return "", err
	}
	values := make([]bool, 0, len(inv.Args)-2)
	for _, arg := range inv.Args[2:] {
		v, err := parseBool(arg)
		if err != nil {
			return "", err
		}
		values = append(values, v)
	}
	return t.each(func(slave byte) (string, error) {
		return confirmed(m.WriteMultipleCoils(ctx, slave, t.address, values))
	})
}

func writeRegisters(ctx context.Context, m *master.Master, inv Invocation) (string, error) {
	t, err := parseTarget(inv)
	if err != nil {
		return "", err
	}
	values := make([]int, 0, len(inv.Args)-2)
	for _, arg := range inv.Args[2:] {
		v, err := parseInt(arg)
		if err != nil {
			return "", err
		}
		values = append(values, v)
	}
	return t.each(func(slave byte) (string, error) {
		return confirmed(m.WriteMultipleRegisters(ctx, slave, t.address, values, inv.Signed))
	})
}

func confirmed(ok bool, err error) (string, error) {
	switch {
	case err != nil:
		return "", err
	case ok:
		return "ok", nil
	default:
		return "not confirmed", nil
	}
}

func formatBits(values []bool) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	b.WriteByte(']')
	return b.String()
}
