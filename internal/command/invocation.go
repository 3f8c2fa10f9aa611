// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ffutop/modbus-master/modbus"
)

// Invocation is one parsed command line.
type Invocation struct {
	Name string
	Args []string
	// Signed selects two's complement interpretation of register values.
	Signed bool
}

// Parse splits a command line into an Invocation. The tokens "-s" and
// "--signed" turn on signed registers; "--unsigned" turns them off.
func Parse(line string, signed bool) (Invocation, bool) {
	inv := Invocation{Signed: signed}
	for _, field := range strings.Fields(line) {
		switch field {
		case "-s", "--signed":
			inv.Signed = true
		case "--unsigned":
			inv.Signed = false
		default:
			if inv.Name == "" {
				inv.Name = field
			} else {
				inv.Args = append(inv.Args, field)
			}
		}
	}
	return inv, inv.Name != ""
}

// ParseSlaveIDs parses a list of slave ids such as "1,2,5-10".
func ParseSlaveIDs(input string) ([]byte, error) {
	var ids []byte
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start, end := part, part
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, end = strings.TrimSpace(lo), strings.TrimSpace(hi)
		}
		first, err := parseSlaveID(start)
		if err != nil {
			return nil, err
		}
		last, err := parseSlaveID(end)
		if err != nil {
			return nil, err
		}
		if first > last {
			return nil, fmt.Errorf("start of range %d is greater than end %d", first, last)
		}
		for id := first; id <= last; id++ {
			ids = append(ids, byte(id))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no slave id in %q", input)
	}
	return ids, nil
}

func parseSlaveID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid slave id: %w", err)
	}
	if id < modbus.MinSlaveID || id > modbus.MaxSlaveID {
		return 0, fmt.Errorf("slave id out of range: %d", id)
	}
	return id, nil
}

func parseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint16(v), nil
}

func parseInt(s string) (int, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return int(v), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "on", "true":
		return true, nil
	case "0", "off", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid coil value %q", s)
}
