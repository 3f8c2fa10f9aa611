// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package command maps textual commands onto master operations.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ffutop/modbus-master/master"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

// Handler runs one command against the master and returns its printable result.
type Handler func(ctx context.Context, m *master.Master, inv Invocation) (string, error)

// Command describes a registered command. MaxArgs < 0 means unbounded.
type Command struct {
	Name    string
	Usage   string
	MinArgs int
	MaxArgs int
	Run     Handler
}

// Registry resolves commands by name.
type Registry struct {
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds c. The command is checked here so that a bad table fails
// at startup rather than on first use.
func (r *Registry) Register(c Command) error {
	switch {
	case c.Name == "" || strings.ContainsAny(c.Name, " \t\n"):
		return fmt.Errorf("invalid command name %q", c.Name)
	case c.Run == nil:
		return fmt.Errorf("command %q has no handler", c.Name)
	case c.MinArgs < 0 || (c.MaxArgs >= 0 && c.MaxArgs < c.MinArgs):
		return fmt.Errorf("command %q has invalid argument bounds %d..%d", c.Name, c.MinArgs, c.MaxArgs)
	}
	if _, ok := r.commands[c.Name]; ok {
		return fmt.Errorf("command %q already registered", c.Name)
	}
	r.commands[c.Name] = c
	return nil
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Command, bool) {
	c, ok := r.commands[name]
	return c, ok
}

// Dispatch checks the argument count of inv and runs its command.
func (r *Registry) Dispatch(ctx context.Context, m *master.Master, inv Invocation) (string, error) {
	c, ok := r.commands[inv.Name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, inv.Name)
	}
	if n := len(inv.Args); n < c.MinArgs || (c.MaxArgs >= 0 && n > c.MaxArgs) {
		return "", fmt.Errorf("%w: %s %s", ErrUsage, c.Name, c.Usage)
	}
	return c.Run(ctx, m, inv)
}

// Help lists every command with its usage.
func (r *Registry) Help() string {
	var b strings.Builder
	for _, name := range r.Names() {
		fmt.Fprintf(&b, "%s %s\n", name, r.commands[name].Usage)
	}
	return strings.TrimRight(b.String(), "\n")
}
