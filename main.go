// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-master/internal/command"
	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/master"
	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/transport"
	"github.com/ffutop/modbus-master/transport/local"
	"github.com/ffutop/modbus-master/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-master/transport/rtu-over-tcp"
)

// options holds the flags main reads directly; the rest feed the config.
type options struct {
	configFile *string
	signed     *bool
}

// newFlags defines the command line. Parsing stops at the first command
// word so that arguments such as -5 reach the command untouched.
func newFlags() (*pflag.FlagSet, *options) {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	flags.SetInterspersed(false)
	opts := &options{
		configFile: flags.StringP("config", "c", "", "Path to config file"),
	}
	flags.String("transport", "", "Transport type: rtu, rtu-over-tcp or local")
	flags.String("device", "", "Serial device")
	flags.Int("baud", 0, "Serial baud rate")
	flags.String("address", "", "Serial device server address for rtu-over-tcp")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	opts.signed = flags.BoolP("signed", "s", false, "Interpret register values as signed 16-bit")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [command args...] [--signed]\n\nFlags:\n", os.Args[0])
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n%s\n", command.Default().Help())
	}
	return flags, opts
}

// invocation builds the one-shot command from the words after the flags.
// A trailing -s, --signed or --unsigned applies to that command only.
func invocation(args []string, signed bool) (command.Invocation, bool) {
	return command.Parse(strings.Join(args, " "), signed)
}

func main() {
	flags, opts := newFlags()
	flags.Parse(os.Args[1:])

	// Load Configuration
	cfg, err := config.LoadConfig(*opts.configFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	t, err := newTransport(cfg.Transport)
	if err != nil {
		slog.Error("Failed to create transport", "type", cfg.Transport.Type, "err", err)
		os.Exit(1)
	}
	m := master.New(t, master.WithPollPolicy(cfg.Poll.Policy()))
	defer m.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := command.Default()
	if inv, ok := invocation(flags.Args(), *opts.signed); ok {
		if err := run(ctx, registry, m, inv, os.Stdout); err != nil {
			m.Close()
			os.Exit(1)
		}
		return
	}

	slog.Debug("Reading commands from stdin", "transport", cfg.Transport.Type)
	if err := serve(ctx, registry, m, os.Stdin, os.Stdout, *opts.signed); err != nil {
		slog.Error("Failed to read commands", "err", err)
	}
}

// newTransport builds the transport selected by cfg.Type.
func newTransport(cfg config.TransportConfig) (transport.Transport, error) {
	switch cfg.Type {
	case "rtu":
		t, err := rtu.NewSerial(cfg.Serial)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "rtu-over-tcp":
		return rtuovertcp.NewClient(cfg.Tcp), nil
	case "local":
		t, err := local.NewTransport(cfg.Local)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// run dispatches one invocation and prints its result or error.
func run(ctx context.Context, r *command.Registry, m *master.Master, inv command.Invocation, out io.Writer) error {
	result, err := r.Dispatch(ctx, m, inv)
	if result != "" {
		fmt.Fprintln(out, result)
	}
	// Multi-slave results already report failures inline.
	if err != nil && result == "" {
		if exc, ok := modbus.AsException(err); ok {
			fmt.Fprintf(out, "exception %d: %s\n", exc.Code, modbus.ExceptionName(exc.Code))
		} else {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return err
}

// serve runs one command per input line until EOF or cancellation.
func serve(ctx context.Context, r *command.Registry, m *master.Master, in io.Reader, out io.Writer, signed bool) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		inv, ok := command.Parse(line, signed)
		if !ok {
			continue
		}
		run(ctx, r, m, inv, out)
	}
	return scanner.Err()
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	// Command results go to stdout, so logs default to stderr.
	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
