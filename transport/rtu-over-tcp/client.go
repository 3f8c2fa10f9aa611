// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuovertcp carries RTU frames over a TCP socket, as offered by
// serial device servers. The frames are unchanged; only the channel differs.
package rtuovertcp

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/transport/rtu"
)

const (
	tcpTimeout = 10 * time.Second
)

// NewClient returns a Transport that dials cfg.Address on first use.
func NewClient(cfg config.TcpConfig) *rtu.Transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = tcpTimeout
	}
	return rtu.New(cfg.Address, func(ctx context.Context) (io.ReadWriteCloser, error) {
		d := net.Dialer{Timeout: timeout}
		c, err := d.DialContext(ctx, "tcp", cfg.Address)
		if err != nil {
			return nil, err
		}
		return &conn{Conn: c, writeTimeout: timeout}, nil
	})
}

// conn bounds every write so a stalled device server cannot block Send.
// Read deadlines are set by the transport before each poll.
type conn struct {
	net.Conn
	writeTimeout time.Duration
}

func (c *conn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}
