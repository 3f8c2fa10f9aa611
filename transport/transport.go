// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"time"
)

// Default poll budget: about two seconds before a silent slave is given up.
const (
	DefaultPollAttempts = 40
	DefaultPollInterval = 50 * time.Millisecond
)

// PollPolicy bounds how long ReceiveUntil waits for a response.
type PollPolicy struct {
	// MaxAttempts is the number of polls that may come back empty.
	MaxAttempts int
	// Interval is the pause after an empty poll.
	Interval time.Duration
}

// DefaultPollPolicy returns 40 polls at 50 ms spacing.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{MaxAttempts: DefaultPollAttempts, Interval: DefaultPollInterval}
}

// Transport owns one half-duplex channel to the slaves on a bus.
//
// A Transport carries at most one request at a time; callers serialize the
// whole Send/ReceiveUntil sequence.
type Transport interface {
	// Send discards any stale unread bytes and writes frame in one piece.
	Send(ctx context.Context, frame []byte) error

	// ReceiveUntil accumulates incoming bytes until isComplete reports true
	// or the poll budget is spent, and returns whatever was accumulated.
	// An incomplete or empty buffer is not an error at this layer.
	ReceiveUntil(ctx context.Context, isComplete func([]byte) bool, policy PollPolicy) ([]byte, error)

	Close() error
}
