// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/grid-x/serial"

	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
	"github.com/ffutop/modbus-master/transport"
)

const (
	defaultIdleTimeout = 60 * time.Second
	defaultReadTimeout = 10 * time.Millisecond

	// maxDrainReads bounds how many reads Send spends discarding stale bytes.
	maxDrainReads = 16
)

// Opener opens the byte channel a Transport talks over.
type Opener func(ctx context.Context) (io.ReadWriteCloser, error)

type flusher interface {
	Flush() error
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Transport is a polling half-duplex RTU transport over a byte channel.
// The channel is opened on first use and closed again after IdleTimeout
// without traffic or after an I/O error.
type Transport struct {
	Name string

	// BaudRate derives the 3.5 character inter-frame gap.
	BaudRate int
	// RqstPause is the minimum pause between two requests.
	RqstPause time.Duration
	// ReadTimeout is the per-poll read deadline for channels supporting one.
	ReadTimeout time.Duration
	IdleTimeout time.Duration

	open Opener

	mu           sync.Mutex
	port         io.ReadWriteCloser
	chunk        []byte
	dirty        bool
	lastActivity time.Time
	closeTimer   *time.Timer
}

var _ transport.Transport = (*Transport)(nil)

// New returns a Transport over the channels produced by open.
func New(name string, open Opener) *Transport {
	return &Transport{
		Name:        name,
		ReadTimeout: defaultReadTimeout,
		IdleTimeout: defaultIdleTimeout,
		open:        open,
		chunk:       make([]byte, rtupacket.MaxSize),
	}
}

// Connect opens the channel if it is not open yet.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.connect(ctx)
}

// connect connects to the channel if it is not connected. Caller must hold the mutex.
func (t *Transport) connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if t.port == nil {
		port, err := t.open(ctx)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", t.Name, err)
		}
		t.port = port
		t.dirty = false
	}
	return nil
}

// Close closes the channel.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closeTimer != nil {
		t.closeTimer.Stop()
	}
	return t.close()
}

// close closes the channel if it is connected. Caller must hold the mutex.
func (t *Transport) close() (err error) {
	if t.port != nil {
		err = t.port.Close()
		t.port = nil
	}
	return
}

// Send waits out the inter-frame gap, discards stale input and writes frame.
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.connect(ctx); err != nil {
		return err
	}
	if err := t.waitFrameGap(ctx); err != nil {
		return err
	}

	stale, err := t.discard()
	if err != nil {
		t.close()
		return fmt.Errorf("%s: discard stale input: %w", t.Name, err)
	}
	if len(stale) > 0 || t.dirty {
		slog.Debug("discarded stale input", "port", t.Name, "bytes", hex.EncodeToString(stale), "aborted", t.dirty)
	}
	t.dirty = false

	slog.Debug("send to modbus slave", "port", t.Name, "request", hex.EncodeToString(frame))
	n, err := t.port.Write(frame)
	if err != nil {
		t.close()
		return fmt.Errorf("%s: write: %w", t.Name, err)
	}
	if n != len(frame) {
		t.dirty = true
		return fmt.Errorf("%s: short write of %d/%d bytes", t.Name, n, len(frame))
	}
	t.touch()
	return nil
}

// ReceiveUntil polls the channel until isComplete holds, the buffer reaches
// the maximum RTU frame size or policy.MaxAttempts polls have elapsed.
// Every poll counts and polls are spaced by policy.Interval, so a call
// waits at most about MaxAttempts*Interval even on a line that keeps
// delivering bytes. Bytes arriving during the pause accumulate in the
// channel and are picked up by the next poll.
func (t *Transport) ReceiveUntil(ctx context.Context, isComplete func([]byte) bool, policy transport.PollPolicy) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, fmt.Errorf("%s: port is not open", t.Name)
	}

	var buf []byte
	polls := 0
	for polls < policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			t.dirty = true
			return buf, err
		}

		n, err := t.readAvailable(t.chunk)
		polls++
		if n > 0 {
			buf = append(buf, t.chunk[:n]...)
			t.touch()
			if isComplete(buf) || len(buf) >= rtupacket.MaxSize {
				slog.Debug("recv from modbus slave", "port", t.Name, "response", hex.EncodeToString(buf), "polls", polls)
				return buf, nil
			}
		}
		if err != nil {
			t.close()
			return buf, fmt.Errorf("%s: read: %w", t.Name, err)
		}
		if polls >= policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.dirty = true
			return buf, ctx.Err()
		case <-timer.C:
		}
	}

	// Whatever is still on its way belongs to this request.
	t.dirty = len(buf) > 0
	slog.Debug("recv from modbus slave incomplete", "port", t.Name, "response", hex.EncodeToString(buf), "polls", polls)
	return buf, nil
}

// readAvailable reads what the channel has buffered. A read timeout is
// reported as zero bytes without error. Caller must hold the mutex.
func (t *Transport) readAvailable(p []byte) (int, error) {
	if d, ok := t.port.(readDeadliner); ok && t.ReadTimeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(t.ReadTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := t.port.Read(p)
	if err != nil && isTimeout(err) {
		err = nil
	}
	return n, err
}

// discard drops unread input. Caller must hold the mutex.
func (t *Transport) discard() ([]byte, error) {
	if f, ok := t.port.(flusher); ok {
		return nil, f.Flush()
	}
	var stale []byte
	for i := 0; i < maxDrainReads; i++ {
		n, err := t.readAvailable(t.chunk)
		if err != nil {
			return stale, err
		}
		if n == 0 {
			break
		}
		stale = append(stale, t.chunk[:n]...)
	}
	return stale, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// waitFrameGap keeps the bus silent for the inter-frame gap since the last
// traffic. Caller must hold the mutex.
func (t *Transport) waitFrameGap(ctx context.Context) error {
	gap := t.calculateDelay()
	if t.RqstPause > gap {
		gap = t.RqstPause
	}
	wait := time.Until(t.lastActivity.Add(gap))
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateDelay returns the 3.5 character silence that separates frames.
func (t *Transport) calculateDelay() time.Duration {
	var frameDelay int

	if t.BaudRate <= 0 || t.BaudRate > 19200 {
		frameDelay = 1750
	} else {
		frameDelay = 35000000 / t.BaudRate
	}
	return time.Duration(frameDelay) * time.Microsecond
}

// touch records bus activity and re-arms the idle close timer. Caller must
// hold the mutex.
func (t *Transport) touch() {
	t.lastActivity = time.Now()
	t.startCloseTimer()
}

func (t *Transport) startCloseTimer() {
	if t.IdleTimeout <= 0 {
		return
	}
	if t.closeTimer == nil {
		t.closeTimer = time.AfterFunc(t.IdleTimeout, t.closeIdle)
	} else {
		t.closeTimer.Reset(t.IdleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
func (t *Transport) closeIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.IdleTimeout <= 0 {
		return
	}

	if idle := time.Since(t.lastActivity); idle >= t.IdleTimeout {
		slog.Debug("modbus: closing connection due to idle timeout", "port", t.Name, "idle", idle)
		t.close()
	}
}
