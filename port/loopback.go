/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package port

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Loopback is a fake Transport for tests and simulators: SendBytes is
// recorded, and InjectRead feeds bytes a fake radio would have sent back.
type Loopback struct {
	mu   sync.Mutex
	sent bytes.Buffer
	rx   chan []byte
	clk  Clock
}

// NewLoopback creates a ready-to-use fake Transport/Port.
func NewLoopback() *Loopback {
	return &Loopback{
		rx:  make(chan []byte, 256),
		clk: SystemClock,
	}
}

// SendBytes records p as if it had been written to the UART.
func (l *Loopback) SendBytes(_ context.Context, p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sent.Write(p)
}

// ResetLine always reports no hardware reset line is wired.
func (l *Loopback) ResetLine(_ context.Context, _ bool) error {
	return ErrNoHardwareReset
}

// Read implements io.Reader, draining bytes previously queued by InjectRead.
func (l *Loopback) Read(p []byte) (int, error) {
	b, ok := <-l.rx
	if !ok {
		return 0, io.EOF
	}

	return copy(p, b), nil
}

// InjectRead queues p to be returned by the next Read call(s). Splitting a
// single logical frame across multiple InjectRead calls simulates a UART
// delivering bytes in arbitrary chunks (used by IPD-split-across-calls tests).
func (l *Loopback) InjectRead(p []byte) {
	cp := append([]byte(nil), p...)
	l.rx <- cp
}

// Close stops the Loopback, causing pending Reads to return io.EOF.
func (l *Loopback) Close() {
	close(l.rx)
}

// Sent returns a copy of every byte handed to SendBytes so far.
func (l *Loopback) Sent() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]byte(nil), l.sent.Bytes()...)
}

// SpawnWorker runs fn as a goroutine, matching GoroutineWorker.
func (l *Loopback) SpawnWorker(ctx context.Context, _ string, fn func(ctx context.Context)) {
	GoroutineWorker.SpawnWorker(ctx, "loopback", fn)
}

// Clock returns the Clock backing this Loopback (SystemClock unless overridden).
func (l *Loopback) Clock() Clock {
	return l.clk
}

// SetClock overrides the Clock, used to inject a virtual clock in timeout tests.
func (l *Loopback) SetClock(c Clock) {
	l.clk = c
}

var _ Port = (*Loopback)(nil)
