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

// Package port defines the seam between the AT engine and whatever actually
// owns the UART: board-specific DMA/ISR code on a microcontroller, a tty file
// on Linux, a virtual pipe in tests. The engine only ever talks to a Transport
// and a Clock; it never touches an os.File or a serial library directly.
package port

import (
	"context"
	"io"
	"time"
)

// Transport is the byte-level link to the radio. SendBytes must not return
// until every byte has been physically handed to the UART driver. ResetLine
// is optional hardware reset (a GPIO pulse); a Transport that has none
// returns ErrNoHardwareReset. The engine itself never calls ResetLine and
// never issues AT+RST.
type Transport interface {
	io.Reader

	SendBytes(ctx context.Context, p []byte) (int, error)
	ResetLine(ctx context.Context, assert bool) error
}

// Clock supplies monotonic time to the engine, replacing the source's
// platform millisecond tick. Production code uses SystemClock; Loopback's
// SetClock lets a test substitute another Clock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Worker spawns a function as a platform task. On a hosted OS this is a
// goroutine; the interface exists so an RTOS-style platform can supply its
// own scheduler without the engine depending on package runtime directly.
type Worker interface {
	SpawnWorker(ctx context.Context, name string, fn func(ctx context.Context))
}

// Port aggregates everything the engine needs from the platform.
type Port interface {
	Transport
	Worker

	Clock() Clock
}

type systemClock struct{}

// SystemClock is the production Clock backed by time.Now/time.After.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type goroutineWorker struct{}

// GoroutineWorker is the production Worker: every spawned task is a plain
// goroutine, recovered so a panic in a spawned task ends only that goroutine
// instead of the whole process. A panic in a connection callback therefore
// silently stops the engine's processor goroutine.
var GoroutineWorker Worker = goroutineWorker{}

func (goroutineWorker) SpawnWorker(ctx context.Context, name string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			_ = recover()
		}()

		fn(ctx)
	}()
}
