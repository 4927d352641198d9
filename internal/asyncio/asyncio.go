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

// Package asyncio provides a small buffered, asynchronous io.Writer used by
// the logger hooks that sit in front of a slow sink (a log file, a syslog
// socket): Fire() enqueues and returns immediately, and a single goroutine
// drains the queue onto the real writer, optionally running a periodic sync
// callback alongside it (used by the file hook to detect external rotation).
package asyncio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosedResources is returned by Write once the Aggregator has been closed.
var ErrClosedResources = errors.New("asyncio: aggregator resources are closed")

// Config describes how an Aggregator buffers and flushes writes.
type Config struct {
	// BufWriter is the size of the internal write queue.
	BufWriter int
	// FctWriter performs the actual write to the underlying sink.
	FctWriter func(p []byte) (int, error)
	// SyncTimer, if non-zero, runs SyncFct on that interval.
	SyncTimer time.Duration
	// SyncFct is called periodically while the Aggregator is running.
	SyncFct func(ctx context.Context)
}

// Aggregator is a started, asynchronous writer.
type Aggregator interface {
	Start(ctx context.Context) error
	Close() error
	SetLoggerError(fct func(msg string, err ...error))
	Write(p []byte) (int, error)
}

type aggregator struct {
	cfg Config

	mu      sync.Mutex
	buf     chan []byte
	done    chan struct{}
	closed  bool
	started bool

	onErr func(msg string, err ...error)
}

// New creates an Aggregator from cfg. It is not running until Start is called.
func New(_ context.Context, cfg Config) (Aggregator, error) {
	if cfg.BufWriter <= 0 {
		cfg.BufWriter = 1
	}

	return &aggregator{
		cfg:  cfg,
		buf:  make(chan []byte, cfg.BufWriter),
		done: make(chan struct{}),
	}, nil
}

// SetLoggerError registers a callback used to report internal write errors
// that cannot otherwise be surfaced to the caller of Write.
func (a *aggregator) SetLoggerError(fct func(msg string, err ...error)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.onErr = fct
}

func (a *aggregator) reportErr(msg string, err error) {
	a.mu.Lock()
	fct := a.onErr
	a.mu.Unlock()

	if fct != nil {
		fct(msg, err)
	}
}

// Start launches the background flush (and, if configured, sync) goroutines.
func (a *aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.mu.Unlock()

	go a.runWriter()

	if a.cfg.SyncTimer > 0 && a.cfg.SyncFct != nil {
		go a.runSync(ctx)
	}

	return nil
}

func (a *aggregator) runWriter() {
	for {
		select {
		case <-a.done:
			return
		case p := <-a.buf:
			if _, e := a.cfg.FctWriter(p); e != nil {
				a.reportErr("asyncio: write failed", e)
			}
		}
	}
}

func (a *aggregator) runSync(ctx context.Context) {
	t := time.NewTicker(a.cfg.SyncTimer)
	defer t.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			a.cfg.SyncFct(ctx)
		}
	}
}

// Write enqueues p for asynchronous delivery.
func (a *aggregator) Write(p []byte) (int, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()

	if closed {
		return 0, ErrClosedResources
	}

	cp := append([]byte(nil), p...)

	select {
	case a.buf <- cp:
		return len(p), nil
	default:
		return 0, errors.New("asyncio: buffer full, dropping message")
	}
}

// Close stops the background goroutines. It does not close the underlying sink.
func (a *aggregator) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.done)

	return nil
}
