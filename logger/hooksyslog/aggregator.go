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

package hooksyslog

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	libptc "github.com/sabouaram/goesp/transport/protocol"
)

// ErrClosedResources is returned by a sysAgg's Write once its connection has
// been torn down; callers use it to decide whether a reconnect is worthwhile.
var ErrClosedResources = errors.New("hooksyslog: aggregator resources are closed")

// sysAgg manages a shared, reference-counted connection to a syslog endpoint.
// Writes are buffered on a channel and flushed by a single goroutine so that
// Fire() never blocks on network I/O.
type sysAgg struct {
	i *atomic.Int64 // i is a reference counter for the number of hooks using this aggregator.
	l bool          // l indicates if the connection is to a local (auto-discovered) syslog.

	ptc libptc.NetworkProtocol
	adr string

	mu     sync.Mutex
	conn   net.Conn
	buf    chan []byte
	done   chan struct{}
	closed atomic.Bool
}

var (
	// agg is a global, thread-safe map that stores shared sysAgg instances.
	// The key is a unique identifier for the syslog endpoint (protocol + address),
	// and the value is the corresponding sysAgg instance. This allows multiple
	// hooks pointing to the same destination to share a single network connection.
	aggMu sync.Mutex
	agg   = make(map[string]*sysAgg)
)

// init sets up a process-exit safety net closing any aggregator left running.
func init() {
	runtime.SetFinalizer(&agg, func(*map[string]*sysAgg) {
		ResetOpenSyslog()
	})
}

// ResetOpenSyslog closes all active syslog connections and clears the aggregator map.
// This is primarily useful for testing or for scenarios requiring a full reset
// of the logging infrastructure.
func ResetOpenSyslog() {
	aggMu.Lock()
	defer aggMu.Unlock()

	for k, v := range agg {
		_ = v.Close()
		delete(agg, k)
	}
}

// setKey generates a unique key for a syslog endpoint based on its protocol and address.
func setKey(ptc libptc.NetworkProtocol, adr string) string {
	if adr == "" {
		ptc = libptc.NetworkEmpty
		adr = "localhost"
	}

	return fmt.Sprintf("%s-%s", ptc.Code(), adr)
}

// setAgg retrieves or creates a shared aggregator for a given syslog endpoint.
// If an aggregator for the endpoint already exists, its reference count is incremented.
// Otherwise, a new aggregator and its underlying network connection are created.
func setAgg(ptc libptc.NetworkProtocol, adr string) (io.Writer, bool, error) {
	k := setKey(ptc, adr)

	aggMu.Lock()
	defer aggMu.Unlock()

	if i, l := agg[k]; l && i != nil {
		i.i.Add(1)
		return i, i.l, nil
	}

	i, e := newAgg(ptc, adr)
	if e != nil {
		return nil, false, e
	}

	agg[k] = i

	return i, i.l, nil
}

// delAgg decrements the reference count for a syslog endpoint's aggregator.
// If the reference count drops to zero, the aggregator is shut down, its network
// connection is closed, and it is removed from the global map.
func delAgg(ptc libptc.NetworkProtocol, adr string) {
	k := setKey(ptc, adr)

	aggMu.Lock()
	defer aggMu.Unlock()

	i, ok := agg[k]
	if !ok || i == nil {
		return
	}

	if i.i.Add(-1) > 0 {
		return
	}

	delete(agg, k)
	_ = i.Close()
}

// newAgg creates a new sysAgg instance, dials the endpoint, and starts the
// background flush goroutine.
func newAgg(ptc libptc.NetworkProtocol, adr string) (*sysAgg, error) {
	local := adr == ""
	if local {
		// no local syslog auto-discovery on this platform: fall back to stderr framing
		// via a pipe-less writer so the hook still has somewhere safe to write.
		adr = "127.0.0.1:514"
		if ptc == libptc.NetworkEmpty {
			ptc = libptc.NetworkUDP
		}
	}

	conn, e := net.DialTimeout(ptc.String(), adr, 5*time.Second)
	if e != nil {
		return nil, e
	}

	i := &sysAgg{
		i:    new(atomic.Int64),
		l:    local,
		ptc:  ptc,
		adr:  adr,
		conn: conn,
		buf:  make(chan []byte, 250),
		done: make(chan struct{}),
	}
	i.i.Store(1)

	go i.run()

	return i, nil
}

// run drains the buffered channel and writes each entry to the connection,
// attempting a single reconnect on failure.
func (o *sysAgg) run() {
	for {
		select {
		case <-o.done:
			return
		case p := <-o.buf:
			if _, e := o.writeConn(p); e != nil {
				_, _ = fmt.Fprintf(os.Stderr, "hooksyslog: write failed: %v\n", e)
			}
		}
	}
}

func (o *sysAgg) writeConn(p []byte) (int, error) {
	o.mu.Lock()
	c := o.conn
	o.mu.Unlock()

	if c == nil {
		return 0, ErrClosedResources
	}

	if n, e := c.Write(p); e == nil {
		return n, nil
	}

	nc, e := net.DialTimeout(o.ptc.String(), o.adr, 5*time.Second)
	if e != nil {
		return 0, e
	}

	o.mu.Lock()
	_ = o.conn.Close()
	o.conn = nc
	o.mu.Unlock()

	return nc.Write(p)
}

// Write enqueues p for asynchronous delivery. It never blocks on network I/O.
func (o *sysAgg) Write(p []byte) (int, error) {
	if o.closed.Load() {
		return 0, ErrClosedResources
	}

	cp := append([]byte(nil), p...)

	select {
	case o.buf <- cp:
		return len(p), nil
	default:
		return 0, fmt.Errorf("hooksyslog: buffer full, dropping message")
	}
}

// Close stops the flush goroutine and closes the underlying connection.
func (o *sysAgg) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(o.done)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conn != nil {
		return o.conn.Close()
	}

	return nil
}
