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

// Package atevent is the registry applications use to subscribe to every
// event the engine raises — Wi-Fi status changes, station join/leave,
// connection lifecycle, and a keep-alive tick applications can use instead
// of owning their own timer goroutine.
package atevent

import (
	"context"
	"sync"
	"time"

	"github.com/sabouaram/goesp/port"
	liblog "github.com/sirupsen/logrus"
)

// Type identifies the kind of event delivered to a Handler.
type Type int

const (
	WifiConnected Type = iota
	WifiDisconnected
	WifiGotIP
	APConnected
	StationConnected
	StationDisconnected
	DistStationIP
	Ready
	WebServer
	ConnActive
	ConnClosed
	ConnData
	KeepAlive
)

// String names the event type, used in log lines.
func (t Type) String() string {
	switch t {
	case WifiConnected:
		return "wifi-connected"
	case WifiDisconnected:
		return "wifi-disconnected"
	case WifiGotIP:
		return "wifi-got-ip"
	case APConnected:
		return "ap-connected"
	case StationConnected:
		return "station-connected"
	case StationDisconnected:
		return "station-disconnected"
	case DistStationIP:
		return "dist-station-ip"
	case Ready:
		return "ready"
	case WebServer:
		return "webserver"
	case ConnActive:
		return "conn-active"
	case ConnClosed:
		return "conn-closed"
	case ConnData:
		return "conn-data"
	case KeepAlive:
		return "keep-alive"
	default:
		return "unknown"
	}
}

// Event is one notification dispatched to every registered Handler.
type Event struct {
	Type Type
	Data any
}

// Handler receives every dispatched Event; it must not block.
type Handler func(e Event)

// Registry fans every posted Event out to all currently registered
// handlers, and optionally drives a keep-alive ticker.
type Registry struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int

	log *liblog.Entry

	keepAliveCancel context.CancelFunc
}

// New creates an empty Registry. log may be nil, in which case dispatch
// errors from panicking handlers are silently recovered.
func New(log *liblog.Entry) *Registry {
	return &Registry{handlers: make(map[int]Handler), log: log}
}

// Register adds h to the fan-out set and returns a token usable with
// Unregister.
func (r *Registry) Register(h Handler) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.handlers[id] = h

	return id
}

// Unregister removes a handler previously added with Register.
func (r *Registry) Unregister(token int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, token)
}

// Dispatch fans e out to every registered handler synchronously, in
// registration order is not guaranteed (map iteration), but delivery to
// every handler is guaranteed before Dispatch returns. A panicking handler
// is recovered and logged so one misbehaving subscriber cannot break the
// processor thread that calls Dispatch.
func (r *Registry) Dispatch(e Event) {
	r.mu.RLock()
	handlers := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		r.safeCall(h, e)
	}
}

func (r *Registry) safeCall(h Handler, e Event) {
	defer func() {
		if rec := recover(); rec != nil && r.log != nil {
			r.log.WithField("event", e.Type.String()).Errorf("recovered panic in event handler: %v", rec)
		}
	}()

	h(e)
}

// StartKeepAlive spawns a ticker on w that posts a KeepAlive event every
// interval until ctx is cancelled or StopKeepAlive is called. Calling it
// again replaces any previously running ticker.
func (r *Registry) StartKeepAlive(ctx context.Context, w port.Worker, interval time.Duration) {
	r.StopKeepAlive()

	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.keepAliveCancel = cancel
	r.mu.Unlock()

	w.SpawnWorker(ctx, "atevent-keepalive", func(ctx context.Context) {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.Dispatch(Event{Type: KeepAlive})
			}
		}
	})
}

// StopKeepAlive stops a running keep-alive ticker, if any.
func (r *Registry) StopKeepAlive() {
	r.mu.Lock()
	cancel := r.keepAliveCancel
	r.keepAliveCancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
