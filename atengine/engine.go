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

// Package atengine is the command engine: a producer goroutine that owns the
// UART writer and sequences one command at a time, and a processor goroutine
// that owns the UART reader, runs the line/IPD parser, and fans unsolicited
// events out through atevent. The two never touch each other's I/O direction;
// they only coordinate through the core mutex and a per-command completion
// channel.
package atengine

import (
	"bufio"
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sabouaram/goesp/atconn"
	"github.com/sabouaram/goesp/atevent"
	"github.com/sabouaram/goesp/atparser"
	"github.com/sabouaram/goesp/metrics"
	"github.com/sabouaram/goesp/pbuf"
	"github.com/sabouaram/goesp/port"

	liblog "github.com/sirupsen/logrus"
)

// DefaultTimeout is used by commands that do not set an explicit Timeout.
const DefaultTimeout = time.Second

// Result is what a Command ends with: either a recognized terminator plus
// any synchronous response lines gathered along the way, or an error.
type Result struct {
	Term atparser.Terminator
	Raw  []string
	Err  error
}

// Command is one request submitted to the engine. Lines holds the AT text
// lines to write, in order — usually one. SendAfterPrompt, if non-nil, is
// held back until the device's '>' data-send prompt is observed — this is
// the CIPSEND-style handshake (command text, wait for '>', then the raw
// payload) required before a data-carrying command is considered sent.
type Command struct {
	Kind            string
	Lines           []string
	SendAfterPrompt []byte
	Timeout         time.Duration

	// OnComplete, if set, is invoked from the producer goroutine once the
	// command finishes — this is the non-blocking call path. Leave nil for
	// the blocking path, which instead waits on the internal wake channel.
	OnComplete func(Result)

	id     string
	wake   chan struct{}
	result Result
}

// ID returns the command's correlation id, assigned on Submit. Intended for
// log lines and metrics, not for application logic.
func (c *Command) ID() string {
	return c.id
}

// Wait blocks until the command completes and returns its result. Only
// meaningful for commands submitted without OnComplete.
func (c *Command) Wait() Result {
	<-c.wake
	return c.result
}

// Engine sequences commands over a single UART, demultiplexes its byte
// stream, and dispatches unsolicited events.
type Engine struct {
	p       port.Port
	parser  *atparser.Parser
	conns   *atconn.Table
	events  *atevent.Registry
	log     *liblog.Entry
	metrics *metrics.Collector
	gate    *port.CommandGate

	queue chan *Command

	mu      sync.Mutex // core lock: guards current + conns/pbuf bookkeeping
	current *Command
	syncCh  chan struct{}
	promptCh chan struct{}

	lost chan struct{} // closed once when the device is declared lost
	once sync.Once
}

// New creates an Engine. queueDepth bounds how many commands may be pending
// submission before Submit blocks. collector may be nil to disable metrics.
func New(p port.Port, conns *atconn.Table, events *atevent.Registry, queueDepth int, log *liblog.Entry, collector *metrics.Collector) *Engine {
	if log == nil {
		log = liblog.NewEntry(liblog.StandardLogger())
	}

	e := &Engine{
		p:        p,
		conns:    conns,
		events:   events,
		log:      log,
		metrics:  collector,
		gate:     port.NewCommandGate(),
		queue:    make(chan *Command, queueDepth),
		syncCh:   make(chan struct{}, 1),
		promptCh: make(chan struct{}, 1),
		lost:     make(chan struct{}),
	}

	e.parser = atparser.New(atparser.Hooks{
		OnTerminator:   e.onTerminator,
		OnSyncResponse: e.onSyncResponse,
		OnEvent:        e.onEvent,
		OnPrompt:       e.onPrompt,
		OnIPDStart:     e.onIPDStart,
		OnIPDData:      e.onIPDData,
	})

	return e
}

// Start spawns the producer and processor goroutines. ctx cancellation tears
// both down and declares the device lost.
func (e *Engine) Start(ctx context.Context) {
	e.p.SpawnWorker(ctx, "atengine-producer", e.runProducer)
	e.p.SpawnWorker(ctx, "atengine-processor", e.runProcessor)
}

// Lost reports whether the engine has declared the device lost.
func (e *Engine) Lost() <-chan struct{} {
	return e.lost
}

func (e *Engine) declareLost() {
	e.once.Do(func() {
		close(e.lost)
		e.events.Dispatch(atevent.Event{Type: atevent.WifiDisconnected, Data: "device lost"})
	})
}

// Submit enqueues cmd. It blocks if the input queue is full. For a blocking
// caller, use cmd.Wait() after Submit returns; for a non-blocking caller,
// set cmd.OnComplete before calling Submit.
func (e *Engine) Submit(ctx context.Context, cmd *Command) error {
	if cmd.Timeout <= 0 {
		cmd.Timeout = DefaultTimeout
	}

	cmd.id = uuid.NewString()

	if cmd.OnComplete == nil {
		cmd.wake = make(chan struct{})
	}

	select {
	case e.queue <- cmd:
		return nil
	case <-e.lost:
		return ErrNoDevice.Error(nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) runProducer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.lost:
			return
		case cmd := <-e.queue:
			e.runOne(ctx, cmd)
		}
	}
}

func (e *Engine) runOne(ctx context.Context, cmd *Command) {
	if err := e.gate.Acquire(ctx); err != nil {
		e.finish(cmd, time.Time{}, Result{Err: err})
		return
	}
	defer e.gate.Release()

	start := e.p.Clock().Now()

	e.mu.Lock()
	e.current = cmd
	// drain any stale signal left over from a previous command's race with
	// timeout finalization
	select {
	case <-e.syncCh:
	default:
	}
	select {
	case <-e.promptCh:
	default:
	}
	e.mu.Unlock()

	for _, line := range cmd.Lines {
		if _, err := e.p.SendBytes(ctx, []byte(line)); err != nil {
			e.finish(cmd, start, Result{Err: err})
			return
		}
	}

	deadline := e.p.Clock().After(cmd.Timeout)

	if cmd.SendAfterPrompt != nil {
		select {
		case <-e.promptCh:
		case <-e.syncCh:
			// the device rejected the command (e.g. busy/error) before ever
			// prompting for payload
			e.mu.Lock()
			res := cmd.result
			e.mu.Unlock()
			e.finish(cmd, start, res)
			return
		case <-deadline:
			e.finish(cmd, start, Result{Err: ErrTimeout.Error(nil)})
			return
		case <-ctx.Done():
			e.finish(cmd, start, Result{Err: ctx.Err()})
			return
		}

		if _, err := e.p.SendBytes(ctx, cmd.SendAfterPrompt); err != nil {
			e.finish(cmd, start, Result{Err: err})
			return
		}
	}

	select {
	case <-e.syncCh:
		e.mu.Lock()
		res := cmd.result
		e.mu.Unlock()
		e.finish(cmd, start, res)
	case <-deadline:
		e.finish(cmd, start, Result{Term: atparser.TermNone, Err: ErrTimeout.Error(nil)})
	case <-ctx.Done():
		e.finish(cmd, start, Result{Err: ctx.Err()})
	}
}

func (e *Engine) finish(cmd *Command, start time.Time, res Result) {
	cmd.result = res

	e.mu.Lock()
	if e.current == cmd {
		e.current = nil
	}
	e.mu.Unlock()

	if e.metrics != nil && !start.IsZero() {
		outcome := "ok"
		if res.Err != nil {
			outcome = "error"
		}
		e.metrics.ObserveCommand(cmd.Kind, outcome, e.p.Clock().Now().Sub(start))
	}

	if cmd.OnComplete != nil {
		cmd.OnComplete(res)
		return
	}

	close(cmd.wake)
}

// runProcessor owns the UART reader; it never blocks on anything but its
// byte source, per the concurrency model.
func (e *Engine) runProcessor(ctx context.Context) {
	r := bufio.NewReaderSize(e.p, 4096)
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			e.parser.Feed(buf[:n])
		}

		if err != nil {
			e.declareLost()
			return
		}
	}
}

func (e *Engine) onTerminator(t atparser.Terminator, raw string) {
	e.mu.Lock()
	cmd := e.current
	if cmd != nil {
		cmd.result = Result{Term: t, Raw: cmd.result.Raw}

		if t == atparser.TermError || t == atparser.TermFail {
			cmd.result.Err = fmt.Errorf("command %s rejected: %s", cmd.Kind, raw)
		}
	}
	e.mu.Unlock()

	if cmd != nil {
		select {
		case e.syncCh <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) onSyncResponse(tag, raw string) {
	_ = tag

	e.mu.Lock()
	if e.current != nil {
		e.current.result.Raw = append(e.current.result.Raw, raw)
	}
	e.mu.Unlock()
}

func (e *Engine) onPrompt() {
	select {
	case e.promptCh <- struct{}{}:
	default:
	}
}

func (e *Engine) onEvent(raw string) {
	if e.handleConnEvent(raw) {
		return
	}

	ty, ok := classifyEvent(raw)
	if !ok {
		return
	}

	e.events.Dispatch(atevent.Event{Type: ty, Data: raw})
}

var connTermRe = regexp.MustCompile(`^(\d+),(CONNECT|CLOSED)$`)

// handleConnEvent recognizes the connection-lifecycle lines spec.md §4.D
// requires the engine to act on directly (bump the connection table),
// rather than merely forward as an opaque event. It reports whether raw was
// one of those lines.
func (e *Engine) handleConnEvent(raw string) bool {
	if m := connTermRe.FindStringSubmatch(raw); m != nil {
		idx, _ := strconv.Atoi(m[1])

		if m[2] == "CONNECT" {
			e.conns.Activate(idx, atconn.KindTCP, netip.AddrPort{}, true)
			e.metrics.AddConnectionsActive(1)
			e.events.Dispatch(atevent.Event{Type: atevent.ConnActive, Data: idx})
		} else {
			s := e.conns.Slot(idx)
			forced := s != nil && s.HasStatus(atconn.StatusInClosing)
			e.conns.Deactivate(idx, forced)
			e.metrics.AddConnectionsActive(-1)
			e.events.Dispatch(atevent.Event{Type: atevent.ConnClosed, Data: idx})
		}

		return true
	}

	if strings.HasPrefix(raw, "+LINK_CONN:") {
		e.handleLinkConn(raw)
		return true
	}

	return false
}

// handleLinkConn parses "+LINK_CONN:<status>,<id>,<type>,<c/s>,<remote_ip>,
// <remote_port>,<local_port>" — a server-side accept/drop notification not
// preceded by a locally submitted connect command, so the slot's kind and
// remote endpoint come entirely from the line itself.
func (e *Engine) handleLinkConn(raw string) {
	fields := strings.Split(strings.TrimPrefix(raw, "+LINK_CONN:"), ",")
	if len(fields) < 2 {
		return
	}

	idx, ok := atparser.ParseNumber(fields[1])
	if !ok {
		return
	}

	connecting := fields[0] != "0"

	if !connecting {
		s := e.conns.Slot(idx)
		forced := s != nil && s.HasStatus(atconn.StatusInClosing)
		e.conns.Deactivate(idx, forced)
		e.metrics.AddConnectionsActive(-1)
		e.events.Dispatch(atevent.Event{Type: atevent.ConnClosed, Data: idx})

		return
	}

	kind := atconn.KindTCP
	if len(fields) > 2 {
		kind = mapKind(fields[2])
	}

	var remote netip.AddrPort
	if len(fields) > 5 {
		if ip, ok := atparser.ParseIP(fields[4]); ok {
			if portNum, ok := atparser.ParseNumber(fields[5]); ok {
				remote = netip.AddrPortFrom(ip, uint16(portNum))
			}
		}
	}

	e.conns.Activate(idx, kind, remote, false)
	e.metrics.AddConnectionsActive(1)
	e.events.Dispatch(atevent.Event{Type: atevent.ConnActive, Data: idx})
}

func mapKind(s string) atconn.Kind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UDP":
		return atconn.KindUDP
	case "SSL":
		return atconn.KindSSL
	default:
		return atconn.KindTCP
	}
}

func (e *Engine) onIPDStart(f atparser.IPDFrame) {
	if f.AvailOnly {
		s := e.conns.Slot(f.Conn)
		if s != nil {
			s.AvailBytes += f.Len
		}
	}
}

func (e *Engine) onIPDData(conn int, data *pbuf.Buffer) {
	s := e.conns.Slot(conn)
	if s == nil {
		pbuf.Free(data)
		return
	}

	id := s.ValidationID()
	if !e.conns.Deliver(conn, id, data) {
		pbuf.Free(data)
		return
	}

	e.metrics.AddBytesReceived(pbuf.Len(data, true))
}

func classifyEvent(raw string) (atevent.Type, bool) {
	switch {
	case raw == "WIFI CONNECTED":
		return atevent.WifiConnected, true
	case raw == "WIFI DISCONNECTED":
		return atevent.WifiDisconnected, true
	case raw == "WIFI GOT IP":
		return atevent.WifiGotIP, true
	case raw == "WIFI AP CONNECTED":
		return atevent.APConnected, true
	case strings.HasPrefix(raw, "+STA_CONNECTED"):
		return atevent.StationConnected, true
	case strings.HasPrefix(raw, "+STA_DISCONNECTED"):
		return atevent.StationDisconnected, true
	case strings.HasPrefix(raw, "+DIST_STA_IP"):
		return atevent.DistStationIP, true
	case raw == "ready":
		return atevent.Ready, true
	case strings.HasPrefix(raw, "+WEBSERVER:"):
		return atevent.WebServer, true
	default:
		return 0, false
	}
}
