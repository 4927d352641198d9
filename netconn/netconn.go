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

// Package netconn is the sequential, net.Conn-shaped API layered over the
// event-driven atengine/atconn pair: every Conn owns a bounded receive
// mailbox fed by the connection table's callback and a linear TX staging
// buffer chunked at the configured max data length; a Listener owns the
// bounded accept mailbox of child connections.
package netconn

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/sabouaram/goesp/atconn"
	"github.com/sabouaram/goesp/atengine"
	"github.com/sabouaram/goesp/pbuf"
)

// mailboxDepth bounds how many received pbufs may queue in a Conn's receive
// mailbox. Once it is full, the connection table's callback — called from
// the processor goroutine — frees and drops further payloads instead of
// blocking.
const mailboxDepth = 32

// sentinel values pushed onto a receive mailbox in place of a real pbuf.
type sentinel int

const (
	sentinelClosed sentinel = iota
	sentinelNoDevice
)

// Conn is one netconn handle: either a client connection opened with
// atapi.Connect, or a server connection accepted through a Listener.
type Conn struct {
	eng   *atengine.Engine
	conns *atconn.Table
	index int
	kind  atconn.Kind
	client bool

	maxDataLen int
	tx         []byte

	rx chan any

	accept chan *Conn // not set by New or newServerChild; Listener holds the accept mailbox

	closed bool
}

// New wraps an already-prepared slot index in a Conn. Callback must be
// installed on the table (via PrepareSlot or SetServerCallback) before the
// confirming CONNECT/LINK_CONN event arrives.
func New(eng *atengine.Engine, conns *atconn.Table, index int, kind atconn.Kind, client bool, maxDataLen int) *Conn {
	return &Conn{
		eng:        eng,
		conns:      conns,
		index:      index,
		kind:       kind,
		client:     client,
		maxDataLen: maxDataLen,
		rx:         make(chan any, mailboxDepth),
	}
}

// Callback returns the atconn.Callback this Conn feeds events into.
func (c *Conn) Callback() atconn.Callback {
	return func(slot *atconn.Slot, evt atconn.Event, data any) {
		switch evt {
		case atconn.EventRecv:
			if buf, ok := data.(*pbuf.Buffer); ok {
				select {
				case c.rx <- buf:
				default:
					pbuf.Free(buf)
				}
			}
		case atconn.EventClose:
			select {
			case c.rx <- sentinelClosed:
			default:
			}
		}
	}
}

// newServerChild is used by a listening Conn's SetServerCallback fallback
// to mint one Conn per accepted client and enqueue it for Accept.
func newServerChild(eng *atengine.Engine, conns *atconn.Table, maxDataLen int) *Conn {
	return &Conn{
		eng:        eng,
		conns:      conns,
		index:      -1,
		client:     false,
		maxDataLen: maxDataLen,
		rx:         make(chan any, mailboxDepth),
	}
}

// Write stages p into the TX buffer, flushing full MaxDataLen chunks as
// they fill; call Flush to force out a trailing partial chunk.
func (c *Conn) Write(ctx context.Context, p []byte) (int, error) {
	c.tx = append(c.tx, p...)

	for len(c.tx) >= c.maxDataLen {
		if err := c.sendChunk(ctx, c.tx[:c.maxDataLen], netip.AddrPort{}); err != nil {
			return 0, err
		}

		c.tx = c.tx[c.maxDataLen:]
	}

	return len(p), nil
}

// Flush forces out any partially filled TX chunk.
func (c *Conn) Flush(ctx context.Context) error {
	if len(c.tx) == 0 {
		return nil
	}

	err := c.sendChunk(ctx, c.tx, netip.AddrPort{})
	c.tx = c.tx[:0]

	return err
}

// Send writes p and immediately flushes — the common case for request-sized
// payloads that don't benefit from TX buffering.
func (c *Conn) Send(ctx context.Context, p []byte) (int, error) {
	if _, err := c.Write(ctx, p); err != nil {
		return 0, err
	}

	return len(p), c.Flush(ctx)
}

// SendTo sends p to a specific remote endpoint, for a UDP Conn that was not
// opened against a single fixed peer (AT+CIPSEND's remote-ip/remote-port
// form).
func (c *Conn) SendTo(ctx context.Context, remote netip.AddrPort, p []byte) (int, error) {
	if len(p) > c.maxDataLen {
		return 0, ErrTooLarge.Error(nil)
	}

	if err := c.sendChunk(ctx, p, remote); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (c *Conn) sendChunk(ctx context.Context, chunk []byte, remote netip.AddrPort) error {
	if s := c.conns.Slot(c.index); s != nil && s.HasStatus(atconn.StatusInClosing) {
		return ErrClosed.Error(nil)
	}

	var line string
	if remote.IsValid() {
		line = fmt.Sprintf("AT+CIPSEND=%d,%d,%q,%d\r\n", c.index, len(chunk), remote.Addr().String(), remote.Port())
	} else {
		line = fmt.Sprintf("AT+CIPSEND=%d,%d\r\n", c.index, len(chunk))
	}

	cmd := &atengine.Command{
		Kind:            "CIPSEND",
		Lines:           []string{line},
		SendAfterPrompt: chunk,
		Timeout:         10 * time.Second,
	}

	if err := c.eng.Submit(ctx, cmd); err != nil {
		return err
	}

	res := cmd.Wait()
	if res.Err != nil {
		return res.Err
	}

	return nil
}

// Receive blocks until a payload arrives, the connection closes, the
// device is lost, timeout elapses (0 disables the deadline), or ctx is
// done.
func (c *Conn) Receive(ctx context.Context, timeout time.Duration) (*pbuf.Buffer, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case v := <-c.rx:
		switch x := v.(type) {
		case *pbuf.Buffer:
			return x, nil
		case sentinel:
			if x == sentinelNoDevice {
				return nil, ErrNoDevice.Error(nil)
			}
			return nil, ErrClosed.Error(nil)
		default:
			return nil, ErrClosed.Error(nil)
		}
	case <-deadline:
		return nil, ErrTimeout.Error(nil)
	case <-c.eng.Lost():
		return nil, ErrNoDevice.Error(nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the connection (AT+CIPCLOSE) and marks it closing so the
// table rejects further sends while the close is in flight.
func (c *Conn) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.index >= 0 {
		c.conns.MarkClosing(c.index)
	}

	cmd := &atengine.Command{
		Kind:    "CIPCLOSE",
		Lines:   []string{fmt.Sprintf("AT+CIPCLOSE=%d\r\n", c.index)},
		Timeout: 5 * time.Second,
	}

	if err := c.eng.Submit(ctx, cmd); err != nil {
		return err
	}

	res := cmd.Wait()
	return res.Err
}
