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

package netconn

import (
	"context"
	"fmt"
	"time"

	"github.com/sabouaram/goesp/atconn"
	"github.com/sabouaram/goesp/atengine"
)

// acceptMailboxDepth bounds how many not-yet-accepted child connections a
// Listener will hold. While it is full, the server callback mints no child
// and drops the payload that would have created one.
const acceptMailboxDepth = 8

// Listener is the server-side counterpart of Conn: it owns the table's
// single server callback slot and hands each accepted client off as its
// own Conn.
type Listener struct {
	eng   *atengine.Engine
	conns *atconn.Table

	maxDataLen int
	port       int

	accept chan *Conn
	done   chan struct{}
}

// Listen starts AT+CIPSERVER on port and installs the table's server
// callback. A client's CONNECT alone does not create a child Conn: the child
// is minted when the first payload arrives on a slot that still uses the
// server callback, and that payload is the child's first Receive.
func Listen(ctx context.Context, eng *atengine.Engine, conns *atconn.Table, port int, maxDataLen int) (*Listener, error) {
	l := &Listener{
		eng:        eng,
		conns:      conns,
		maxDataLen: maxDataLen,
		port:       port,
		accept:     make(chan *Conn, acceptMailboxDepth),
		done:       make(chan struct{}),
	}

	conns.SetServerCallback(l.onServerEvent, nil)

	cmd := &atengine.Command{
		Kind:    "CIPSERVER",
		Lines:   []string{fmt.Sprintf("AT+CIPSERVER=1,%d\r\n", port)},
		Timeout: 5 * time.Second,
	}

	if err := eng.Submit(ctx, cmd); err != nil {
		return nil, err
	}

	if res := cmd.Wait(); res.Err != nil {
		return nil, res.Err
	}

	return l, nil
}

func (l *Listener) onServerEvent(slot *atconn.Slot, evt atconn.Event, data any) {
	switch evt {
	case atconn.EventRecv:
		child := newServerChild(l.eng, l.conns, l.maxDataLen)
		child.index = slot.Index

		select {
		case l.accept <- child:
			l.conns.PrepareSlot(slot.Index, atconn.KindTCP, child.Callback(), nil)
			child.Callback()(slot, evt, data)
		default:
		}
	case atconn.EventClose:
	}
}

// Accept blocks until a client connects, the listener is closed, the
// device is lost, or ctx is done.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c, ok := <-l.accept:
		if !ok {
			return nil, ErrListenerClosed.Error(nil)
		}
		return c, nil
	case <-l.done:
		return nil, ErrListenerClosed.Error(nil)
	case <-l.eng.Lost():
		return nil, ErrNoDevice.Error(nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the AT+CIPSERVER listener and unblocks any pending Accept.
func (l *Listener) Close(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	default:
		close(l.done)
	}

	cmd := &atengine.Command{
		Kind:    "CIPSERVER",
		Lines:   []string{"AT+CIPSERVER=0\r\n"},
		Timeout: 5 * time.Second,
	}

	if err := l.eng.Submit(ctx, cmd); err != nil {
		return err
	}

	res := cmd.Wait()
	return res.Err
}
