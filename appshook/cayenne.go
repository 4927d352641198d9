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

package appshook

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/sabouaram/goesp/ioutils/bufferReadCloser"
	"github.com/sabouaram/goesp/netconn"
)

// CayenneEntry is one measurement queued for publish, mirroring the
// cayenne_async_data_t record cayenne_async_mqtt.c accumulates between MQTT
// publish attempts.
type CayenneEntry struct {
	Channel int
	Type    string
	Value   string
}

// CayennePublisher stages CayenneEntry records in a bufferReadCloser.Buffer
// and flushes them over a netconn.Conn one MQTT-publish line per entry,
// matching prv_try_send's "drain while data available" loop.
type CayennePublisher struct {
	conn   *netconn.Conn
	topic  string
	staged bufferReadCloser.Buffer
}

// NewCayennePublisher builds a publisher that writes to topic over conn.
func NewCayennePublisher(conn *netconn.Conn, topic string) *CayennePublisher {
	return &CayennePublisher{
		conn:   conn,
		topic:  topic,
		staged: bufferReadCloser.NewBuffer(bytes.NewBuffer(nil), nil),
	}
}

// Queue appends e to the pending buffer without touching the connection.
func (p *CayennePublisher) Queue(e CayenneEntry) error {
	_, err := p.staged.WriteString(fmt.Sprintf("%s/%d,%s=%s\n", p.topic, e.Channel, e.Type, e.Value))
	return err
}

// Flush sends every staged entry and resets the buffer, matching
// prv_try_send draining cayenne_async_data_buff until it is empty.
func (p *CayennePublisher) Flush(ctx context.Context) error {
	data, err := io.ReadAll(p.staged)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return nil
	}

	_, err = p.conn.Send(ctx, data)
	return err
}
