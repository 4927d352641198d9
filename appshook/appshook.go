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

// Package appshook gives a concrete Go shape to the boundary the firmware's
// bundled apps (Cayenne/MQTT publish, a generic HTTP server) sit behind: how
// they plug into a netconn.Conn, not what they do with the bytes once
// connected. The internal logic of any particular app (an MQTT broker
// handshake, an HTTP router) is out of scope here, same as it was left
// unspecified in the system this is grounded on.
package appshook

import (
	"context"

	"github.com/sabouaram/goesp/netconn"
)

// Hook is the callback surface a bundled app receives for one netconn.Conn:
// lwesp_netconn.c drives an app's read loop exactly this way — a connected
// notification, a stream of payloads, then a closed notification.
type Hook interface {
	OnConnected(conn *netconn.Conn)
	OnData(conn *netconn.Conn, data []byte)
	OnClosed(conn *netconn.Conn)
}

// Run drives conn's receive loop and dispatches to hook until the
// connection closes, the device is lost, or ctx is done. Call it from its
// own goroutine; it blocks for the life of the connection.
func Run(ctx context.Context, conn *netconn.Conn, hook Hook) {
	hook.OnConnected(conn)
	defer hook.OnClosed(conn)

	for {
		buf, err := conn.Receive(ctx, 0)
		if err != nil {
			return
		}

		hook.OnData(conn, pbufBytes(buf))
	}
}
