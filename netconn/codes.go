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
	liberr "github.com/sabouaram/goesp/errors"
)

const (
	ErrTooLarge liberr.CodeError = liberr.MinPkgNetConn + iota
	ErrClosed
	ErrNoDevice
	ErrTimeout
	ErrListenerClosed
)

var codeMessages = map[liberr.CodeError]string{
	ErrTooLarge:       "payload exceeds the connection's max data length",
	ErrClosed:         "connection is closed",
	ErrNoDevice:       "device is not responding",
	ErrTimeout:        "receive timed out",
	ErrListenerClosed: "listener is closed",
}

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgNetConn, func(code liberr.CodeError) string {
		if m, ok := codeMessages[code]; ok {
			return m
		}

		return ""
	})
}
