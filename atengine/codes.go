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

package atengine

import (
	liberr "github.com/sabouaram/goesp/errors"
)

// Driver error codes, registered in the package-reserved range above
// errors.MinAvailable so they never collide with the teacher's own
// namespaced code blocks.
const (
	ErrArg liberr.CodeError = liberr.MinAvailable + iota
	ErrMem
	ErrNoFreeConn
	ErrWifiNotConnected
	ErrNoDevice
	ErrTimeout
	ErrBusy
	ErrNotSupported
	ErrClosed
	ErrOKIgnoreMore
)

var codeMessages = map[liberr.CodeError]string{
	ErrArg:              "invalid argument",
	ErrMem:              "allocation failed",
	ErrNoFreeConn:       "no free connection slot",
	ErrWifiNotConnected: "wifi not connected",
	ErrNoDevice:         "device not present",
	ErrTimeout:          "command timed out",
	ErrBusy:             "device busy",
	ErrNotSupported:     "operation not supported",
	ErrClosed:           "connection closed",
	ErrOKIgnoreMore:     "ok, ignore remaining bytes",
}

func init() {
	liberr.RegisterIdFctMessage(liberr.MinAvailable, func(code liberr.CodeError) string {
		if m, ok := codeMessages[code]; ok {
			return m
		}

		return ""
	})
}
