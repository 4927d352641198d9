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

package main

import (
	"context"
	"os"

	"github.com/sabouaram/goesp/port"
)

// ttyPort adapts a plain tty device file to port.Port. It carries no GPIO
// reset line, so ResetLine always reports port.ErrNoHardwareReset. It does
// not configure the line speed; the device is used as already set up.
type ttyPort struct {
	f *os.File
}

func openTTY(path string) (*ttyPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	return &ttyPort{f: f}, nil
}

func (t *ttyPort) Read(p []byte) (int, error) {
	return t.f.Read(p)
}

func (t *ttyPort) SendBytes(ctx context.Context, p []byte) (int, error) {
	return t.f.Write(p)
}

func (t *ttyPort) ResetLine(ctx context.Context, assert bool) error {
	return port.ErrNoHardwareReset
}

func (t *ttyPort) SpawnWorker(ctx context.Context, name string, fn func(ctx context.Context)) {
	port.GoroutineWorker.SpawnWorker(ctx, name, fn)
}

func (t *ttyPort) Clock() port.Clock {
	return port.SystemClock
}
