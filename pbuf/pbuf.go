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

// Package pbuf implements the reference-counted, chainable byte buffer used
// for both TX and RX payload data on the AT connection. A Buffer is a
// singly-linked chain of nodes; each node owns its storage and stores only
// its own length, so the total length of a chain is computed by walking it.
package pbuf

import (
	"bytes"
	"errors"
	"net/netip"
	"sync/atomic"
)

// ErrRefCount is returned by Cat when the chain being appended is shared
// (ref-count > 1); the caller must use Chain instead.
var ErrRefCount = errors.New("pbuf: appended chain is shared, use Chain")

// NotFound is the sentinel offset returned by the search operations when no
// match exists.
const NotFound = -1

// Buffer is one node of a pbuf chain.
type Buffer struct {
	own  []byte
	ref  atomic.Int32
	next *Buffer

	// Src is the optional source endpoint for RX pbufs (e.g. UDP datagrams).
	Src netip.AddrPort
}

// New allocates a single-node chain of length n, zero-filled, ref-count 1.
func New(n int) *Buffer {
	b := &Buffer{own: make([]byte, n)}
	b.ref.Store(1)

	return b
}

// FromBytes wraps p (copied) in a single-node chain with ref-count 1.
func FromBytes(p []byte) *Buffer {
	b := New(len(p))
	copy(b.own, p)

	return b
}

// Ref increments p's reference count; pairs with one extra Free.
func Ref(p *Buffer) {
	if p == nil {
		return
	}

	p.ref.Add(1)
}

// Free decrements p's head reference count. If it reaches zero, the node's
// storage is released and the next node is recursively freed. Freeing a nil
// chain is a no-op.
func Free(p *Buffer) {
	for p != nil {
		if p.ref.Add(-1) > 0 {
			return
		}

		n := p.next
		p.own = nil
		p.next = nil
		p = n
	}
}

// Len returns the length of the first node if whole is false, or the total
// length of the chain from p if whole is true.
func Len(p *Buffer, whole bool) int {
	if p == nil {
		return 0
	}

	if !whole {
		return len(p.own)
	}

	n := 0
	for c := p; c != nil; c = c.next {
		n += len(c.own)
	}

	return n
}

// Cat appends b to the tail of a, transferring ownership of b to a's owner:
// every subsequent Free(a) will also free b. b's head ref-count must be 1 —
// a shared chain must be attached with Chain instead.
func Cat(a, b *Buffer) error {
	if a == nil || b == nil {
		return nil
	}

	if b.ref.Load() != 1 {
		return ErrRefCount
	}

	tail := a
	for tail.next != nil {
		tail = tail.next
	}

	tail.next = b

	return nil
}

// Chain attaches b to the tail of a like Cat, but increments b's head
// reference count first, so the caller keeps its own independent reference
// to b and may free it on its own schedule.
func Chain(a, b *Buffer) {
	if a == nil || b == nil {
		return
	}

	Ref(b)

	tail := a
	for tail.next != nil {
		tail = tail.next
	}

	tail.next = b
}

// Copy copies up to n bytes starting at offset (from the head of the chain)
// into dst, returning the number of bytes copied.
func Copy(p *Buffer, dst []byte, n, offset int) int {
	copied := 0
	pos := 0

	for c := p; c != nil && copied < n; c = c.next {
		if offset >= pos+len(c.own) {
			pos += len(c.own)
			continue
		}

		start := 0
		if offset > pos {
			start = offset - pos
		}

		avail := len(c.own) - start
		want := n - copied
		if want > avail {
			want = avail
		}
		if want > len(dst)-copied {
			want = len(dst) - copied
		}
		if want <= 0 {
			pos += len(c.own)
			continue
		}

		copy(dst[copied:copied+want], c.own[start:start+want])
		copied += want
		pos += len(c.own)
	}

	return copied
}

// ByteAt returns the byte at offset and true, or (0, false) if offset is
// beyond the chain's total length.
func ByteAt(p *Buffer, offset int) (byte, bool) {
	pos := 0

	for c := p; c != nil; c = c.next {
		if offset < pos+len(c.own) {
			return c.own[offset-pos], true
		}

		pos += len(c.own)
	}

	return 0, false
}

// MemCmp compares n bytes of the chain starting at offset against pattern,
// returning true if they match exactly (including if the chain is shorter
// than n, which never matches).
func MemCmp(p *Buffer, offset int, pattern []byte) bool {
	buf := make([]byte, len(pattern))
	if Copy(p, buf, len(pattern), offset) != len(pattern) {
		return false
	}

	return bytes.Equal(buf, pattern)
}

// MemFind searches the chain for pattern starting at offset, returning the
// absolute offset of the first match or NotFound.
func MemFind(p *Buffer, pattern []byte, offset int) int {
	total := Len(p, true)
	if len(pattern) == 0 || offset < 0 {
		return NotFound
	}

	for o := offset; o+len(pattern) <= total; o++ {
		if MemCmp(p, o, pattern) {
			return o
		}
	}

	return NotFound
}

// StrFind is MemFind for a string needle.
func StrFind(p *Buffer, needle string, offset int) int {
	return MemFind(p, []byte(needle), offset)
}

// LinearBlock returns a slice into the node containing offset, truncated to
// that node's remaining contiguous bytes, letting callers walk the chain
// without copying. The returned slice must not be retained past a Free.
func LinearBlock(p *Buffer, offset int) []byte {
	pos := 0

	for c := p; c != nil; c = c.next {
		if offset < pos+len(c.own) {
			return c.own[offset-pos:]
		}

		pos += len(c.own)
	}

	return nil
}

// RefCount returns p's current reference count (0 for a nil or freed node).
func RefCount(p *Buffer) int32 {
	if p == nil {
		return 0
	}

	return p.ref.Load()
}
