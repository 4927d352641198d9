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

// Package atconn holds the fixed-size connection slot table shared by the
// command engine and netconn. Every slot carries a validation id bumped on
// every idle/active transition, so a stale async callback referencing a
// reused slot index can always detect that it no longer owns the slot.
package atconn

import (
	"net/netip"
	"sync"
)

// Kind identifies the connection's transport.
type Kind int

const (
	KindTCP Kind = iota
	KindUDP
	KindSSL
	KindTCPv6
	KindUDPv6
	KindSSLv6
)

// Status is a bitfield of per-slot flags.
type Status uint8

const (
	StatusActive Status = 1 << iota
	StatusClient
	StatusDataReceiveBlocked
	StatusInClosing
)

// Callback is invoked for every connection-level event. evt identifies what
// happened; data carries the event payload (nil except for EventRecv).
type Callback func(slot *Slot, evt Event, data any)

// Event enumerates the notifications a Callback may receive.
type Event int

const (
	EventRecv Event = iota
	EventClose
	EventSendOK
	EventSendFail
)

// CloseInfo is the data payload of an EventClose callback.
type CloseInfo struct {
	Forced bool // true if the close was requested locally, not by the remote
}

// Slot is one entry of the fixed connection table.
type Slot struct {
	mu sync.Mutex

	Index  int
	Kind   Kind
	status Status

	Remote netip.AddrPort
	Local  uint16

	Callback Callback
	UserArg  any

	RxBytes uint64
	TxBytes uint64

	validationID uint16

	// AvailBytes is only meaningful when manual TCP receive is enabled; it
	// tracks bytes announced by a +IPD,n,avail short form not yet pulled.
	AvailBytes int
}

// ValidationID returns the slot's current generation counter.
func (s *Slot) ValidationID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.validationID
}

// HasStatus reports whether every bit in want is set.
func (s *Slot) HasStatus(want Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status&want == want
}

func (s *Slot) setStatus(bit Status, on bool) {
	if on {
		s.status |= bit
	} else {
		s.status &^= bit
	}
}

// Table is the fixed-size array of connection slots, indexed 0..N-1.
type Table struct {
	mu    sync.Mutex
	slots []*Slot

	serverCB  Callback
	serverArg any
}

// NewTable creates a Table with n empty, idle slots.
func NewTable(n int) *Table {
	t := &Table{slots: make([]*Slot, n)}

	for i := range t.slots {
		t.slots[i] = &Slot{Index: i}
	}

	return t
}

// Len returns the number of slots in the table.
func (t *Table) Len() int {
	return len(t.slots)
}

// Slot returns the slot at index i, or nil if out of range.
func (t *Table) Slot(i int) *Slot {
	if i < 0 || i >= len(t.slots) {
		return nil
	}

	return t.slots[i]
}

// AllocFree finds an idle slot and returns it, or nil if the table is full.
func (t *Table) AllocFree() *Slot {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.slots {
		if !s.HasStatus(StatusActive) {
			return s
		}
	}

	return nil
}

// PrepareSlot records kind/callback/user-arg on an idle slot before the
// connect command that will activate it is even sent — the locally
// initiated connect path. Activate (below) picks these up once the radio
// confirms the connection.
func (t *Table) PrepareSlot(i int, kind Kind, cb Callback, arg any) {
	s := t.Slot(i)
	if s == nil {
		return
	}

	s.mu.Lock()
	s.Kind = kind
	s.Callback = cb
	s.UserArg = arg
	s.mu.Unlock()
}

// SetServerCallback installs the callback invoked for connections the radio
// accepts on its own (no prior PrepareSlot call), i.e. incoming server
// clients. It is applied lazily by Activate whenever a slot has no
// callback of its own.
func (t *Table) SetServerCallback(cb Callback, arg any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.serverCB = cb
	t.serverArg = arg
}

// Activate transitions slot i from idle to active, bumping its validation
// id and recording kind/remote. It is used both for locally initiated
// connects confirmed by "n,CONNECT" (the slot's Kind/Callback/UserArg were
// already set by PrepareSlot) and for radio-initiated server accepts
// confirmed by "+LINK_CONN" on an idle slot (falls back to the table's
// server callback when the slot has none of its own).
func (t *Table) Activate(i int, kind Kind, remote netip.AddrPort, client bool) *Slot {
	s := t.Slot(i)
	if s == nil {
		return nil
	}

	t.mu.Lock()
	serverCB, serverArg := t.serverCB, t.serverArg
	t.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Kind = kind
	s.Remote = remote

	if s.Callback == nil && serverCB != nil {
		s.Callback = serverCB
		s.UserArg = serverArg
	}

	s.RxBytes = 0
	s.TxBytes = 0
	s.AvailBytes = 0
	s.setStatus(StatusActive, true)
	s.setStatus(StatusClient, client)
	s.setStatus(StatusInClosing, false)
	s.setStatus(StatusDataReceiveBlocked, false)
	s.validationID++

	return s
}

// Deactivate transitions slot i from active to idle on remote or local
// close, bumping its validation id so stale holders of the old id are
// rejected, and invokes its close callback with forced indicating whether
// the close was initiated locally.
func (t *Table) Deactivate(i int, forced bool) {
	s := t.Slot(i)
	if s == nil {
		return
	}

	s.mu.Lock()
	s.setStatus(StatusActive, false)
	s.setStatus(StatusInClosing, false)
	s.validationID++
	cb := s.Callback
	s.Callback = nil
	s.UserArg = nil
	s.mu.Unlock()

	if cb != nil {
		cb(s, EventClose, CloseInfo{Forced: forced})
	}
}

// MarkClosing sets the in-closing flag, used to reject further sends while a
// close is in flight.
func (t *Table) MarkClosing(i int) {
	s := t.Slot(i)
	if s == nil {
		return
	}

	s.mu.Lock()
	s.setStatus(StatusInClosing, true)
	s.mu.Unlock()
}

// SetDataReceiveBlocked sets or clears the slot's data-receive-blocked
// status bit. Neither the parser nor the engine reads this bit; IPD payloads
// are delivered to the slot's callback regardless of it.
func (t *Table) SetDataReceiveBlocked(i int, blocked bool) {
	s := t.Slot(i)
	if s == nil {
		return
	}

	s.mu.Lock()
	s.setStatus(StatusDataReceiveBlocked, blocked)
	s.mu.Unlock()
}

// Deliver fires a slot's Recv callback with data if the slot is still active
// and its validation id matches capturedID (the id the caller observed when
// it registered interest). A mismatch means the slot was recycled and the
// call is silently dropped — this is the mechanism behind validation-id
// monotonicity (spec testable property 4).
func (t *Table) Deliver(i int, capturedID uint16, data any) bool {
	s := t.Slot(i)
	if s == nil {
		return false
	}

	s.mu.Lock()
	active := s.status&StatusActive != 0
	match := s.validationID == capturedID
	cb := s.Callback
	s.mu.Unlock()

	if !active || !match || cb == nil {
		return false
	}

	cb(s, EventRecv, data)

	return true
}
