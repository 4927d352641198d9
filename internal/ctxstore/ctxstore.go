/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package ctxstore provides a small typed key/value store layered on top of a
// context.Context, so a struct can both behave as a context.Context (Deadline,
// Done, Err, Value) and carry a private, strongly typed set of fields. It
// replaces the teacher's context.Config[T] for the handful of callers
// (logger, logger/fields) that only ever used Load/Store/GetContext/Clone
// from that much larger package.
package ctxstore

import (
	"context"
	"sync"
)

// Store is a thread-safe typed map keyed by K, carried alongside a parent
// context.Context. It satisfies context.Context itself so a Store can be
// used as the parent of another Store (see New).
type Store[K comparable] struct {
	context.Context

	mu sync.RWMutex
	m  map[K]any
}

// New creates a Store rooted at parent. A nil parent is replaced with
// context.Background(). Because *Store[K] implements context.Context, it may
// itself be passed as parent to derive a nested store that shares the same
// cancellation chain but has independent keyed storage.
func New[K comparable](parent context.Context) *Store[K] {
	if parent == nil {
		parent = context.Background()
	}

	return &Store[K]{
		Context: parent,
		m:       make(map[K]any),
	}
}

// GetContext returns the underlying context.Context.
func (s *Store[K]) GetContext() context.Context {
	if s == nil || s.Context == nil {
		return context.Background()
	}

	return s.Context
}

// Load returns the value stored under key, if any.
func (s *Store[K]) Load(key K) (any, bool) {
	if s == nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.m[key]

	return v, ok
}

// Store sets the value for key.
func (s *Store[K]) Store(key K, val any) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[key] = val
}

// Delete removes key from the store.
func (s *Store[K]) Delete(key K) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, key)
}

// Clone returns a new Store sharing the same parent context but with an
// independent copy of the current key/value pairs.
func (s *Store[K]) Clone() *Store[K] {
	n := New[K](s.GetContext())

	if s == nil {
		return n
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, v := range s.m {
		n.m[k] = v
	}

	return n
}

// FuncWalk is the callback signature used by Walk and WalkLimit.
type FuncWalk[K comparable] func(key K, val any) bool

// Walk calls fn for every key/value pair until fn returns false.
func (s *Store[K]) Walk(fn FuncWalk[K]) {
	if s == nil || fn == nil {
		return
	}

	s.mu.RLock()
	cp := make(map[K]any, len(s.m))
	for k, v := range s.m {
		cp[k] = v
	}
	s.mu.RUnlock()

	for k, v := range cp {
		if !fn(k, v) {
			return
		}
	}
}

// WalkLimit calls fn only for the keys listed in validKeys, skipping any that are absent.
func (s *Store[K]) WalkLimit(fn FuncWalk[K], validKeys ...K) {
	if s == nil || fn == nil {
		return
	}

	for _, k := range validKeys {
		if v, ok := s.Load(k); ok {
			if !fn(k, v) {
				return
			}
		}
	}
}

// Clean removes every key/value pair from the store.
func (s *Store[K]) Clean() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.m = make(map[K]any)
}

// LoadOrStore returns the existing value for key if present; otherwise it stores
// and returns val, with loaded reporting which case occurred.
func (s *Store[K]) LoadOrStore(key K, val any) (actual any, loaded bool) {
	if s == nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.m[key]; ok {
		return v, true
	}

	s.m[key] = val

	return val, false
}

// LoadAndDelete removes key and returns its prior value, if any.
func (s *Store[K]) LoadAndDelete(key K) (val any, loaded bool) {
	if s == nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}

	return v, ok
}
