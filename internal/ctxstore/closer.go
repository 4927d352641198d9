package ctxstore

import (
	"context"
	"io"
	"sync"
)

// Closer manages a set of io.Closer instances and closes all of them when
// Close is called or when the context it was built from is cancelled.
// Grounded on the teacher's ioutils/mapCloser package, trimmed to the
// Add/Get/Len/Clean/Clone/Close surface actually used by this repository.
type Closer struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	items  []io.Closer
	closed bool
}

// NewCloser creates a Closer bound to ctx. If ctx is cancelled, a background
// goroutine calls Close automatically.
func NewCloser(ctx context.Context) *Closer {
	if ctx == nil {
		ctx = context.Background()
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Closer{ctx: cctx, cancel: cancel}

	go func() {
		<-cctx.Done()
		_ = c.Close()
	}()

	return c
}

func (c *Closer) Add(clo ...io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	for _, cl := range clo {
		if cl != nil {
			c.items = append(c.items, cl)
		}
	}
}

func (c *Closer) Get() []io.Closer {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]io.Closer, 0, len(c.items))
	out = append(out, c.items...)

	return out
}

func (c *Closer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

func (c *Closer) Clean() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
}

func (c *Closer) Clone() *Closer {
	n := NewCloser(c.ctx)
	n.Add(c.Get()...)

	return n
}

func (c *Closer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	items := c.items
	c.items = nil
	c.mu.Unlock()

	c.cancel()

	var first error
	for _, cl := range items {
		if cl == nil {
			continue
		}
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
