package pipeline

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
)

// Mailbox is the capacity-1 handoff cell between request handlers and the
// inference worker. A new submission overwrites any pending image the worker
// has not yet claimed; nothing is ever queued. Freshness over completeness.
//
// Thread-safety: Submit is safe for any number of concurrent callers. Take
// is intended for a single worker.
type Mailbox struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending image.Image

	submits uint64 // atomic
	drops   uint64 // atomic, pending images overwritten before a claim
}

func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Submit stores img as the pending image, replacing any previous unclaimed
// one, and wakes the worker. Never blocks, never errors. An image already
// claimed by the worker is unaffected.
func (m *Mailbox) Submit(img image.Image) {
	m.mu.Lock()
	if m.pending != nil {
		atomic.AddUint64(&m.drops, 1)
	}
	m.pending = img
	atomic.AddUint64(&m.submits, 1)
	m.cond.Signal()
	m.mu.Unlock()
}

// Take removes and returns the pending image, blocking until one is
// available. Returns nil once ctx is cancelled; callers must wake the
// mailbox after cancelling (see wake) since sync.Cond does not observe
// contexts.
func (m *Mailbox) Take(ctx context.Context) image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.pending == nil {
		if ctx.Err() != nil {
			return nil
		}
		m.cond.Wait()
		if ctx.Err() != nil {
			return nil
		}
	}

	img := m.pending
	m.pending = nil
	return img
}

// wake unblocks a worker parked in Take so it can re-check its context.
func (m *Mailbox) wake() {
	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Pending reports whether an unclaimed image is waiting.
func (m *Mailbox) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Submits returns the lifetime submission count.
func (m *Mailbox) Submits() uint64 { return atomic.LoadUint64(&m.submits) }

// Drops returns how many pending images were overwritten before the worker
// claimed them.
func (m *Mailbox) Drops() uint64 { return atomic.LoadUint64(&m.drops) }
