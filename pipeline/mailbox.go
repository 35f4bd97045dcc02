package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/swdee/go-postura/frame"
)

// ErrMailboxClosed is returned by Take once the Mailbox is closed and empty
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is a single slot hand-off of camera frames to the worker.  A frame
// put while another is still pending replaces it and the replaced frame is
// released, so the worker always starts on the most recent frame.
type Mailbox struct {
	// slot holds at most one pending frame
	slot chan *frame.Frame
	// mu serializes producers and Close
	mu       sync.Mutex
	closed   bool
	close    sync.Once
	accepted atomic.Uint64
	dropped  atomic.Uint64
}

// NewMailbox creates an empty Mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{
		slot: make(chan *frame.Frame, 1),
	}
}

// Put offers a frame to the worker.  Any frame still pending is released and
// counted as dropped.  After Close the offered frame is released immediately
// and false is returned.
func (m *Mailbox) Put(f *frame.Frame) bool {

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		f.Release()
		return false
	}

	select {
	case old := <-m.slot:
		old.Release()
		m.dropped.Add(1)
	default:
		// slot empty
	}

	m.slot <- f
	m.accepted.Add(1)

	return true
}

// Take blocks until a frame is pending, the context is cancelled or the
// Mailbox is closed.  The caller owns the returned frame and must release it.
func (m *Mailbox) Take(ctx context.Context) (*frame.Frame, error) {

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case f, ok := <-m.slot:
		if !ok {
			return nil, ErrMailboxClosed
		}
		return f, nil
	}
}

// Close stops accepting frames and releases any pending frame
func (m *Mailbox) Close() {
	m.close.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.closed = true
		close(m.slot)

		for f := range m.slot {
			f.Release()
		}
	})
}

// Accepted returns the number of frames handed to the Mailbox
func (m *Mailbox) Accepted() uint64 {
	return m.accepted.Load()
}

// Dropped returns the number of pending frames replaced by a newer frame
// before the worker took them
func (m *Mailbox) Dropped() uint64 {
	return m.dropped.Load()
}
