package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-postura/frame"
)

// countedFrame returns an empty frame recording its releases
func countedFrame(released *atomic.Int32) *frame.Frame {
	return frame.New(2, 2, [3]frame.Plane{}, 0, func() { released.Add(1) })
}

func TestMailboxKeepsLatest(t *testing.T) {

	mb := NewMailbox()
	defer mb.Close()

	var r1, r2, r3 atomic.Int32

	f1, f2, f3 := countedFrame(&r1), countedFrame(&r2), countedFrame(&r3)

	assert.True(t, mb.Put(f1))
	assert.True(t, mb.Put(f2))
	assert.True(t, mb.Put(f3))

	// replaced frames are released, the newest is still pending
	assert.Equal(t, int32(1), r1.Load())
	assert.Equal(t, int32(1), r2.Load())
	assert.Equal(t, int32(0), r3.Load())

	got, err := mb.Take(context.Background())
	require.NoError(t, err)
	assert.Same(t, f3, got)

	got.Release()
	assert.Equal(t, int32(1), r3.Load())

	assert.Equal(t, uint64(3), mb.Accepted())
	assert.Equal(t, uint64(2), mb.Dropped())
}

func TestMailboxTakeCancel(t *testing.T) {

	mb := NewMailbox()
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mb.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailboxClose(t *testing.T) {

	mb := NewMailbox()

	var pending, late atomic.Int32

	mb.Put(countedFrame(&pending))
	mb.Close()
	mb.Close()

	assert.Equal(t, int32(1), pending.Load())

	assert.False(t, mb.Put(countedFrame(&late)))
	assert.Equal(t, int32(1), late.Load())

	_, err := mb.Take(context.Background())
	assert.ErrorIs(t, err, ErrMailboxClosed)
}

func TestMailboxEveryFrameReleasedOnce(t *testing.T) {

	mb := NewMailbox()

	const producers, perProducer = 4, 200

	counts := make([]atomic.Int32, producers*perProducer)

	var taken atomic.Int32
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			f, err := mb.Take(context.Background())
			if err != nil {
				return
			}
			taken.Add(1)
			f.Release()
		}
	}()

	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				mb.Put(countedFrame(&counts[p*perProducer+i]))
			}
		}(p)
	}

	wg.Wait()
	mb.Close()
	<-done

	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), "frame %d", i)
	}

	assert.Equal(t, uint64(producers*perProducer), mb.Accepted())
	// at most one pending frame is released by Close instead of the worker
	handled := uint64(taken.Load()) + mb.Dropped()
	assert.LessOrEqual(t, mb.Accepted()-handled, uint64(1))
}
