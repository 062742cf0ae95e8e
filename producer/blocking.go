package producer

import (
	"time"

	"github.com/indigo-web/conduit/content"
	"github.com/indigo-web/conduit/status"
)

// Blocking adapts an Async producer to a thread-per-connection consumer:
// NextContent suspends the calling goroutine until content arrives, the
// producer is failed, or the blocking timeout expires. A producer instance
// serves either a blocking or an async consumer, never both at once.
type Blocking struct {
	*Async
	wake    chan struct{}
	timeout time.Duration
}

// NewBlocking wraps a fresh Async producer over ch. A non-positive timeout
// disables the blocking timeout: reads then wait for as long as the
// upstream takes (transport idleness is watched separately).
func NewBlocking(ch Channel, timeout time.Duration) *Blocking {
	return &Blocking{
		Async:   NewAsync(ch),
		wake:    make(chan struct{}, 1),
		timeout: timeout,
	}
}

// NextContent blocks until content is available. The wait is a guarded
// one: every wake-up re-checks the producer state, so spurious wake-ups
// and lost races against concurrent producer threads are harmless. On
// timeout the producer is failed with status.ErrBlockingTimeout and the
// resulting error content is returned.
func (b *Blocking) NextContent() *content.Content {
	var deadline <-chan time.Time
	if b.timeout > 0 {
		t := time.NewTimer(b.timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		if c := b.Async.NextContent(); c != nil {
			return c
		}

		if b.channel.NeedContent() {
			// became available synchronously
			continue
		}

		select {
		case <-b.wake:
		case <-deadline:
			b.Fail(status.ErrBlockingTimeout)
		}
	}
}

// Wake releases a blocked reader in addition to the async notification.
func (b *Blocking) Wake() {
	b.Async.Wake()
	b.signal()
}

// Fail wakes a blocked reader and delivers the error to it atomically.
func (b *Blocking) Fail(err error) {
	b.Async.Fail(err)
	b.signal()
}

func (b *Blocking) Recycle() {
	b.Async.Recycle()

	// drop a stale wake-up left over from the previous request
	select {
	case <-b.wake:
	default:
	}
}

func (b *Blocking) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}
