// Package producer implements the asynchronous content engine: it pulls
// raw content from an upstream channel, runs it through an optional
// interceptor and hands it to a single consumer exactly once, via either
// a non-blocking (Async) or a blocking (Blocking) surface.
package producer

import (
	"fmt"
	"sync"

	"github.com/indigo-web/conduit/content"
	"github.com/indigo-web/conduit/intercept"
	"github.com/indigo-web/conduit/status"
)

// Channel is the upstream source of raw content, typically backed by a
// connection. NeedContent and ProduceContent are called from the single
// consuming thread; FailAllContent and Failed may race them from any
// goroutine, so implementations must synchronize internally and
// interrupt a production in flight.
type Channel interface {
	// NeedContent reports whether content is already available
	// synchronously; otherwise it arranges asynchronous production and
	// returns false.
	NeedContent() bool
	// ProduceContent returns the most recently made-available content,
	// or nil if none is ready.
	ProduceContent() *content.Content
	// FailAllContent propagates a fatal error to all pending content.
	FailAllContent(err error) bool
	// Failed records a fatal channel error.
	Failed(err error) bool
}

// Async produces content without ever blocking. At most one raw content is
// buffered at a time; a consumer either polls NextContent/IsReady or
// registers a ReadListener and is called back on arrival.
type Async struct {
	mu              sync.Mutex
	channel         Channel
	interceptor     intercept.Interceptor
	raw             *content.Content
	transformed     *content.Content
	transformedSize int
	consumed        int
	errored         bool
	finished        bool
	note            notifier
}

func NewAsync(ch Channel) *Async {
	return &Async{channel: ch}
}

// NextContent returns the next available content, raw or intercepted, or
// nil if none is ready yet. It never blocks. Terminal contents are
// idempotent: once EOF or an error was delivered, every further call
// returns an equivalent terminal.
func (a *Async) NextContent() *content.Content {
	a.mu.Lock()
	c := a.next()

	var fire func()
	if c != nil {
		a.note.onContentPulled()
		if c.IsSpecial() {
			a.finished = true
			switch {
			case c.Err() != nil:
				fire = a.note.onError(c.Err())
			case c.IsEarlyEOF():
				fire = a.note.onError(status.ErrEarlyEOF)
			default:
				fire = a.note.onAllDataRead()
			}
		}
	}
	a.mu.Unlock()

	if fire != nil {
		fire()
	}

	return c
}

// IsReady reports whether content is available without blocking. On an
// empty producer it registers interest exactly once: repeated polling
// neither re-produces from upstream nor duplicates signals.
func (a *Async) IsReady() bool {
	a.mu.Lock()

	if a.note.state == stateUnready {
		// interest already registered for this empty state
		a.mu.Unlock()
		return false
	}

	if c := a.next(); c != nil {
		fire := a.note.onContentAdded()
		a.mu.Unlock()
		if fire != nil {
			fire()
		}

		return true
	}

	for a.channel.NeedContent() {
		if c := a.next(); c != nil {
			fire := a.note.onContentAdded()
			a.mu.Unlock()
			if fire != nil {
				fire()
			}

			return true
		}
	}

	fire := a.note.onReadUnready()
	a.mu.Unlock()
	if fire != nil {
		fire()
	}

	return false
}

// SetReadListener installs the asynchronous consumer and registers its
// interest in content. If content is already available, the listener is
// notified right away.
func (a *Async) SetReadListener(l ReadListener) {
	a.mu.Lock()
	a.note.listener = l

	var fires []func()
	if fire := a.note.onReadUnready(); fire != nil {
		fires = append(fires, fire)
	}

	if c := a.next(); c != nil {
		if fire := a.note.onContentAdded(); fire != nil {
			fires = append(fires, fire)
		}
	} else {
		for a.channel.NeedContent() {
			if c := a.next(); c != nil {
				if fire := a.note.onContentAdded(); fire != nil {
					fires = append(fires, fire)
				}

				break
			}
		}
	}
	a.mu.Unlock()

	for _, fire := range fires {
		fire()
	}
}

// Observe installs an internal-transition observer.
func (a *Async) Observe(s Signals) {
	a.mu.Lock()
	a.note.signals = s
	a.mu.Unlock()
}

// Wake notifies the producer that the channel made content producible.
// Called by the channel from whatever thread completed the production.
func (a *Async) Wake() {
	a.mu.Lock()
	fire := a.note.onContentAdded()
	a.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// Fail injects a synthetic error content, failing whatever is currently
// buffered. It behaves exactly like an upstream-origin error for
// notification purposes.
func (a *Async) Fail(err error) {
	a.mu.Lock()
	a.failLocked(err)
	fire := a.note.onContentAdded()
	a.mu.Unlock()

	if fire != nil {
		fire()
	}
}

func (a *Async) failLocked(err error) {
	if t := a.transformed; t != nil && !t.IsSpecial() {
		t.Failed(err)
	}
	if r := a.raw; r != nil && r != a.transformed && !r.IsSpecial() {
		r.Failed(err)
	}

	a.raw = nil
	a.setTransformed(content.Error(err))
	a.channel.FailAllContent(err)
}

// SetInterceptor installs i as the head of the interception pipeline,
// replacing whatever was there.
func (a *Async) SetInterceptor(i intercept.Interceptor) {
	a.mu.Lock()
	a.interceptor = i
	a.mu.Unlock()
}

// AddInterceptor appends i to the interception pipeline.
func (a *Async) AddInterceptor(i intercept.Interceptor) {
	a.mu.Lock()
	if a.interceptor == nil {
		a.interceptor = i
	} else {
		a.interceptor = intercept.Chain(a.interceptor, i)
	}
	a.mu.Unlock()
}

func (a *Async) Interceptor() intercept.Interceptor {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.interceptor
}

// IsError reports whether a terminal error content was latched.
func (a *Async) IsError() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.errored
}

// IsFinished reports whether a terminal content was delivered to the
// consumer. Permanently true once set, until the producer is recycled.
func (a *Async) IsFinished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.finished
}

// Consumed returns the total number of content bytes fully drained by the
// consumer.
func (a *Async) Consumed() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.consumed
}

// Recycle resets the producer to its pristine state for reuse on the next
// request of the same connection. Unconsumed contents are failed and the
// installed interceptor is destroyed, exactly once.
func (a *Async) Recycle() {
	a.mu.Lock()
	if t := a.transformed; t != nil && !t.IsSpecial() {
		t.Failed(status.ErrRecycled)
	}
	if r := a.raw; r != nil && r != a.transformed && !r.IsSpecial() {
		r.Failed(status.ErrRecycled)
	}

	a.raw, a.transformed = nil, nil
	a.transformedSize = 0
	a.consumed = 0
	a.errored, a.finished = false, false
	a.note.reset()

	icept := a.interceptor
	a.interceptor = nil
	a.mu.Unlock()

	if icept != nil {
		intercept.Destroy(icept)
	}
}

// next advances the production loop until intercepted content is available
// or the upstream has nothing to offer. Called under the lock.
func (a *Async) next() *content.Content {
	for {
		if t := a.transformed; t != nil {
			if t.IsSpecial() || t.Remaining() > 0 {
				return t
			}

			a.release()
			continue
		}

		if a.raw == nil {
			if a.raw = a.channel.ProduceContent(); a.raw == nil {
				a.note.onDrained()
				return nil
			}
		}

		a.transform()
	}
}

// release settles a fully drained transformed content.
func (a *Async) release() {
	a.consumed += a.transformedSize
	if a.transformed == a.raw {
		a.raw = nil
	}

	a.transformed.Succeeded()
	a.transformed = nil
	a.transformedSize = 0
}

// transform runs the buffered raw content through the interceptor,
// enforcing the interception contract. Called under the lock with
// a.raw non-nil and a.transformed nil.
func (a *Async) transform() {
	raw := a.raw

	if a.interceptor == nil {
		a.setTransformed(raw)
		return
	}

	before := raw.Remaining()
	out, err := a.interceptor.ReadFrom(raw)

	switch {
	case err != nil:
		if !raw.IsSpecial() {
			raw.Failed(err)
		}
		a.raw = nil
		a.setTransformed(content.Error(fmt.Errorf("content interception failed: %w", err)))
	case out == raw:
		a.setTransformed(out)
	case out != nil && out.IsSpecial() && !raw.IsSpecial():
		// the interceptor swallowed the raw content and generated a
		// terminal in its place
		raw.Succeeded()
		a.raw = nil
		a.setTransformed(out)
	case !raw.IsSpecial() && before > 0 && raw.Remaining() == before:
		verr := fmt.Errorf("%T did not consume any of the %d remaining byte(s) of content", a.interceptor, before)
		raw.Failed(verr)
		a.raw = nil
		if out != nil {
			out.Failed(verr)
		}
		a.setTransformed(content.Error(verr))
	case out == nil:
		if raw.IsSpecial() {
			// the interceptor has nothing buffered; let the terminal
			// through untouched
			a.setTransformed(raw)
			return
		}
		if raw.Remaining() == 0 {
			// exhausted, and the interceptor wants more
			raw.Succeeded()
			a.raw = nil
		}
	default:
		a.setTransformed(out)
	}
}

func (a *Async) setTransformed(c *content.Content) {
	a.transformed = c
	if c.Err() != nil {
		a.errored = true
	}
	if !c.IsSpecial() {
		a.transformedSize = c.Remaining()
	}
}
