package producer

// ReadListener is the asynchronous consumer surface. Callbacks fire at
// most once per logical event, in the order: zero or more OnDataAvailable,
// then exactly one of OnAllDataRead or OnError.
type ReadListener interface {
	OnDataAvailable()
	OnAllDataRead()
	OnError(err error)
}

// Signals observes internal readiness transitions. Mainly for tests and
// metrics; production code usually leaves it unset.
type Signals interface {
	// OnReadUnready fires when reader interest is registered against an
	// empty producer. At most once per empty state.
	OnReadUnready()
	// OnContentAdded fires when content becomes available for a registered
	// reader. At most once per registration.
	OnContentAdded()
}

type readState uint8

const (
	// stateIdle: nobody is waiting for content
	stateIdle readState = iota
	// stateUnready: reader interest registered, no content yet
	stateUnready
	// stateAvailable: content is ready to be pulled
	stateAvailable
	// stateFinished: a terminal was delivered, no further signals fire
	stateFinished
)

// notifier decides which signal fires on each state transition,
// guaranteeing at-most-once delivery per logical event. All methods are
// called under the producer lock and return the callback to invoke once
// the lock is released; invoking callbacks unlocked keeps listeners free
// to call back into the producer without deadlocking.
type notifier struct {
	state    readState
	listener ReadListener
	signals  Signals
}

// onReadUnready registers reader interest. Fires only on the transition
// out of idle, so repeated polling of an empty producer stays silent.
func (n *notifier) onReadUnready() func() {
	if n.state != stateIdle {
		return nil
	}

	n.state = stateUnready

	if s := n.signals; s != nil {
		return s.OnReadUnready
	}

	return nil
}

// onContentAdded records arrival of content. The signal fires only if a
// reader was actually waiting; arrival in any other state is buffered
// silently.
func (n *notifier) onContentAdded() func() {
	switch n.state {
	case stateUnready:
		n.state = stateAvailable
		s, l := n.signals, n.listener

		return func() {
			if s != nil {
				s.OnContentAdded()
			}
			if l != nil {
				l.OnDataAvailable()
			}
		}
	case stateIdle:
		n.state = stateAvailable
	}

	return nil
}

// onContentPulled is the silent counterpart of onContentAdded, used when
// the consumer discovers content by pulling instead of being notified.
func (n *notifier) onContentPulled() {
	if n.state == stateIdle || n.state == stateUnready {
		n.state = stateAvailable
	}
}

// onDrained records that the consumer exhausted everything available.
func (n *notifier) onDrained() {
	if n.state == stateAvailable {
		n.state = stateIdle
	}
}

func (n *notifier) onAllDataRead() func() {
	if n.state == stateFinished {
		return nil
	}

	n.state = stateFinished

	if l := n.listener; l != nil {
		return l.OnAllDataRead
	}

	return nil
}

func (n *notifier) onError(err error) func() {
	if n.state == stateFinished {
		return nil
	}

	n.state = stateFinished

	if l := n.listener; l != nil {
		return func() { l.OnError(err) }
	}

	return nil
}

func (n *notifier) reset() {
	n.state = stateIdle
	n.listener = nil
}
