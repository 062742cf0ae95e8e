package transport

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// State describes where a monitored connection currently stands in its
// idle lifecycle.
type State uint8

const (
	// StateActive: bytes crossed the wire within the last poll period
	StateActive State = iota
	// StateIdleCountdown: no recent activity, the deadline is ticking
	StateIdleCountdown
	// StateTimedOut: the idle deadline was exceeded and the connection
	// was forcibly closed
	StateTimedOut
	// StateClosed: both directions were shut down in an orderly fashion
	StateClosed
)

// Monitor enforces the idle timeout and the half-close policy of a single
// connection. Any read or write activity reported via Touch resets the
// countdown; once the deadline is exceeded with no activity, the
// connection is closed regardless of which directions are still open.
//
// The deadline is polled at a quarter of the timeout (no finer than 10ms),
// so a forced closure happens within (timeout, 1.25*timeout] of the last
// recorded activity.
type Monitor struct {
	conn     io.Closer
	timeout  time.Duration
	last     atomic.Int64
	outShut  atomic.Bool
	inShut   atomic.Bool
	timedOut atomic.Bool
	closed   atomic.Bool
	done     chan struct{}
	stop     sync.Once
}

// Watch starts monitoring conn. A non-positive timeout still tracks
// half-close state but never forces a closure.
func Watch(conn io.Closer, timeout time.Duration) *Monitor {
	m := &Monitor{
		conn:    conn,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	m.last.Store(time.Now().UnixMilli())

	if timeout > 0 {
		go m.watch()
	}

	return m
}

// Touch records transport activity, resetting the idle countdown.
func (m *Monitor) Touch() {
	m.last.Store(time.Now().UnixMilli())
}

// ShutdownOutput records that the write side was shut down. Inbound idle
// monitoring stays alive: if the peer never completes its own half-close,
// the idle deadline eventually reaps the connection.
func (m *Monitor) ShutdownOutput() {
	m.outShut.Store(true)
	m.maybeClose()
}

// ShutdownInput records that the read side reached EOF.
func (m *Monitor) ShutdownInput() {
	m.inShut.Store(true)
	m.maybeClose()
}

func (m *Monitor) State() State {
	switch {
	case m.timedOut.Load():
		return StateTimedOut
	case m.closed.Load():
		return StateClosed
	case m.timeout > 0 && m.sinceActivity() > m.pollPeriod():
		return StateIdleCountdown
	default:
		return StateActive
	}
}

func (m *Monitor) TimedOut() bool {
	return m.timedOut.Load()
}

// Stop ends monitoring without closing the connection.
func (m *Monitor) Stop() {
	m.stop.Do(func() {
		close(m.done)
	})
}

func (m *Monitor) watch() {
	t := time.NewTicker(m.pollPeriod())
	defer t.Stop()

	for {
		select {
		case <-t.C:
			if m.sinceActivity() > m.timeout {
				m.timedOut.Store(true)
				m.closed.Store(true)
				_ = m.conn.Close()
				m.Stop()

				return
			}
		case <-m.done:
			return
		}
	}
}

func (m *Monitor) maybeClose() {
	if m.outShut.Load() && m.inShut.Load() && !m.closed.Swap(true) {
		_ = m.conn.Close()
		m.Stop()
	}
}

func (m *Monitor) sinceActivity() time.Duration {
	return time.Since(time.UnixMilli(m.last.Load()))
}

func (m *Monitor) pollPeriod() time.Duration {
	period := m.timeout / 4
	if period < 10*time.Millisecond {
		period = 10 * time.Millisecond
	}

	return period
}
