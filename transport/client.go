package transport

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/indigo-web/conduit/internal/timer"
	"github.com/indigo-web/conduit/status"
)

type Client interface {
	Read() ([]byte, error)
	Pushback([]byte)
	Write([]byte) (int, error)
	// Interrupt forces a Read blocked on the connection to return early.
	// Safe to call from any goroutine; subsequent reads proceed normally.
	Interrupt()
	// ShutdownOutput half-closes the connection: the write side is shut
	// down while reads stay possible.
	ShutdownOutput() error
	Conn() net.Conn
	Remote() net.Addr
	Close() error
}

type closeWriter interface {
	CloseWrite() error
}

type client struct {
	conn    net.Conn
	monitor *Monitor
	buff    []byte
	pending []byte
	timeout time.Duration
}

func NewClient(conn net.Conn, timeout time.Duration, buff []byte) Client {
	return &client{
		conn:    conn,
		buff:    buff,
		timeout: timeout,
	}
}

// NewWatchedClient additionally reports every completed read and write to
// the monitor, resetting its idle countdown.
func NewWatchedClient(conn net.Conn, timeout time.Duration, buff []byte, m *Monitor) Client {
	return &client{
		conn:    conn,
		monitor: m,
		buff:    buff,
		timeout: timeout,
	}
}

// Read reads data into the internal buffer and returns a piece of it back.
// The read is bounded by the idle timeout; expiry surfaces as
// status.ErrTimeout, so consumers handle idleness exactly like any other
// I/O failure.
func (c *client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	// always set, so a stale Interrupt deadline doesn't poison this read
	deadline := time.Time{}
	if c.timeout > 0 {
		deadline = timer.Now().Add(c.timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	n, err := c.conn.Read(c.buff)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		err = status.ErrTimeout
	}
	if n > 0 {
		c.touch()
	}

	return c.buff[:n], err
}

// Pushback preserves a chunk of data from the previous read for the next
// one.
func (c *client) Pushback(b []byte) {
	c.pending = b
}

// aLongTimeAgo expires a deadline immediately.
var aLongTimeAgo = time.Unix(1, 0)

func (c *client) Interrupt() {
	_ = c.conn.SetReadDeadline(aLongTimeAgo)
}

func (c *client) Write(b []byte) (int, error) {
	n, err := c.conn.Write(b)
	if n > 0 {
		c.touch()
	}

	return n, err
}

func (c *client) ShutdownOutput() error {
	if c.monitor != nil {
		c.monitor.ShutdownOutput()
	}

	if cw, ok := c.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}

	return nil
}

func (c *client) Conn() net.Conn {
	return c.conn
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *client) touch() {
	if c.monitor != nil {
		c.monitor.Touch()
	}
}
