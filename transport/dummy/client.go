// Package dummy provides in-memory transport doubles for tests and
// benchmarks.
package dummy

import (
	"io"
	"net"

	"github.com/indigo-web/conduit/transport"
)

var _ transport.Client = new(MockClient)

// MockClient replays the slices it was initialised with, one per read,
// then reports io.EOF. With LoopReads it never runs out and serves the
// slices in a circle instead.
type MockClient struct {
	data    [][]byte
	pending []byte
	pointer int
	closed  bool
	outShut bool
	looped  bool
	sunk    []byte
	failed  error
}

func NewMockClient(data ...[]byte) *MockClient {
	return &MockClient{data: data}
}

// LoopReads makes the client serve its slices in a circle, never
// reporting EOF.
func (m *MockClient) LoopReads() *MockClient {
	m.looped = true
	return m
}

// FailReads makes every subsequent read return err instead of data.
func (m *MockClient) FailReads(err error) *MockClient {
	m.failed = err
	return m
}

func (m *MockClient) Read() ([]byte, error) {
	if m.closed {
		return nil, io.EOF
	}

	if m.failed != nil {
		return nil, m.failed
	}

	if len(m.pending) > 0 {
		pending := m.pending
		m.pending = nil

		return pending, nil
	}

	if m.pointer >= len(m.data) {
		if !m.looped {
			return nil, io.EOF
		}

		m.pointer = 0
	}

	piece := m.data[m.pointer]
	m.pointer++

	return piece, nil
}

func (m *MockClient) Pushback(b []byte) {
	m.pending = b
}

// Interrupt is a no-op: mock reads never block.
func (m *MockClient) Interrupt() {}

// Write collects everything written for later inspection.
func (m *MockClient) Write(b []byte) (int, error) {
	m.sunk = append(m.sunk, b...)
	return len(b), nil
}

// Written returns everything written so far.
func (m *MockClient) Written() []byte {
	return m.sunk
}

func (m *MockClient) ShutdownOutput() error {
	m.outShut = true
	return nil
}

func (m *MockClient) OutputShut() bool {
	return m.outShut
}

func (m *MockClient) Conn() net.Conn {
	return nil
}

func (m *MockClient) Remote() net.Addr {
	return nil
}

func (m *MockClient) Close() error {
	m.closed = true
	return nil
}

func (m *MockClient) Closed() bool {
	return m.closed
}

func NewNopClient() transport.Client {
	return NewMockClient()
}
