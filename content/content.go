// Package content defines the unit of body data exchanged between the
// upstream channel, the producer and the consumer: either a chunk of bytes
// or a special terminal marker (EOF, early EOF or an error).
package content

// Callback observes the terminal outcome of a single Content. The producer
// guarantees that exactly one of the two methods fires over a Content's
// lifetime: Succeeded once it was fully drained, Failed if it was discarded.
// Whoever recycles the underlying buffer hooks in here.
type Callback interface {
	Succeeded()
	Failed(err error)
}

type Content struct {
	data    []byte
	cb      Callback
	err     error
	special bool
	eof     bool
	early   bool
}

// Raw wraps a chunk of bytes. The Content takes ownership of the slice
// until it is settled via Succeeded or Failed.
func Raw(data []byte) *Content {
	return &Content{data: data}
}

// RawWith wraps a chunk of bytes and attaches a settlement callback.
func RawWith(data []byte, cb Callback) *Content {
	return &Content{data: data, cb: cb}
}

// EOF returns a terminal marker for a cleanly finished stream.
func EOF() *Content {
	return &Content{special: true, eof: true}
}

// EarlyEOF returns a terminal marker for a stream that ended before
// delivering everything it promised. Bytes buffered before it remain
// readable; the marker itself surfaces as an error on read.
func EarlyEOF() *Content {
	return &Content{special: true, eof: true, early: true}
}

// Error returns a terminal marker carrying err.
func Error(err error) *Content {
	return &Content{special: true, err: err}
}

// Data returns the remaining, not yet consumed bytes.
func (c *Content) Data() []byte {
	return c.data
}

func (c *Content) Remaining() int {
	return len(c.data)
}

// Skip consumes up to n bytes and reports how many were actually skipped.
func (c *Content) Skip(n int) int {
	if n > len(c.data) {
		n = len(c.data)
	}

	c.data = c.data[n:]

	return n
}

// CopyTo copies remaining bytes into dst, consuming what was copied.
func (c *Content) CopyTo(dst []byte) int {
	n := copy(dst, c.data)
	c.data = c.data[n:]

	return n
}

func (c *Content) IsSpecial() bool {
	return c.special
}

// IsEOF reports whether the content marks the end of the stream. It holds
// for both clean and early EOF.
func (c *Content) IsEOF() bool {
	return c.eof
}

func (c *Content) IsEarlyEOF() bool {
	return c.early
}

// Err returns the carried error, if the content is an error marker.
func (c *Content) Err() error {
	return c.err
}

// Succeeded settles the content as fully consumed.
func (c *Content) Succeeded() {
	if c.cb != nil {
		c.cb.Succeeded()
	}
}

// Failed settles the content as abnormally discarded.
func (c *Content) Failed(err error) {
	if c.cb != nil {
		c.cb.Failed(err)
	}
}
