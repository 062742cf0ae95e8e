// Package intercept provides the pluggable transform pipeline applied to
// content before it reaches the consumer, e.g. on-the-fly decompression.
package intercept

import (
	"github.com/indigo-web/conduit/content"
)

// Interceptor transforms content on its way to the consumer.
//
// ReadFrom consumes some or all of c and emits zero or one content:
//   - (out, nil): out is ready for delivery. Returning c itself is the
//     pass-through case. Special (terminal) contents are passed through
//     ReadFrom as well, so stateful interceptors can flush buffered
//     output: a terminal may yield data contents over repeated calls
//     until the interceptor finally returns the terminal itself.
//   - (nil, nil): the input was absorbed with nothing to emit yet; the
//     producer will supply more raw content and call again.
//   - (nil, err): the transform failed; the producer fails c and delivers
//     a terminal error content in its place.
//
// Emitting nothing for a non-special content without consuming any of its
// bytes is a contract violation which the producer converts into a
// terminal error.
type Interceptor interface {
	ReadFrom(c *content.Content) (*content.Content, error)
}

// Destroyable is implemented by interceptors holding resources that must be
// released when the owning producer is recycled.
type Destroyable interface {
	Destroy()
}

// Destroy releases i's resources, if it has any to release.
func Destroy(i Interceptor) {
	if d, ok := i.(Destroyable); ok {
		d.Destroy()
	}
}

// Chain links two interceptors: raw content passes through first, and
// whatever it emits is handed over to second. Destroying the chain
// destroys both.
func Chain(first, second Interceptor) Interceptor {
	return &chained{first: first, second: second}
}

type chained struct {
	first, second Interceptor
}

func (c *chained) ReadFrom(in *content.Content) (*content.Content, error) {
	if in.IsSpecial() {
		return c.finish(in)
	}

	out, err := c.first.ReadFrom(in)
	if out == nil || err != nil {
		return nil, err
	}

	return c.second.ReadFrom(out)
}

// finish propagates a terminal through both stages: pieces the first
// stage still buffers are run through the second, and the terminal itself
// reaches the second stage only once the first ran dry.
func (c *chained) finish(in *content.Content) (*content.Content, error) {
	for {
		out, err := c.first.ReadFrom(in)
		if err != nil {
			return nil, err
		}
		if out == nil || out.IsSpecial() {
			if out == nil {
				out = in
			}

			return c.second.ReadFrom(out)
		}

		flushed, err := c.second.ReadFrom(out)
		if flushed != nil || err != nil {
			return flushed, err
		}
		// the second stage absorbed the piece; keep pulling
	}
}

func (c *chained) Destroy() {
	Destroy(c.first)
	Destroy(c.second)
}
