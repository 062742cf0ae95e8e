package producer

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/indigo-web/conduit/content"
	"github.com/indigo-web/conduit/status"
	"github.com/stretchr/testify/require"
)

// mockChannel replays a fixed list of contents. Everything up to sync is
// available synchronously; the rest must be demanded via NeedContent and
// is published through the producer's Wake by the test itself.
type mockChannel struct {
	mu        sync.Mutex
	contents  []*content.Content
	produced  int
	available int
	demanded  int
	failure   error
}

func newMockChannel(available int, contents ...*content.Content) *mockChannel {
	return &mockChannel{contents: contents, available: available}
}

func (m *mockChannel) NeedContent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.produced < m.available || m.failure != nil {
		return true
	}

	m.demanded++

	return false
}

func (m *mockChannel) ProduceContent() *content.Content {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failure != nil {
		return content.Error(m.failure)
	}
	if m.produced >= m.available || m.produced >= len(m.contents) {
		return nil
	}

	c := m.contents[m.produced]
	m.produced++

	return c
}

func (m *mockChannel) FailAllContent(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.available = m.produced
	m.failure = err

	return false
}

func (m *mockChannel) Failed(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failure = err

	return false
}

// publish makes n more contents available.
func (m *mockChannel) publish(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.available += n
}

func (m *mockChannel) demands() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.demanded
}

// settled counts Succeeded/Failed invocations on a single content.
type settled struct {
	succeeded int
	failed    int
	lastErr   error
}

func (s *settled) Succeeded() {
	s.succeeded++
}

func (s *settled) Failed(err error) {
	s.failed++
	s.lastErr = err
}

// recorder collects ReadListener and Signals events in arrival order.
type recorder struct {
	events []string
}

func (r *recorder) OnDataAvailable() { r.events = append(r.events, "data") }
func (r *recorder) OnAllDataRead()   { r.events = append(r.events, "eof") }
func (r *recorder) OnError(err error) {
	r.events = append(r.events, "error:"+err.Error())
}
func (r *recorder) OnReadUnready()  { r.events = append(r.events, "unready") }
func (r *recorder) OnContentAdded() { r.events = append(r.events, "added") }

func drain(t *testing.T, p *Async) (data []byte, last *content.Content) {
	for {
		c := p.NextContent()
		require.NotNil(t, c)

		data = append(data, c.Data()...)
		c.Skip(c.Remaining())

		if c.IsSpecial() {
			return data, c
		}
	}
}

func TestAsync(t *testing.T) {
	t.Run("passthrough in order", func(t *testing.T) {
		ch := newMockChannel(3,
			content.Raw([]byte("AB")),
			content.Raw([]byte("CD")),
			content.EOF(),
		)
		p := NewAsync(ch)

		data, last := drain(t, p)
		require.Equal(t, "ABCD", string(data))
		require.True(t, last.IsEOF())
		require.True(t, p.IsFinished())
		require.False(t, p.IsError())
		require.Equal(t, 4, p.Consumed())
	})

	t.Run("nothing available", func(t *testing.T) {
		ch := newMockChannel(0)
		p := NewAsync(ch)

		require.Nil(t, p.NextContent())
		require.False(t, p.IsFinished())
	})

	t.Run("partially drained content is resumed", func(t *testing.T) {
		ch := newMockChannel(2, content.Raw([]byte("ABCD")), content.EOF())
		p := NewAsync(ch)

		c := p.NextContent()
		require.NotNil(t, c)
		c.Skip(2)

		c2 := p.NextContent()
		require.Same(t, c, c2)
		require.Equal(t, "CD", string(c2.Data()))
		c2.Skip(2)

		require.True(t, p.NextContent().IsEOF())
		require.Equal(t, 4, p.Consumed())
	})

	t.Run("succeeded once fully drained", func(t *testing.T) {
		cb := new(settled)
		ch := newMockChannel(2, content.RawWith([]byte("AB"), cb), content.EOF())
		p := NewAsync(ch)

		c := p.NextContent()
		c.Skip(2)
		require.Zero(t, cb.succeeded)

		require.True(t, p.NextContent().IsEOF())
		require.Equal(t, 1, cb.succeeded)
		require.Zero(t, cb.failed)
	})

	t.Run("error content finishes the producer", func(t *testing.T) {
		boom := errors.New("connection reset")
		ch := newMockChannel(2, content.Raw([]byte("AB")), content.Error(boom))
		p := NewAsync(ch)

		data, last := drain(t, p)
		require.Equal(t, "AB", string(data))
		require.Equal(t, boom, last.Err())
		require.True(t, p.IsError())
		require.True(t, p.IsFinished())
	})

	t.Run("terminal is idempotent", func(t *testing.T) {
		ch := newMockChannel(1, content.EOF())
		p := NewAsync(ch)

		first := p.NextContent()
		require.True(t, first.IsEOF())

		for i := 0; i < 3; i++ {
			c := p.NextContent()
			require.NotNil(t, c)
			require.True(t, c.IsEOF())
		}
	})

	t.Run("early eof reported as error", func(t *testing.T) {
		r := new(recorder)
		ch := newMockChannel(2, content.Raw([]byte("AB")), content.EarlyEOF())
		p := NewAsync(ch)
		p.SetReadListener(r)

		_, last := drain(t, p)
		require.True(t, last.IsEarlyEOF())
		require.Equal(t, []string{"data", "error:" + status.ErrEarlyEOF.Error()}, r.events)
	})
}

func TestAsyncIsReady(t *testing.T) {
	t.Run("available immediately", func(t *testing.T) {
		ch := newMockChannel(1, content.Raw([]byte("AB")))
		p := NewAsync(ch)

		require.True(t, p.IsReady())
		require.NotNil(t, p.NextContent())
	})

	t.Run("unready registers interest once", func(t *testing.T) {
		r := new(recorder)
		ch := newMockChannel(0, content.Raw([]byte("AB")), content.EOF())
		p := NewAsync(ch)
		p.Observe(r)

		require.False(t, p.IsReady())
		require.False(t, p.IsReady())
		require.False(t, p.IsReady())

		// a single unready signal and a single production demand,
		// no matter how often the empty producer was polled
		require.Equal(t, []string{"unready"}, r.events)
		require.Equal(t, 1, ch.demands())
	})

	t.Run("wake after unready signals once", func(t *testing.T) {
		r := new(recorder)
		ch := newMockChannel(0, content.Raw([]byte("AB")), content.EOF())
		p := NewAsync(ch)
		p.Observe(r)

		require.False(t, p.IsReady())
		ch.publish(2)
		p.Wake()
		p.Wake()

		require.Equal(t, []string{"unready", "added"}, r.events)
		require.True(t, p.IsReady())
	})

	t.Run("interleaved availability", func(t *testing.T) {
		// AB and CD are there from the start, EF and GH have to be
		// demanded and arrive late, the EOF follows GH at once
		ch := newMockChannel(2,
			content.Raw([]byte("AB")),
			content.Raw([]byte("CD")),
			content.Raw([]byte("EF")),
			content.Raw([]byte("GH")),
			content.EOF(),
		)
		p := NewAsync(ch)

		var readyImmediately, notReady int
		var data []byte
		for {
			ready := p.IsReady()
			if !ready {
				notReady++
				if notReady == 1 {
					ch.publish(1)
				} else {
					ch.publish(2)
				}
				p.Wake()
				require.True(t, p.IsReady())
			}

			c := p.NextContent()
			require.NotNil(t, c)
			data = append(data, c.Data()...)
			c.Skip(c.Remaining())
			if c.IsSpecial() {
				require.True(t, c.IsEOF())
				break
			}
			if ready {
				readyImmediately++
			}
		}

		require.Equal(t, "ABCDEFGH", string(data))
		require.Equal(t, 2, readyImmediately)
		require.Equal(t, 2, notReady)
		require.Equal(t, 8, p.Consumed())
	})
}

func TestAsyncListener(t *testing.T) {
	t.Run("notified at registration when content awaits", func(t *testing.T) {
		r := new(recorder)
		ch := newMockChannel(2, content.Raw([]byte("AB")), content.EOF())
		p := NewAsync(ch)

		p.SetReadListener(r)
		require.Equal(t, []string{"data"}, r.events)

		data, last := drain(t, p)
		require.Equal(t, "AB", string(data))
		require.True(t, last.IsEOF())
		require.Equal(t, []string{"data", "eof"}, r.events)
	})

	t.Run("data then eof", func(t *testing.T) {
		r := new(recorder)
		ch := newMockChannel(0, content.Raw([]byte("AB")), content.EOF())
		p := NewAsync(ch)
		p.SetReadListener(r)

		ch.publish(2)
		p.Wake()
		require.Equal(t, []string{"data"}, r.events)

		data, last := drain(t, p)
		require.Equal(t, "AB", string(data))
		require.True(t, last.IsEOF())
		require.Equal(t, []string{"data", "eof"}, r.events)
	})

	t.Run("error surfaces once", func(t *testing.T) {
		r := new(recorder)
		ch := newMockChannel(1, content.Error(errors.New("reset")))
		p := NewAsync(ch)
		p.SetReadListener(r)

		_, last := drain(t, p)
		require.EqualError(t, last.Err(), "reset")

		p.NextContent()
		p.NextContent()
		require.Equal(t, []string{"data", "error:reset"}, r.events)
	})
}

func TestAsyncFail(t *testing.T) {
	t.Run("fails buffered content", func(t *testing.T) {
		cb := new(settled)
		ch := newMockChannel(1, content.RawWith([]byte("AB"), cb))
		p := NewAsync(ch)

		c := p.NextContent()
		require.NotNil(t, c)

		boom := errors.New("torn down")
		p.Fail(boom)

		require.Equal(t, 1, cb.failed)
		require.Equal(t, boom, cb.lastErr)

		next := p.NextContent()
		require.Equal(t, boom, next.Err())
		require.True(t, p.IsError())
	})

	t.Run("propagates upstream", func(t *testing.T) {
		ch := newMockChannel(0)
		p := NewAsync(ch)

		boom := errors.New("torn down")
		p.Fail(boom)
		require.Equal(t, boom, ch.failure)
	})
}

// generating returns out for every non-special input, consuming it whole
// unless consume is unset.
type generating struct {
	out       *content.Content
	consume   bool
	destroyed int
}

func (g *generating) ReadFrom(c *content.Content) (*content.Content, error) {
	if c.IsSpecial() {
		return c, nil
	}
	if c.Remaining() == 0 {
		return nil, nil
	}

	if g.consume {
		c.Skip(c.Remaining())
	}

	return g.out, nil
}

func (g *generating) Destroy() {
	g.destroyed++
}

// stubborn violates the interception contract: it consumes nothing and
// emits nothing.
type stubborn struct{}

func (stubborn) ReadFrom(*content.Content) (*content.Content, error) {
	return nil, nil
}

// failing rejects every content outright.
type failing struct {
	err error
}

func (f failing) ReadFrom(*content.Content) (*content.Content, error) {
	return nil, f.err
}

// doubling emits every input twice, as a crude stand-in for an inflating
// transform.
type doubling struct{}

func (doubling) ReadFrom(c *content.Content) (*content.Content, error) {
	if c.IsSpecial() {
		return c, nil
	}
	if c.Remaining() == 0 {
		return nil, nil
	}

	data := c.Data()
	c.Skip(len(data))

	return content.Raw(append(append([]byte(nil), data...), data...)), nil
}

func TestAsyncInterceptor(t *testing.T) {
	t.Run("transforms content", func(t *testing.T) {
		ch := newMockChannel(3,
			content.Raw([]byte("AB")),
			content.Raw([]byte("CD")),
			content.EOF(),
		)
		p := NewAsync(ch)
		p.SetInterceptor(doubling{})

		data, last := drain(t, p)
		require.Equal(t, "ABABCDCD", string(data))
		require.True(t, last.IsEOF())
		require.Equal(t, 8, p.Consumed())
	})

	t.Run("generates eof early", func(t *testing.T) {
		cb := new(settled)
		g := &generating{out: content.EOF(), consume: true}
		ch := newMockChannel(1, content.RawWith([]byte("AB"), cb))
		p := NewAsync(ch)
		p.SetInterceptor(g)

		c := p.NextContent()
		require.True(t, c.IsEOF())
		require.True(t, p.IsFinished())

		// the swallowed raw content was settled as consumed
		require.Equal(t, 1, cb.succeeded)
		require.Zero(t, cb.failed)
	})

	t.Run("generates error", func(t *testing.T) {
		boom := errors.New("bad payload")
		g := &generating{out: content.Error(boom), consume: true}
		ch := newMockChannel(1, content.Raw([]byte("AB")))
		p := NewAsync(ch)
		p.SetInterceptor(g)

		c := p.NextContent()
		require.Equal(t, boom, c.Err())
		require.True(t, p.IsError())
	})

	t.Run("fails", func(t *testing.T) {
		boom := errors.New("corrupt stream")
		cb := new(settled)
		ch := newMockChannel(1, content.RawWith([]byte("AB"), cb))
		p := NewAsync(ch)
		p.SetInterceptor(failing{err: boom})

		c := p.NextContent()
		require.ErrorIs(t, c.Err(), boom)
		require.True(t, p.IsError())
		require.Equal(t, 1, cb.failed)
	})

	t.Run("does not consume", func(t *testing.T) {
		cb := new(settled)
		ch := newMockChannel(1, content.RawWith([]byte("ABCD"), cb))
		p := NewAsync(ch)
		p.SetInterceptor(stubborn{})

		c := p.NextContent()
		require.Error(t, c.Err())
		require.Equal(t,
			fmt.Sprintf("%T did not consume any of the 4 remaining byte(s) of content", stubborn{}),
			c.Err().Error(),
		)
		require.True(t, p.IsError())
		require.Equal(t, 1, cb.failed)
	})

	t.Run("emits without consuming", func(t *testing.T) {
		rawCb, outCb := new(settled), new(settled)
		emitted := &generating{out: content.RawWith([]byte("X"), outCb)}
		ch := newMockChannel(1, content.RawWith([]byte("A"), rawCb))
		p := NewAsync(ch)
		p.SetInterceptor(emitted)

		c1 := p.NextContent()
		require.True(t, c1.IsSpecial())
		require.ErrorContains(t, c1.Err(), "did not consume any of the 1 remaining byte(s) of content")

		c2 := p.NextContent()
		require.True(t, c2.IsSpecial())
		require.ErrorContains(t, c2.Err(), "did not consume any of the 1 remaining byte(s) of content")

		require.Equal(t, 1, rawCb.failed)
		require.Equal(t, 1, outCb.failed)
	})

	t.Run("empty content is not a violation", func(t *testing.T) {
		ch := newMockChannel(2, content.Raw(nil), content.EOF())
		p := NewAsync(ch)
		p.SetInterceptor(stubborn{})

		c := p.NextContent()
		require.NotNil(t, c)
		require.True(t, c.IsEOF())
		require.False(t, p.IsError())
	})

	t.Run("chained", func(t *testing.T) {
		ch := newMockChannel(2, content.Raw([]byte("AB")), content.EOF())
		p := NewAsync(ch)
		p.AddInterceptor(doubling{})
		p.AddInterceptor(doubling{})

		data, last := drain(t, p)
		require.Equal(t, "ABABABAB", string(data))
		require.True(t, last.IsEOF())
	})
}

func TestAsyncRecycle(t *testing.T) {
	t.Run("resets state", func(t *testing.T) {
		ch := newMockChannel(2, content.Raw([]byte("AB")), content.EOF())
		p := NewAsync(ch)

		_, last := drain(t, p)
		require.True(t, last.IsEOF())
		require.True(t, p.IsFinished())

		p.Recycle()
		require.False(t, p.IsFinished())
		require.False(t, p.IsError())
		require.Zero(t, p.Consumed())
		require.Nil(t, p.Interceptor())
	})

	t.Run("fails pending content", func(t *testing.T) {
		cb := new(settled)
		ch := newMockChannel(1, content.RawWith([]byte("AB"), cb))
		p := NewAsync(ch)

		require.NotNil(t, p.NextContent())
		p.Recycle()

		require.Equal(t, 1, cb.failed)
		require.Equal(t, status.ErrRecycled, cb.lastErr)
	})

	t.Run("destroys the interceptor once", func(t *testing.T) {
		g := &generating{out: content.EOF(), consume: true}
		p := NewAsync(newMockChannel(0))
		p.SetInterceptor(g)

		p.Recycle()
		p.Recycle()
		require.Equal(t, 1, g.destroyed)
	})
}
