package intercept

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

// pump runs a pull-style decoder (an io.Reader such as a gzip inflater)
// against push-style content delivery. The decoder lives in its own
// goroutine and reads compressed input from a feed; the owning interceptor
// exchanges input and output with it over channels:
//
//   - need carries the decoder's demand for more input;
//   - in carries one compressed chunk per send, a nil chunk marking the
//     end of the compressed stream;
//   - out carries one decoded chunk (or a decoding error) per receive,
//     and is closed once the decoder terminates.
//
// The decoder may demand more input while decoded bytes are still held in
// an unfinished Read: a gzip reader looks ahead for the next member's header
// before returning the previous member's bytes. The held bytes surface
// once the next chunk or the end-of-stream marker is fed, so after the
// last input the interceptor must mark EOF and drain out until it closes.
type pump struct {
	in   chan []byte
	need chan struct{}
	out  chan pumped
	done chan struct{}
}

type pumped struct {
	buf *bytebufferpool.ByteBuffer
	n   int
	err error
}

// opener instantiates the decoder over the compressed source. It may block
// reading a stream header, which is fine: it runs on the pump goroutine.
type opener func(src io.Reader) (io.Reader, error)

func startPump(open opener, bufSize int) *pump {
	p := &pump{
		in:   make(chan []byte),
		need: make(chan struct{}),
		out:  make(chan pumped),
		done: make(chan struct{}),
	}
	go p.run(open, bufSize)

	return p
}

func (p *pump) run(open opener, bufSize int) {
	defer close(p.out)

	src := &feed{pump: p}
	r, err := open(src)
	if err != nil {
		// a bare io.EOF means the stream ended before a single byte
		// arrived, which is a clean empty stream, not a failure
		if err != io.ErrClosedPipe && err != io.EOF {
			p.deliver(pumped{err: err})
		}

		return
	}

	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	for {
		buf := bytebufferpool.Get()
		if cap(buf.B) < bufSize {
			buf.B = make([]byte, bufSize)
		} else {
			buf.B = buf.B[:bufSize]
		}

		n, err := r.Read(buf.B)
		if n > 0 {
			if !p.deliver(pumped{buf: buf, n: n}) {
				bytebufferpool.Put(buf)
				return
			}
		} else {
			bytebufferpool.Put(buf)
		}

		switch err {
		case nil:
		case io.EOF:
			return
		case io.ErrClosedPipe:
			// the pump was destroyed mid-decode
			return
		default:
			p.deliver(pumped{err: err})
			return
		}
	}
}

func (p *pump) deliver(r pumped) bool {
	select {
	case p.out <- r:
		return true
	case <-p.done:
		return false
	}
}

func (p *pump) stop() {
	close(p.done)
}

// feed is the decoder-side view of the pump: a reader whose data arrives
// over the in channel. Sending a nil chunk (or closing in) marks the end
// of the compressed stream.
type feed struct {
	pump    *pump
	pending []byte
	eof     bool
}

func (f *feed) Read(b []byte) (n int, err error) {
	for len(f.pending) == 0 {
		if f.eof {
			return 0, io.EOF
		}

		select {
		case f.pump.need <- struct{}{}:
		case <-f.pump.done:
			return 0, io.ErrClosedPipe
		}

		select {
		case data, ok := <-f.pump.in:
			if !ok || data == nil {
				f.eof = true
				return 0, io.EOF
			}

			f.pending = data
		case <-f.pump.done:
			return 0, io.ErrClosedPipe
		}
	}

	n = copy(b, f.pending)
	f.pending = f.pending[n:]

	return n, nil
}
