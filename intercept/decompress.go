package intercept

import (
	"errors"
	"io"

	"github.com/indigo-web/conduit/content"
	"github.com/indigo-web/conduit/status"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/bytebufferpool"
)

// ErrTrailingData reports input arriving after the decoder already
// consumed the final block of the compressed stream.
var ErrTrailingData = errors.New("unexpected data past the end of the compressed stream")

// DefaultBufferSize bounds a single decompressed content chunk unless
// configured otherwise.
const DefaultBufferSize = 4 * 1024

// ForEncoding resolves a content-coding token, as it appears in a
// Content-Encoding field, into the matching decompressing interceptor.
// Unknown tokens yield status.ErrUnsupportedMediaType.
func ForEncoding(token string, bufSize int) (Interceptor, error) {
	switch token {
	case "gzip", "x-gzip":
		return NewGZIP(bufSize), nil
	case "deflate":
		return NewDeflate(bufSize), nil
	case "zstd":
		return NewZSTD(bufSize), nil
	default:
		return nil, status.ErrUnsupportedMediaType
	}
}

// NewGZIP returns an interceptor inflating a gzip-compressed content
// stream. Concatenated members are handled transparently. bufSize bounds
// the size of a single emitted content; values below 1 fall back to
// DefaultBufferSize.
func NewGZIP(bufSize int) Interceptor {
	return newDecompressor(func(src io.Reader) (io.Reader, error) {
		return gzip.NewReader(src)
	}, bufSize)
}

// NewDeflate returns an interceptor inflating a raw deflate stream.
func NewDeflate(bufSize int) Interceptor {
	return newDecompressor(func(src io.Reader) (io.Reader, error) {
		return flate.NewReader(src), nil
	}, bufSize)
}

// NewZSTD returns an interceptor decompressing a zstandard stream.
func NewZSTD(bufSize int) Interceptor {
	return newDecompressor(func(src io.Reader) (io.Reader, error) {
		d, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}

		return d.IOReadCloser(), nil
	}, bufSize)
}

// decompressor adapts a pump to the Interceptor contract. Input contents
// are consumed whole; decoded output is emitted one buffer-bound chunk per
// ReadFrom call, so a single input may span many emitted contents.
type decompressor struct {
	pump      *pump
	awaiting  bool
	destroyed bool
}

func newDecompressor(open opener, bufSize int) *decompressor {
	if bufSize < 1 {
		bufSize = DefaultBufferSize
	}

	return &decompressor{pump: startPump(open, bufSize)}
}

func (d *decompressor) ReadFrom(c *content.Content) (*content.Content, error) {
	if c.IsSpecial() {
		return d.finish(c)
	}

	for {
		if d.awaiting && c.Remaining() > 0 {
			data := append([]byte(nil), c.Data()...)
			select {
			case d.pump.in <- data:
				c.Skip(c.Remaining())
				d.awaiting = false
			case <-d.pump.done:
				return nil, nil
			}
		}

		select {
		case r, ok := <-d.pump.out:
			if !ok {
				// decoder finished; nothing more will ever come out
				if c.Remaining() > 0 {
					return nil, ErrTrailingData
				}

				return nil, nil
			}
			if r.err != nil {
				return nil, r.err
			}

			return content.RawWith(r.buf.B[:r.n], recycler{r.buf}), nil
		case <-d.pump.need:
			d.awaiting = true
			if c.Remaining() == 0 {
				return nil, nil
			}
		case <-d.pump.done:
			return nil, nil
		}
	}
}

// finish marks the end of the compressed stream and flushes whatever the
// decoder still holds, one content per call. A gzip reader keeps a
// member's decoded bytes trapped while probing for the next member's
// header, so the terminal is returned only once the drain runs dry.
func (d *decompressor) finish(c *content.Content) (*content.Content, error) {
	for {
		if d.awaiting {
			select {
			case d.pump.in <- nil:
				d.awaiting = false
			case <-d.pump.done:
				return c, nil
			}
		}

		select {
		case r, ok := <-d.pump.out:
			if !ok {
				return c, nil
			}
			if r.err != nil {
				return nil, r.err
			}

			return content.RawWith(r.buf.B[:r.n], recycler{r.buf}), nil
		case <-d.pump.need:
			d.awaiting = true
		case <-d.pump.done:
			return c, nil
		}
	}
}

// Destroy stops the pump goroutine and releases the decoder.
func (d *decompressor) Destroy() {
	if d.destroyed {
		return
	}

	d.destroyed = true
	d.pump.stop()
}

// recycler returns a pooled output buffer once its content is settled.
type recycler struct {
	buf *bytebufferpool.ByteBuffer
}

func (r recycler) Succeeded() {
	bytebufferpool.Put(r.buf)
}

func (r recycler) Failed(error) {
	bytebufferpool.Put(r.buf)
}
