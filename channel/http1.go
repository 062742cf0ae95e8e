// Package channel adapts a transport client to the upstream Channel
// contract consumed by the producer: it slices the connection's byte
// stream into content items according to the framing of the current
// request.
package channel

import (
	"io"
	"sync"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/conduit/config"
	"github.com/indigo-web/conduit/content"
	"github.com/indigo-web/conduit/producer"
	"github.com/indigo-web/conduit/status"
	"github.com/indigo-web/conduit/transport"
)

var _ producer.Channel = new(HTTP1)

// UntilClose configures Init to deliver content until the peer closes the
// connection, when the body length isn't known in advance.
const UntilClose = -1

// HTTP1 produces content from an HTTP/1.x body: either a fixed number of
// bytes (content-length framing), a chunk-encoded stream, or everything
// up to connection close. Reads happen synchronously inside NeedContent,
// bounded by the client's idle deadline, so NeedContent always reports
// availability and ProduceContent never blocks.
//
// NeedContent, ProduceContent and Init belong to the single consuming
// thread; FailAllContent and Failed may race them from any goroutine and
// interrupt a read in flight.
type HTTP1 struct {
	mu        sync.Mutex
	client    transport.Client
	parser    *chunkedbody.Parser
	pending   *content.Content
	failure   error
	maxSize   int
	remaining int
	received  int
	chunked   bool
	trailer   bool
	finished  bool
}

func NewHTTP1(client transport.Client, parser *chunkedbody.Parser, cfg config.Content) *HTTP1 {
	return &HTTP1{
		client:  client,
		parser:  parser,
		maxSize: cfg.MaxSize,
	}
}

// Init prepares the channel for the next request's body. contentLength is
// the number of expected body bytes, UntilClose if unknown; chunked
// selects chunk-encoded framing (contentLength is then ignored). trailer
// allows trailer fields after the last chunk.
func (h *HTTP1) Init(contentLength int, chunked, trailer bool) {
	h.mu.Lock()
	h.pending = nil
	h.failure = nil
	h.mu.Unlock()

	h.remaining = contentLength
	h.received = 0
	h.chunked = chunked
	h.trailer = trailer
	h.finished = !chunked && contentLength == 0
}

func (h *HTTP1) NeedContent() bool {
	h.mu.Lock()
	if h.pending != nil || h.finished || h.failure != nil {
		h.mu.Unlock()
		return true
	}
	h.mu.Unlock()

	c := h.fetch()

	h.mu.Lock()
	if h.failure != nil {
		// failed while the read was in flight; the failure wins
		if !c.IsSpecial() {
			c.Failed(h.failure)
		}
	} else {
		h.pending = c
	}
	h.mu.Unlock()

	return true
}

func (h *HTTP1) ProduceContent() *content.Content {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.failure != nil:
		return content.Error(h.failure)
	case h.pending != nil:
		c := h.pending
		h.pending = nil

		return c
	case h.finished:
		return content.EOF()
	default:
		return nil
	}
}

func (h *HTTP1) FailAllContent(err error) bool {
	h.mu.Lock()
	if h.pending != nil && !h.pending.IsSpecial() {
		h.pending.Failed(err)
	}
	h.pending = nil
	h.failure = err
	h.mu.Unlock()

	// wake a read stuck inside fetch
	h.client.Interrupt()

	return false
}

func (h *HTTP1) Failed(err error) bool {
	h.mu.Lock()
	h.failure = err
	h.mu.Unlock()

	h.client.Interrupt()

	return false
}

// fetch blocks until the connection yields the next content item.
func (h *HTTP1) fetch() *content.Content {
	for {
		data, err := h.client.Read()
		if err != nil {
			return h.readFailed(err)
		}
		if len(data) == 0 {
			continue
		}

		var c *content.Content
		if h.chunked {
			c = h.parseChunk(data)
		} else {
			c = h.slicePlain(data)
		}

		if c != nil {
			return c
		}
	}
}

func (h *HTTP1) readFailed(err error) *content.Content {
	if err != io.EOF {
		return content.Error(err)
	}

	if h.remaining == UntilClose && !h.chunked {
		h.finished = true
		return content.EOF()
	}

	// the peer promised more bytes than it delivered
	return content.EarlyEOF()
}

func (h *HTTP1) slicePlain(data []byte) *content.Content {
	if h.remaining != UntilClose && len(data) >= h.remaining {
		data, extra := data[:h.remaining], data[h.remaining:]
		if len(extra) > 0 {
			h.client.Pushback(extra)
		}
		h.remaining = 0
		h.finished = true

		if exceeded := h.account(len(data)); exceeded != nil {
			return exceeded
		}

		return content.Raw(data)
	}

	if h.remaining != UntilClose {
		h.remaining -= len(data)
	}

	if exceeded := h.account(len(data)); exceeded != nil {
		return exceeded
	}

	return content.Raw(data)
}

func (h *HTTP1) parseChunk(data []byte) *content.Content {
	chunk, extra, err := h.parser.Parse(data, h.trailer)
	switch err {
	case nil:
	case io.EOF:
		h.finished = true
	default:
		return content.Error(status.ErrBadChunk)
	}

	h.client.Pushback(extra)

	if exceeded := h.account(len(chunk)); exceeded != nil {
		return exceeded
	}

	if len(chunk) == 0 {
		if h.finished {
			return content.EOF()
		}

		// a partial chunk header; more data is needed
		return nil
	}

	return content.Raw(chunk)
}

func (h *HTTP1) account(n int) *content.Content {
	h.received += n
	if h.maxSize > 0 && h.received > h.maxSize {
		return content.Error(status.ErrBodyTooLarge)
	}

	return nil
}
