// Package stream exposes produced content through a conventional consumer
// surface: incremental retrieval, io.Reader, and whole-body accessors.
package stream

import (
	"io"

	"github.com/indigo-web/conduit/config"
	"github.com/indigo-web/conduit/content"
	"github.com/indigo-web/conduit/status"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

type Callback func([]byte) error

// Producer yields content items in order. stream drains each item fully
// before asking for the next one, so the producer is free to release and
// recycle them in between.
type Producer interface {
	NextContent() *content.Content
}

type Reader struct {
	producer Producer
	cfg      config.Content
	buff     []byte
	pending  []byte
	error    error
}

func New(p Producer, cfg config.Content) *Reader {
	return &Reader{
		producer: p,
		cfg:      cfg,
	}
}

// Retrieve returns the next piece of content. io.EOF is returned along
// with the last piece (which may be empty).
func (r *Reader) Retrieve() ([]byte, error) {
	if r.error != nil {
		return nil, r.error
	}

	c := r.producer.NextContent()
	switch {
	case c == nil:
		// the producer is asynchronous and has nothing buffered
		return nil, nil
	case c.Err() != nil:
		r.error = c.Err()
	case c.IsEarlyEOF():
		r.error = status.ErrEarlyEOF
	case c.IsEOF():
		r.error = io.EOF
	}

	data := c.Data()
	c.Skip(len(data))

	return data, r.error
}

// Callback invokes cb for every piece of content until the stream ends.
// If cb returns an error, it is passed back to the caller. cb is not
// notified of stream errors.
//
// Please note: this method can be used only once.
func (r *Reader) Callback(cb Callback) error {
	if r.error != nil {
		return r.error
	}

	for {
		data, err := r.Retrieve()
		switch err {
		case nil:
		case io.EOF:
			return cb(data)
		default:
			return err
		}

		if err = cb(data); err != nil {
			return err
		}
	}
}

// Bytes returns the whole stream at once in a byte representation.
func (r *Reader) Bytes() ([]byte, error) {
	if len(r.buff) != 0 {
		return r.buff, nil
	}

	if r.error != nil {
		return nil, r.error
	}

	if r.buff == nil {
		r.buff = make([]byte, 0, r.cfg.BytesPrealloc)
	}

	for {
		data, err := r.Retrieve()
		r.buff = append(r.buff, data...)
		switch err {
		case nil:
		case io.EOF:
			return r.buff, nil
		default:
			return nil, err
		}
	}
}

// String returns the whole stream at once in a string representation.
func (r *Reader) String() (string, error) {
	bytes, err := r.Bytes()
	return uf.B2S(bytes), err
}

// Read implements the io.Reader interface.
func (r *Reader) Read(into []byte) (n int, err error) {
	if len(r.pending) == 0 && r.error == nil {
		r.pending, _ = r.Retrieve()
	}

	n = copy(into, r.pending)
	r.pending = r.pending[n:]

	if len(r.pending) == 0 && r.error != nil {
		err = r.error
	}

	return n, err
}

// JSON conveys the stream to a json unmarshaller and behaves in a
// similar manner.
func (r *Reader) JSON(model any) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}

	iterator := json.ConfigDefault.BorrowIterator(data)
	iterator.ReadVal(model)
	err = iterator.Error
	json.ConfigDefault.ReturnIterator(iterator)

	return err
}

// Discard discards the rest of the stream (if any). If no networking
// error was encountered, nil is returned.
func (r *Reader) Discard() error {
	for r.error == nil {
		_, r.error = r.Retrieve()
	}

	if r.error == io.EOF {
		return nil
	}

	return r.error
}

// Error returns a previously encountered error, otherwise nil.
func (r *Reader) Error() error {
	return r.error
}

// Reset drains the remainder of the current stream and prepares the
// reader for the next one.
func (r *Reader) Reset() error {
	if err := r.Discard(); err != nil {
		return err
	}

	r.error = nil
	r.buff = r.buff[:0]
	r.pending = nil

	return nil
}
