package config

import "time"

type (
	NET struct {
		// ReadBufferSize is the size of the buffer in bytes used to read
		// from a socket.
		ReadBufferSize int
		// AcceptLoopInterruptPeriod controls how often a blocked Accept()
		// call is interrupted in order to check whether it's time to stop.
		AcceptLoopInterruptPeriod time.Duration
	}

	Timeouts struct {
		// Idle is the maximal allowed duration of transport inactivity on
		// a connection. Any read or write activity resets the countdown;
		// exceeding it forcibly closes the connection.
		Idle time.Duration
		// Blocking caps a single blocked wait for content, independently
		// of transport idleness: a handler stuck in application logic is
		// a different failure than a silent peer. Zero disables it.
		Blocking time.Duration
	}

	Content struct {
		// MaxSize limits the total number of body bytes accepted on a
		// single request. Exceeding it fails the stream with
		// status.ErrBodyTooLarge.
		MaxSize int
		// DecodeBufferSize bounds a single decompressed content chunk
		// emitted by decompression interceptors.
		DecodeBufferSize int
		// BytesPrealloc is the initial length of the buffer collecting a
		// whole body at once, when its length isn't known in advance.
		BytesPrealloc int
	}
)

// Config holds settings used across the engine, mainly restrictions,
// timeouts and pre-allocations. Modify defaults returned by Default()
// instead of constructing the struct manually.
type Config struct {
	NET      NET
	Timeouts Timeouts
	Content  Content
}

func Default() *Config {
	return &Config{
		NET: NET{
			ReadBufferSize:            4 * 1024,
			AcceptLoopInterruptPeriod: 5 * time.Second,
		},
		Timeouts: Timeouts{
			Idle:     90 * time.Second,
			Blocking: 0,
		},
		Content: Content{
			MaxSize:          512 * 1024 * 1024,
			DecodeBufferSize: 4 * 1024,
			BytesPrealloc:    1024,
		},
	}
}
