package conduit

import (
	"io"
	"net"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/conduit/channel"
	"github.com/indigo-web/conduit/config"
	"github.com/indigo-web/conduit/producer"
	"github.com/indigo-web/conduit/status"
	"github.com/indigo-web/conduit/stream"
	"github.com/indigo-web/conduit/transport"
)

// Handler serves a single connection. Returning an error tears the
// connection down immediately; returning nil closes it gracefully.
type Handler func(*Conn) error

// UntilClose makes Conn.Init deliver content until the peer closes the
// connection.
const UntilClose = channel.UntilClose

// Engine wires transports, idle monitoring and content production
// together. A single Engine may serve any number of connections and
// listeners concurrently.
type Engine struct {
	cfg   *config.Config
	sup   *transport.Supervisor
	tcp   *transport.TCP
	hooks hooks
}

type hooks struct {
	OnStart, OnStop func()
}

// New returns a new Engine instance. Passing nil falls back to defaults.
func New(cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}

	return &Engine{
		cfg: cfg,
		sup: transport.NewSupervisor(),
	}
}

// NotifyOnStart calls the callback at the moment when all the listeners
// are bound. However, it isn't strongly guaranteed that they'll be able
// to accept new connections immediately.
func (e *Engine) NotifyOnStart(cb func()) *Engine {
	e.hooks.OnStart = cb
	return e
}

// NotifyOnStop calls the callback at the moment when all the listeners
// are down.
func (e *Engine) NotifyOnStop(cb func()) *Engine {
	e.hooks.OnStop = cb
	return e
}

// NewConn adopts an established connection: an idle monitor starts
// counting down immediately, and content becomes available through
// Conn.Stream once Conn.Init describes the framing.
func (e *Engine) NewConn(conn net.Conn) *Conn {
	monitor := transport.Watch(conn, e.cfg.Timeouts.Idle)
	client := transport.NewWatchedClient(
		conn, e.cfg.Timeouts.Idle, make([]byte, e.cfg.NET.ReadBufferSize), monitor,
	)
	ch := channel.NewHTTP1(
		client, chunkedbody.NewParser(chunkedbody.DefaultSettings()), e.cfg.Content,
	)
	prod := producer.NewBlocking(ch, e.cfg.Timeouts.Blocking)

	return &Conn{
		Client:   client,
		Channel:  ch,
		Producer: prod,
		Stream:   stream.New(prod, e.cfg.Content),
		monitor:  monitor,
	}
}

// ServeConn runs the handler over the connection and tears it down
// afterwards, gracefully unless the handler failed.
func (e *Engine) ServeConn(c *Conn, handler Handler) error {
	err := handler(c)
	if err != nil {
		_ = c.Hijack().Close()
		c.monitor.Stop()

		return err
	}

	return c.Close()
}

// ListenAndServe binds addr and serves each accepted connection with the
// handler until Stop is called. It blocks for the whole lifetime of the
// engine.
func (e *Engine) ListenAndServe(addr string, handler Handler) error {
	e.tcp = transport.NewTCP()
	err := e.sup.Add(addr, e.tcp, func(conn net.Conn) {
		_ = e.ServeConn(e.NewConn(conn), handler)
	})
	if err != nil {
		return err
	}

	callIfNotNil(e.hooks.OnStart)
	err = e.sup.Run(e.cfg.NET)
	callIfNotNil(e.hooks.OnStop)

	return err
}

// Addr returns the address the engine is listening on, once
// ListenAndServe bound it. Mainly useful with port zero.
func (e *Engine) Addr() net.Addr {
	if e.tcp == nil {
		return nil
	}

	return e.tcp.Addr()
}

// Stop shuts all the listeners down. Connections already being served
// are left to their idle monitors.
//
// NOTE: the call isn't blocking, ListenAndServe returns once the
// shutdown completes.
func (e *Engine) Stop() {
	e.sup.Stop()
}

// Conn is a single served connection: the transport client, the framing
// channel feeding the producer, and the consumer-facing stream.
type Conn struct {
	Client   transport.Client
	Channel  *channel.HTTP1
	Producer *producer.Blocking
	Stream   *stream.Reader
	monitor  *transport.Monitor
}

// Init describes the framing of the next expected body. It must be
// called before the stream is consumed, and again after every Recycle.
func (c *Conn) Init(contentLength int, chunked, trailer bool) {
	c.Channel.Init(contentLength, chunked, trailer)
}

// Monitor exposes the connection's idle monitor.
func (c *Conn) Monitor() *transport.Monitor {
	return c.monitor
}

// Recycle prepares the connection for the next request: the rest of the
// current body is drained and all the producer state is reset. The
// transport stays open.
func (c *Conn) Recycle() error {
	if err := c.Stream.Reset(); err != nil {
		return err
	}

	c.Producer.Recycle()

	return nil
}

// Close tears the connection down gracefully: output is shut down first,
// remaining input is drained so the peer doesn't observe a reset, and
// only then the transport is closed.
func (c *Conn) Close() error {
	_ = c.Client.ShutdownOutput()
	c.drain()
	c.monitor.Stop()

	return c.Client.Close()
}

// Hijack detaches the raw transport from the connection. The caller
// becomes responsible for closing it.
func (c *Conn) Hijack() net.Conn {
	return c.Client.Conn()
}

func (c *Conn) drain() {
	for {
		_, err := c.Client.Read()
		switch err {
		case nil:
		case io.EOF, status.ErrTimeout:
			c.monitor.ShutdownInput()
			return
		default:
			return
		}
	}
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
