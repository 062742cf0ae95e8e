package transport

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/indigo-web/conduit/config"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs a set of bound transports and tears all of them down
// once any fails or Stop is called.
type Supervisor struct {
	ts      []boundTransport
	stopped *atomic.Bool
	stopch  chan struct{}
	once    sync.Once
}

type boundTransport struct {
	t  Transport
	cb func(conn net.Conn)
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		stopped: new(atomic.Bool),
		stopch:  make(chan struct{}),
	}
}

func (s *Supervisor) Add(addr string, t Transport, cb func(net.Conn)) error {
	if err := t.Bind(addr); err != nil {
		for _, bound := range s.ts {
			bound.t.Close()
		}

		return err
	}

	s.ts = append(s.ts, boundTransport{t: t, cb: cb})

	return nil
}

// Run serves all added transports until the first listen error or Stop.
// The first non-nil listen error is returned.
func (s *Supervisor) Run(cfg config.NET) error {
	if len(s.ts) == 0 {
		return nil
	}

	g := new(errgroup.Group)
	for _, bound := range s.ts {
		bound := bound
		g.Go(func() error {
			err := bound.t.Listen(cfg, bound.cb)
			// one failing listener takes the rest down with it
			s.shutdown()

			return err
		})
	}

	go func() {
		<-s.stopch
		s.shutdown()
	}()

	return g.Wait()
}

// Stop asks all transports to finish serving and waits for them via Run.
func (s *Supervisor) Stop() {
	s.once.Do(func() {
		close(s.stopch)
	})
}

func (s *Supervisor) shutdown() {
	if s.stopped.Swap(true) {
		return
	}

	for _, bound := range s.ts {
		bound.t.Stop()
	}

	for _, bound := range s.ts {
		bound.t.Wait()
		bound.t.Close()
	}
}
