// Package transport wraps raw connections into the collaborator surfaces
// the engine needs: a Client with pushback and idle deadlines, listeners,
// and the idle-timeout/half-close Monitor.
package transport

import (
	"net"

	"github.com/indigo-web/conduit/config"
)

type Transport interface {
	Bind(addr string) error
	Listen(cfg config.NET, cb func(conn net.Conn)) error
	Stop()
	Close()
	Wait()
}
