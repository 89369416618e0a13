package conn

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/die-net/routefwd/internal/route"
)

// ListenOptions controls how group listeners are created.
type ListenOptions struct {
	// KeepAlive is applied to every accepted connection.
	KeepAlive net.KeepAliveConfig

	// Transparent requests IP_TRANSPARENT on the listening socket where the
	// OS supports it. Failure to set it is logged and ignored.
	Transparent bool

	Logger zerolog.Logger
}

// BindAddress returns the host:port a group's listener should bind first.
func BindAddress(g route.PortGroup) string {
	host := route.WildcardAny
	if !g.HasWildcard() {
		if ips := g.SourceIPs(); len(ips) == 1 {
			host = ips[0]
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(int(g.Port)))
}

// ListenGroup binds a listener for g. A failed literal bind is retried on the
// wildcard address; only if that fails too is an error returned.
func ListenGroup(ctx context.Context, g route.PortGroup, opts ListenOptions) (net.Listener, error) {
	addr := BindAddress(g)
	ln, err := ListenTCP(ctx, addr, opts)
	if err == nil {
		return ln, nil
	}

	wildcard := net.JoinHostPort(route.WildcardAny, strconv.Itoa(int(g.Port)))
	if addr == wildcard {
		return nil, err
	}

	opts.Logger.Warn().Err(err).Str("addr", addr).Str("fallback", wildcard).Msg("bind failed, falling back to wildcard")
	ln, err = ListenTCP(ctx, wildcard, opts)
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// ListenTCP listens on the given IPv4 address and returns a net.Listener
// that applies opts.KeepAlive to accepted TCP connections.
func ListenTCP(ctx context.Context, addr string, opts ListenOptions) (net.Listener, error) {
	lc := net.ListenConfig{}
	if opts.Transparent {
		log := opts.Logger
		lc.Control = func(_, address string, c syscall.RawConn) error {
			var ctrlErr error
			if err := c.Control(func(fd uintptr) {
				ctrlErr = setTransparent(fd)
			}); err != nil {
				return err
			}
			if ctrlErr != nil {
				log.Debug().Err(ctrlErr).Str("addr", address).Msg("IP_TRANSPARENT unavailable")
			}
			return nil
		}
	}

	ln, err := lc.Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp4 %s: %w", addr, err)
	}

	return &KeepAliveListener{Listener: ln, KeepAliveConfig: opts.KeepAlive}, nil
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig to any
// accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

// Accept accepts the next connection and applies KeepAliveConfig if the
// connection is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	ApplyKeepAlive(conn, l.KeepAliveConfig)

	return conn, nil
}

// ApplyKeepAlive sets ka on c if it is a TCP connection.
func ApplyKeepAlive(c net.Conn, ka net.KeepAliveConfig) {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(ka)
	}
}
