package proxy

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/die-net/routefwd/internal/metrics"
	"github.com/die-net/routefwd/internal/route"
)

type SessionState int32

const (
	Connecting SessionState = iota
	Relaying
	Closing
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Relaying:
		return "relaying"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Session is one accepted client connection and the destination connection
// it is relayed to.
type Session struct {
	ID    string
	Route route.Route

	client net.Conn
	state  atomic.Int32
}

func NewSession(r route.Route, client net.Conn) *Session {
	return &Session{ID: uuid.NewString(), Route: r, client: client}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}

// Run connects to the route's destination and relays until the session ends.
// ctx bounds the connect only; once relaying, the session ends through EOF,
// an I/O error or opts.Running. The client connection is always closed when
// Run returns. A connect failure moves the session straight to Closed.
func (s *Session) Run(ctx context.Context, c Connector, opts RelayOptions, log zerolog.Logger, m *metrics.Metrics) error {
	log = log.With().
		Str("session", s.ID).
		Stringer("client", s.client.RemoteAddr()).
		Stringer("route", s.Route).
		Logger()

	dest, err := c.Connect(ctx, s.Route.DestDomain, s.Route.DestPort)
	if err != nil {
		_ = s.client.Close()
		s.setState(Closed)
		m.DestinationFailed(s.Route.SourcePort)
		log.Warn().Err(err).Msg("destination unavailable, closing client")
		return err
	}

	s.setState(Relaying)
	m.SessionStarted()
	log.Debug().Stringer("dest", dest.RemoteAddr()).Msg("relay started")

	start := time.Now()
	stats, err := Relay(context.WithoutCancel(ctx), s.client, dest, opts)

	s.setState(Closing)
	m.SessionEnded(stats.Upstream, stats.Downstream, err != nil)
	s.setState(Closed)

	ev := log.Debug()
	if err != nil {
		ev = log.Info().Err(err)
	}
	ev.Int64("up", stats.Upstream).
		Int64("down", stats.Downstream).
		Dur("duration", time.Since(start)).
		Msg("relay finished")

	return err
}
