package proxy

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/routefwd/internal/conn"
	"github.com/die-net/routefwd/internal/route"
)

var (
	ErrNoRoutes = errors.New("no routes configured")
	ErrStopped  = errors.New("supervisor stopped")
)

// Supervisor runs one accept loop per distinct source port of a route table
// and one relay per accepted connection. It is single use: once stopped it
// cannot be started again.
type Supervisor struct {
	table route.Table
	cfg   Config
	log   zerolog.Logger
	bufs  *BufferPool

	mu        sync.Mutex // serializes Start and Stop
	stopped   bool
	running   atomic.Bool
	stopAfter func() bool

	// dialCtx is cancelled by Stop to abandon pending destination connects.
	dialCtx    context.Context
	cancelDial context.CancelFunc

	listeners registry
	accepts   errgroup.Group
	sessions  sync.WaitGroup
}

// New returns a Supervisor for table. It opens nothing until Start.
func New(table route.Table, cfg Config) *Supervisor {
	cfg = cfg.withDefaults()
	log := cfg.Logger.With().Str("component", "supervisor").Logger()
	cfg.Listen.Logger = log

	return &Supervisor{
		table: table,
		cfg:   cfg,
		log:   log,
		bufs:  NewBufferPool(cfg.BufferSize),
	}
}

// Running reports whether the supervisor has been started and not stopped.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Start launches one accept loop per port group and returns without waiting
// for the listeners to bind. Calling Start while running does nothing. When
// ctx is cancelled the supervisor stops itself.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		s.log.Info().Msg("already running")
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	if s.table.Len() == 0 {
		return ErrNoRoutes
	}
	if s.cfg.Connector == nil {
		return errors.New("proxy: no connector configured")
	}

	s.running.Store(true)
	s.dialCtx, s.cancelDial = context.WithCancel(context.WithoutCancel(ctx))

	groups := route.GroupByPort(s.table)
	for _, g := range groups {
		s.accepts.Go(func() error {
			s.serveGroup(ctx, g)
			return nil
		})
	}

	s.stopAfter = context.AfterFunc(ctx, s.Stop)

	s.log.Info().Int("routes", s.table.Len()).Int("ports", len(groups)).Msg("started")
	return nil
}

// Stop closes every listener, waits for the accept loops to exit and then for
// in-flight sessions, which notice the stop within one poll interval. Calling
// Stop when not running does nothing.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.stopped = true
	if s.stopAfter != nil {
		s.stopAfter()
	}

	s.listeners.closeAll()
	_ = s.accepts.Wait()
	s.cancelDial()
	s.sessions.Wait()

	s.log.Info().Msg("stopped")
}

// Close stops the supervisor. It is meant for defer.
func (s *Supervisor) Close() error {
	s.Stop()
	return nil
}

// Addrs returns the addresses of the currently bound listeners.
func (s *Supervisor) Addrs() []net.Addr {
	return s.listeners.addrs()
}

func (s *Supervisor) serveGroup(ctx context.Context, g route.PortGroup) {
	log := s.log.With().Uint16("port", g.Port).Logger()
	if !s.running.Load() {
		return
	}

	opts := s.cfg.Listen
	opts.Logger = log
	ln, err := conn.ListenGroup(ctx, g, opts)
	if err != nil {
		s.cfg.Metrics.ListenFailed(g.Port)
		log.Error().Err(err).Msg("port group not served")
		return
	}
	if !s.listeners.add(ln) {
		return
	}
	defer s.listeners.remove(ln)

	s.cfg.Metrics.ListenerUp()
	defer s.cfg.Metrics.ListenerDown()

	for _, r := range g.Routes {
		log.Info().Stringer("addr", ln.Addr()).Stringer("route", r).Msg("listening")
	}

	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if isTransientAccept(err) {
				log.Debug().Err(err).Msg("accept interrupted, retrying")
				continue
			}
			log.Error().Err(err).Msg("accept failed, port group stopped")
			return
		}

		if !s.running.Load() {
			_ = c.Close()
			return
		}

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.handle(g, c, log)
		}()
	}
}

func (s *Supervisor) handle(g route.PortGroup, c net.Conn, log zerolog.Logger) {
	s.cfg.Metrics.ConnAccepted(g.Port)

	r, ok := g.Match(c.LocalAddr())
	if !ok {
		s.cfg.Metrics.ConnRejected(g.Port)
		log.Warn().
			Stringer("client", c.RemoteAddr()).
			Stringer("local", c.LocalAddr()).
			Msg("no route for local address, closing")
		_ = c.Close()
		return
	}

	sess := NewSession(r, c)
	opts := RelayOptions{
		PollInterval: s.cfg.PollInterval,
		Running:      s.running.Load,
		Buffers:      s.bufs,
	}
	_ = sess.Run(s.dialCtx, s.cfg.Connector, opts, log, s.cfg.Metrics)
}

func isTransientAccept(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EINTR)
}
