package proxy

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/die-net/routefwd/internal/conn"
	"github.com/die-net/routefwd/internal/metrics"
)

const (
	DefaultPollInterval = time.Second
	DefaultBufferSize   = 8192
)

// Connector opens the destination side of a session. *dialer.Resolver
// implements it.
type Connector interface {
	Connect(ctx context.Context, domain string, port uint16) (net.Conn, error)
}

type Config struct {
	Connector Connector

	Listen conn.ListenOptions

	// PollInterval bounds how long a relay waits for data before checking
	// whether the supervisor is still running.
	PollInterval time.Duration

	BufferSize int

	Logger zerolog.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c
}
