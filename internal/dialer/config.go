package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds the TCP connect. Zero leaves it to the OS.
	DialTimeout time.Duration

	// NegotiationTimeout bounds the upstream proxy handshake.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig
}
