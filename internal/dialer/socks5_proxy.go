package dialer

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/txthinking/socks5"
)

type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	user      string
	pass      string
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, user, pass string) Dialer {
	return &SOCKS5ProxyDialer{cfg: cfg, proxyAddr: proxyAddr, user: user, pass: pass}
}

// DialContext connects to address through the SOCKS5 proxy. The socks5
// client has no context support, so a cancelled ctx abandons the dial and
// closes its result once it arrives.
func (d *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}

	tcpTimeout := 0
	if d.cfg.DialTimeout > 0 {
		tcpTimeout = int(d.cfg.DialTimeout.Seconds())
		if tcpTimeout <= 0 {
			tcpTimeout = 1
		}
	}

	client, err := socks5.NewClient(d.proxyAddr, d.user, d.pass, tcpTimeout, 0)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy init: %w", err)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := client.Dial("tcp", address)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, ctx.Err())
	}
}
