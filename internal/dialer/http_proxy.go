package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPProxyDialer dials outbound TCP connections via an HTTP or HTTPS proxy
// using the HTTP CONNECT method.
type HTTPProxyDialer struct {
	cfg      Config
	proxyURL *url.URL
	auth     string
	direct   Dialer
}

// NewHTTPProxyDialer constructs an HTTP CONNECT dialer for proxyURL.
//
// If username is non-empty, Proxy-Authorization is set using HTTP Basic auth.
func NewHTTPProxyDialer(cfg Config, proxyURL *url.URL, username, password string) (Dialer, error) {
	if proxyURL == nil {
		return nil, errors.New("http proxy dialer: missing proxy url")
	}
	if proxyURL.Hostname() == "" {
		return nil, errors.New("http proxy dialer: invalid proxy host")
	}
	if proxyURL.Scheme != "http" && proxyURL.Scheme != "https" {
		return nil, fmt.Errorf("http proxy dialer: unsupported scheme: %q", proxyURL.Scheme)
	}

	auth := ""
	if username != "" {
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	}

	return &HTTPProxyDialer{
		cfg:      cfg,
		proxyURL: proxyURL,
		auth:     auth,
		direct:   NewDirectDialer(cfg),
	}, nil
}

// ProxyAddr returns the proxy host:port.
func (d *HTTPProxyDialer) ProxyAddr() string {
	return d.proxyURL.Host
}

// DialContext establishes a TCP connection to address via the configured
// HTTP/HTTPS proxy.
//
// For HTTPS proxies, this performs a TLS handshake to the proxy before sending
// CONNECT. If NegotiationTimeout is set, a deadline is applied during TLS and
// CONNECT negotiation and cleared before returning.
func (d *HTTPProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("http proxy dial %s %s: unsupported network", network, address)
	}

	c, err := d.direct.DialContext(ctx, "tcp", d.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}

	if d.proxyURL.Scheme == "https" {
		tlsConn := tls.Client(c, &tls.Config{MinVersion: tls.VersionTLS12, ServerName: d.proxyURL.Hostname()})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = tlsConn.Close()
			return nil, fmt.Errorf("http proxy connect tls handshake: %w", err)
		}
		c = tlsConn
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: make(http.Header),
	}
	if d.auth != "" {
		req.Header.Set("Proxy-Authorization", d.auth)
	}

	if err := req.Write(c); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("http proxy connect write: %w", err)
	}

	br := bufio.NewReader(c)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("http proxy connect read: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_ = c.Close()
		return nil, fmt.Errorf("http proxy connect failed: %s", resp.Status)
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}

	// Servers that speak first may have data already sitting in br.
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: c, r: br}, nil
	}
	return c, nil
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
