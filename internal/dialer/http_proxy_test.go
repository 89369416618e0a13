package dialer

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/die-net/routefwd/internal/testutil"
)

func newHTTPProxyDialer(t *testing.T, addr string) Dialer {
	t.Helper()

	d, err := NewHTTPProxyDialer(Config{DialTimeout: 2 * time.Second, NegotiationTimeout: 2 * time.Second}, &url.URL{Scheme: "http", Host: addr}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestHTTPProxyDialerDialSuccess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		br := bufio.NewReader(c)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		if req.Method != http.MethodConnect {
			return
		}
		target := req.Host
		_ = req.Body.Close()

		dst, err := net.Dial("tcp", target)
		if err != nil {
			_, _ = io.WriteString(c, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
			return
		}
		defer dst.Close()

		_, _ = io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\n")

		go func() {
			_, _ = io.Copy(dst, br)
			_ = dst.Close()
		}()
		_, _ = io.Copy(c, dst)
	})

	conn, err := newHTTPProxyDialer(t, upLn.Addr().String()).DialContext(ctx, "tcp4", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEcho(t, conn, conn, []byte("hello"))

	_ = conn.Close()
	waitUp()
}

func TestHTTPProxyDialerServerSpeaksFirst(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		req, err := http.ReadRequest(bufio.NewReader(c))
		if err != nil {
			return
		}
		_ = req.Body.Close()
		_, _ = io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\nSSH-2.0-banner\r\n")
	})

	conn, err := newHTTPProxyDialer(t, upLn.Addr().String()).DialContext(ctx, "tcp4", "192.0.2.1:22")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	want := "SSH-2.0-banner\r\n"
	buf := make([]byte, len(want))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != want {
		t.Fatalf("got %q want %q", buf, want)
	}

	waitUp()
}

func TestHTTPProxyDialerDialNon2xx(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		req, err := http.ReadRequest(bufio.NewReader(c))
		if err != nil {
			return
		}
		_ = req.Body.Close()
		_, _ = io.WriteString(c, "HTTP/1.1 403 Forbidden\r\n\r\n")
	})

	if _, err := newHTTPProxyDialer(t, upLn.Addr().String()).DialContext(ctx, "tcp4", "127.0.0.1:1"); err == nil {
		t.Fatalf("expected error")
	}

	waitUp()
}

func TestHTTPProxyDialerRejectsUDP(t *testing.T) {
	t.Parallel()

	if _, err := newHTTPProxyDialer(t, "127.0.0.1:1").DialContext(context.Background(), "udp", "127.0.0.1:53"); err == nil {
		t.Fatal("expected error")
	}
}
