package conn

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"

	"github.com/die-net/routefwd/internal/route"
)

func TestBindAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		routes []route.Route
		want   string
	}{
		{
			name:   "single literal",
			routes: []route.Route{{SourceIP: "10.0.0.5", SourcePort: 100}},
			want:   "10.0.0.5:100",
		},
		{
			name:   "repeated literal",
			routes: []route.Route{{SourceIP: "10.0.0.5", SourcePort: 100}, {SourceIP: "10.0.0.5", SourcePort: 100}},
			want:   "10.0.0.5:100",
		},
		{
			name:   "wildcard star",
			routes: []route.Route{{SourceIP: "10.0.0.5", SourcePort: 100}, {SourceIP: "*", SourcePort: 100}},
			want:   "0.0.0.0:100",
		},
		{
			name:   "wildcard zero",
			routes: []route.Route{{SourceIP: "0.0.0.0", SourcePort: 8080}},
			want:   "0.0.0.0:8080",
		},
		{
			name:   "distinct literals",
			routes: []route.Route{{SourceIP: "10.0.0.1", SourcePort: 9000}, {SourceIP: "10.0.0.2", SourcePort: 9000}},
			want:   "0.0.0.0:9000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := route.PortGroup{Port: tt.routes[0].SourcePort, Routes: tt.routes}
			if got := BindAddress(g); got != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func freePort(t *testing.T) uint16 {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestListenGroupLiteral(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	g := route.PortGroup{Port: port, Routes: []route.Route{{SourceIP: "127.0.0.1", SourcePort: port}}}

	ln, err := ListenGroup(context.Background(), g, ListenOptions{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	if !addr.IP.Equal(net.IPv4(127, 0, 0, 1)) || addr.Port != int(port) {
		t.Fatalf("bound %s", addr)
	}
}

func TestListenGroupFallsBackToWildcard(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	// 192.0.2.0/24 is reserved for documentation and never configured
	// locally, so without IP_TRANSPARENT the literal bind fails.
	g := route.PortGroup{Port: port, Routes: []route.Route{{SourceIP: "192.0.2.1", SourcePort: port}}}

	ln, err := ListenGroup(context.Background(), g, ListenOptions{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	if !addr.IP.IsUnspecified() || addr.Port != int(port) {
		t.Fatalf("expected wildcard bind, got %s", addr)
	}
}

func TestListenGroupPortInUse(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp4", "0.0.0.0:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	port := uint16(busy.Addr().(*net.TCPAddr).Port)

	g := route.PortGroup{Port: port, Routes: []route.Route{{SourceIP: "*", SourcePort: port}}}
	if ln, err := ListenGroup(context.Background(), g, ListenOptions{Logger: zerolog.Nop()}); err == nil {
		ln.Close()
		t.Fatal("expected bind error on busy port")
	}
}

func TestTransparentIsBestEffort(t *testing.T) {
	t.Parallel()

	ln, err := ListenTCP(context.Background(), "127.0.0.1:0", ListenOptions{Transparent: true, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	ln.Close()
}

func TestKeepAliveListenerAccept(t *testing.T) {
	t.Parallel()

	ln, err := ListenTCP(context.Background(), "127.0.0.1:0", ListenOptions{
		KeepAlive: net.KeepAliveConfig{Enable: true},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		c, err := net.Dial("tcp4", ln.Addr().String())
		if err == nil {
			c.Close()
		}
	}()

	c, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
}
