package proxy

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

type relayResult struct {
	stats RelayStats
	err   error
}

// startRelay wires two pipes through Relay and returns the outer ends: the
// client's end and the destination server's end.
func startRelay(t *testing.T, ctx context.Context, opts RelayOptions) (client, server net.Conn, done <-chan relayResult) {
	t.Helper()

	client, relayClient := net.Pipe()
	relayDest, server := net.Pipe()

	ch := make(chan relayResult, 1)
	go func() {
		stats, err := Relay(ctx, relayClient, relayDest, opts)
		ch <- relayResult{stats, err}
	}()

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server, ch
}

func waitRelay(t *testing.T, done <-chan relayResult, within time.Duration) relayResult {
	t.Helper()

	select {
	case r := <-done:
		return r
	case <-time.After(within):
		t.Fatal("relay did not finish")
		return relayResult{}
	}
}

func TestRelayBinaryBothDirections(t *testing.T) {
	t.Parallel()

	client, server, done := startRelay(t, context.Background(), RelayOptions{PollInterval: 50 * time.Millisecond})

	up := make([]byte, 256<<10)
	down := make([]byte, 128<<10)
	_, _ = rand.Read(up)
	_, _ = rand.Read(down)

	errc := make(chan error, 2)
	go func() {
		_, err := client.Write(up)
		errc <- err
	}()
	go func() {
		_, err := server.Write(down)
		errc <- err
	}()

	gotUp := make([]byte, len(up))
	if _, err := io.ReadFull(server, gotUp); err != nil {
		t.Fatal(err)
	}
	gotDown := make([]byte, len(down))
	if _, err := io.ReadFull(client, gotDown); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := <-errc; err != nil {
			t.Fatal(err)
		}
	}

	if !bytes.Equal(gotUp, up) {
		t.Fatal("client to destination bytes differ")
	}
	if !bytes.Equal(gotDown, down) {
		t.Fatal("destination to client bytes differ")
	}

	_ = client.Close()
	r := waitRelay(t, done, 2*time.Second)
	if r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}
	if r.stats.Upstream != int64(len(up)) || r.stats.Downstream != int64(len(down)) {
		t.Fatalf("stats = %+v", r.stats)
	}
}

func TestRelayClientCloseClosesDestination(t *testing.T) {
	t.Parallel()

	client, server, done := startRelay(t, context.Background(), RelayOptions{PollInterval: 50 * time.Millisecond})

	_ = client.Close()
	waitRelay(t, done, 2*time.Second)

	_ = server.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := server.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF on destination, got %v", err)
	}
}

func TestRelayDestinationCloseClosesClient(t *testing.T) {
	t.Parallel()

	client, server, done := startRelay(t, context.Background(), RelayOptions{PollInterval: 50 * time.Millisecond})

	_ = server.Close()
	waitRelay(t, done, 2*time.Second)

	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF on client, got %v", err)
	}
}

func TestRelayStopsWhenNotRunning(t *testing.T) {
	t.Parallel()

	var running atomic.Bool
	running.Store(true)

	poll := 50 * time.Millisecond
	client, _, done := startRelay(t, context.Background(), RelayOptions{PollInterval: poll, Running: running.Load})

	select {
	case <-done:
		t.Fatal("idle relay ended while running")
	case <-time.After(3 * poll):
	}

	running.Store(false)
	r := waitRelay(t, done, 10*poll)
	if r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}

	if _, err := client.Write([]byte("x")); err == nil {
		t.Fatal("client still open after relay stopped")
	}
}

func TestRelayStopsWithBlockedWriter(t *testing.T) {
	t.Parallel()

	var running atomic.Bool
	running.Store(true)

	poll := 50 * time.Millisecond
	client, _, done := startRelay(t, context.Background(), RelayOptions{PollInterval: poll, Running: running.Load})

	// Nobody reads the destination side, so the relay blocks writing.
	go func() { _, _ = client.Write([]byte("stuck")) }()
	time.Sleep(2 * poll)

	running.Store(false)
	if r := waitRelay(t, done, 10*poll); r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}
}

func TestRelayContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	_, _, done := startRelay(t, ctx, RelayOptions{})

	cancel()
	if r := waitRelay(t, done, 2*time.Second); r.err != nil {
		t.Fatalf("unexpected error: %v", r.err)
	}
}

func TestBufferPool(t *testing.T) {
	t.Parallel()

	p := NewBufferPool(16)
	b := p.Get()
	if len(*b) != 16 {
		t.Fatalf("len = %d", len(*b))
	}
	p.Put(b)

	short := make([]byte, 4)
	p.Put(&short)
	if b := p.Get(); len(*b) != 16 {
		t.Fatalf("pool returned foreign buffer of len %d", len(*b))
	}
}
