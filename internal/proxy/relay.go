package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// errRelayStopped ends a direction that was stopped mid-write. Relay does not
// report it.
var errRelayStopped = errors.New("relay stopped")

type RelayOptions struct {
	// PollInterval is the deadline applied before every read and write. When
	// it expires the relay checks Running and ctx and either keeps waiting or
	// ends the session. Zero disables polling.
	PollInterval time.Duration

	// Running reports whether the relay should keep going. Nil means always.
	Running func() bool

	// Buffers supplies read buffers. Nil allocates DefaultBufferSize buffers.
	Buffers *BufferPool
}

// RelayStats counts the bytes written in each direction.
type RelayStats struct {
	Upstream   int64 // client to destination
	Downstream int64 // destination to client
}

// Relay copies bytes between client and dest until either side reaches EOF,
// an I/O error occurs, ctx is cancelled or opts.Running turns false. Both
// connections are closed exactly once before Relay returns, whichever side
// ended the session. Errors caused by that close are not reported.
func Relay(ctx context.Context, client, dest net.Conn, opts RelayOptions) (RelayStats, error) {
	if opts.Buffers == nil {
		opts.Buffers = NewBufferPool(DefaultBufferSize)
	}

	var (
		closed    atomic.Bool
		closeOnce sync.Once
	)
	closeBoth := func() {
		closeOnce.Do(func() {
			closed.Store(true)
			_ = client.Close()
			_ = dest.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var stats RelayStats
	g.Go(func() error {
		defer closeBoth()
		n, err := pump(gctx, dest, client, opts, &closed)
		stats.Upstream = n
		return err
	})
	g.Go(func() error {
		defer closeBoth()
		n, err := pump(gctx, client, dest, opts, &closed)
		stats.Downstream = n
		return err
	})

	err := g.Wait()
	if errors.Is(err, errRelayStopped) {
		err = nil
	}
	return stats, err
}

// pump copies src to dst, one buffer at a time.
func pump(ctx context.Context, dst, src net.Conn, opts RelayOptions, closed *atomic.Bool) (int64, error) {
	bp := opts.Buffers.Get()
	defer opts.Buffers.Put(bp)
	buf := *bp

	var total int64
	for {
		if opts.PollInterval > 0 {
			_ = src.SetReadDeadline(time.Now().Add(opts.PollInterval))
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := writeAll(ctx, dst, buf[:n], opts, closed)
			total += w
			if werr != nil {
				return total, werr
			}
		}

		if rerr == nil {
			continue
		}
		if isTimeout(rerr) && !closed.Load() {
			if stopping(ctx, opts) {
				return total, nil
			}
			continue
		}
		if errors.Is(rerr, io.EOF) {
			return total, nil
		}
		return total, relayErr(rerr, closed)
	}
}

// writeAll writes p to dst, retrying after write deadlines until everything
// is written, the write fails, or the relay is told to stop.
func writeAll(ctx context.Context, dst net.Conn, p []byte, opts RelayOptions, closed *atomic.Bool) (int64, error) {
	var total int64
	for len(p) > 0 {
		if opts.PollInterval > 0 {
			_ = dst.SetWriteDeadline(time.Now().Add(opts.PollInterval))
		}
		w, err := dst.Write(p)
		total += int64(w)
		p = p[w:]
		if err == nil {
			continue
		}
		if isTimeout(err) && !closed.Load() && !stopping(ctx, opts) {
			continue
		}
		if isTimeout(err) && !closed.Load() {
			return total, errRelayStopped
		}
		return total, relayErr(err, closed)
	}
	return total, nil
}

func stopping(ctx context.Context, opts RelayOptions) bool {
	return ctx.Err() != nil || (opts.Running != nil && !opts.Running())
}

func relayErr(err error, closed *atomic.Bool) error {
	if closed.Load() || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
