package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/die-net/routefwd/internal/config"
	"github.com/die-net/routefwd/internal/conn"
	"github.com/die-net/routefwd/internal/dialer"
	"github.com/die-net/routefwd/internal/metrics"
	"github.com/die-net/routefwd/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	envCfg, err := config.LoadEnv()
	if err != nil {
		return err
	}

	var (
		configPath = pflag.String("config", envCfg.Config, "Route file: 'src_ip:src_port dest:dest_port' per line, or .yaml/.yml")
		upstream   = pflag.String("upstream", envCfg.DefaultUpstream(), "Destination dialer URL: direct:// | http://[user:pass@]host:port | https://[user:pass@]host:port | socks5://[user:pass@]host:port")

		debugListen  = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof and /metrics (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout  = pflag.Duration("dial-timeout", 0, "Timeout for destination TCP connect, 0 leaves it to the OS")
		pollInterval = pflag.Duration("poll-interval", proxy.DefaultPollInterval, "How often idle relays check for shutdown")
		bufferSize   = pflag.Int("buffer-size", proxy.DefaultBufferSize, "Relay buffer size in bytes")
		tcpKeepAlive = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		transparent  = pflag.Bool("transparent", true, "Set IP_TRANSPARENT on listeners where supported")
		logLevel     = pflag.String("log-level", envCfg.LogLevel, "Log level: debug|info|warn|error")
		logFormat    = pflag.String("log-format", "console", "Log format: console|json")
	)

	if !conn.TransparentSupported {
		_ = pflag.CommandLine.MarkHidden("transparent")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	logger, err := newLogger(os.Stderr, *logLevel, *logFormat)
	if err != nil {
		return err
	}

	if *configPath == "" && pflag.NArg() > 0 {
		*configPath = pflag.Arg(0)
	}
	if *configPath == "" {
		return errors.New("no route file (pass it as an argument, --config or ROUTEFWD_CONFIG)")
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	d, err := dialer.New(dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: 10 * time.Second,
		KeepAlive:          ka,
	}, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	table, err := config.Load(*configPath, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debugSrv, err := startDebugServer(ctx, *debugListen, ka, logger)
	if err != nil {
		return err
	}

	sup := proxy.New(table, proxy.Config{
		Connector: dialer.NewResolver(nil, d),
		Listen: conn.ListenOptions{
			KeepAlive:   ka,
			Transparent: *transparent,
		},
		PollInterval: *pollInterval,
		BufferSize:   *bufferSize,
		Logger:       logger,
		Metrics:      metrics.New(prometheus.DefaultRegisterer),
	})
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	sup.Stop()
	if debugSrv != nil {
		_ = debugSrv.Close()
	}
	return nil
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid --log-level: %w", err)
	}

	switch format {
	case "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Logger{}, fmt.Errorf("invalid --log-format %q", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func startDebugServer(ctx context.Context, addr string, ka net.KeepAliveConfig, log zerolog.Logger) (*http.Server, error) {
	if addr == "" {
		return nil, nil
	}

	http.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.

	lc := net.ListenConfig{KeepAliveConfig: ka}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("debug listen: %w", err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("debug serve")
		}
	}()
	log.Info().Str("addr", addr).Msg("debug listening")
	return srv, nil
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
