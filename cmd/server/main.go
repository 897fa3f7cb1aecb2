package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zynqcloud/gunkan-blob/internal/basedir"
	"github.com/zynqcloud/gunkan-blob/internal/classifier"
	"github.com/zynqcloud/gunkan-blob/internal/config"
	"github.com/zynqcloud/gunkan-blob/internal/executor"
	"github.com/zynqcloud/gunkan-blob/internal/handler"
	"github.com/zynqcloud/gunkan-blob/internal/stats"
)

// tokenPollInterval mirrors the original's _poll_tokens heartbeat, which
// woke every 5s to drain the executors' tokens eventfds.
const tokenPollInterval = 5 * time.Second

// listenBacklog matches the original's ::listen(fd, 256).
const listenBacklog = 256

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if err == config.ErrHelpRequested {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if cfg.Daemon {
		logger.Warn("daemonize requested but unsupported on this platform, continuing in foreground")
	}

	if cfg.Init {
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			logger.Error("failed to create base directory", "err", err)
			os.Exit(1)
		}
		logger.Info("base directory initialised", "basedir", cfg.BaseDir)
		os.Exit(0)
	}

	base, err := basedir.Open(cfg.BaseDir)
	if err != nil {
		logger.Error("failed to open base directory", "err", err)
		os.Exit(1)
	}
	defer base.Close()

	if cfg.PIDFile != "" {
		if err := os.WriteFile(cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			logger.Error("failed to write pidfile", "pidfile", cfg.PIDFile, "err", err)
			os.Exit(1)
		}
		defer os.Remove(cfg.PIDFile)
	}

	listenFD, err := listenOn(cfg.Endpoint)
	if err != nil {
		logger.Error("failed to bind endpoint", "endpoint", cfg.Endpoint, "err", err)
		os.Exit(1)
	}
	defer unix.Close(listenFD)

	bank := stats.New()
	h := handler.New(cfg, base, bank)

	executors := executor.NewManager(logger)
	stop := make(chan struct{})
	executors.Start(stop)

	acc := &classifier.Acceptor{
		ListenFD:  listenFD,
		Executors: executors,
		Handler:   h.Route,
		Logger:    logger,
	}
	acceptorDone := make(chan struct{})
	go func() {
		acc.Run(stop)
		close(acceptorDone)
	}()

	logger.Info("gunkan-blob serving",
		"namespace", cfg.Namespace, "endpoint", cfg.Endpoint, "basedir", cfg.BaseDir,
		"hash_width", cfg.HashWidth, "hash_depth", cfg.HashDepth)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, shutdownSignals...)

	runUntilSignal(quit, stop, executors, logger)

	close(stop)
	<-acceptorDone
	executors.Wait()

	logger.Info("gunkan-blob stopped")
}

// runUntilSignal blocks until a shutdown signal arrives, periodically
// logging each executor's completed-task tokens — the Go analogue of the
// original's _poll_tokens loop, which woke every 5s to drain the
// executors' tokens eventfds.
func runUntilSignal(quit <-chan os.Signal, stop <-chan struct{}, executors *executor.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(tokenPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			logger.Info("shutdown signal received")
			return
		case <-stop:
			return
		case <-ticker.C:
			logger.Debug("executor tokens", "tokens", executors.TokensSnapshot())
		}
	}
}

// newLogger builds the process-lifetime structured logger, leveled by
// -q/--quiet (warn and above) or -v/--verbose (debug and above).
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case cfg.Quiet:
		level = slog.LevelWarn
	case cfg.Verbose:
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// listenOn resolves endpoint ("host:port") and returns a bound,
// listening, non-blocking socket fd — the Go analogue of the original's
// _make_server, which resolves via dill_ipaddr_local and opens a
// SOCK_NONBLOCK|SOCK_CLOEXEC socket directly rather than through
// net.Listen, since the acceptor needs the raw fd for unix.Accept4.
func listenOn(endpoint string) (int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return -1, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, fmt.Errorf("invalid endpoint port %q: %w", portStr, err)
	}

	ip, err := resolveIP(host)
	if err != nil {
		return -1, fmt.Errorf("unresolvable endpoint %q: %w", endpoint, err)
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		addr := &unix.SockaddrInet4{Port: port}
		copy(addr.Addr[:], ip4)
		sa = addr
	} else {
		domain = unix.AF_INET6
		addr := &unix.SockaddrInet6{Port: port}
		copy(addr.Addr[:], ip.To16())
		sa = addr
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// resolveIP resolves host to a single IP, treating the empty string as
// "any" (0.0.0.0).
func resolveIP(host string) (net.IP, error) {
	if host == "" {
		return net.IPv4zero, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %q", host)
	}
	return addrs[0], nil
}
