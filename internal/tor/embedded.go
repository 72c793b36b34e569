package tor

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

const defaultStartupTimeout = 3 * time.Minute

// daemon is the part of a tornago Tor process that EmbeddedTor uses.
type daemon interface {
	SocksAddr() string
	ControlAddr() string
	Stop() error
}

// launchFunc starts a Tor daemon and blocks until it has bootstrapped.
type launchFunc func(startupTimeout time.Duration) (daemon, error)

// launchTornago starts Tor through tornago on OS-assigned ports.
func launchTornago(startupTimeout time.Duration) (daemon, error) {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(startupTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return nil, err
	}
	return process, nil
}

// EmbeddedTor is the private Tor daemon behind --tor. Soundboard pages,
// manifests and MP3s are then all fetched through its SOCKS port.
type EmbeddedTor struct {
	launch         launchFunc
	startupTimeout time.Duration

	process   daemon
	bootstrap time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor instance.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout caps how long Start waits for Tor to bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates a stopped daemon manager.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{
		launch:         launchTornago,
		startupTimeout: defaultStartupTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches Tor and waits for it to bootstrap, which takes 1-3 minutes
// on a cold start. Cancelling ctx returns ctx.Err() at once; a daemon that
// comes up afterwards is stopped in the background. Calling Start on a
// running instance does nothing.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	if e.process != nil {
		return nil
	}

	type launched struct {
		process daemon
		err     error
	}
	done := make(chan launched, 1)
	begin := time.Now()
	go func() {
		p, err := e.launch(e.startupTimeout)
		done <- launched{process: p, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if l := <-done; l.err == nil {
				_ = l.process.Stop() //nolint:errcheck // nobody is left to report to
			}
		}()
		return ctx.Err()
	case l := <-done:
		if l.err != nil {
			return fmt.Errorf("start embedded Tor daemon: %w", l.err)
		}
		e.process = l.process
		e.bootstrap = time.Since(begin)
		return nil
	}
}

// Stop shuts the daemon down. It is safe to call more than once and on an
// instance that was never started.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the daemon's SOCKS5 "host:port", or "" when stopped.
func (e *EmbeddedTor) SocksAddr() string {
	if e.process == nil {
		return ""
	}
	return e.process.SocksAddr()
}

// ControlAddr returns the daemon's control port address, or "" when
// stopped. It is only logged.
func (e *EmbeddedTor) ControlAddr() string {
	if e.process == nil {
		return ""
	}
	return e.process.ControlAddr()
}

// BootstrapTime is how long the last successful Start took.
func (e *EmbeddedTor) BootstrapTime() time.Duration {
	return e.bootstrap
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// NewClient creates a SOCKS5 client for the running daemon.
// Returns ErrNotRunning if Start has not succeeded.
func (e *EmbeddedTor) NewClient(timeout time.Duration) (*Client, error) {
	if !e.IsRunning() {
		return nil, ErrNotRunning
	}
	return NewClient(e.SocksAddr(), timeout)
}
