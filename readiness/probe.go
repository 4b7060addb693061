// Package readiness waits for a TCP port on a freshly installed host to accept connections.
package readiness

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultPort     = 22
	DefaultTimeout  = 30 * time.Minute
	DefaultInterval = 30 * time.Second
	// DialTimeout bounds a single connection attempt.
	DialTimeout = 5 * time.Second
)

// Prober dials a port until it answers.
type Prober struct {
	Logger      logr.Logger
	DialTimeout time.Duration
	dial        func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewProber returns a Prober using a net.Dialer with DialTimeout per attempt.
func NewProber(log logr.Logger) *Prober {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	p := &Prober{Logger: log, DialTimeout: DialTimeout}
	d := &net.Dialer{Timeout: p.DialTimeout}
	p.dial = d.DialContext
	return p
}

// AwaitPort attempts a connection every interval until one succeeds or timeout elapses.
// Every connect error, DNS failures included, means not ready yet and is never returned.
func (p *Prober) AwaitPort(ctx context.Context, host string, port int, timeout, interval time.Duration) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	log := p.Logger.WithValues("address", addr)
	if timeout <= 0 {
		return false
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	attempt := 0
	b := retry.WithMaxDuration(timeout, retry.NewConstant(interval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		dctx, cancel := context.WithTimeout(ctx, p.DialTimeout)
		defer cancel()
		conn, err := p.dial(dctx, "tcp", addr)
		if err != nil {
			log.V(1).Info("port not ready", "attempt", attempt, "err", err.Error())
			return retry.RetryableError(err)
		}
		_ = conn.Close()
		return nil
	})
	if err != nil {
		log.Info("port did not become ready", "attempts", attempt, "timeout", timeout.String())
		return false
	}
	log.Info("port ready", "attempts", attempt)

	return true
}
