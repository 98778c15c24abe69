// Package session maintains persistent, self-healing connections to
// looking-glass servers: one long-lived session per server identity, kept
// warm by periodic keepalives and transparently reconnected when a command
// fails.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/openlg/lg-gateway/internal/telnet"
)

const (
	// maxAttempts bounds the reconnect-and-retry loop around one command.
	maxAttempts = 2
	// retryBackoff is the fixed pause between attempts.
	retryBackoff = time.Second
	// keepaliveProbeWait caps how long a keepalive waits for its echo.
	keepaliveProbeWait = 5 * time.Second
	// defaultKeepalive is used when no interval is configured.
	defaultKeepalive = time.Minute
)

// Session owns one persistent connection to a server. Commands are strictly
// serialized by the underlying client; the session only adds reconnect and
// keepalive policy on top.
type Session struct {
	name      string
	cfg       telnet.Config
	keepalive time.Duration
	clock     telnet.Clock

	mu     sync.Mutex
	client *telnet.Client

	stopOnce sync.Once
	stop     chan struct{}
	kaOnce   sync.Once
}

// New returns an unconnected session. keepalive <= 0 selects the default
// interval.
func New(name string, cfg telnet.Config, keepalive time.Duration) *Session {
	if cfg.Clock == nil {
		cfg.Clock = telnet.SystemClock()
	}
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	return &Session{
		name:      name,
		cfg:       cfg,
		keepalive: keepalive,
		clock:     cfg.Clock,
		stop:      make(chan struct{}),
	}
}

// Name returns the session's display name.
func (s *Session) Name() string { return s.name }

// Connect establishes the connection unless one is already live. The
// keepalive loop starts on the first success.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.client != nil && s.client.Connected() {
		return nil
	}
	client := telnet.NewClient(s.cfg)
	if err := client.Connect(ctx); err != nil {
		s.client = nil
		return err
	}
	s.client = client
	s.kaOnce.Do(func() { go s.keepaliveLoop() })
	return nil
}

// Run sends one command, reconnecting if the transport is gone and retrying
// once after a failure with a fixed backoff. The last error is returned when
// every attempt fails.
func (s *Session) Run(ctx context.Context, command string) (telnet.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-s.clock.After(retryBackoff):
			case <-ctx.Done():
				return telnet.Response{}, ctx.Err()
			}
		}

		s.mu.Lock()
		if s.client == nil || !s.client.Connected() {
			if err := s.connectLocked(ctx); err != nil {
				s.mu.Unlock()
				lastErr = err
				log.Printf("session %s: reconnect failed (attempt %d/%d): %v", s.name, attempt, maxAttempts, err)
				continue
			}
		}
		client := s.client
		s.mu.Unlock()

		resp, err := client.Run(ctx, command)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		log.Printf("session %s: command failed (attempt %d/%d): %v", s.name, attempt, maxAttempts, err)

		// Drop the dead connection so the next attempt dials fresh.
		s.mu.Lock()
		if s.client != nil {
			s.client.Close()
			s.client = nil
		}
		s.mu.Unlock()
	}
	return telnet.Response{}, fmt.Errorf("command failed after %d attempts: %w", maxAttempts, lastErr)
}

// keepaliveLoop periodically sends an empty command so idle sessions are not
// dropped by the server. A failed keepalive is only logged; repairing the
// connection is the next real command's job.
func (s *Session) keepaliveLoop() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.clock.After(s.keepalive):
		}

		s.mu.Lock()
		client := s.client
		s.mu.Unlock()
		if client == nil || !client.Connected() {
			continue
		}
		if _, err := client.RunWithTimeout(context.Background(), "", keepaliveProbeWait); err != nil {
			log.Printf("session %s: keepalive failed, connection may be stale: %v", s.name, err)
		}
	}
}

// Close stops the keepalive loop and closes the connection. Always succeeds.
func (s *Session) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}
