package session

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openlg/lg-gateway/internal/telnet"
)

// warmupParallelism bounds concurrent connection attempts during warmup.
const warmupParallelism = 4

// Target names one server to keep a persistent session to.
type Target struct {
	Name      string
	Config    telnet.Config
	Keepalive time.Duration
}

// Manager keeps one persistent Session per server identity. Entries are
// created lazily on first request and never evicted except by CloseAll.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// identityKey is the stable key for one logical backend across reconnects.
func identityKey(cfg telnet.Config) string {
	return cfg.Addr() + ":" + cfg.Username
}

// GetSession returns the existing session for the server identity or
// inserts a new one and connects it. The registry lock is never held across
// connection I/O. When the initial connect fails the entry stays registered
// (the error is returned); the next command repairs it.
func (m *Manager) GetSession(ctx context.Context, t Target) (*Session, error) {
	key := identityKey(t.Config)

	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		s = New(t.Name, t.Config, t.Keepalive)
		m.sessions[key] = s
	}
	m.mu.Unlock()

	if ok {
		return s, nil
	}
	if err := s.Connect(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// Run executes one command on the server's persistent session.
func (m *Manager) Run(ctx context.Context, t Target, command string) (telnet.Response, error) {
	s, err := m.GetSession(ctx, t)
	if err != nil {
		return telnet.Response{}, err
	}
	return s.Run(ctx, command)
}

// WarmupAll eagerly connects every target so first queries are fast.
// Individual failures are logged and do not abort the remaining targets.
func (m *Manager) WarmupAll(ctx context.Context, targets []Target) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupParallelism)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			if _, err := m.GetSession(ctx, t); err != nil {
				log.Printf("session: warmup %s: %v", t.Name, err)
			} else {
				log.Printf("session: %s ready", t.Name)
			}
			return nil
		})
	}
	g.Wait()
}

// CloseAll cancels every keepalive, closes every session, and clears the
// registry. Used at process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	log.Printf("session: closed %d sessions", len(sessions))
}
