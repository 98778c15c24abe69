// Package pool implements a bounded pool of idle, already-authenticated
// telnet clients for short-request reuse. Unlike the session registry it
// enforces a per-server concurrency ceiling and reclaims connections that
// sit idle past a staleness threshold. It never retries: callers get a
// connection or a typed failure.
package pool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/openlg/lg-gateway/internal/telnet"
)

// ExhaustedError reports that a server's connection ceiling was reached
// with no idle connection to reuse.
type ExhaustedError struct {
	Server string
	Max    int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("connection pool exhausted for %s (max %d)", e.Server, e.Max)
}

type idleConn struct {
	client   *telnet.Client
	lastUsed time.Time
}

// Pool tracks, per server identity, a list of idle connections and the
// number of live ones. The mutex guards only the bookkeeping maps; dialing
// and closing happen outside it.
type Pool struct {
	maxPerServer int
	idleTimeout  time.Duration
	clock        telnet.Clock

	mu     sync.Mutex
	idle   map[string][]idleConn
	active map[string]int
}

// New returns a pool allowing maxPerServer live connections per server
// identity and reclaiming idle ones older than idleTimeout. A nil clock
// selects the system clock.
func New(maxPerServer int, idleTimeout time.Duration, clock telnet.Clock) *Pool {
	if clock == nil {
		clock = telnet.SystemClock()
	}
	return &Pool{
		maxPerServer: maxPerServer,
		idleTimeout:  idleTimeout,
		clock:        clock,
		idle:         make(map[string][]idleConn),
		active:       make(map[string]int),
	}
}

func identityKey(cfg telnet.Config) string {
	return cfg.Addr() + ":" + cfg.Username
}

// Get hands out an idle connection for the server if one exists, otherwise
// dials a fresh one, and fails immediately with ExhaustedError when the
// ceiling is reached. Connection I/O happens outside the pool lock.
func (p *Pool) Get(ctx context.Context, cfg telnet.Config) (*telnet.Client, error) {
	key := identityKey(cfg)

	p.mu.Lock()
	if conns := p.idle[key]; len(conns) > 0 {
		c := conns[len(conns)-1]
		p.idle[key] = conns[:len(conns)-1]
		p.mu.Unlock()
		return c.client, nil
	}
	if p.active[key] >= p.maxPerServer {
		p.mu.Unlock()
		return nil, &ExhaustedError{Server: key, Max: p.maxPerServer}
	}
	p.active[key]++
	p.mu.Unlock()

	client := telnet.NewClient(cfg)
	if err := client.Connect(ctx); err != nil {
		p.mu.Lock()
		if p.active[key] > 0 {
			p.active[key]--
		}
		p.mu.Unlock()
		return nil, err
	}
	return client, nil
}

// Put returns a connection to the idle list for reuse with a fresh
// timestamp. The connection is not revalidated; a dead one surfaces on its
// next use.
func (p *Pool) Put(cfg telnet.Config, client *telnet.Client) {
	key := identityKey(cfg)
	p.mu.Lock()
	p.idle[key] = append(p.idle[key], idleConn{client: client, lastUsed: p.clock.Now()})
	p.mu.Unlock()
}

// Release closes a connection instead of returning it, freeing its slot.
// Used when the caller decided the connection must not be reused.
func (p *Pool) Release(cfg telnet.Config, client *telnet.Client) {
	client.Close()
	key := identityKey(cfg)
	p.mu.Lock()
	if p.active[key] > 0 {
		p.active[key]--
	}
	p.mu.Unlock()
}

// CleanupStale closes and drops idle connections older than the staleness
// threshold, freeing their slots. Returns the number removed.
func (p *Pool) CleanupStale() int {
	now := p.clock.Now()

	p.mu.Lock()
	var stale []*telnet.Client
	for key, conns := range p.idle {
		kept := conns[:0]
		for _, c := range conns {
			if now.Sub(c.lastUsed) < p.idleTimeout {
				kept = append(kept, c)
			} else {
				stale = append(stale, c.client)
				if p.active[key] > 0 {
					p.active[key]--
				}
			}
		}
		p.idle[key] = kept
	}
	p.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	if len(stale) > 0 {
		log.Printf("pool: cleaned up %d stale connections", len(stale))
	}
	return len(stale)
}

// Sweep runs CleanupStale every interval until the context is cancelled.
func (p *Pool) Sweep(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(interval):
			p.CleanupStale()
		}
	}
}

// CloseAll closes every idle connection and clears all bookkeeping.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	var all []*telnet.Client
	total := 0
	for _, conns := range p.idle {
		for _, c := range conns {
			all = append(all, c.client)
		}
		total += len(conns)
	}
	p.idle = make(map[string][]idleConn)
	p.active = make(map[string]int)
	p.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	log.Printf("pool: closed %d pooled connections", total)
}
