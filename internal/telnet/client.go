package telnet

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// pagerDisableWait caps how long each pager-disable probe may take; the
// whole attempt is best-effort and must not stall connect.
const pagerDisableWait = 5 * time.Second

// pagerDisableCommands are tried in order at login; the first one the device
// does not reject wins. Covers the common looking-glass platforms.
var pagerDisableCommands = []string{
	"terminal length 0",
	"set cli screen-length 0",
	"no page",
	"environment no more",
}

var syntaxErrorMarkers = []string{
	"% invalid",
	"% bad",
	"% unknown",
	"syntax error",
	"unknown command",
	"invalid input",
	"error:",
}

// Client is a session to one looking-glass device. It is constructed
// disconnected; Connect establishes and authenticates the transport, any
// transport failure drops it back to disconnected, and Close is terminal.
// Commands on one Client are strictly serialized.
type Client struct {
	cfg Config

	// mu guards conn and enforces at most one in-flight command.
	mu   sync.Mutex
	conn Conn
}

// NewClient returns a disconnected client for the given endpoint.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// Addr returns the client's dial target.
func (c *Client) Addr() string { return c.cfg.Addr() }

// Connected reports whether the client holds a live transport.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect opens the transport, consumes the banner, authenticates when
// credentials are configured, and best-effort disables output pagination.
// Any failure before authentication completes surfaces as a single
// ConnectError and leaves the client disconnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	conn, err := c.cfg.Dial(ctx, c.cfg.Addr(), c.cfg.Timeout)
	if err != nil {
		return &ConnectError{Addr: c.cfg.Addr(), Err: err}
	}
	r := &promptReader{conn: conn, prompt: []byte(c.cfg.Prompt), clock: c.cfg.Clock}

	fail := func(err error) error {
		conn.Close()
		return &ConnectError{Addr: c.cfg.Addr(), Err: err}
	}

	// Initial banner. There is no reliable prompt before login, so any
	// output counts.
	if _, err := r.readUntilPrompt(false, c.cfg.Timeout); err != nil {
		return fail(fmt.Errorf("read banner: %w", err))
	}

	if c.cfg.Username != "" {
		if err := writeLine(conn, c.cfg.Username); err != nil {
			return fail(fmt.Errorf("send username: %w", err))
		}
		if _, err := r.readUntilPrompt(false, c.cfg.Timeout); err != nil {
			return fail(fmt.Errorf("read username response: %w", err))
		}
	}
	if c.cfg.Password != "" {
		if err := writeLine(conn, c.cfg.Password); err != nil {
			return fail(fmt.Errorf("send password: %w", err))
		}
		if _, err := r.readUntilPrompt(false, c.cfg.Timeout); err != nil {
			return fail(fmt.Errorf("read password response: %w", err))
		}
	}

	c.conn = conn
	log.Printf("telnet: connected to %s", c.cfg.Addr())

	c.disablePager(r)
	return nil
}

// disablePager tries the known pager-disable commands and keeps the first
// one the device accepts. Failure is non-fatal: the framing reader answers
// pager interstitials at read time anyway.
func (c *Client) disablePager(r *promptReader) {
	wait := c.cfg.Timeout
	if wait > pagerDisableWait {
		wait = pagerDisableWait
	}
	for _, cmd := range pagerDisableCommands {
		if err := writeLine(c.conn, cmd); err != nil {
			log.Printf("telnet: %s: pager disable write failed: %v", c.cfg.Addr(), err)
			return
		}
		resp, err := r.readUntilPrompt(true, wait)
		if err != nil {
			log.Printf("telnet: %s: pager disable read failed: %v", c.cfg.Addr(), err)
			return
		}
		if !containsSyntaxError(resp.Text) {
			return
		}
	}
	log.Printf("telnet: %s: pagination could not be disabled, relying on pager interception", c.cfg.Addr())
}

func containsSyntaxError(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range syntaxErrorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Run sends one command and reads its prompt-delimited response using the
// configured timeout. It never retries; reconnect policy belongs to the
// session layer.
func (c *Client) Run(ctx context.Context, command string) (Response, error) {
	return c.RunWithTimeout(ctx, command, c.cfg.Timeout)
}

// RunWithTimeout is Run with an explicit response deadline. Used by
// keepalive probes that must give up quickly.
func (c *Client) RunWithTimeout(ctx context.Context, command string, maxWait time.Duration) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return Response{}, ErrNotConnected
	}

	fail := func(err error) (Response, error) {
		// The transport is no longer trustworthy; drop it.
		c.conn.Close()
		c.conn = nil
		return Response{}, &CommandError{Addr: c.cfg.Addr(), Command: command, Err: err}
	}

	if err := writeLine(c.conn, command); err != nil {
		return fail(err)
	}
	r := &promptReader{conn: c.conn, prompt: []byte(c.cfg.Prompt), clock: c.cfg.Clock}
	resp, err := r.readUntilPrompt(true, maxWait)
	if err != nil {
		return fail(err)
	}
	return resp, nil
}

// Close shuts the transport down. It is safe to call in any state and from
// the caller's point of view always succeeds; transport errors are logged.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		log.Printf("telnet: %s: close: %v", c.cfg.Addr(), err)
	}
	c.conn = nil
	return nil
}
