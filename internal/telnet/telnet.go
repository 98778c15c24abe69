// Package telnet implements the byte-stream protocol client used to talk to
// BGP looking-glass servers: login, in-band option negotiation, pager
// suppression, and prompt-delimited response framing.
package telnet

import (
	"context"
	"net"
	"strconv"
	"time"
)

const defaultPort = 23

// Conn is the bidirectional byte stream a session runs over. *net.TCPConn
// satisfies it; tests substitute scripted transports.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a transport to addr within timeout.
type DialFunc func(ctx context.Context, addr string, timeout time.Duration) (Conn, error)

func dialTCP(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Clock abstracts process-wide timing so timeout and staleness logic is
// testable without real sleeps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

// Config describes one looking-glass endpoint and how to speak to it.
type Config struct {
	Host     string
	Port     int // defaults to 23
	Username string
	Password string
	Prompt   string        // command prompt marking end-of-response, defaults to "#"
	Timeout  time.Duration // per-operation deadline, defaults to 15s

	// Dial and Clock may be set by tests; nil selects the real implementations.
	Dial  DialFunc
	Clock Clock
}

// Addr returns the host:port dial target.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Prompt == "" {
		c.Prompt = "#"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Dial == nil {
		c.Dial = dialTCP
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	return c
}

func writeLine(conn Conn, line string) error {
	_, err := conn.Write([]byte(line + "\n"))
	return err
}
