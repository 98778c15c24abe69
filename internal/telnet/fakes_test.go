package telnet

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"time"
)

// fakeClock is a manually advanced Clock. The scripted transport advances it
// as read events are consumed, so timeout policy is tested without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.Now().Add(d)
	return ch
}

// connEvent is one scripted outcome of a transport read.
type connEvent struct {
	data    []byte
	timeout bool
	eof     bool
	advance time.Duration // fake time consumed by this read
}

// scriptConn replays a fixed sequence of read outcomes and records writes.
type scriptConn struct {
	clock  *fakeClock
	events []connEvent

	mu     sync.Mutex
	writes bytes.Buffer
	closed bool
}

func (c *scriptConn) Read(p []byte) (int, error) {
	if len(c.events) == 0 {
		return 0, io.EOF
	}
	ev := c.events[0]
	c.events = c.events[1:]
	if ev.advance > 0 && c.clock != nil {
		c.clock.advance(ev.advance)
	}
	switch {
	case ev.timeout:
		return 0, os.ErrDeadlineExceeded
	case ev.eof:
		return 0, io.EOF
	}
	return copy(p, ev.data), nil
}

func (c *scriptConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes.Write(p)
	return len(p), nil
}

func (c *scriptConn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.writes.Bytes()...)
}

func (c *scriptConn) SetReadDeadline(time.Time) error { return nil }

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// scriptDialer returns a DialFunc handing out the given conns in order.
func scriptDialer(conns ...*scriptConn) DialFunc {
	i := 0
	return func(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
		if i >= len(conns) {
			return nil, os.ErrDeadlineExceeded
		}
		conn := conns[i]
		i++
		return conn, nil
	}
}
