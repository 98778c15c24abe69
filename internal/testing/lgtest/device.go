// Package lgtest provides an in-process fake looking-glass device and a
// manual clock for tests that exercise real network lifecycles without real
// servers or real sleeps.
package lgtest

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
)

// Device is a TCP stub that speaks just enough of the looking-glass dialect
// for the client under test: optional option negotiation on accept, a
// banner, a login exchange, and a command loop that answers every line with
// Respond's output followed by the prompt.
type Device struct {
	Prompt string
	Banner string
	// Negotiate, when set, sends IAC DO ECHO before the banner.
	Negotiate bool
	// Respond maps a command line to its output. Nil answers everything
	// with an empty body (pager-disable probes are accepted that way).
	Respond func(cmd string) string

	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	conns    []net.Conn
	accepted int
	lines    []string
}

// StartDevice listens on a loopback port and serves connections until the
// test ends.
func StartDevice(t *testing.T) *Device {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("lgtest: listen: %v", err)
	}
	d := &Device{
		Prompt: "#",
		Banner: "test route server\n",
		t:      t,
		ln:     ln,
	}
	t.Cleanup(d.Close)
	go d.acceptLoop()
	return d
}

// Host and Port identify the listener for client configuration.
func (d *Device) Host() string { return "127.0.0.1" }

func (d *Device) Port() int {
	return d.ln.Addr().(*net.TCPAddr).Port
}

// Accepted reports how many connections the device has seen.
func (d *Device) Accepted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

// Lines returns every command line received across all connections.
func (d *Device) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

// CountLines reports how many received lines equal cmd.
func (d *Device) CountLines(cmd string) int {
	n := 0
	for _, l := range d.Lines() {
		if l == cmd {
			n++
		}
	}
	return n
}

// DropConnections severs every live connection, simulating a transport
// failure under an established session.
func (d *Device) DropConnections() {
	d.mu.Lock()
	conns := d.conns
	d.conns = nil
	d.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Close stops the listener and drops all connections.
func (d *Device) Close() {
	d.ln.Close()
	d.DropConnections()
}

func (d *Device) acceptLoop() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.accepted++
		d.mu.Unlock()
		go d.serve(conn)
	}
}

func (d *Device) serve(conn net.Conn) {
	defer conn.Close()

	if d.Negotiate {
		conn.Write([]byte{255, 253, 1}) // IAC DO ECHO
	}
	fmt.Fprintf(conn, "%slogin: ", d.Banner)

	scanner := bufio.NewScanner(conn)

	// Login exchange: one line for the username, one for the password. The
	// client only sends them when configured, so these reads double as the
	// first command turns for unauthenticated devices.
	for _, prompt := range []string{"Password: ", d.Prompt + " "} {
		if !scanner.Scan() {
			return
		}
		d.record(scanner.Text())
		if _, err := conn.Write([]byte(prompt)); err != nil {
			return
		}
	}

	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		d.record(cmd)
		body := ""
		if d.Respond != nil {
			body = d.Respond(cmd)
		}
		if body != "" && !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		if _, err := fmt.Fprintf(conn, "%s%s ", body, d.Prompt); err != nil {
			return
		}
	}
}

func (d *Device) record(line string) {
	d.mu.Lock()
	d.lines = append(d.lines, line)
	d.mu.Unlock()
}
