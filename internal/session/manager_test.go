package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/openlg/lg-gateway/internal/telnet"
	"github.com/openlg/lg-gateway/internal/testing/lgtest"
)

func deviceTarget(d *lgtest.Device, keepalive time.Duration) Target {
	return Target{
		Name: "test-server",
		Config: telnet.Config{
			Host:     d.Host(),
			Port:     d.Port(),
			Username: "rviews",
			Password: "rviews",
			Prompt:   "#",
			Timeout:  5 * time.Second,
		},
		Keepalive: keepalive,
	}
}

func TestManagerReusesSession(t *testing.T) {
	d := lgtest.StartDevice(t)
	m := NewManager()
	defer m.CloseAll()

	target := deviceTarget(d, time.Hour)

	s1, err := m.GetSession(context.Background(), target)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	s2, err := m.GetSession(context.Background(), target)
	if err != nil {
		t.Fatalf("second GetSession: %v", err)
	}
	if s1 != s2 {
		t.Error("GetSession created a second session for the same identity")
	}
	if d.Accepted() != 1 {
		t.Errorf("device accepted %d connections, want 1", d.Accepted())
	}
}

func TestManagerRunQueriesDevice(t *testing.T) {
	d := lgtest.StartDevice(t)
	d.Respond = func(cmd string) string {
		if strings.HasPrefix(cmd, "show route") {
			return "8.8.8.0/24 via AS15169"
		}
		return ""
	}
	m := NewManager()
	defer m.CloseAll()

	resp, err := m.Run(context.Background(), deviceTarget(d, time.Hour), "show route 8.8.8.8")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(resp.Text, "AS15169") {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestSessionReconnectsAfterSeveredTransport(t *testing.T) {
	d := lgtest.StartDevice(t)
	d.Respond = func(cmd string) string {
		if strings.HasPrefix(cmd, "show route") {
			return "route entry"
		}
		return ""
	}
	m := NewManager()
	defer m.CloseAll()

	target := deviceTarget(d, time.Hour)
	if _, err := m.Run(context.Background(), target, "show route 8.8.8.8"); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Sever the transport under the established session. The next command's
	// first attempt fails; the retry reconnects and succeeds.
	d.DropConnections()

	resp, err := m.Run(context.Background(), target, "show route 8.8.8.8")
	if err != nil {
		t.Fatalf("Run after sever: %v", err)
	}
	if !strings.Contains(resp.Text, "route entry") {
		t.Errorf("Text = %q", resp.Text)
	}
	if d.Accepted() < 2 {
		t.Errorf("device accepted %d connections, want a reconnect", d.Accepted())
	}
}

func TestSessionRunConnectsOnDemand(t *testing.T) {
	d := lgtest.StartDevice(t)
	target := deviceTarget(d, time.Hour)
	s := New(target.Name, target.Config, target.Keepalive)
	defer s.Close()

	if _, err := s.Run(context.Background(), "show ip bgp summary"); err != nil {
		t.Fatalf("Run on unconnected session: %v", err)
	}
	if d.Accepted() != 1 {
		t.Errorf("device accepted %d connections, want 1", d.Accepted())
	}
}

func TestSessionRunExhaustsAttempts(t *testing.T) {
	d := lgtest.StartDevice(t)
	target := deviceTarget(d, time.Hour)
	s := New(target.Name, target.Config, target.Keepalive)
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Kill the device entirely: both attempts must fail and the last error
	// surfaces with the attempt count.
	d.Close()

	_, err := s.Run(context.Background(), "show route 8.8.8.8")
	if err == nil {
		t.Fatal("Run succeeded against a dead device")
	}
	if !strings.Contains(err.Error(), "after 2 attempts") {
		t.Errorf("err = %v, want attempt count", err)
	}
}

func TestSessionKeepalive(t *testing.T) {
	d := lgtest.StartDevice(t)
	target := deviceTarget(d, 25*time.Millisecond)
	s := New(target.Name, target.Config, target.Keepalive)
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.CountLines("") > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("no keepalive probe reached the device")
}

func TestManagerWarmupAll(t *testing.T) {
	d1 := lgtest.StartDevice(t)
	d2 := lgtest.StartDevice(t)
	m := NewManager()
	defer m.CloseAll()

	t1 := deviceTarget(d1, time.Hour)
	t2 := deviceTarget(d2, time.Hour)
	t2.Name = "test-server-2"

	// One unreachable target must not abort the others.
	broken := t2
	broken.Name = "broken"
	broken.Config.Host = "127.0.0.1"
	broken.Config.Port = 1 // nothing listens here
	broken.Config.Timeout = 500 * time.Millisecond

	m.WarmupAll(context.Background(), []Target{t1, t2, broken})

	if d1.Accepted() != 1 || d2.Accepted() != 1 {
		t.Errorf("accepted = %d/%d, want 1/1", d1.Accepted(), d2.Accepted())
	}
}

func TestManagerCloseAll(t *testing.T) {
	d := lgtest.StartDevice(t)
	m := NewManager()

	target := deviceTarget(d, time.Hour)
	if _, err := m.GetSession(context.Background(), target); err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	m.CloseAll()

	// The registry is empty again: the same identity dials fresh.
	if _, err := m.GetSession(context.Background(), target); err != nil {
		t.Fatalf("GetSession after CloseAll: %v", err)
	}
	if d.Accepted() != 2 {
		t.Errorf("device accepted %d connections, want 2", d.Accepted())
	}
}
