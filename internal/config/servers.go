package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openlg/lg-gateway/internal/telnet"
)

// Server describes one looking-glass device in the inventory file.
type Server struct {
	Name             string `yaml:"name" json:"name"`
	Host             string `yaml:"host" json:"host"`
	Port             int    `yaml:"port" json:"port"`
	Username         string `yaml:"username" json:"username"`
	Password         string `yaml:"password" json:"password"`
	Prompt           string `yaml:"prompt" json:"prompt"`
	TimeoutSeconds   int    `yaml:"timeout" json:"timeout"`
	KeepaliveSeconds int    `yaml:"keepalive_interval" json:"keepalive_interval"`
	RouteCommand     string `yaml:"route_command" json:"route_command"`
	Enabled          *bool  `yaml:"enabled" json:"enabled"`
}

func (s *Server) applyDefaults() {
	if s.Port == 0 {
		s.Port = 23
	}
	if s.Prompt == "" {
		s.Prompt = "#"
	}
	if s.TimeoutSeconds == 0 {
		s.TimeoutSeconds = 20
	}
	if s.KeepaliveSeconds == 0 {
		s.KeepaliveSeconds = 60
	}
	if s.RouteCommand == "" {
		s.RouteCommand = "show route %s"
	}
}

// IsEnabled reports whether the server accepts queries. Absent means enabled.
func (s *Server) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ClientConfig builds the telnet configuration for this server.
func (s *Server) ClientConfig() telnet.Config {
	return telnet.Config{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		Prompt:   s.Prompt,
		Timeout:  time.Duration(s.TimeoutSeconds) * time.Second,
	}
}

// Keepalive returns the configured keepalive interval.
func (s *Server) Keepalive() time.Duration {
	return time.Duration(s.KeepaliveSeconds) * time.Second
}

// RouteLookupCommand renders the device command for one destination.
func (s *Server) RouteLookupCommand(dest string) string {
	return fmt.Sprintf(s.RouteCommand, dest)
}

// Registry holds the loaded server inventory with stable ordering.
type Registry struct {
	servers []*Server
	byName  map[string]*Server
}

// NewRegistry builds a registry from an already-validated server list.
func NewRegistry(servers []*Server) *Registry {
	byName := make(map[string]*Server, len(servers))
	for _, s := range servers {
		byName[s.Name] = s
	}
	return &Registry{servers: servers, byName: byName}
}

// Get returns the server with the given name, or nil.
func (r *Registry) Get(name string) *Server {
	return r.byName[name]
}

// All returns every server in file order.
func (r *Registry) All() []*Server {
	return r.servers
}

// Enabled returns the servers currently accepting queries, in file order.
func (r *Registry) Enabled() []*Server {
	out := make([]*Server, 0, len(r.servers))
	for _, s := range r.servers {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

// LoadServers reads the server inventory from a YAML or JSON file (picked by
// extension), applies per-server defaults, and rejects duplicate names.
func LoadServers(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read servers file: %w", err)
	}

	var servers []*Server
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &servers); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &servers); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	seen := make(map[string]bool, len(servers))
	for i, s := range servers {
		if s.Name == "" {
			return nil, fmt.Errorf("server #%d: name is required", i+1)
		}
		if s.Host == "" {
			return nil, fmt.Errorf("server %s: host is required", s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate server name %q", s.Name)
		}
		seen[s.Name] = true
		s.applyDefaults()
	}
	return NewRegistry(servers), nil
}
