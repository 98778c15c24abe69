package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openlg/lg-gateway/internal/config"
	"github.com/openlg/lg-gateway/internal/database"
	"github.com/openlg/lg-gateway/internal/pool"
	"github.com/openlg/lg-gateway/internal/session"
	"github.com/openlg/lg-gateway/internal/telnet"
	"github.com/openlg/lg-gateway/internal/validation"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Handlers bundles the dependencies the HTTP layer needs. Everything is
// injected so tests can run against stub devices and a temp database.
type Handlers struct {
	Servers  *config.Registry
	Sessions *session.Manager
	Pool     *pool.Pool
}

// HealthCheck returns gateway health status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// resolveServer picks the named server, or the first enabled one when the
// request leaves the name empty. Writes the error response itself on failure.
func (h *Handlers) resolveServer(w http.ResponseWriter, name string) *config.Server {
	if name == "" {
		enabled := h.Servers.Enabled()
		if len(enabled) == 0 {
			writeError(w, http.StatusServiceUnavailable, "No servers enabled")
			return nil
		}
		return enabled[0]
	}
	srv := h.Servers.Get(name)
	if srv == nil {
		writeError(w, http.StatusNotFound, "Unknown server: "+name)
		return nil
	}
	if !srv.IsEnabled() {
		writeError(w, http.StatusForbidden, "Server is disabled: "+name)
		return nil
	}
	return srv
}

type queryResult struct {
	Server          string  `json:"server"`
	Command         string  `json:"command"`
	Output          string  `json:"output"`
	Partial         bool    `json:"partial"`
	AddressFamily   string  `json:"address_family,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func audit(server, command string, resp telnet.Response, runErr error, started time.Time) {
	rec := &database.QueryRecord{
		ServerName:    server,
		Command:       command,
		Status:        "ok",
		ResponseBytes: len(resp.Text),
		DurationMs:    time.Since(started).Milliseconds(),
	}
	switch {
	case runErr != nil:
		rec.Status = "error"
		rec.Error = runErr.Error()
	case resp.Partial:
		rec.Status = "partial"
	}
	database.RecordQuery(rec)
}

// RouteLookup runs the server's route command for a validated destination on
// the server's persistent session.
func (h *Handlers) RouteLookup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Server      string `json:"server"`
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validation.ValidateDestination(body.Destination); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	srv := h.resolveServer(w, body.Server)
	if srv == nil {
		return
	}
	command := srv.RouteLookupCommand(body.Destination)

	started := time.Now()
	resp, err := h.Sessions.Run(r.Context(), session.Target{
		Name:      srv.Name,
		Config:    srv.ClientConfig(),
		Keepalive: srv.Keepalive(),
	}, command)
	audit(srv.Name, command, resp, err, started)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, queryResult{
		Server:          srv.Name,
		Command:         command,
		Output:          resp.Text,
		Partial:         resp.Partial,
		AddressFamily:   validation.AddressFamily(body.Destination),
		DurationSeconds: time.Since(started).Seconds(),
	})
}

// Query runs an arbitrary command through the bounded connection pool. The
// connection is returned for reuse on success and discarded on failure.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Server  string `json:"server"`
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	srv := h.resolveServer(w, body.Server)
	if srv == nil {
		return
	}
	cfg := srv.ClientConfig()

	started := time.Now()
	client, err := h.Pool.Get(r.Context(), cfg)
	if err != nil {
		var ex *pool.ExhaustedError
		if errors.As(err, &ex) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		audit(srv.Name, body.Command, telnet.Response{}, err, started)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp, err := client.Run(r.Context(), body.Command)
	audit(srv.Name, body.Command, resp, err, started)
	if err != nil {
		h.Pool.Release(cfg, client)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.Pool.Put(cfg, client)

	writeJSON(w, http.StatusOK, queryResult{
		Server:          srv.Name,
		Command:         body.Command,
		Output:          resp.Text,
		Partial:         resp.Partial,
		DurationSeconds: time.Since(started).Seconds(),
	})
}

// ListServers returns the inventory without credentials.
func (h *Handlers) ListServers(w http.ResponseWriter, r *http.Request) {
	type serverInfo struct {
		Name    string `json:"name"`
		Host    string `json:"host"`
		Port    int    `json:"port"`
		Enabled bool   `json:"enabled"`
	}
	out := make([]serverInfo, 0, len(h.Servers.All()))
	for _, s := range h.Servers.All() {
		out = append(out, serverInfo{
			Name:    s.Name,
			Host:    s.Host,
			Port:    s.Port,
			Enabled: s.IsEnabled(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// QueryHistory returns recent audit rows, newest first.
func (h *Handlers) QueryHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	query := database.DB.Model(&database.QueryRecord{}).Order("id DESC").Limit(limit)
	if server := r.URL.Query().Get("server"); server != "" {
		query = query.Where("server_name = ?", server)
	}

	var records []database.QueryRecord
	if err := query.Find(&records).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load query history")
		return
	}
	writeJSON(w, http.StatusOK, records)
}
