package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/openlg/lg-gateway/internal/api"
	"github.com/openlg/lg-gateway/internal/config"
	"github.com/openlg/lg-gateway/internal/database"
	"github.com/openlg/lg-gateway/internal/pool"
	"github.com/openlg/lg-gateway/internal/session"
)

func main() {
	config.Load()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	servers, err := config.LoadServers(config.Cfg.ServersFile)
	if err != nil {
		log.Fatalf("Load servers: %v", err)
	}
	log.Printf("Loaded %d servers (%d enabled)", len(servers.All()), len(servers.Enabled()))

	sessions := session.NewManager()
	connPool := pool.New(
		config.Cfg.MaxConnections,
		time.Duration(config.Cfg.ConnectionIdleTimeout)*time.Second,
		nil,
	)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go connPool.Sweep(sigCtx, time.Minute)

	if config.Cfg.WarmupOnStart {
		go func() {
			targets := make([]session.Target, 0, len(servers.Enabled()))
			for _, s := range servers.Enabled() {
				targets = append(targets, session.Target{
					Name:      s.Name,
					Config:    s.ClientConfig(),
					Keepalive: s.Keepalive(),
				})
			}
			sessions.WarmupAll(sigCtx, targets)
		}()
	}

	h := &api.Handlers{
		Servers:  servers,
		Sessions: sessions,
		Pool:     connPool,
	}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", h.HealthCheck)

	// Client-facing query routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/route-lookup", h.RouteLookup)
		r.Post("/query", h.Query)
		r.Get("/servers", h.ListServers)
	})

	// Management API
	r.Route("/admin", func(r chi.Router) {
		r.Use(api.AdminAuth)

		r.Get("/queries", h.QueryHistory)
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("LG Gateway starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	sessions.CloseAll()
	connPool.CloseAll()
	log.Println("LG Gateway stopped")
}
