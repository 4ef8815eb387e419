// Package server exposes the HTTP surface of the bot: liveness and readiness
// health checks, Prometheus metrics and a read-only JSON view of the episode ledger
// (the "Data" link placed in the channel topic).
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/d3vgru/easy-peasy-bot/ledger"
)

// Deps are the components the HTTP handlers read from.
type Deps struct {
	Ledger *ledger.Ledger
	// Connected reports whether the chat transport has a live session. Nil
	// means no transport runs in this process.
	Connected func() bool
}

// NewMux returns the router with every route mounted. ctx bounds the rate
// limiter's cleanup goroutine.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	h := &handlers{ledger: deps.Ledger, connected: deps.Connected}
	limiter := newIPRateLimiter(ctx, loadRateLimiterConfig())

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlate)
	r.Use(loadCORSConfig().cors)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	r.Group(func(r chi.Router) {
		r.Use(limiter.limit)
		r.Get("/episodes", h.listEpisodes)
		r.Get("/episodes/{code}", h.getEpisode)
		r.Get("/seasons/{season}/episodes", h.listSeason)
	})
	return r
}

// Start serves on addr until ctx ends, then shuts down gracefully.
func Start(ctx context.Context, deps Deps, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, deps, ln)
}

// Serve is Start on an existing listener.
func Serve(ctx context.Context, deps Deps, ln net.Listener) error {
	srv := &http.Server{
		Handler:           NewMux(ctx, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.String("component", "http"), slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("component", "http"), slog.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.String("component", "http"), slog.Any("err", err))
		return err
	}
	return nil
}
