// Package server exposes the bot's HTTP surface: liveness and readiness
// probes, a JSON status snapshot, Prometheus metrics, the overlay websocket
// and the recap archive. Every request carries a correlation id.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(d Deps) http.Handler {
	h := NewHandlers(d)
	authCfg := loadAuthConfig()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.HandleFunc("/status", h.HandleStatus)
	mux.Handle("/recaps", adminAuth(http.HandlerFunc(h.HandleRecaps), authCfg))
	if d.OverlayHandler != nil {
		mux.Handle("/overlay", d.OverlayHandler)
	}
	return withCorrelation(mux)
}

// OverlayMux serves the overlay websocket at the root path, where display
// clients connect on the dedicated overlay port.
func OverlayMux(overlay http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", overlay)
	return withCorrelation(mux)
}

// Start runs an HTTP server on addr and shuts down gracefully on context
// cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// WithoutCancel keeps context values but lets shutdown complete.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.String("addr", addr), slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.String("addr", addr), slog.Any("err", err))
		return err
	}
	return nil
}
