package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/usecase"
)

// WebServer exposes the operational HTTP surface: health, stats and
// Prometheus metrics.
type WebServer struct {
	state   *usecase.StateUsecase
	metrics *usecase.Metrics
	srv     *http.Server
	started time.Time
}

// NewWebServer creates the HTTP server listening on addr.
func NewWebServer(addr string, state *usecase.StateUsecase, metrics *usecase.Metrics) *WebServer {
	w := &WebServer{state: state, metrics: metrics, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", w.handleHealth)
	mux.HandleFunc("/stats", w.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	w.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return w
}

// Start serves until Stop. Blocks.
func (w *WebServer) Start() error {
	fmt.Printf("[Web] Listening on %s\n", w.srv.Addr)
	if err := w.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (w *WebServer) Stop(ctx context.Context) error {
	return w.srv.Shutdown(ctx)
}

func (w *WebServer) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("ok"))
}

func (w *WebServer) handleStats(rw http.ResponseWriter, _ *http.Request) {
	snap := w.metrics.Snapshot()
	cfg := w.state.Config()
	payload := map[string]any{
		"pending":       snap.Pending,
		"approved":      snap.Approved,
		"rejected":      snap.Rejected,
		"sources":       w.metrics.SourceCount(),
		"allowlisted":   w.state.AllowCount(),
		"blocklisted":   w.state.BlockCount(),
		"buttons":       len(domain.RenderButtons(w.state.Buttons())),
		"strict":        cfg.StrictTemplate,
		"allowlistMode": cfg.AllowlistMode,
		"uptimeSec":     int(time.Since(w.started).Seconds()),
	}
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(payload)
}
