package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-map-etl/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// maxClassifyBody bounds the FeatureCollection accepted by POST /v1/classify.
	maxClassifyBody = 8 << 20
	maxPadDegrees   = 90
)

// LayerSource is the pipeline view the server depends on.
type LayerSource interface {
	sharedobs.ReadinessChecker
	LatestLayer() (domain.Layer, bool)
}

// Server exposes health, readiness, metrics, and marker layer endpoints.
type Server struct {
	httpServer *http.Server
	source     LayerSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// GET /v1/layer, and POST /v1/classify routes.
func NewServer(addr string, source LayerSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		source: source,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(source))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/layer", s.handleLayer)
	mux.HandleFunc("POST /v1/classify", s.handleClassify)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleLayer serves the most recently published layer, so a map client that
// joins late can draw the current state without replaying the sink topic.
// The optional pad query parameter widens the returned bounds by that many
// degrees for viewport fitting.
func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	pad, err := parsePad(r.URL.Query().Get("pad"))
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	layer, ok := s.source.LatestLayer()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no layer published yet"})
		return
	}
	if layer.Bounds != nil && pad > 0 {
		padded := layer.Bounds.Pad(pad)
		layer.Bounds = &padded
	}
	sharedobs.WriteJSON(w, http.StatusOK, layer)
}

func parsePad(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	pad, err := strconv.ParseFloat(s, 64)
	if err != nil || !(pad >= 0 && pad <= maxPadDegrees) {
		return 0, fmt.Errorf("invalid pad %q: must be between 0 and %d degrees", s, maxPadDegrees)
	}
	return pad, nil
}

// handleClassify classifies a posted FeatureCollection without touching the
// pipeline state.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxClassifyBody))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	features, err := domain.ParseFeatureCollection(body)
	if err != nil {
		s.logger.Debug("classify request rejected", "error", err)
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, domain.Classify(features))
}
