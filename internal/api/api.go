// Package api implements the HTTP API server for redline.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprite-ai/redline/internal/logging"
	"github.com/sprite-ai/redline/internal/model"
	"github.com/sprite-ai/redline/internal/service"
	"github.com/sprite-ai/redline/internal/session"
)

// Service is the remote analysis service as the server uses it.
type Service interface {
	Analyze(ctx context.Context, filename string, r io.Reader) (*model.Analysis, error)
	Generate(ctx context.Context, filename string, r io.Reader, redactions []model.Span) ([]byte, error)
}

// Server is the redline HTTP API server.
type Server struct {
	addr   string
	mux    *http.ServeMux
	server *http.Server

	svc        Service
	undoWindow time.Duration
	maxUpload  int64
	denyList   []string
	log        zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithService sets the remote service used by the analyze and generate
// endpoints. Without one those endpoints answer 503.
func WithService(svc Service) Option {
	return func(s *Server) { s.svc = svc }
}

// WithUndoWindow sets the undo window of WebSocket review sessions.
func WithUndoWindow(d time.Duration) Option {
	return func(s *Server) { s.undoWindow = d }
}

// WithMaxUpload sets the upload size limit.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithDenyList sets the terms the local detector never reports.
func WithDenyList(terms []string) Option {
	return func(s *Server) { s.denyList = terms }
}

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a new API server.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		undoWindow: session.DefaultUndoWindow,
		maxUpload:  service.DefaultMaxUpload,
		log:        logging.Component("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.logRequests(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("POST /api/word", s.handleWord)
	s.mux.HandleFunc("POST /api/render", s.handleRender)
	s.mux.HandleFunc("POST /api/page", s.handlePage)
	s.mux.HandleFunc("POST /api/detect", s.handleDetect)
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/generate", s.handleGenerate)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.addr).Msg("redline API server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets WebSocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON decodes a JSON request body into v.
func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
