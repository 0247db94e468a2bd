// Package httpserver serves the JSON API and the server-rendered post pages.
package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/blackmichael/postboard/internal/auth"
	"github.com/blackmichael/postboard/internal/config"
	"github.com/blackmichael/postboard/internal/domain"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Server is the HTTP server that serves the posts API and pages.
type Server struct {
	cfg         *config.Config
	postService *domain.PostService
	events      http.Handler
	tokens      *auth.Tokens
	pages       *pageRenderer
	logger      *slog.Logger
	httpServer  *http.Server
}

// NewServer creates a new HTTP server over the post service. events serves
// the websocket change stream and may be nil.
func NewServer(
	cfg *config.Config,
	postService *domain.PostService,
	events http.Handler,
	tokens *auth.Tokens,
	logger *slog.Logger,
) (*Server, error) {
	pages, err := newPageRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	s := &Server{
		cfg:         cfg,
		postService: postService,
		events:      events,
		tokens:      tokens,
		pages:       pages,
		logger:      logger,
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler builds the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/posts", s.handleListPosts)
	api.HandleFunc("POST /api/posts", s.handleCreatePost)
	api.HandleFunc("GET /api/posts/{id}", s.handleGetPost)
	api.HandleFunc("PATCH /api/posts/{id}", s.handleUpdatePost)
	api.HandleFunc("PUT /api/posts/{id}", s.handleUpdatePost)
	api.HandleFunc("DELETE /api/posts/{id}", s.handleDeletePost)
	if s.events != nil {
		api.Handle("GET /api/posts/events", s.events)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	// Pages authenticate with the token cookie, so unsafe methods from other
	// sites are refused.
	crossOrigin := http.NewCrossOriginProtection()
	page := func(h http.HandlerFunc) http.Handler {
		return crossOrigin.Handler(h)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", corsHandler.Handler(api))
	mux.HandleFunc("GET /posts", s.handleIndexPage)
	mux.Handle("POST /posts", page(s.handleStorePage))
	mux.HandleFunc("GET /posts/{id}", s.handleShowPage)
	mux.Handle("POST /posts/{id}", page(s.handleFormOverride))
	mux.Handle("PATCH /posts/{id}", page(s.handleUpdatePage))
	mux.Handle("PUT /posts/{id}", page(s.handleUpdatePage))
	mux.Handle("DELETE /posts/{id}", page(s.handleDeletePage))
	mux.HandleFunc("GET /images/{name}", s.handleImage)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /{$}", http.RedirectHandler("/posts", http.StatusFound))

	handler := auth.Middleware(s.tokens, s.logger)(withRouteName(mux))
	handler = withLogging(s.logger, handler)
	return otelhttp.NewHandler(handler, "postboard",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return spanName(r)
		}),
	)
}

// spanName names a span after the matched route pattern, never the raw path.
func spanName(r *http.Request) string {
	switch {
	case r.Pattern == "":
		return r.Method
	case strings.HasPrefix(r.Pattern, r.Method+" "):
		return r.Pattern
	default:
		return r.Method + " " + r.Pattern
	}
}

// withRouteName renames the request span once the mux has matched a pattern.
// Nested muxes set the pattern on the same request, so the innermost wins.
func withRouteName(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if r.Pattern != "" {
			trace.SpanFromContext(r.Context()).SetName(spanName(r))
		}
	})
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.status = http.StatusSwitchingProtocols
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
