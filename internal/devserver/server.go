// Package devserver is a small in-memory emulation of the data-collection
// Web API the client consumes. It exists for offline development and
// integration tests; it is not a production server.
package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/xavim/fieldentry/internal/config"
	pkglogger "github.com/xavim/fieldentry/pkg/logger"
)

type contextKey string

const usernameKey contextKey = "username"

// Server bundles the fixture store, token manager, and router.
type Server struct {
	store  *Store
	tokens *TokenManager
	logger *slog.Logger
	cfg    config.DevServerConfig
}

// New creates a dev server over the given store.
func New(store *Store, cfg config.DevServerConfig, logger *slog.Logger) *Server {
	return &Server{
		store:  store,
		tokens: NewTokenManager(cfg.TokenSecret, cfg.TokenExpiry),
		logger: logger,
		cfg:    cfg,
	}
}

// Router builds the chi router with the full API surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	loginLimit := httprate.Limit(
		s.cfg.LoginRatePerMin,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many login attempts")
		}),
	)

	r.With(loginLimit).Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Delete("/api/auth/login", s.handleLogout)
		r.Get("/api/me", s.handleMe)
		r.Get("/api/dataSets", s.handleDatasets)
		r.Get("/api/dataSets/{uid}/form", s.handleForm)
		r.Get("/api/dataSets/{uid}/organisationUnits", s.handleOrgUnits)
		r.Get("/api/completeDataSetRegistrations", s.handleInstances)
		r.Post("/api/completeDataSetRegistrations", s.handleComplete)
		r.Delete("/api/completeDataSetRegistrations", s.handleReopen)
		r.Get("/api/dataValueSets", s.handleGetValues)
		r.Post("/api/dataValueSets", s.handlePostValues)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	return r
}

// requestLogger logs each request with sensitive query values redacted.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if pkglogger.SanitizeQueryString(r.URL.RawQuery) {
			path += "?[REDACTED]"
		} else if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		s.logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
			slog.String("method", r.Method),
			slog.String("path", path),
			slog.Int("status", wrapped.Status()),
			slog.String("duration", time.Since(start).String()),
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			slog.String("remote_addr", r.RemoteAddr),
		)
	})
}

// requireAuth validates the bearer token and stores the subject in context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
			return
		}

		username, err := s.tokens.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestUsername(r *http.Request) string {
	username, _ := r.Context().Value(usernameKey).(string)
	return username
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
