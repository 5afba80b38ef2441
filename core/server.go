package core

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Server exposes the four integration operations over HTTP, dispatching to
// processors through the registry.
type Server struct {
	registry *Registry
	logger   *slog.Logger
}

func NewServer(registry *Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry: registry,
		logger:   logger,
	}
}

// Routes registers the integration endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /integrations/{provider}/authorize", s.HandleAuthorize)
	mux.HandleFunc("GET /integrations/{provider}/oauth2callback", s.HandleOAuth2Callback)
	mux.HandleFunc("POST /integrations/{provider}/credentials", s.HandleCredentials)
	mux.HandleFunc("POST /integrations/{provider}/load", s.HandleLoad)
	mux.HandleFunc("GET /health", s.HandleHealth)
}

func (s *Server) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	processor, ok := s.processor(w, r)
	if !ok {
		return
	}

	userID, orgID, ok := formIdentity(w, r)
	if !ok {
		return
	}

	authURL, err := processor.Authorize(r.Context(), userID, orgID)
	if err != nil {
		s.respondFlowError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, authURL)
}

func (s *Server) HandleOAuth2Callback(w http.ResponseWriter, r *http.Request) {
	processor, ok := s.processor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	cb := CallbackRequest{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Error: query.Get("error"),
	}

	html, err := processor.OAuth2Callback(r.Context(), cb)
	if err != nil {
		s.respondFlowError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

func (s *Server) HandleCredentials(w http.ResponseWriter, r *http.Request) {
	processor, ok := s.processor(w, r)
	if !ok {
		return
	}

	userID, orgID, ok := formIdentity(w, r)
	if !ok {
		return
	}

	credentials, err := processor.GetCredentials(r.Context(), userID, orgID)
	if err != nil {
		s.respondFlowError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(credentials)
}

func (s *Server) HandleLoad(w http.ResponseWriter, r *http.Request) {
	processor, ok := s.processor(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid form body")
		return
	}
	credentials := r.PostFormValue("credentials")
	if credentials == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "credentials is required")
		return
	}

	items, err := processor.GetItems(r.Context(), credentials)
	if err != nil {
		s.respondFlowError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, items)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// RequestLogger tags every request with an id and logs its outcome.
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"request_id", uuid.NewString(),
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
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

// Helper functions

func (s *Server) processor(w http.ResponseWriter, r *http.Request) (Processor, bool) {
	processor, err := s.registry.Get(Provider(r.PathValue("provider")))
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_provider", "Unknown integration provider")
		return nil, false
	}
	return processor, true
}

func (s *Server) respondFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *ProviderRequestError
	switch {
	case errors.As(err, &reqErr):
		s.logger.Warn("provider request failed", "path", r.URL.Path, "status", reqErr.StatusCode)
		respondError(w, reqErr.StatusCode, "provider_request_failed", "Provider request failed")
	case errors.Is(err, ErrAuthorizationDenied):
		s.logger.Warn("authorization denied", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusBadRequest, "authorization_denied", err.Error())
	case errors.Is(err, ErrMissingState):
		respondError(w, http.StatusBadRequest, "missing_state", "State parameter missing.")
	case errors.Is(err, ErrMalformedState):
		respondError(w, http.StatusBadRequest, "malformed_state", "State parameter malformed.")
	case errors.Is(err, ErrStateMismatch):
		s.logger.Warn("state mismatch", "path", r.URL.Path)
		respondError(w, http.StatusBadRequest, "state_mismatch", "State does not match.")
	case errors.Is(err, ErrNoCredentials):
		respondError(w, http.StatusBadRequest, "no_credentials", "No credentials found.")
	case errors.Is(err, ErrMissingAccessToken):
		respondError(w, http.StatusBadRequest, "missing_access_token", "Missing access token in credentials.")
	case errors.Is(err, ErrCredentialsCorrupt):
		s.logger.Error("credentials corrupt", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "credentials_corrupt", "Failed to decode credentials.")
	default:
		s.logger.Error("integration flow failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Integration flow failed")
	}
}

func formIdentity(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid form body")
		return "", "", false
	}

	userID := r.PostFormValue("user_id")
	orgID := r.PostFormValue("org_id")
	if userID == "" || orgID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_id and org_id are required")
		return "", "", false
	}
	return userID, orgID, true
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
