package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docforge/gitbridge/internal/bridge"
)

type ServerConfig struct {
	JWTSecret          string
	InternalHMACSecret string
	InternalMaxSkew    time.Duration
	MaxBodyBytes       int64
}

// Server exposes the bridge over HTTP: version-gated pulls, the async push
// entry point, the push-job listing, the websocket event feed, and the
// HMAC-signed internal expiry hook.
type Server struct {
	snapshots    *bridge.SnapshotReader
	orchestrator *bridge.Orchestrator
	cfg          ServerConfig

	internalReplayMu   sync.Mutex
	internalReplaySeen map[string]time.Time
}

func NewServer(snapshots *bridge.SnapshotReader, orchestrator *bridge.Orchestrator, cfg ServerConfig) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.InternalHMACSecret == "" {
		cfg.InternalHMACSecret = "dev-internal-secret"
	}
	if cfg.InternalMaxSkew == 0 {
		cfg.InternalMaxSkew = 5 * time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{
		snapshots:          snapshots,
		orchestrator:       orchestrator,
		cfg:                cfg,
		internalReplaySeen: map[string]time.Time{},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v0" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}

	if parts[2] == "internal" {
		if len(parts) == 6 && parts[3] == "projects" && parts[5] == "expire" && r.Method == http.MethodPost {
			s.handleExpireProject(w, r, parts[4])
			return
		}
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}

	if parts[2] == "events" && len(parts) == 3 && r.Method == http.MethodGet {
		s.handleEvents(w, r)
		return
	}
	if parts[2] == "jobs" && len(parts) == 3 && r.Method == http.MethodGet {
		s.handleJobs(w, r)
		return
	}

	if parts[2] != "docs" || len(parts) < 4 {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	projectID := parts[3]

	var requiredScope string
	var route string
	switch {
	case len(parts) == 4 && r.Method == http.MethodGet:
		requiredScope = "docs:read"
		route = "doc_info"
	case len(parts) == 5 && parts[4] == "saved_vers" && r.Method == http.MethodGet:
		requiredScope = "docs:read"
		route = "saved_vers"
	case len(parts) == 6 && parts[4] == "snapshots" && r.Method == http.MethodGet:
		requiredScope = "docs:read"
		route = "snapshot"
	case len(parts) == 5 && parts[4] == "snapshots" && r.Method == http.MethodPost:
		requiredScope = "docs:write"
		route = "push"
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}

	claims, authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, projectID, requiredScope, time.Now().UTC())
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}

	switch route {
	case "doc_info":
		s.handleDocInfo(w, r, projectID)
	case "saved_vers":
		s.handleSavedVers(w, r, projectID)
	case "snapshot":
		s.handleSnapshot(w, r, projectID, parts[5])
	case "push":
		s.handlePush(w, r, projectID, claims)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handleDocInfo(w http.ResponseWriter, r *http.Request, projectID string) {
	info, err := s.snapshots.GetDocInfo(r.Context(), projectID)
	if err != nil {
		s.writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSavedVers(w http.ResponseWriter, r *http.Request, projectID string) {
	saved, err := s.snapshots.GetSavedVers(r.Context(), projectID)
	if err != nil {
		s.writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, projectID, rawVersion string) {
	version, err := strconv.Atoi(rawVersion)
	if err != nil || version < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid version")
		return
	}
	snapshot, err := s.snapshots.GetSnapshot(r.Context(), projectID, version)
	if err != nil {
		s.writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request, projectID string, claims tokenClaims) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	if schemaErr := validatePushBody(body); schemaErr != nil {
		writeError(w, http.StatusBadRequest, "bad_request", schemaErr.Error())
		return
	}
	var req bridge.PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}

	actorID := claims.Subject
	if actorID == "" {
		actorID = "git-bridge"
	}
	ack, err := s.orchestrator.AcceptPush(r.Context(), projectID, req, actorID)
	if err != nil {
		s.writeBridgeError(w, err)
		return
	}
	writeJSON(w, ack.Status, map[string]any{
		"status":  ack.Status,
		"code":    ack.Code,
		"message": ack.Message,
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if _, authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, "", "docs:read", time.Now().UTC()); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	limit := parseBoundedInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	jobs, err := s.orchestrator.RecentJobs(strings.TrimSpace(r.URL.Query().Get("projectId")), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleExpireProject(w http.ResponseWriter, r *http.Request, projectID string) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	now := time.Now().UTC()
	if authErr := verifyInternalHMAC(
		s.cfg.InternalHMACSecret,
		r.Header.Get("X-Bridge-Timestamp"),
		r.Header.Get("X-Bridge-Signature"),
		body,
		now,
		s.cfg.InternalMaxSkew,
	); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	if !s.markInternalReplaySeen(r.Header.Get("X-Bridge-Timestamp"), r.Header.Get("X-Bridge-Signature"), now) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "internal request replay detected")
		return
	}

	if err := s.orchestrator.ExpireProject(r.Context(), projectID); err != nil {
		s.writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "expired", "projectId": projectID})
}

func (s *Server) writeBridgeError(w http.ResponseWriter, err error) {
	var pathErr *bridge.PathValidationError
	switch {
	case errors.Is(err, bridge.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "project or version not found")
	case errors.As(err, &pathErr):
		writeError(w, http.StatusBadRequest, "invalid_path", pathErr.Error())
	case errors.Is(err, bridge.ErrOutOfDate):
		writeError(w, http.StatusConflict, "out_of_date", "Out of Date")
	case errors.Is(err, bridge.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) markInternalReplaySeen(timestamp, signature string, now time.Time) bool {
	key := timestamp + "|" + signature
	s.internalReplayMu.Lock()
	defer s.internalReplayMu.Unlock()
	cutoff := now.Add(-2 * s.cfg.InternalMaxSkew)
	for seenKey, seenAt := range s.internalReplaySeen {
		if seenAt.Before(cutoff) {
			delete(s.internalReplaySeen, seenKey)
		}
	}
	if _, seen := s.internalReplaySeen[key]; seen {
		return false
	}
	s.internalReplaySeen[key] = now
	return true
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

func parseBoundedInt(raw string, fallback, min, max int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	if parsed < min {
		return fallback
	}
	if parsed > max {
		return max
	}
	return parsed
}
