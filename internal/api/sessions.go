package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// handleSessions handles GET /api/sessions - list recorded sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Session recording is disabled")
		return
	}

	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}

	sessions, err := s.db.ListSessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write sessions")
		return
	}
}

// handleSessionByID handles GET /api/sessions/:id and its subresources:
// /stats, /engagements, /commands, /telemetry.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Session recording is disabled")
		return
	}

	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing session ID")
		return
	}
	sessionID := pathParts[0]

	if len(pathParts) == 1 {
		s.showSession(w, sessionID)
		return
	}

	switch pathParts[1] {
	case "stats":
		s.showSessionStats(w, sessionID)
	case "engagements":
		s.showSessionEngagements(w, sessionID)
	case "commands":
		s.showSessionCommands(w, r, sessionID)
	case "telemetry":
		s.showSessionTelemetry(w, r, sessionID)
	default:
		s.writeJSONError(w, http.StatusNotFound,
			fmt.Sprintf("Unknown session resource %q", pathParts[1]))
	}
}

func (s *Server) showSession(w http.ResponseWriter, sessionID string) {
	session, err := s.db.GetSession(sessionID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeJSONError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to fetch session: %v", err))
		return
	}
	json.NewEncoder(w).Encode(session)
}

func (s *Server) showSessionStats(w http.ResponseWriter, sessionID string) {
	// Verify the session exists so an unknown ID reads as 404, not as a
	// session with all-zero stats.
	if !s.sessionExists(w, sessionID) {
		return
	}
	stats, err := s.db.Stats(sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to compute session stats: %v", err))
		return
	}
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) showSessionEngagements(w http.ResponseWriter, sessionID string) {
	if !s.sessionExists(w, sessionID) {
		return
	}
	engagements, err := s.db.ListEngagements(sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list engagements: %v", err))
		return
	}
	json.NewEncoder(w).Encode(engagements)
}

func (s *Server) showSessionCommands(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !s.sessionExists(w, sessionID) {
		return
	}
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}
	records, err := s.db.CommandHistory(sessionID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to fetch command history: %v", err))
		return
	}
	json.NewEncoder(w).Encode(records)
}

func (s *Server) showSessionTelemetry(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !s.sessionExists(w, sessionID) {
		return
	}
	limit, ok := s.parseLimit(w, r)
	if !ok {
		return
	}
	records, err := s.db.TelemetryHistory(sessionID, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to fetch telemetry history: %v", err))
		return
	}
	json.NewEncoder(w).Encode(records)
}

// sessionExists resolves the session or writes the error response. Returns
// false when the caller should stop.
func (s *Server) sessionExists(w http.ResponseWriter, sessionID string) bool {
	_, err := s.db.GetSession(sessionID)
	if err == nil {
		return true
	}
	if strings.Contains(err.Error(), "not found") {
		s.writeJSONError(w, http.StatusNotFound, "Session not found")
	} else {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to fetch session: %v", err))
	}
	return false
}

// parseLimit reads the optional ?limit= parameter. Zero means the store's
// default. Returns ok=false after writing the error response.
func (s *Server) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(l)
	if err != nil || limit < 1 {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return 0, false
	}
	return limit, true
}
