package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gunmetal-robotics/sentry/internal/db"
	"github.com/gunmetal-robotics/sentry/internal/gimbal"
	"github.com/gunmetal-robotics/sentry/internal/monitoring"
	"github.com/gunmetal-robotics/sentry/internal/turret"
	"github.com/gunmetal-robotics/sentry/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// defaultStreamInterval paces the websocket status stream.
const defaultStreamInterval = 200 * time.Millisecond

// Controller is the control-stack surface the API serves: live status
// snapshots plus detection frame intake.
type Controller interface {
	Status() turret.Status
	Submit(frame turret.Frame) bool
	IsRunning() bool
}

type Server struct {
	actuator gimbal.ActuatorInterface
	ctrl     Controller
	db       *db.DB
	units    string

	hub            *wsHub
	streamInterval time.Duration
}

// NewServer builds the HTTP surface over a live control stack. The db may be
// nil when session recording is disabled; the session routes then return 503.
func NewServer(actuator gimbal.ActuatorInterface, ctrl Controller, database *db.DB, units string) *Server {
	return &Server{
		actuator:       actuator,
		ctrl:           ctrl,
		db:             database,
		units:          units,
		hub:            newWSHub(),
		streamInterval: defaultStreamInterval,
	}
}

// SetStreamInterval overrides the websocket status cadence. Must be called
// before the first client connects.
func (s *Server) SetStreamInterval(d time.Duration) {
	if d > 0 {
		s.streamInterval = d
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/api/frame", s.ingestFrame)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// AngleAPI carries one pitch/yaw pair converted into the response units.
type AngleAPI struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// StatusAPI is the status snapshot served over /api/status and /ws. Raw tick
// values live in Status; CommandAngles and TelemetryAngles repeat the two
// attitude pairs converted into Units.
type StatusAPI struct {
	Running         bool          `json:"running"`
	Units           string        `json:"units"`
	Status          turret.Status `json:"status"`
	CommandAngles   AngleAPI      `json:"command_angles"`
	TelemetryAngles AngleAPI      `json:"telemetry_angles"`
}

func (s *Server) statusSnapshot(targetUnits string) StatusAPI {
	st := s.ctrl.Status()
	return StatusAPI{
		Running: s.ctrl.IsRunning(),
		Units:   targetUnits,
		Status:  st,
		CommandAngles: AngleAPI{
			Pitch: units.ConvertPitch(st.Command.Pitch, targetUnits),
			Yaw:   units.ConvertYaw(st.Command.Yaw, targetUnits),
		},
		TelemetryAngles: AngleAPI{
			Pitch: units.ConvertPitch(int(st.Telemetry.Pitch), targetUnits),
			Yaw:   units.ConvertYaw(int(st.Telemetry.Yaw), targetUnits),
		},
	}
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	targetUnits := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			s.writeJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid 'units' parameter: want one of %s", units.GetValidUnitsString()))
			return
		}
		targetUnits = u
	}

	if err := json.NewEncoder(w).Encode(s.statusSnapshot(targetUnits)); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

// CommandRequest is a partial gimbal command: only the fields present are
// applied, each transmitting immediately in pitch, yaw, shoot, idle order.
type CommandRequest struct {
	Pitch *int `json:"pitch"`
	Yaw   *int `json:"yaw"`
	Shoot *int `json:"shoot"`
	Idle  *int `json:"idle"`
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Pitch == nil && req.Yaw == nil && req.Shoot == nil && req.Idle == nil {
		s.writeJSONError(w, http.StatusBadRequest, "Empty command: set at least one of pitch, yaw, shoot, idle")
		return
	}

	if req.Pitch != nil {
		if err := s.actuator.SetPitch(*req.Pitch); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to set pitch: %v", err))
			return
		}
	}
	if req.Yaw != nil {
		if err := s.actuator.SetYaw(*req.Yaw); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to set yaw: %v", err))
			return
		}
	}
	if req.Shoot != nil {
		if err := s.actuator.SetShoot(*req.Shoot); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to set shoot: %v", err))
			return
		}
	}
	if req.Idle != nil {
		if err := s.actuator.SetIdle(*req.Idle); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to set idle: %v", err))
			return
		}
	}

	if err := json.NewEncoder(w).Encode(s.actuator.Command()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write command state")
		return
	}
}

// FrameResponse acknowledges a submitted detection frame. Queued is false
// when the tracking loop is so far behind that even the latest-wins slot
// could not take the frame.
type FrameResponse struct {
	Queued     bool `json:"queued"`
	Detections int  `json:"detections"`
}

func (s *Server) ingestFrame(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var frame turret.Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "Frame width and height must be positive")
		return
	}

	queued := s.ctrl.Submit(frame)
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(FrameResponse{Queued: queued, Detections: len(frame.Detections)})
}
