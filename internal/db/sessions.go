package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one continuous run of the control loop, from process start (or
// explicit session rotation) to shutdown. Counts are rolled up at EndSession.
type Session struct {
	SessionID      string `json:"session_id"`
	StartedAt      int64  `json:"started_at"`
	EndedAt        *int64 `json:"ended_at,omitempty"`
	TargetColor    string `json:"target_color"`
	SerialPort     string `json:"serial_port"`
	Notes          string `json:"notes"`
	CommandCount   int    `json:"command_count"`
	TelemetryCount int    `json:"telemetry_count"`
}

// StartSession creates a new session record and returns it. The session ID is
// generated with a ses_ prefix.
func (db *DB) StartSession(targetColor, serialPort, notes string) (*Session, error) {
	s := &Session{
		SessionID:   "ses_" + uuid.New().String(),
		StartedAt:   time.Now().UnixMilli(),
		TargetColor: targetColor,
		SerialPort:  serialPort,
		Notes:       notes,
	}

	err := retryOnBusy(func() error {
		_, err := db.Exec(`
			INSERT INTO sessions (session_id, started_at, target_color, serial_port, notes)
			VALUES (?, ?, ?, ?, ?)`,
			s.SessionID, s.StartedAt, s.TargetColor, s.SerialPort, s.Notes)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// EndSession stamps the end time and rolls up the command and telemetry
// counts for the session.
func (db *DB) EndSession(sessionID string) error {
	return retryOnBusy(func() error {
		result, err := db.Exec(`
			UPDATE sessions
			SET
				ended_at = ?,
				command_count = (SELECT COUNT(*) FROM commands WHERE session_id = ?),
				telemetry_count = (SELECT COUNT(*) FROM telemetry WHERE session_id = ?)
			WHERE session_id = ?`,
			time.Now().UnixMilli(), sessionID, sessionID, sessionID)
		if err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("session %s not found", sessionID)
		}
		return nil
	})
}

// GetSession returns a single session by ID.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	row := db.QueryRow(`
		SELECT session_id, started_at, ended_at, target_color, serial_port, notes,
		       command_count, telemetry_count
		FROM sessions
		WHERE session_id = ?`, sessionID)

	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %s not found", sessionID)
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return s, nil
}

// ListSessions returns the most recent sessions, newest first.
func (db *DB) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT session_id, started_at, ended_at, target_color, serial_port, notes,
		       command_count, telemetry_count
		FROM sessions
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var endedAt sql.NullInt64
	err := row.Scan(
		&s.SessionID, &s.StartedAt, &endedAt, &s.TargetColor, &s.SerialPort,
		&s.Notes, &s.CommandCount, &s.TelemetryCount,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Int64
	}
	return &s, nil
}
