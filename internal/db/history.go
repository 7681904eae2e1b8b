package db

import (
	"fmt"
)

// CommandRecord is one transmitted gimbal command.
type CommandRecord struct {
	SessionID string `json:"session_id"`
	Pitch     int    `json:"pitch"`
	Yaw       int    `json:"yaw"`
	Shoot     int    `json:"shoot"`
	Idle      int    `json:"idle"`
	SentAt    int64  `json:"sent_at"`
}

// TelemetryRecord is one decoded status frame from the device.
type TelemetryRecord struct {
	SessionID  string `json:"session_id"`
	Pitch      int    `json:"pitch"`
	Yaw        int    `json:"yaw"`
	Shoot      int    `json:"shoot"`
	Idle       int    `json:"idle"`
	ReceivedAt int64  `json:"received_at"`
}

// InsertCommand stores a transmitted command.
func (db *DB) InsertCommand(rec CommandRecord) error {
	return retryOnBusy(func() error {
		_, err := db.Exec(`
			INSERT INTO commands (session_id, pitch, yaw, shoot, idle, sent_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.SessionID, rec.Pitch, rec.Yaw, rec.Shoot, rec.Idle, rec.SentAt)
		return err
	})
}

// InsertTelemetry stores a decoded telemetry sample.
func (db *DB) InsertTelemetry(rec TelemetryRecord) error {
	return retryOnBusy(func() error {
		_, err := db.Exec(`
			INSERT INTO telemetry (session_id, pitch, yaw, shoot, idle, received_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.SessionID, rec.Pitch, rec.Yaw, rec.Shoot, rec.Idle, rec.ReceivedAt)
		return err
	})
}

// CommandHistory returns commands for a session in send order, oldest first,
// capped at limit.
func (db *DB) CommandHistory(sessionID string, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(`
		SELECT session_id, pitch, yaw, shoot, idle, sent_at
		FROM commands
		WHERE session_id = ?
		ORDER BY sent_at ASC, id ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	var recs []CommandRecord
	for rows.Next() {
		var r CommandRecord
		if err := rows.Scan(&r.SessionID, &r.Pitch, &r.Yaw, &r.Shoot, &r.Idle, &r.SentAt); err != nil {
			return nil, fmt.Errorf("scan command row: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// TelemetryHistory returns telemetry samples for a session in receive order,
// oldest first, capped at limit.
func (db *DB) TelemetryHistory(sessionID string, limit int) ([]TelemetryRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(`
		SELECT session_id, pitch, yaw, shoot, idle, received_at
		FROM telemetry
		WHERE session_id = ?
		ORDER BY received_at ASC, id ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}
	defer rows.Close()

	var recs []TelemetryRecord
	for rows.Next() {
		var r TelemetryRecord
		if err := rows.Scan(&r.SessionID, &r.Pitch, &r.Yaw, &r.Shoot, &r.Idle, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan telemetry row: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
