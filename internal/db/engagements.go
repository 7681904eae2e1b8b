package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// EngagementRecord is one completed lock span: acquisition through release,
// with the fire pulse count and confidence peak observed along the way.
type EngagementRecord struct {
	EngagementID   string  `json:"engagement_id"`
	SessionID      string  `json:"session_id"`
	Color          string  `json:"color"`
	ClassID        int     `json:"class_id"`
	Label          string  `json:"label"`
	PeakConfidence float64 `json:"peak_confidence"`
	LockedAt       int64   `json:"locked_at"`
	ReleasedAt     int64   `json:"released_at"`
	DurationMs     int64   `json:"duration_ms"`
	Frames         int     `json:"frames"`
	Pulses         int     `json:"pulses"`
}

// InsertEngagement persists a completed engagement. If EngagementID is empty,
// an eng_ prefixed UUID is generated.
func (db *DB) InsertEngagement(rec *EngagementRecord) error {
	if rec.EngagementID == "" {
		rec.EngagementID = "eng_" + uuid.New().String()
	}
	return retryOnBusy(func() error {
		_, err := db.Exec(`
			INSERT INTO engagements (
				engagement_id, session_id, color, class_id, label,
				peak_confidence, locked_at, released_at, duration_ms, frames, pulses
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.EngagementID, rec.SessionID, rec.Color, rec.ClassID, rec.Label,
			rec.PeakConfidence, rec.LockedAt, rec.ReleasedAt, rec.DurationMs,
			rec.Frames, rec.Pulses)
		return err
	})
}

// ListEngagements returns all engagements for a session, oldest first.
func (db *DB) ListEngagements(sessionID string) ([]*EngagementRecord, error) {
	rows, err := db.Query(`
		SELECT engagement_id, session_id, color, class_id, label,
		       peak_confidence, locked_at, released_at, duration_ms, frames, pulses
		FROM engagements
		WHERE session_id = ?
		ORDER BY locked_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query engagements: %w", err)
	}
	defer rows.Close()

	var recs []*EngagementRecord
	for rows.Next() {
		var r EngagementRecord
		if err := rows.Scan(
			&r.EngagementID, &r.SessionID, &r.Color, &r.ClassID, &r.Label,
			&r.PeakConfidence, &r.LockedAt, &r.ReleasedAt, &r.DurationMs,
			&r.Frames, &r.Pulses,
		); err != nil {
			return nil, fmt.Errorf("scan engagement row: %w", err)
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

// SessionStats aggregates a session's engagement activity.
type SessionStats struct {
	SessionID       string  `json:"session_id"`
	Commands        int     `json:"commands"`
	Telemetry       int     `json:"telemetry"`
	Engagements     int     `json:"engagements"`
	TotalPulses     int     `json:"total_pulses"`
	TotalLockMs     int64   `json:"total_lock_ms"`
	MaxConfidence   float64 `json:"max_confidence"`
	MeanLockMs      float64 `json:"mean_lock_ms"`
	LongestLockMs   int64   `json:"longest_lock_ms"`
	DistinctTargets int     `json:"distinct_targets"`
}

// Stats computes rollup statistics for a session.
func (db *DB) Stats(sessionID string) (*SessionStats, error) {
	stats := &SessionStats{SessionID: sessionID}

	err := db.QueryRow(
		`SELECT COUNT(*) FROM commands WHERE session_id = ?`, sessionID,
	).Scan(&stats.Commands)
	if err != nil {
		return nil, fmt.Errorf("count commands: %w", err)
	}
	err = db.QueryRow(
		`SELECT COUNT(*) FROM telemetry WHERE session_id = ?`, sessionID,
	).Scan(&stats.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("count telemetry: %w", err)
	}

	var totalPulses, totalLockMs, longestLockMs sql.NullInt64
	var maxConf, meanLockMs sql.NullFloat64
	err = db.QueryRow(`
		SELECT COUNT(*), SUM(pulses), SUM(duration_ms), MAX(duration_ms),
		       MAX(peak_confidence), AVG(duration_ms), COUNT(DISTINCT class_id)
		FROM engagements
		WHERE session_id = ?`, sessionID,
	).Scan(
		&stats.Engagements, &totalPulses, &totalLockMs, &longestLockMs,
		&maxConf, &meanLockMs, &stats.DistinctTargets,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate engagements: %w", err)
	}
	stats.TotalPulses = int(totalPulses.Int64)
	stats.TotalLockMs = totalLockMs.Int64
	stats.LongestLockMs = longestLockMs.Int64
	stats.MaxConfidence = maxConf.Float64
	stats.MeanLockMs = meanLockMs.Float64

	return stats, nil
}
