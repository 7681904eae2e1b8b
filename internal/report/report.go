// Package report renders a recorded session into shareable artifacts: an
// HTML page of interactive charts, PNG sweep profiles, and a numeric
// summary of cadence, tracking deviation, and engagement activity.
package report

import (
	"fmt"

	"github.com/gunmetal-robotics/sentry/internal/db"
)

// SessionData bundles everything the renderers consume, loaded once.
type SessionData struct {
	Session     *db.Session
	Commands    []db.CommandRecord
	Telemetry   []db.TelemetryRecord
	Engagements []*db.EngagementRecord
	Stats       *db.SessionStats
}

// historyLimit bounds one report's data pull. A 30 ms command cadence gives
// roughly 120k commands per hour; a full session fits comfortably.
const historyLimit = 500000

// Load pulls a complete session from the store.
func Load(database *db.DB, sessionID string) (*SessionData, error) {
	session, err := database.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	commands, err := database.CommandHistory(sessionID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load command history: %w", err)
	}
	telemetry, err := database.TelemetryHistory(sessionID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load telemetry history: %w", err)
	}
	engagements, err := database.ListEngagements(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load engagements: %w", err)
	}
	stats, err := database.Stats(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	return &SessionData{
		Session:     session,
		Commands:    commands,
		Telemetry:   telemetry,
		Engagements: engagements,
		Stats:       stats,
	}, nil
}

// startMillis returns the reference timestamp charts measure from: the
// session start, or the first command's timestamp when no session row is
// attached.
func (d *SessionData) startMillis() int64 {
	if d.Session != nil && d.Session.StartedAt > 0 {
		return d.Session.StartedAt
	}
	if len(d.Commands) > 0 {
		return d.Commands[0].SentAt
	}
	return 0
}

// seconds converts an absolute millisecond timestamp to chart-relative
// seconds.
func (d *SessionData) seconds(ms int64) float64 {
	return float64(ms-d.startMillis()) / 1000.0
}
