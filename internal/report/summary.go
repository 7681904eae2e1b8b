package report

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/gunmetal-robotics/sentry/internal/db"
)

// Summary is the numeric digest of one session: how steadily commands went
// out, how closely the gimbal tracked them, and what the locks added up to.
type Summary struct {
	SessionID   string `json:"session_id"`
	Commands    int    `json:"commands"`
	Telemetry   int    `json:"telemetry"`
	Engagements int    `json:"engagements"`
	TotalPulses int    `json:"total_pulses"`

	// Inter-command gaps in milliseconds.
	CadenceMeanMs float64 `json:"cadence_mean_ms"`
	CadenceP50Ms  float64 `json:"cadence_p50_ms"`
	CadenceP95Ms  float64 `json:"cadence_p95_ms"`
	CadenceStdMs  float64 `json:"cadence_std_ms"`

	// Absolute telemetry-vs-command deviation in ticks, pairing each
	// telemetry record with the latest command sent before it.
	PitchDevMean float64 `json:"pitch_dev_mean"`
	PitchDevP95  float64 `json:"pitch_dev_p95"`
	YawDevMean   float64 `json:"yaw_dev_mean"`
	YawDevP95    float64 `json:"yaw_dev_p95"`

	// Lock durations in milliseconds.
	LockMeanMs float64 `json:"lock_mean_ms"`
	LockP50Ms  float64 `json:"lock_p50_ms"`
	LockMaxMs  float64 `json:"lock_max_ms"`
}

// Summarize computes the session digest. Zero-valued fields mean there was
// not enough data for that statistic, never a measured zero gap.
func Summarize(data *SessionData) Summary {
	s := Summary{
		Commands:    len(data.Commands),
		Telemetry:   len(data.Telemetry),
		Engagements: len(data.Engagements),
	}
	if data.Session != nil {
		s.SessionID = data.Session.SessionID
	}
	if data.Stats != nil {
		s.TotalPulses = data.Stats.TotalPulses
	}

	if gaps := commandGaps(data.Commands); len(gaps) > 0 {
		s.CadenceMeanMs = stat.Mean(gaps, nil)
		s.CadenceP50Ms = quantile(gaps, 0.50)
		s.CadenceP95Ms = quantile(gaps, 0.95)
		if len(gaps) > 1 {
			s.CadenceStdMs = stat.StdDev(gaps, nil)
		}
	}

	pitchDevs, yawDevs := trackingDeviations(data.Commands, data.Telemetry)
	if len(pitchDevs) > 0 {
		s.PitchDevMean = stat.Mean(pitchDevs, nil)
		s.PitchDevP95 = quantile(pitchDevs, 0.95)
		s.YawDevMean = stat.Mean(yawDevs, nil)
		s.YawDevP95 = quantile(yawDevs, 0.95)
	}

	if locks := lockDurations(data); len(locks) > 0 {
		s.LockMeanMs = stat.Mean(locks, nil)
		s.LockP50Ms = quantile(locks, 0.50)
		s.LockMaxMs = locks[len(locks)-1]
	}

	return s
}

// quantile sorts a copy of xs and evaluates the empirical quantile.
func quantile(xs []float64, p float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// commandGaps returns the positive millisecond gaps between consecutive
// commands. Ties on the same millisecond are dropped rather than reported
// as zero cadence.
func commandGaps(commands []db.CommandRecord) []float64 {
	gaps := make([]float64, 0, len(commands))
	for i := 1; i < len(commands); i++ {
		gap := commands[i].SentAt - commands[i-1].SentAt
		if gap > 0 {
			gaps = append(gaps, float64(gap))
		}
	}
	return gaps
}

// trackingDeviations pairs each telemetry record with the most recent
// command sent at or before it and returns the absolute per-axis errors.
// Both inputs arrive oldest-first from the store, so one walk suffices.
func trackingDeviations(commands []db.CommandRecord, telemetry []db.TelemetryRecord) (pitch, yaw []float64) {
	if len(commands) == 0 {
		return nil, nil
	}
	ci := 0
	for _, t := range telemetry {
		for ci+1 < len(commands) && commands[ci+1].SentAt <= t.ReceivedAt {
			ci++
		}
		if commands[ci].SentAt > t.ReceivedAt {
			// Telemetry before the first command has no reference.
			continue
		}
		pitch = append(pitch, math.Abs(float64(t.Pitch-commands[ci].Pitch)))
		yaw = append(yaw, math.Abs(float64(t.Yaw-commands[ci].Yaw)))
	}
	return pitch, yaw
}

// lockDurations returns the engagement durations in milliseconds, sorted
// ascending.
func lockDurations(data *SessionData) []float64 {
	locks := make([]float64, 0, len(data.Engagements))
	for _, e := range data.Engagements {
		locks = append(locks, float64(e.DurationMs))
	}
	sort.Float64s(locks)
	return locks
}
