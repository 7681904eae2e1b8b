package db

import (
	"sync"
	"time"

	"github.com/gunmetal-robotics/sentry/internal/gimbal"
	"github.com/gunmetal-robotics/sentry/internal/monitoring"
	"github.com/gunmetal-robotics/sentry/internal/turret"
	"github.com/gunmetal-robotics/sentry/internal/usbcan"
)

const (
	// recorderBuffer absorbs write bursts; at 60 Hz tracking plus the 20 Hz
	// telemetry poll this covers a few seconds of sqlite stall.
	recorderBuffer = 256

	// recorderDropLogEvery rate-limits the queue-full warning.
	recorderDropLogEvery = 50
)

type eventKind string

const (
	kindCommand    eventKind = "command"
	kindTelemetry  eventKind = "telemetry"
	kindEngagement eventKind = "engagement"
)

type recorderEvent struct {
	kind       eventKind
	cmd        gimbal.Command
	status     usbcan.Status
	engagement turret.Engagement
	at         time.Time
}

// Recorder writes control-loop history for one session to the store from a
// background goroutine. The Record* methods never block: if the queue is
// full the event is dropped and a sampled warning logged, so a slow disk can
// never stall the control path.
//
// Recorder satisfies gimbal.CommandRecorder, gimbal.StatusRecorder and
// turret.EngagementRecorder.
type Recorder struct {
	db        *DB
	sessionID string

	mu     sync.Mutex
	closed bool

	events  chan recorderEvent
	doneCh  chan struct{}
	dropLog *monitoring.Sampler
}

// NewRecorder starts a recorder for the given session.
func NewRecorder(db *DB, sessionID string) *Recorder {
	r := &Recorder{
		db:        db,
		sessionID: sessionID,
		events:    make(chan recorderEvent, recorderBuffer),
		doneCh:    make(chan struct{}),
		dropLog:   monitoring.NewSampler(recorderDropLogEvery),
	}
	go r.run()
	return r
}

// RecordCommand queues a transmitted command for persistence.
func (r *Recorder) RecordCommand(cmd gimbal.Command, at time.Time) {
	r.enqueue(recorderEvent{kind: kindCommand, cmd: cmd, at: at})
}

// RecordStatus queues a decoded telemetry sample for persistence.
func (r *Recorder) RecordStatus(status usbcan.Status, at time.Time) {
	r.enqueue(recorderEvent{kind: kindTelemetry, status: status, at: at})
}

// RecordEngagement queues a completed engagement for persistence.
func (r *Recorder) RecordEngagement(e turret.Engagement) {
	r.enqueue(recorderEvent{kind: kindEngagement, engagement: e, at: e.ReleasedAt})
}

func (r *Recorder) enqueue(ev recorderEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	select {
	case r.events <- ev:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		if r.dropLog.Tick() {
			monitoring.Logf("db: recorder queue full, dropping %s event", ev.kind)
		}
	}
}

// Close stops accepting events, drains whatever is queued, and returns once
// the writer goroutine has exited. Safe to call more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.doneCh
}

func (r *Recorder) run() {
	defer close(r.doneCh)
	for ev := range r.events {
		if err := r.insert(ev); err != nil {
			monitoring.Logf("db: record %s: %v", ev.kind, err)
		}
	}
}

func (r *Recorder) insert(ev recorderEvent) error {
	switch ev.kind {
	case kindCommand:
		return r.db.InsertCommand(CommandRecord{
			SessionID: r.sessionID,
			Pitch:     ev.cmd.Pitch,
			Yaw:       ev.cmd.Yaw,
			Shoot:     ev.cmd.Shoot,
			Idle:      ev.cmd.Idle,
			SentAt:    ev.at.UnixMilli(),
		})
	case kindTelemetry:
		return r.db.InsertTelemetry(TelemetryRecord{
			SessionID:  r.sessionID,
			Pitch:      int(ev.status.Pitch),
			Yaw:        int(ev.status.Yaw),
			Shoot:      int(ev.status.Shoot),
			Idle:       int(ev.status.Idle),
			ReceivedAt: ev.at.UnixMilli(),
		})
	case kindEngagement:
		e := ev.engagement
		return r.db.InsertEngagement(&EngagementRecord{
			SessionID:      r.sessionID,
			Color:          string(e.Color),
			ClassID:        e.ClassID,
			Label:          e.Label,
			PeakConfidence: e.PeakConfidence,
			LockedAt:       e.LockedAt.UnixMilli(),
			ReleasedAt:     e.ReleasedAt.UnixMilli(),
			DurationMs:     e.Duration().Milliseconds(),
			Frames:         e.Frames,
			Pulses:         e.Pulses,
		})
	}
	return nil
}
