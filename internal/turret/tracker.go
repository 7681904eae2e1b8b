package turret

import (
	"sync"
	"time"

	"github.com/gunmetal-robotics/sentry/internal/gimbal"
	"github.com/gunmetal-robotics/sentry/internal/units"
)

// State is the tracking engine's control state.
type State string

const (
	StatePatrolling       State = "patrolling"         // No lock, patrol owns yaw
	StateCentering        State = "centering"          // Locked, steering target into the margin
	StateCenteredFiring   State = "centered_firing"    // Locked, centered, pulse on
	StateCenteredPulseOff State = "centered_pulse_off" // Locked, centered, pulse off
	StateConfirmingLoss   State = "confirming_loss"    // Locked, target missing, debouncing
)

// Tracking engine defaults.
const (
	// DefaultCenterMarginPx is the hysteresis band around the frame center
	// within which a target counts as centered.
	DefaultCenterMarginPx = 100
	// DefaultYawNudge is the yaw correction per frame while centering.
	DefaultYawNudge = 25
	// DefaultPulseOnDuration is how long the fire signal stays on per pulse.
	DefaultPulseOnDuration = 400 * time.Millisecond
	// DefaultPulseOffDuration is the gap between pulses.
	DefaultPulseOffDuration = 200 * time.Millisecond
	// DefaultLossDebounce is how long the target must stay missing before
	// the lock is released.
	DefaultLossDebounce = time.Second
)

// TrackerConfig holds the tracking engine parameters.
type TrackerConfig struct {
	Color            TargetColor   // Class band to engage
	CenterMarginPx   int           // Centered iff |deviation| <= margin
	YawNudge         int           // Yaw ticks per centering correction
	PulseOnDuration  time.Duration // Fire-on window of the duty cycle
	PulseOffDuration time.Duration // Fire-off window of the duty cycle
	LossDebounce     time.Duration // Missing-target time before release
}

// DefaultTrackerConfig returns the deployed tracking parameters for the
// given target color.
func DefaultTrackerConfig(color TargetColor) TrackerConfig {
	return TrackerConfig{
		Color:            color,
		CenterMarginPx:   DefaultCenterMarginPx,
		YawNudge:         DefaultYawNudge,
		PulseOnDuration:  DefaultPulseOnDuration,
		PulseOffDuration: DefaultPulseOffDuration,
		LossDebounce:     DefaultLossDebounce,
	}
}

// Engagement summarizes one completed lock, from acquisition to release.
type Engagement struct {
	Color          TargetColor `json:"color"`
	ClassID        int         `json:"class_id"`
	Label          string      `json:"label"`
	PeakConfidence float64     `json:"peak_confidence"`
	LockedAt       time.Time   `json:"locked_at"`
	ReleasedAt     time.Time   `json:"released_at"`
	Frames         int         `json:"frames"`
	Pulses         int         `json:"pulses"`
}

// Duration returns the wall time the lock was held.
func (e Engagement) Duration() time.Duration {
	return e.ReleasedAt.Sub(e.LockedAt)
}

// EngagementRecorder receives completed engagements. Implementations must
// not block; the tracking loop calls this on its 60 Hz path.
type EngagementRecorder interface {
	RecordEngagement(e Engagement)
}

// TrackerStatus is a point-in-time snapshot of the tracking engine.
type TrackerStatus struct {
	State           State       `json:"state"`
	Color           TargetColor `json:"color"`
	Target          *Detection  `json:"target,omitempty"`
	TargetLabel     string      `json:"target_label,omitempty"`
	Firing          bool        `json:"firing"`
	LockedAt        time.Time   `json:"locked_at"`
	FramesProcessed uint64      `json:"frames_processed"`
}

// Tracker converts detection frames into gimbal commands. One Step per
// frame: select the best candidate in the configured color band, hold pitch
// at the class's calibrated angle, walk yaw until the target sits inside the
// center margin, then duty-cycle the fire signal. Loss of the target is
// debounced before the lock is released back to patrol.
//
// Step is driven by a single goroutine; the mutex only guards the snapshot
// reads from other goroutines.
type Tracker struct {
	cfg      TrackerConfig
	actuator gimbal.ActuatorInterface
	recorder EngagementRecorder

	mu        sync.Mutex
	state     State
	target    Detection
	lockStart time.Time
	lossStart time.Time
	fireOn    bool
	lastEdge  time.Time
	peakConf  float64
	frames    int // frames with a qualifying candidate during this lock
	pulses    int // fire-on edges during this lock
	steps     uint64
}

// NewTracker creates a tracking engine driving the given actuator.
func NewTracker(cfg TrackerConfig, actuator gimbal.ActuatorInterface) *Tracker {
	if cfg.CenterMarginPx <= 0 {
		cfg.CenterMarginPx = DefaultCenterMarginPx
	}
	if cfg.YawNudge <= 0 {
		cfg.YawNudge = DefaultYawNudge
	}
	if cfg.PulseOnDuration <= 0 {
		cfg.PulseOnDuration = DefaultPulseOnDuration
	}
	if cfg.PulseOffDuration <= 0 {
		cfg.PulseOffDuration = DefaultPulseOffDuration
	}
	if cfg.LossDebounce <= 0 {
		cfg.LossDebounce = DefaultLossDebounce
	}
	return &Tracker{
		cfg:      cfg,
		actuator: actuator,
		state:    StatePatrolling,
	}
}

// SetEngagementRecorder installs a hook that receives each completed
// engagement. Pass nil to disable.
func (t *Tracker) SetEngagementRecorder(r EngagementRecorder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recorder = r
}

// State returns the current control state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Status returns a snapshot of the tracking engine.
func (t *Tracker) Status() TrackerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	status := TrackerStatus{
		State:           t.state,
		Color:           t.cfg.Color,
		Firing:          t.fireOn,
		LockedAt:        t.lockStart,
		FramesProcessed: t.steps,
	}
	if t.state != StatePatrolling {
		target := t.target
		status.Target = &target
		status.TargetLabel = target.Label()
	}
	return status
}

// Step runs one control tick against a detection frame. Transmit failures
// are returned for diagnostics but the control state still advances; the
// actuator retains its commanded state and the next tick resends it.
func (t *Tracker) Step(frame Frame, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps++

	target, ok := selectTarget(frame.Detections, t.cfg.Color)
	if !ok {
		return t.stepMissing(now)
	}
	return t.stepTarget(frame, target, now)
}

// stepTarget handles a frame that contains a qualifying candidate.
func (t *Tracker) stepTarget(frame Frame, target Detection, now time.Time) error {
	var stepErr error

	if t.state == StatePatrolling {
		// Fresh lock: record the acquisition and force the fire signal
		// off until the target is centered.
		t.lockStart = now
		t.peakConf = 0
		t.frames = 0
		t.pulses = 0
		t.fireOn = false
		t.lastEdge = time.Time{}
		if err := t.actuator.StopShoot(); err != nil {
			stepErr = err
		}
	}
	// A reappearing target cancels any pending loss confirmation.
	t.lossStart = time.Time{}
	t.target = target
	t.frames++
	if target.Confidence > t.peakConf {
		t.peakConf = target.Confidence
	}

	// Hold pitch at the class's calibrated elevation.
	if pitch, ok := PitchForClass(target.ClassID); ok {
		if err := t.actuator.SetPitch(pitch); err != nil && stepErr == nil {
			stepErr = err
		}
	}

	deviation := target.CenterX() - frame.Width/2
	if abs(deviation) > t.cfg.CenterMarginPx {
		// Walk yaw toward the target. Increasing ticks swing the view
		// toward image-left, so a rightward deviation decreases yaw.
		yaw := t.actuator.Command().Yaw
		if deviation > 0 {
			yaw -= t.cfg.YawNudge
		} else {
			yaw += t.cfg.YawNudge
		}
		if err := t.actuator.SetYaw(units.Clamp(yaw)); err != nil && stepErr == nil {
			stepErr = err
		}
		if err := t.forceFireOff(now); err != nil && stepErr == nil {
			stepErr = err
		}
		t.state = StateCentering
		return stepErr
	}

	// Centered: run the duty-cycled pulse. A zero edge time means no pulse
	// has run during this lock, so the first one starts immediately.
	if t.fireOn {
		if now.Sub(t.lastEdge) >= t.cfg.PulseOnDuration {
			t.fireOn = false
			t.lastEdge = now
			if err := t.actuator.StopShoot(); err != nil && stepErr == nil {
				stepErr = err
			}
		}
	} else if t.lastEdge.IsZero() || now.Sub(t.lastEdge) >= t.cfg.PulseOffDuration {
		t.fireOn = true
		t.lastEdge = now
		t.pulses++
		if err := t.actuator.TriggerShoot(); err != nil && stepErr == nil {
			stepErr = err
		}
	}

	if t.fireOn {
		t.state = StateCenteredFiring
	} else {
		t.state = StateCenteredPulseOff
	}
	return stepErr
}

// stepMissing handles a frame with no qualifying candidate.
func (t *Tracker) stepMissing(now time.Time) error {
	switch t.state {
	case StatePatrolling:
		return nil

	case StateConfirmingLoss:
		if now.Sub(t.lossStart) > t.cfg.LossDebounce {
			t.release(now)
		}
		return nil

	default:
		// First empty frame while locked: start the loss timer and force
		// the fire signal off while the loss is confirmed.
		t.state = StateConfirmingLoss
		t.lossStart = now
		return t.forceFireOff(now)
	}
}

// release drops the lock, reports the engagement, and hands yaw back to
// patrol.
func (t *Tracker) release(now time.Time) {
	if t.recorder != nil {
		t.recorder.RecordEngagement(Engagement{
			Color:          t.cfg.Color,
			ClassID:        t.target.ClassID,
			Label:          t.target.Label(),
			PeakConfidence: t.peakConf,
			LockedAt:       t.lockStart,
			ReleasedAt:     now,
			Frames:         t.frames,
			Pulses:         t.pulses,
		})
	}
	t.state = StatePatrolling
	t.lockStart = time.Time{}
	t.lossStart = time.Time{}
	t.lastEdge = time.Time{}
	t.fireOn = false
}

// forceFireOff drives the fire signal off, recording a pulse edge only when
// the signal actually changes.
func (t *Tracker) forceFireOff(now time.Time) error {
	if !t.fireOn {
		return nil
	}
	t.fireOn = false
	t.lastEdge = now
	return t.actuator.StopShoot()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
