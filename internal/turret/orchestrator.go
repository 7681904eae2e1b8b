package turret

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gunmetal-robotics/sentry/internal/gimbal"
	"github.com/gunmetal-robotics/sentry/internal/monitoring"
	"github.com/gunmetal-robotics/sentry/internal/sched"
	"github.com/gunmetal-robotics/sentry/internal/timeutil"
	"github.com/gunmetal-robotics/sentry/internal/usbcan"
)

// faultBackoff is how long a control loop pauses after recovering from an
// unexpected fault before resuming.
const faultBackoff = time.Second

// transmitLogEvery rate-limits transmit-failure diagnostics on the 60 Hz
// tracking path.
const transmitLogEvery = 60

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	// Actuator receives the gimbal commands. Required.
	Actuator gimbal.ActuatorInterface
	// Tracker is the tracking engine. Required.
	Tracker *Tracker
	// Patrol is the yaw sweep; nil uses DefaultPatrolConfig.
	Patrol *Patrol
	// Clock is optional; nil uses the real clock.
	Clock timeutil.Clock
	// SchedHint applies a scheduling class to the calling loop; nil uses
	// sched.Apply. A hint failure is logged once and ignored.
	SchedHint func(sched.Priority) error
}

// Orchestrator runs the two control loops against one actuator: the patrol
// sweep while nothing is locked, and the tracking engine on every submitted
// detection frame. Both serialize their writes through the actuator's own
// lock. Faults inside either loop are recovered at the loop boundary with a
// short backoff; the loops only exit on context cancellation or Stop.
type Orchestrator struct {
	actuator  gimbal.ActuatorInterface
	tracker   *Tracker
	patrol    *Patrol
	clock     timeutil.Clock
	schedHint func(sched.Priority) error

	frames      chan Frame
	transmitLog *monitoring.Sampler

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewOrchestrator creates an orchestrator from the given configuration.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	patrol := cfg.Patrol
	if patrol == nil {
		patrol = NewPatrol(DefaultPatrolConfig())
	}
	hint := cfg.SchedHint
	if hint == nil {
		hint = sched.Apply
	}
	return &Orchestrator{
		actuator:    cfg.Actuator,
		tracker:     cfg.Tracker,
		patrol:      patrol,
		clock:       clock,
		schedHint:   hint,
		frames:      make(chan Frame, 1),
		transmitLog: monitoring.NewSampler(transmitLogEvery),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Submit hands a detection frame to the tracking loop. The newest frame
// wins: if the loop has not consumed the previous frame yet, the stale one
// is dropped. Returns false only when the frame could not be queued.
func (o *Orchestrator) Submit(frame Frame) bool {
	select {
	case o.frames <- frame:
		return true
	default:
	}
	// Drop the stale frame and try once more.
	select {
	case <-o.frames:
	default:
	}
	select {
	case o.frames <- frame:
		return true
	default:
		return false
	}
}

// Run starts both control loops and blocks until the context is cancelled
// or Stop is called. Returns nil on clean shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = true
	o.startedAt = o.clock.Now()
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	stopCh, doneCh := o.stopCh, o.doneCh
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		close(doneCh)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	monitoring.Logf("turret: orchestrator started, color=%s", o.tracker.cfg.Color)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.patrolLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		o.trackingLoop(ctx)
	}()
	wg.Wait()

	monitoring.Logf("turret: orchestrator stopped")
	return nil
}

// Stop requests shutdown and waits for both loops to exit. Safe to call
// multiple times.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	select {
	case <-o.stopCh:
	default:
		close(o.stopCh)
	}
	doneCh := o.doneCh
	o.mu.Unlock()

	<-doneCh
}

// IsRunning reports whether the control loops are active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Status is a point-in-time snapshot of the whole control stack, for the
// HTTP API and the live status stream.
type Status struct {
	Tracker         TrackerStatus  `json:"tracker"`
	Command         gimbal.Command `json:"command"`
	Telemetry       usbcan.Status  `json:"telemetry"`
	TelemetryAt     time.Time      `json:"telemetry_at"`
	PatrolDirection int            `json:"patrol_direction"`
	StartedAt       time.Time      `json:"started_at"`
}

// Status returns the current control stack snapshot.
func (o *Orchestrator) Status() Status {
	telemetry, telemetryAt := o.actuator.Telemetry()
	o.mu.Lock()
	startedAt := o.startedAt
	o.mu.Unlock()
	return Status{
		Tracker:         o.tracker.Status(),
		Command:         o.actuator.Command(),
		Telemetry:       telemetry,
		TelemetryAt:     telemetryAt,
		PatrolDirection: o.patrol.Direction(),
		StartedAt:       startedAt,
	}
}

// patrolLoop sweeps yaw while the tracking engine holds no lock.
func (o *Orchestrator) patrolLoop(ctx context.Context) {
	if err := o.schedHint(sched.PriorityNormal); err != nil {
		monitoring.Logf("turret: patrol scheduling hint: %v", err)
	}
	ticker := o.clock.NewTicker(o.patrol.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := o.guard("patrol", o.patrolTick); err != nil {
				monitoring.Logf("turret: %v", err)
				o.clock.Sleep(faultBackoff)
			}
		}
	}
}

// patrolTick advances the sweep by one step unless a target is locked.
func (o *Orchestrator) patrolTick() {
	if o.tracker.State() != StatePatrolling {
		return
	}
	next := o.patrol.Next(o.actuator.Command().Yaw)
	if err := o.actuator.SetYaw(next); err != nil && o.transmitLog.Tick() {
		monitoring.Logf("turret: patrol transmit: %v", err)
	}
}

// trackingLoop steps the tracking engine once per submitted frame.
func (o *Orchestrator) trackingLoop(ctx context.Context) {
	if err := o.schedHint(sched.PriorityHigh); err != nil {
		monitoring.Logf("turret: tracking scheduling hint: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-o.frames:
			if err := o.guard("tracking", func() {
				if err := o.tracker.Step(frame, o.clock.Now()); err != nil && o.transmitLog.Tick() {
					monitoring.Logf("turret: tracking transmit: %v", err)
				}
			}); err != nil {
				monitoring.Logf("turret: %v", err)
				o.clock.Sleep(faultBackoff)
			}
		}
	}
}

// guard runs one loop iteration, converting a panic into an error so the
// loop can back off and resume instead of dying.
func (o *Orchestrator) guard(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s loop fault: %v", name, r)
		}
	}()
	fn()
	return nil
}
