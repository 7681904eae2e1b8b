// Package gimbal drives the turret's two-axis gimbal and fire actuator
// through the USB-CAN bridge. The Actuator owns the commanded state; every
// setter applies its change under one lock and immediately transmits a frame
// carrying the full command, so concurrent control loops can never interleave
// a half-updated frame. A background loop polls the link and keeps the last
// telemetry read-back available under its own lock.
package gimbal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gunmetal-robotics/sentry/internal/monitoring"
	"github.com/gunmetal-robotics/sentry/internal/serialio"
	"github.com/gunmetal-robotics/sentry/internal/timeutil"
	"github.com/gunmetal-robotics/sentry/internal/units"
	"github.com/gunmetal-robotics/sentry/internal/usbcan"
)

// ErrNotInitialized is returned by command operations before Initialize has
// opened the link.
var ErrNotInitialized = errors.New("gimbal actuator not initialized")

const (
	// pollInterval paces the telemetry receive loop.
	pollInterval = 50 * time.Millisecond

	// rateSettleDelay gives the bridge time to apply a serial rate change
	// before any further traffic.
	rateSettleDelay = 100 * time.Millisecond

	// telemetryLogEvery samples the telemetry debug line so the loop stays
	// observable without logging at poll rate.
	telemetryLogEvery = 20
)

// Command is the actuator's commanded state in controller ticks.
type Command struct {
	Pitch int `json:"pitch"`
	Yaw   int `json:"yaw"`
	Shoot int `json:"shoot"`
	Idle  int `json:"idle"`
}

// DefaultCommand is the power-on attitude: pitch slightly above level, yaw
// right of center, fire off.
func DefaultCommand() Command {
	return Command{Pitch: 11000, Yaw: 20000, Shoot: 0, Idle: 0}
}

// CommandRecorder observes successfully transmitted commands. Implementations
// must not block; they are called on the control path.
type CommandRecorder interface {
	RecordCommand(cmd Command, at time.Time)
}

// StatusRecorder observes decoded telemetry records.
type StatusRecorder interface {
	RecordStatus(status usbcan.Status, at time.Time)
}

// ActuatorInterface is the actuator surface used by the control loops and the
// HTTP layer.
type ActuatorInterface interface {
	SetPitch(ticks int) error
	SetYaw(ticks int) error
	SetShoot(v int) error
	SetIdle(ticks int) error
	TriggerShoot() error
	StopShoot() error
	SendCommand() error
	Command() Command
	Telemetry() (usbcan.Status, time.Time)
}

// Actuator owns the gimbal's commanded state and telemetry snapshot.
type Actuator struct {
	transport *serialio.Transport
	clock     timeutil.Clock
	canID     uint32

	cmdRecorder    CommandRecorder
	statusRecorder StatusRecorder

	cmdMu       sync.Mutex
	cmd         Command
	initialized bool

	telemetryMu sync.Mutex
	telemetry   usbcan.Status
	telemetryAt time.Time
	aux         usbcan.Aux
	auxAt       time.Time

	sampler *monitoring.Sampler

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewActuator creates an Actuator over the given transport. A nil clock
// selects the real one.
func NewActuator(transport *serialio.Transport, clock timeutil.Clock) *Actuator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Actuator{
		transport: transport,
		clock:     clock,
		canID:     usbcan.CommandCANID,
		cmd:       DefaultCommand(),
		sampler:   monitoring.NewSampler(telemetryLogEvery),
	}
}

// SetCommandRecorder attaches a recorder for transmitted commands. Attach
// before Initialize.
func (a *Actuator) SetCommandRecorder(r CommandRecorder) {
	a.cmdRecorder = r
}

// SetStatusRecorder attaches a recorder for received telemetry. Attach before
// Initialize.
func (a *Actuator) SetStatusRecorder(r StatusRecorder) {
	a.statusRecorder = r
}

// SetCommandCANID overrides the outbound CAN identifier. Attach before
// Initialize.
func (a *Actuator) SetCommandCANID(id uint32) {
	a.canID = id
}

// Initialize opens the link against the candidate port list, selects the
// bridge's fastest serial rate, forces the fire signal off, and starts the
// telemetry loop. It fails when no candidate opens or the rate configuration
// cannot be sent; a failed initial safe-state transmit is logged and retried
// by the next command.
func (a *Actuator) Initialize(candidates []string, opts serialio.PortOptions) error {
	if err := a.transport.Open(candidates, opts); err != nil {
		return fmt.Errorf("gimbal: open transport: %w", err)
	}

	if err := a.configureRate(0); err != nil {
		a.transport.Close()
		return err
	}

	a.cmdMu.Lock()
	a.cmd.Shoot = 0
	a.initialized = true
	err := a.sendLocked()
	a.cmdMu.Unlock()
	if err != nil {
		monitoring.Logf("gimbal: initial safe command failed, will retry on next command: %v", err)
	}

	a.lifecycleMu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.receiveLoop(ctx)
	a.lifecycleMu.Unlock()

	monitoring.Logf("gimbal: initialized on %s", a.transport.Path())
	return nil
}

// configureRate selects a bridge serial rate and waits the fixed settle
// window. Index 0 is the fastest supported rate.
func (a *Actuator) configureRate(rateIndex byte) error {
	if err := a.transport.Send(usbcan.BuildRateFrame(rateIndex)); err != nil {
		return fmt.Errorf("gimbal: configure bridge rate: %w", err)
	}
	a.clock.Sleep(rateSettleDelay)
	return nil
}

// SetPitch clamps pitch into the valid tick range, stores it, and transmits.
func (a *Actuator) SetPitch(ticks int) error {
	return a.apply(func(c *Command) { c.Pitch = units.Clamp(ticks) })
}

// SetYaw clamps yaw into the valid tick range, stores it, and transmits.
func (a *Actuator) SetYaw(ticks int) error {
	return a.apply(func(c *Command) { c.Yaw = units.Clamp(ticks) })
}

// SetShoot normalizes v to the fire flag's {0,1} domain, stores it, and
// transmits.
func (a *Actuator) SetShoot(v int) error {
	return a.apply(func(c *Command) {
		if v != 0 {
			c.Shoot = 1
		} else {
			c.Shoot = 0
		}
	})
}

// SetIdle clamps the idle angle, stores it, and transmits.
func (a *Actuator) SetIdle(ticks int) error {
	return a.apply(func(c *Command) { c.Idle = units.Clamp(ticks) })
}

// TriggerShoot turns the fire signal on.
func (a *Actuator) TriggerShoot() error { return a.SetShoot(1) }

// StopShoot turns the fire signal off.
func (a *Actuator) StopShoot() error { return a.SetShoot(0) }

// SendCommand retransmits the current command. Control loops use it to retry
// after a failed transmit without changing state.
func (a *Actuator) SendCommand() error {
	a.cmdMu.Lock()
	cmd := a.cmd
	err := a.sendLocked()
	a.cmdMu.Unlock()

	if err == nil {
		a.record(cmd)
	}
	return err
}

// apply mutates the command under the lock and transmits the result. The
// mutation survives a failed transmit; the next command carries it out.
func (a *Actuator) apply(mutate func(*Command)) error {
	a.cmdMu.Lock()
	mutate(&a.cmd)
	cmd := a.cmd
	err := a.sendLocked()
	a.cmdMu.Unlock()

	if err == nil {
		a.record(cmd)
	}
	return err
}

// sendLocked builds and transmits a frame for the current command. The caller
// holds cmdMu.
func (a *Actuator) sendLocked() error {
	if !a.initialized {
		return ErrNotInitialized
	}
	frame := usbcan.BuildCommandFrame(a.canID,
		uint16(a.cmd.Pitch), uint16(a.cmd.Yaw), uint16(a.cmd.Shoot), uint16(a.cmd.Idle))
	return a.transport.Send(frame)
}

func (a *Actuator) record(cmd Command) {
	if a.cmdRecorder != nil {
		a.cmdRecorder.RecordCommand(cmd, a.clock.Now())
	}
}

// Command returns the current commanded state.
func (a *Actuator) Command() Command {
	a.cmdMu.Lock()
	defer a.cmdMu.Unlock()
	return a.cmd
}

// Telemetry returns the last status read back from the controller and when it
// arrived. A zero time means nothing has been received yet; staleness is the
// caller's concern.
func (a *Actuator) Telemetry() (usbcan.Status, time.Time) {
	a.telemetryMu.Lock()
	defer a.telemetryMu.Unlock()
	return a.telemetry, a.telemetryAt
}

// Aux returns the last auxiliary record and its arrival time.
func (a *Actuator) Aux() (usbcan.Aux, time.Time) {
	a.telemetryMu.Lock()
	defer a.telemetryMu.Unlock()
	return a.aux, a.auxAt
}

// receiveLoop polls the link at the poll interval until the actuator closes.
func (a *Actuator) receiveLoop(ctx context.Context) {
	defer close(a.done)
	ticker := a.clock.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			a.pollOnce()
		}
	}
}

// pollOnce reads one batch off the link and folds any recognized record into
// the telemetry snapshot. Foreign or partial traffic is skipped; nothing here
// is fatal and nothing is written on a failed parse.
func (a *Actuator) pollOnce() {
	avail := a.transport.Available()
	if avail < usbcan.MinStatusLen {
		return
	}

	data, err := a.transport.Receive(avail + 1)
	if err != nil {
		monitoring.Logf("gimbal: telemetry read: %v", err)
		return
	}

	if status, ok := usbcan.ParseStatus07FF(data); ok {
		now := a.clock.Now()
		a.telemetryMu.Lock()
		a.telemetry = status
		a.telemetryAt = now
		a.telemetryMu.Unlock()

		if a.statusRecorder != nil {
			a.statusRecorder.RecordStatus(status, now)
		}
		if a.sampler.Tick() {
			monitoring.Logf("gimbal: status pitch=%d yaw=%d shoot=%d idle=%d",
				status.Pitch, status.Yaw, status.Shoot, status.Idle)
		}
		return
	}

	if aux, ok := usbcan.ParseAux7FE(data); ok {
		now := a.clock.Now()
		a.telemetryMu.Lock()
		a.aux = aux
		a.auxAt = now
		a.telemetryMu.Unlock()
	}
}

// Close stops the telemetry loop, forces the fire signal off with one final
// transmit, and releases the link. Safe to call more than once.
func (a *Actuator) Close() error {
	a.lifecycleMu.Lock()
	if a.cancel != nil {
		a.cancel()
		<-a.done
		a.cancel = nil
	}
	a.lifecycleMu.Unlock()

	a.cmdMu.Lock()
	if a.initialized {
		a.cmd.Shoot = 0
		if err := a.sendLocked(); err != nil {
			monitoring.Logf("gimbal: safe-state transmit on close: %v", err)
		}
		a.initialized = false
	}
	a.cmdMu.Unlock()

	return a.transport.Close()
}
