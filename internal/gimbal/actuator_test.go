package gimbal

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gunmetal-robotics/sentry/internal/serialio"
	"github.com/gunmetal-robotics/sentry/internal/timeutil"
	"github.com/gunmetal-robotics/sentry/internal/usbcan"
)

// testRig bundles an actuator with the fakes behind it.
type testRig struct {
	actuator *Actuator
	port     *serialio.TestablePort
	clock    *timeutil.FakeClock
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	port := serialio.NewTestablePort()
	transport := serialio.NewTransport(serialio.NewTestablePortFactory(port))
	clock := timeutil.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return &testRig{
		actuator: NewActuator(transport, clock),
		port:     port,
		clock:    clock,
	}
}

func (r *testRig) initialize(t *testing.T) {
	t.Helper()
	if err := r.actuator.Initialize([]string{"/dev/ttyTEST0"}, serialio.PortOptions{}); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	t.Cleanup(func() { r.actuator.Close() })
}

// lastFrame returns the final 30 bytes written to the port, decoded.
func (r *testRig) lastFrame(t *testing.T) usbcan.Command {
	t.Helper()
	data := r.port.GetWrittenData()
	if len(data) < usbcan.CommandFrameLen {
		t.Fatalf("port saw only %d bytes", len(data))
	}
	cmd, ok := usbcan.ParseCommandFrame(data[len(data)-usbcan.CommandFrameLen:])
	if !ok {
		t.Fatalf("trailing bytes are not a command frame: %X", data)
	}
	return cmd
}

func TestActuator_InitializeSequence(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	data := rig.port.GetWrittenData()

	// First the rate selection, then the safe-state command.
	wantRate := usbcan.BuildRateFrame(0)
	if len(data) < len(wantRate) || !bytes.Equal(data[:len(wantRate)], wantRate) {
		t.Fatalf("link did not start with a rate frame: %X", data)
	}

	cmd, ok := usbcan.ParseCommandFrame(data[len(wantRate):])
	if !ok {
		t.Fatalf("no command frame after rate frame: %X", data[len(wantRate):])
	}
	want := usbcan.Command{CANID: usbcan.CommandCANID, Pitch: 11000, Yaw: 20000, Shoot: 0, Idle: 0}
	if cmd != want {
		t.Errorf("initial command = %+v, want %+v", cmd, want)
	}

	// The rate change settles for its fixed window before further traffic.
	sleeps := rig.clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 100*time.Millisecond {
		t.Errorf("settle sleeps = %v, want [100ms]", sleeps)
	}
}

func TestActuator_InitializeNoPorts(t *testing.T) {
	factory := serialio.NewTestablePortFactory(nil)
	factory.Err = errors.New("no such device")
	actuator := NewActuator(serialio.NewTransport(factory), timeutil.NewFakeClock(time.Now()))

	err := actuator.Initialize([]string{"/dev/ttyUSB0", "COM3"}, serialio.PortOptions{})
	if !errors.Is(err, serialio.ErrNoPortsAvailable) {
		t.Errorf("error = %v, want ErrNoPortsAvailable", err)
	}
}

func TestActuator_InitializeRateSendFails(t *testing.T) {
	rig := newTestRig(t)
	rig.port.WriteError = errors.New("bridge rejected write")

	err := rig.actuator.Initialize([]string{"/dev/ttyTEST0"}, serialio.PortOptions{})
	if err == nil {
		t.Fatal("initialize should fail when the rate frame cannot be sent")
	}
	if !rig.port.Closed {
		t.Error("transport should be released after a failed initialize")
	}
}

func TestActuator_SettersClampAndTransmit(t *testing.T) {
	tests := []struct {
		name string
		do   func(*Actuator) error
		get  func(Command) int
		want int
	}{
		{"pitch above range", func(a *Actuator) error { return a.SetPitch(40000) }, func(c Command) int { return c.Pitch }, 30000},
		{"pitch below range", func(a *Actuator) error { return a.SetPitch(-5) }, func(c Command) int { return c.Pitch }, 0},
		{"pitch in range", func(a *Actuator) error { return a.SetPitch(14000) }, func(c Command) int { return c.Pitch }, 14000},
		{"yaw above range", func(a *Actuator) error { return a.SetYaw(90000) }, func(c Command) int { return c.Yaw }, 30000},
		{"yaw in range", func(a *Actuator) error { return a.SetYaw(2000) }, func(c Command) int { return c.Yaw }, 2000},
		{"idle clamped", func(a *Actuator) error { return a.SetIdle(-1) }, func(c Command) int { return c.Idle }, 0},
		{"shoot normalized", func(a *Actuator) error { return a.SetShoot(7) }, func(c Command) int { return c.Shoot }, 1},
		{"shoot off", func(a *Actuator) error { return a.SetShoot(0) }, func(c Command) int { return c.Shoot }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestRig(t)
			rig.initialize(t)

			if err := tt.do(rig.actuator); err != nil {
				t.Fatalf("setter failed: %v", err)
			}
			if got := tt.get(rig.actuator.Command()); got != tt.want {
				t.Errorf("stored value = %d, want %d", got, tt.want)
			}

			// The transmitted frame reflects the stored state.
			frame := rig.lastFrame(t)
			stored := rig.actuator.Command()
			if int(frame.Pitch) != stored.Pitch || int(frame.Yaw) != stored.Yaw ||
				int(frame.Shoot) != stored.Shoot || int(frame.Idle) != stored.Idle {
				t.Errorf("frame %+v does not match command %+v", frame, stored)
			}
		})
	}
}

func TestActuator_TriggerAndStopShoot(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	if err := rig.actuator.TriggerShoot(); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if got := rig.actuator.Command().Shoot; got != 1 {
		t.Errorf("shoot after trigger = %d, want 1", got)
	}

	if err := rig.actuator.StopShoot(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if got := rig.actuator.Command().Shoot; got != 0 {
		t.Errorf("shoot after stop = %d, want 0", got)
	}
}

func TestActuator_CommandsBeforeInitialize(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.actuator.SetPitch(1000); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SetPitch error = %v, want ErrNotInitialized", err)
	}
	if err := rig.actuator.SendCommand(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("SendCommand error = %v, want ErrNotInitialized", err)
	}
}

func TestActuator_TransmitFailureRetainsState(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	rig.port.WriteError = errors.New("link dropped")
	if err := rig.actuator.SetPitch(9500); err == nil {
		t.Fatal("setter should surface the transmit failure")
	}

	// The state was applied before the failed transmit and is not rolled back.
	if got := rig.actuator.Command().Pitch; got != 9500 {
		t.Errorf("pitch after failed transmit = %d, want 9500", got)
	}

	// A bare retry carries the retained state out.
	if err := rig.actuator.SendCommand(); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if frame := rig.lastFrame(t); frame.Pitch != 9500 {
		t.Errorf("retried frame pitch = %d, want 9500", frame.Pitch)
	}
}

func TestActuator_PollUpdatesTelemetry(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	rig.port.AddReadData(usbcan.BuildStatusRecord(usbcan.Status{Pitch: 11000, Yaw: 19000, Shoot: 0, Idle: 3}))
	rig.actuator.pollOnce()

	status, at := rig.actuator.Telemetry()
	if status.Yaw != 19000 || status.Pitch != 11000 || status.Idle != 3 {
		t.Errorf("telemetry = %+v", status)
	}
	if !at.Equal(rig.clock.Now()) {
		t.Errorf("telemetry time = %v, want %v", at, rig.clock.Now())
	}
}

func TestActuator_PollSkipsShortTraffic(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	rig.port.AddReadData(make([]byte, usbcan.MinStatusLen-1))
	rig.actuator.pollOnce()

	if _, at := rig.actuator.Telemetry(); !at.IsZero() {
		t.Error("short traffic should not touch the snapshot")
	}
}

func TestActuator_PollSkipsForeignTraffic(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	// A full-length record with the wrong identifier.
	foreign := make([]byte, usbcan.MinStatusLen)
	foreign[3], foreign[4] = 0x01, 0x06
	rig.port.AddReadData(foreign)
	rig.actuator.pollOnce()

	if _, at := rig.actuator.Telemetry(); !at.IsZero() {
		t.Error("foreign traffic should not touch the snapshot")
	}
}

func TestActuator_PollReadsAux(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	raw := make([]byte, usbcan.MinStatusLen)
	raw[3], raw[4] = 0xFE, 0x07
	raw[7], raw[8] = 0x01, 0x02
	raw[11], raw[12] = 0x0A, 0x0B
	rig.port.AddReadData(raw)
	rig.actuator.pollOnce()

	aux, at := rig.actuator.Aux()
	if at.IsZero() {
		t.Fatal("aux record was not captured")
	}
	if aux.Value1 != 0x0102 || aux.Flag1 != 0x0A || aux.Flag2 != 0x0B {
		t.Errorf("aux = %+v", aux)
	}

	// Aux traffic never contaminates the status snapshot.
	if _, statusAt := rig.actuator.Telemetry(); !statusAt.IsZero() {
		t.Error("aux record updated the status snapshot")
	}
}

func TestActuator_ReceiveLoopPolls(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	// Wait for the loop goroutine to arm its ticker.
	waitFor(t, func() bool { return rig.clock.Waiters() > 0 })

	rig.port.AddReadData(usbcan.BuildStatusRecord(usbcan.Status{Pitch: 8000, Yaw: 21000}))
	rig.clock.Advance(pollInterval)

	waitFor(t, func() bool {
		status, at := rig.actuator.Telemetry()
		return !at.IsZero() && status.Pitch == 8000 && status.Yaw == 21000
	})
}

func TestActuator_CloseForcesFireOff(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	if err := rig.actuator.TriggerShoot(); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	if err := rig.actuator.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if frame := rig.lastFrame(t); frame.Shoot != 0 {
		t.Errorf("final frame shoot = %d, want 0", frame.Shoot)
	}
	if !rig.port.Closed {
		t.Error("port was not released")
	}
}

func TestActuator_CloseIdempotent(t *testing.T) {
	rig := newTestRig(t)
	rig.initialize(t)

	if err := rig.actuator.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := rig.actuator.Close(); err != nil {
		t.Errorf("second close returned %v", err)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	commands []Command
	statuses []usbcan.Status
}

func (r *recordingObserver) RecordCommand(cmd Command, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *recordingObserver) RecordStatus(status usbcan.Status, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func TestActuator_Recorders(t *testing.T) {
	rig := newTestRig(t)
	obs := &recordingObserver{}
	rig.actuator.SetCommandRecorder(obs)
	rig.actuator.SetStatusRecorder(obs)
	rig.initialize(t)

	if err := rig.actuator.SetPitch(6000); err != nil {
		t.Fatalf("set pitch failed: %v", err)
	}
	rig.port.AddReadData(usbcan.BuildStatusRecord(usbcan.Status{Pitch: 6000}))
	rig.actuator.pollOnce()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.commands) == 0 {
		t.Error("no commands recorded")
	} else if last := obs.commands[len(obs.commands)-1]; last.Pitch != 6000 {
		t.Errorf("recorded pitch = %d, want 6000", last.Pitch)
	}
	if len(obs.statuses) != 1 {
		t.Errorf("recorded %d statuses, want 1", len(obs.statuses))
	}
}

func TestActuator_FailedTransmitNotRecorded(t *testing.T) {
	rig := newTestRig(t)
	obs := &recordingObserver{}
	rig.actuator.SetCommandRecorder(obs)
	rig.initialize(t)

	obs.mu.Lock()
	before := len(obs.commands)
	obs.mu.Unlock()

	rig.port.WriteError = errors.New("link dropped")
	if err := rig.actuator.SetYaw(100); err == nil {
		t.Fatal("setter should fail")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.commands) != before {
		t.Error("failed transmit should not be recorded")
	}
}

// waitFor polls cond with a real-time deadline, for assertions against loop
// goroutines driven by the fake clock.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
