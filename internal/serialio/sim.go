package serialio

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/gunmetal-robotics/sentry/internal/usbcan"
)

// SimulatedPort behaves like a bench gimbal for development without hardware.
// Command frames written to it update its state, and a background goroutine
// emits a status record for that state every interval. It satisfies Port,
// TimeoutPort, and ResettablePort, so the Transport treats it exactly like a
// real device.
type SimulatedPort struct {
	mu     sync.Mutex
	rx     bytes.Buffer
	status usbcan.Status
	closed bool

	stop chan struct{}
	once sync.Once
}

// NewSimulatedPort starts a simulated gimbal that reports its status every
// interval.
func NewSimulatedPort(interval time.Duration) *SimulatedPort {
	p := &SimulatedPort{stop: make(chan struct{})}
	go p.emit(interval)
	return p
}

func (p *SimulatedPort) emit(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if !p.closed {
				p.rx.Write(usbcan.BuildStatusRecord(p.status))
			}
			p.mu.Unlock()
		}
	}
}

// Read returns pending status bytes, or zero bytes when quiet, mirroring a
// timed-out serial read.
func (p *SimulatedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("simulated port closed")
	}
	if p.rx.Len() == 0 {
		return 0, nil
	}
	return p.rx.Read(b)
}

// Write accepts a host frame. Command frames move the simulated gimbal; rate
// configuration and anything unrecognized are accepted and ignored.
func (p *SimulatedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("simulated port closed")
	}
	if cmd, ok := usbcan.ParseCommandFrame(b); ok {
		p.status = usbcan.Status{Pitch: cmd.Pitch, Yaw: cmd.Yaw, Shoot: cmd.Shoot, Idle: cmd.Idle}
	}
	return len(b), nil
}

// Close stops the emitter. Safe to call more than once.
func (p *SimulatedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.once.Do(func() { close(p.stop) })
	return nil
}

// SetReadTimeout implements TimeoutPort. Reads never block, so the timeout is
// accepted and ignored.
func (p *SimulatedPort) SetReadTimeout(time.Duration) error { return nil }

// ResetInputBuffer implements ResettablePort.
func (p *SimulatedPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx.Reset()
	return nil
}

// Status returns the simulated gimbal's current state.
func (p *SimulatedPort) Status() usbcan.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
