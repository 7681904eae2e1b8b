package serialio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gunmetal-robotics/sentry/internal/monitoring"
)

var (
	// ErrNotOpen is returned when an operation requires an open link.
	ErrNotOpen = errors.New("serial transport not open")
	// ErrShortWrite is returned when the OS accepts fewer bytes than sent.
	ErrShortWrite = errors.New("short write to serial port")
	// ErrNoPortsAvailable is returned when every candidate path fails to open.
	ErrNoPortsAvailable = errors.New("no candidate serial port could be opened")
)

// maxDrainReads bounds how many port reads a single drain pass will issue.
// At 115200 baud nothing close to this accumulates between polls.
const maxDrainReads = 64

// Transport owns exclusive access to one serial link. All operations are
// serialized under one lock so a frame write never interleaves with another
// write or with buffer maintenance. The handle is never shared or duplicated;
// Close is idempotent.
type Transport struct {
	factory PortFactory

	mu    sync.Mutex
	port  Port
	path  string
	opts  PortOptions
	rxbuf bytes.Buffer
}

// NewTransport creates a Transport that opens ports through the given factory.
func NewTransport(factory PortFactory) *Transport {
	return &Transport{factory: factory}
}

// Open tries each candidate path in order and keeps the first port that
// opens. On total failure the returned error wraps ErrNoPortsAvailable and
// records every attempt.
func (t *Transport) Open(candidates []string, opts PortOptions) error {
	normalized, err := opts.Normalize()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		return fmt.Errorf("transport already open on %s", t.path)
	}
	if len(candidates) == 0 {
		return ErrNoPortsAvailable
	}

	var attempts []error
	for _, path := range candidates {
		port, err := t.factory.Open(path, normalized)
		if err != nil {
			attempts = append(attempts, fmt.Errorf("%s: %w", path, err))
			continue
		}
		t.port = port
		t.path = path
		t.opts = normalized
		t.rxbuf.Reset()
		monitoring.Logf("serial: opened %s at %d baud", path, normalized.BaudRate)
		return nil
	}

	return fmt.Errorf("%w: %w", ErrNoPortsAvailable, errors.Join(attempts...))
}

// Send writes data to the port atomically with respect to every other
// transport operation.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return ErrNotOpen
	}

	n, err := t.port.Write(data)
	if err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(data))
	}
	return nil
}

// Receive returns up to max buffered bytes, issuing at most one bounded port
// read when the buffer is empty. It may return fewer bytes than requested,
// including none, without error.
func (t *Transport) Receive(max int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, ErrNotOpen
	}
	if max <= 0 {
		return nil, nil
	}

	if t.rxbuf.Len() == 0 {
		if err := t.fillLocked(max); err != nil {
			return nil, err
		}
	}

	if t.rxbuf.Len() == 0 {
		return nil, nil
	}
	out := make([]byte, min(max, t.rxbuf.Len()))
	n, _ := t.rxbuf.Read(out)
	return out[:n], nil
}

// Available reports how many unread bytes the transport holds. The port
// library exposes no kernel queue count, so pending port bytes are drained
// into the transport's own buffer with zero-timeout polls and counted there.
func (t *Transport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return 0
	}
	t.drainLocked()
	return t.rxbuf.Len()
}

// Flush discards all buffered input, both transport-side and port-side.
func (t *Transport) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return
	}
	t.drainLocked()
	if n := t.rxbuf.Len(); n > 0 {
		monitoring.Logf("serial: flushed %d buffered bytes", n)
	}
	t.rxbuf.Reset()
	if rp, ok := t.port.(ResettablePort); ok {
		rp.ResetInputBuffer()
	}
}

// Close releases the port. Safe to call on an unopened or already closed
// transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.rxbuf.Reset()
	if err != nil {
		return fmt.Errorf("serial close: %w", err)
	}
	monitoring.Logf("serial: closed %s", t.path)
	return nil
}

// IsOpen reports whether the transport currently holds a port.
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Path returns the device path of the open port, or empty when closed.
func (t *Transport) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return ""
	}
	return t.path
}

// fillLocked issues one bounded read of up to max bytes into the receive
// buffer. A timed-out read yields zero bytes and no error.
func (t *Transport) fillLocked(max int) error {
	tmp := make([]byte, max)
	n, err := t.port.Read(tmp)
	if n > 0 {
		t.rxbuf.Write(tmp[:n])
	}
	if err != nil && err != io.EOF {
		return fmt.Errorf("serial read: %w", err)
	}
	return nil
}

// drainLocked moves everything the port will yield without blocking into the
// receive buffer. Ports without timeout control are left alone so a quiet
// link cannot stall the caller.
func (t *Transport) drainLocked() {
	tp, ok := t.port.(TimeoutPort)
	if !ok {
		return
	}
	if err := tp.SetReadTimeout(0); err != nil {
		return
	}
	defer tp.SetReadTimeout(t.opts.ReadTimeout)

	tmp := make([]byte, 256)
	for i := 0; i < maxDrainReads; i++ {
		n, err := t.port.Read(tmp)
		if n > 0 {
			t.rxbuf.Write(tmp[:n])
		}
		if err != nil || n == 0 {
			return
		}
	}
}
