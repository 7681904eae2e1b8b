package serialio

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// TestablePort implements Port with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors, and timeouts.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// ShortWriteBy truncates the next write's reported length when positive
	ShortWriteBy int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// ResetCalls records the number of ResetInputBuffer calls
	ResetCalls int
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort() *TestablePort {
	return &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read reads from the read buffer, optionally simulating errors. An empty
// buffer behaves like a timed-out serial read: zero bytes, no error.
func (t *TestablePort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}

	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors and short
// writes.
func (t *TestablePort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	n, err = t.WriteBuffer.Write(p)
	if t.ShortWriteBy > 0 && t.ShortWriteBy < n {
		n -= t.ShortWriteBy
		t.ShortWriteBy = 0
	}
	return n, err
}

// Close marks the port as closed.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// SetReadTimeout implements TimeoutPort.
func (t *TestablePort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// ResetInputBuffer implements ResettablePort by clearing the read buffer.
func (t *TestablePort) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ResetCalls++
	t.ReadBuffer.Reset()
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
}

// GetWrittenData returns all data written to the port.
func (t *TestablePort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}

// Reset clears all buffers and resets state.
func (t *TestablePort) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Reset()
	t.WriteBuffer.Reset()
	t.ReadCalls = 0
	t.WriteCalls = 0
	t.ResetCalls = 0
	t.Closed = false
	t.ReadError = nil
	t.WriteError = nil
	t.CloseError = nil
	t.ShortWriteBy = 0
}

// TestablePortFactory implements PortFactory for testing.
type TestablePortFactory struct {
	mu sync.Mutex

	// Port is the port returned for any path not listed in PortsByPath
	Port Port

	// Err is returned for any path not listed in ErrsByPath
	Err error

	// PortsByPath maps specific paths to ports
	PortsByPath map[string]Port

	// ErrsByPath maps specific paths to open errors
	ErrsByPath map[string]error

	// OpenCalls records all Open calls
	OpenCalls []OpenCall
}

// OpenCall records details of an Open call.
type OpenCall struct {
	Path string
	Opts PortOptions
}

// NewTestablePortFactory creates a factory that returns port for every path.
func NewTestablePortFactory(port Port) *TestablePortFactory {
	return &TestablePortFactory{Port: port}
}

// Open returns the configured port or error for the given path.
func (f *TestablePortFactory) Open(path string, opts PortOptions) (Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, OpenCall{Path: path, Opts: opts})

	if err, ok := f.ErrsByPath[path]; ok {
		return nil, err
	}
	if port, ok := f.PortsByPath[path]; ok {
		return port, nil
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *TestablePortFactory) LastCall() *OpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}

// Paths returns the paths passed to Open, in call order.
func (f *TestablePortFactory) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	paths := make([]string, len(f.OpenCalls))
	for i, c := range f.OpenCalls {
		paths[i] = c.Path
	}
	return paths
}
