package serialio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func newOpenTransport(t *testing.T) (*Transport, *TestablePort) {
	t.Helper()
	port := NewTestablePort()
	tr := NewTransport(NewTestablePortFactory(port))
	if err := tr.Open([]string{"/dev/ttyTEST0"}, PortOptions{}); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return tr, port
}

func TestTransport_OpenFirstCandidateWins(t *testing.T) {
	port := NewTestablePort()
	factory := NewTestablePortFactory(port)
	factory.ErrsByPath = map[string]error{
		"/dev/ttyUSB0": errors.New("device not present"),
		"/dev/ttyACM1": errors.New("device busy"),
	}

	tr := NewTransport(factory)
	candidates := []string{"/dev/ttyUSB0", "/dev/ttyACM1", "/dev/ttyUSB1"}
	if err := tr.Open(candidates, PortOptions{}); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if got := tr.Path(); got != "/dev/ttyUSB1" {
		t.Errorf("opened path = %q, want /dev/ttyUSB1", got)
	}

	paths := factory.Paths()
	if len(paths) != 3 {
		t.Fatalf("factory saw %d open attempts, want 3", len(paths))
	}
	for i, want := range candidates {
		if paths[i] != want {
			t.Errorf("attempt %d = %q, want %q", i, paths[i], want)
		}
	}
}

func TestTransport_OpenStopsAtFirstSuccess(t *testing.T) {
	port := NewTestablePort()
	factory := NewTestablePortFactory(port)

	tr := NewTransport(factory)
	if err := tr.Open([]string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, PortOptions{}); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if len(factory.OpenCalls) != 1 {
		t.Errorf("factory saw %d open attempts, want 1", len(factory.OpenCalls))
	}
}

func TestTransport_OpenAllCandidatesFail(t *testing.T) {
	factory := NewTestablePortFactory(nil)
	factory.Err = errors.New("permission denied")

	tr := NewTransport(factory)
	err := tr.Open([]string{"/dev/ttyUSB0", "COM3"}, PortOptions{})
	if !errors.Is(err, ErrNoPortsAvailable) {
		t.Fatalf("error = %v, want ErrNoPortsAvailable", err)
	}
	if tr.IsOpen() {
		t.Error("transport should not be open after total failure")
	}
}

func TestTransport_OpenNoCandidates(t *testing.T) {
	tr := NewTransport(NewTestablePortFactory(NewTestablePort()))
	if err := tr.Open(nil, PortOptions{}); !errors.Is(err, ErrNoPortsAvailable) {
		t.Errorf("error = %v, want ErrNoPortsAvailable", err)
	}
}

func TestTransport_OpenTwice(t *testing.T) {
	tr, _ := newOpenTransport(t)
	if err := tr.Open([]string{"/dev/ttyTEST1"}, PortOptions{}); err == nil {
		t.Error("second open should fail while the first port is held")
	}
}

func TestTransport_Send(t *testing.T) {
	tr, port := newOpenTransport(t)

	payload := []byte{0x55, 0xAA, 0x01, 0x02}
	if err := tr.Send(payload); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !bytes.Equal(port.GetWrittenData(), payload) {
		t.Errorf("port saw %X, want %X", port.GetWrittenData(), payload)
	}
}

func TestTransport_SendNotOpen(t *testing.T) {
	tr := NewTransport(NewTestablePortFactory(NewTestablePort()))
	if err := tr.Send([]byte{0x01}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("error = %v, want ErrNotOpen", err)
	}
}

func TestTransport_SendShortWrite(t *testing.T) {
	tr, port := newOpenTransport(t)
	port.ShortWriteBy = 1

	err := tr.Send([]byte{0x01, 0x02, 0x03})
	if !errors.Is(err, ErrShortWrite) {
		t.Errorf("error = %v, want ErrShortWrite", err)
	}
}

func TestTransport_SendWriteError(t *testing.T) {
	tr, port := newOpenTransport(t)
	port.WriteError = errors.New("device unplugged")

	if err := tr.Send([]byte{0x01}); err == nil {
		t.Error("send should surface the port write error")
	}
}

func TestTransport_ReceiveEmpty(t *testing.T) {
	tr, _ := newOpenTransport(t)

	data, err := tr.Receive(16)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("received %d bytes from a quiet link, want 0", len(data))
	}
}

func TestTransport_Receive(t *testing.T) {
	tr, port := newOpenTransport(t)
	port.AddReadData([]byte{0x0A, 0x0B, 0x0C, 0x0D})

	data, err := tr.Receive(16)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0x0A, 0x0B, 0x0C, 0x0D}) {
		t.Errorf("received %X", data)
	}
}

func TestTransport_ReceivePartial(t *testing.T) {
	tr, port := newOpenTransport(t)
	port.AddReadData([]byte{1, 2, 3, 4, 5})

	first, err := tr.Receive(3)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if !bytes.Equal(first, []byte{1, 2, 3}) {
		t.Errorf("first read = %v, want [1 2 3]", first)
	}

	// The remainder stays buffered for the next call.
	rest, err := tr.Receive(16)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if !bytes.Equal(rest, []byte{4, 5}) {
		t.Errorf("second read = %v, want [4 5]", rest)
	}
}

func TestTransport_ReceiveNotOpen(t *testing.T) {
	tr := NewTransport(NewTestablePortFactory(NewTestablePort()))
	if _, err := tr.Receive(16); !errors.Is(err, ErrNotOpen) {
		t.Errorf("error = %v, want ErrNotOpen", err)
	}
}

func TestTransport_ReceiveZeroMax(t *testing.T) {
	tr, port := newOpenTransport(t)
	port.AddReadData([]byte{1, 2, 3})

	data, err := tr.Receive(0)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Receive(0) returned %d bytes", len(data))
	}
}

func TestTransport_Available(t *testing.T) {
	tr, port := newOpenTransport(t)

	if got := tr.Available(); got != 0 {
		t.Errorf("available on quiet link = %d, want 0", got)
	}

	record := make([]byte, 20)
	port.AddReadData(record)
	if got := tr.Available(); got != 20 {
		t.Errorf("available = %d, want 20", got)
	}

	// Counting must not consume: the bytes are still receivable.
	data, err := tr.Receive(20)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(data) != 20 {
		t.Errorf("received %d bytes after available, want 20", len(data))
	}
}

func TestTransport_AvailableRestoresReadTimeout(t *testing.T) {
	tr, port := newOpenTransport(t)
	port.AddReadData([]byte{1, 2, 3})

	tr.Available()

	if port.ReadTimeout != DefaultReadTimeout {
		t.Errorf("read timeout after drain = %v, want %v", port.ReadTimeout, DefaultReadTimeout)
	}
}

func TestTransport_AvailableNotOpen(t *testing.T) {
	tr := NewTransport(NewTestablePortFactory(NewTestablePort()))
	if got := tr.Available(); got != 0 {
		t.Errorf("available on closed transport = %d, want 0", got)
	}
}

func TestTransport_Flush(t *testing.T) {
	tr, port := newOpenTransport(t)
	port.AddReadData(make([]byte, 40))

	tr.Flush()

	if got := tr.Available(); got != 0 {
		t.Errorf("available after flush = %d, want 0", got)
	}
	if port.ResetCalls != 1 {
		t.Errorf("port reset calls = %d, want 1", port.ResetCalls)
	}
}

func TestTransport_CloseIdempotent(t *testing.T) {
	tr, port := newOpenTransport(t)

	if err := tr.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !port.Closed {
		t.Error("port was not closed")
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second close returned %v, want nil", err)
	}

	if err := tr.Send([]byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("send after close = %v, want ErrNotOpen", err)
	}
}

func TestTransport_ReopenAfterClose(t *testing.T) {
	tr, _ := newOpenTransport(t)
	if err := tr.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := tr.Open([]string{"/dev/ttyTEST0"}, PortOptions{}); err != nil {
		t.Errorf("reopen after close failed: %v", err)
	}
}

func TestTransport_OpenRecordsOptions(t *testing.T) {
	port := NewTestablePort()
	factory := NewTestablePortFactory(port)
	tr := NewTransport(factory)

	if err := tr.Open([]string{"/dev/ttyTEST0"}, PortOptions{BaudRate: 115200}); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	call := factory.LastCall()
	if call == nil {
		t.Fatal("factory recorded no calls")
	}
	if call.Opts.BaudRate != 115200 {
		t.Errorf("baud rate = %d, want 115200", call.Opts.BaudRate)
	}
	if call.Opts.ReadTimeout != DefaultReadTimeout {
		t.Errorf("read timeout = %v, want %v", call.Opts.ReadTimeout, DefaultReadTimeout)
	}
}

func TestTransport_SendConcurrentWithAvailable(t *testing.T) {
	tr, port := newOpenTransport(t)
	port.AddReadData(make([]byte, 100))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			tr.Available()
		}
	}()

	for i := 0; i < 50; i++ {
		if err := tr.Send([]byte{0x55, 0xAA}); err != nil {
			t.Errorf("send %d failed: %v", i, err)
			break
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("available loop did not finish")
	}
}
