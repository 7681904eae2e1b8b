// Package serialio owns the serial link to the USB-CAN bridge. A Transport
// wraps exactly one port with the byte semantics the actuator layer needs:
// locked sends, bounded receives, an available-byte count, and input
// flushing. Port interfaces keep the package testable without hardware.
package serialio

import (
	"io"
	"time"
)

// Port defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type Port interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPort extends Port with read timeout control. This is an optional
// interface; the transport's non-blocking drain requires it and degrades to
// doing nothing when the port cannot set a timeout.
type TimeoutPort interface {
	Port
	// SetReadTimeout sets the read timeout for the serial port. Zero makes
	// reads return immediately with whatever is pending.
	SetReadTimeout(timeout time.Duration) error
}

// ResettablePort extends Port with a hardware input-buffer reset. Optional.
type ResettablePort interface {
	Port
	ResetInputBuffer() error
}

// PortFactory defines an interface for creating serial ports.
// This abstraction enables dependency injection of serial port creation.
type PortFactory interface {
	// Open opens a serial port at the specified path with the given options.
	Open(path string, opts PortOptions) (Port, error)
}
