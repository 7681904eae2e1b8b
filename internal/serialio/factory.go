package serialio

import (
	"go.bug.st/serial"
)

// RealPortFactory opens physical serial ports through go.bug.st/serial.
type RealPortFactory struct{}

// Open opens the port at path with the given options and applies the read
// timeout so polls on a quiet link return instead of blocking.
func (RealPortFactory) Open(path string, opts PortOptions) (Port, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	mode, err := normalized.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(normalized.ReadTimeout); err != nil {
		port.Close()
		return nil, err
	}

	return port, nil
}
