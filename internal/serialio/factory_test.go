package serialio

import "testing"

func TestRealPortFactory_OpenMissingDevice(t *testing.T) {
	factory := RealPortFactory{}

	if _, err := factory.Open("/dev/ttyNOPE99", PortOptions{}); err == nil {
		t.Error("opening a nonexistent device should fail")
	}
}

func TestRealPortFactory_OpenInvalidOptions(t *testing.T) {
	factory := RealPortFactory{}

	if _, err := factory.Open("/dev/ttyUSB0", PortOptions{DataBits: 99}); err == nil {
		t.Error("invalid options should fail before touching the device")
	}
}
