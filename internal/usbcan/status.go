package usbcan

// Raw record geometry.
const (
	// MinStatusLen is the shortest raw record that can carry a full status
	// payload.
	MinStatusLen = 15
	// MinAuxLen is the shortest raw record for the auxiliary 0x7FE payload.
	MinAuxLen = 13
)

// Status is one decoded gimbal status record from the 0x07FF stream. Values
// are raw controller ticks, matching the commanded units.
type Status struct {
	Pitch uint16 `json:"pitch"`
	Yaw   uint16 `json:"yaw"`
	Shoot uint16 `json:"shoot"`
	Idle  uint16 `json:"idle"`
}

// Aux is the auxiliary record broadcast on the 0x7FE stream: two counters in
// the usual byte-pair layout plus two raw controller flag bytes.
type Aux struct {
	Value1 uint16
	Value2 uint16
	Flag1  byte
	Flag2  byte
}

// MatchCANID reports whether a raw bridge record carries the given CAN
// identifier. The identifier sits little-endian at offsets 3-4; records too
// short for a status payload never match.
func MatchCANID(raw []byte, target uint32) bool {
	if len(raw) < MinStatusLen {
		return false
	}
	id := uint32(raw[3]) | uint32(raw[4])<<8
	return id == target&0xFFFF
}

// ParseStatus07FF decodes a status record from the 0x07FF telemetry stream.
// Each value arrives as a byte pair with the high byte first on the wire.
func ParseStatus07FF(raw []byte) (Status, bool) {
	if !MatchCANID(raw, StatusCANID) {
		return Status{}, false
	}
	return Status{
		Pitch: pairU16(raw[8], raw[7]),
		Yaw:   pairU16(raw[10], raw[9]),
		Shoot: pairU16(raw[12], raw[11]),
		Idle:  pairU16(raw[14], raw[13]),
	}, true
}

// ParseAux7FE decodes an auxiliary record. These are identified by a two-byte
// marker rather than the identifier offsets used by the status stream.
func ParseAux7FE(raw []byte) (Aux, bool) {
	if len(raw) < MinAuxLen {
		return Aux{}, false
	}
	if raw[3] != 0xFE || raw[4] != 0x07 {
		return Aux{}, false
	}
	return Aux{
		Value1: pairU16(raw[8], raw[7]),
		Value2: pairU16(raw[10], raw[9]),
		Flag1:  raw[11],
		Flag2:  raw[12],
	}, true
}

// BuildStatusRecord assembles a synthetic raw status record for tests and the
// bench simulator. Bytes outside the parsed offsets are left zero.
func BuildStatusRecord(s Status) []byte {
	raw := make([]byte, MinStatusLen)
	raw[3] = byte(StatusCANID & 0xFF)
	raw[4] = byte(StatusCANID >> 8)
	raw[7], raw[8] = byte(s.Pitch>>8), byte(s.Pitch)
	raw[9], raw[10] = byte(s.Yaw>>8), byte(s.Yaw)
	raw[11], raw[12] = byte(s.Shoot>>8), byte(s.Shoot)
	raw[13], raw[14] = byte(s.Idle>>8), byte(s.Idle)
	return raw
}

// pairU16 reassembles a 16-bit value from its wire bytes.
func pairU16(low, high byte) uint16 {
	return uint16(low) | uint16(high)<<8
}
