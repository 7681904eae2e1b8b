// Package usbcan builds and parses the framed messages exchanged with the
// USB-CAN bridge adapter that fronts the gimbal controller. Host frames wrap
// outbound CAN traffic for the bridge; raw records are the bridge's inbound
// representation of bus traffic. All functions are pure and never panic on
// short or malformed input.
package usbcan

import "encoding/binary"

// CAN identifiers on the gimbal bus.
const (
	// CommandCANID tags outbound angle and fire commands.
	CommandCANID uint32 = 0x601
	// StatusCANID tags inbound gimbal status telemetry.
	StatusCANID uint32 = 0x07FF
)

// Host frame geometry.
const (
	// CommandFrameLen is the fixed size of a command host frame.
	CommandFrameLen = 30
	// RateFrameLen is the fixed size of a serial rate configuration frame.
	RateFrameLen = 5
)

const (
	frameHeader0 = 0x55
	frameHeader1 = 0xAA
	frameTrailer = 0x88

	// Bridge command byte: forward one CAN data frame.
	cmdForwardCAN = 0x01
)

// BuildCommandFrame assembles the 30-byte host frame that asks the bridge to
// forward one 8-byte CAN data frame to canID. Field order, endianness, and
// sentinel bytes are fixed by the bridge firmware.
func BuildCommandFrame(canID uint32, pitch, yaw, shoot, idle uint16) []byte {
	frame := make([]byte, CommandFrameLen)
	frame[0] = frameHeader0
	frame[1] = frameHeader1
	frame[2] = CommandFrameLen
	frame[3] = cmdForwardCAN
	binary.LittleEndian.PutUint32(frame[4:8], 1)   // send-repeat count
	binary.LittleEndian.PutUint32(frame[8:12], 10) // inter-send interval
	frame[12] = 0x00                               // standard identifier
	binary.LittleEndian.PutUint32(frame[13:17], canID)
	frame[17] = 0x00 // data frame
	frame[18] = 0x08 // CAN payload length
	frame[19] = 0x00 // ID acceptance mask, unused
	frame[20] = 0x00 // data acceptance mask, unused
	binary.LittleEndian.PutUint16(frame[21:23], pitch)
	binary.LittleEndian.PutUint16(frame[23:25], yaw)
	binary.LittleEndian.PutUint16(frame[25:27], shoot)
	binary.LittleEndian.PutUint16(frame[27:29], idle)
	frame[29] = frameTrailer
	return frame
}

// BuildRateFrame assembles the 5-byte rate configuration frame. Rate index 0
// selects the fastest rate the link supports.
func BuildRateFrame(rateIndex byte) []byte {
	return []byte{0x55, 0x05, rateIndex, 0xAA, 0x55}
}

// ParseHostFrame checks the framing of a 30-byte host frame and extracts the
// CAN identifier it carries, for diagnostics. Only header, trailer, and
// identifier are validated; status values travel in the raw bus records
// decoded by ParseStatus07FF.
func ParseHostFrame(frame []byte) (canID uint32, ok bool) {
	if len(frame) < CommandFrameLen {
		return 0, false
	}
	if frame[0] != frameHeader0 || frame[1] != frameHeader1 {
		return 0, false
	}
	if frame[29] != frameTrailer {
		return 0, false
	}
	return binary.LittleEndian.Uint32(frame[13:17]), true
}

// Command is a decoded outbound command frame.
type Command struct {
	CANID uint32
	Pitch uint16
	Yaw   uint16
	Shoot uint16
	Idle  uint16
}

// ParseCommandFrame decodes a command host frame back into its fields. The
// command log and the bench simulator use this to recover what was sent.
func ParseCommandFrame(frame []byte) (Command, bool) {
	if _, ok := ParseHostFrame(frame); !ok {
		return Command{}, false
	}
	if frame[3] != cmdForwardCAN {
		return Command{}, false
	}
	return Command{
		CANID: binary.LittleEndian.Uint32(frame[13:17]),
		Pitch: binary.LittleEndian.Uint16(frame[21:23]),
		Yaw:   binary.LittleEndian.Uint16(frame[23:25]),
		Shoot: binary.LittleEndian.Uint16(frame[25:27]),
		Idle:  binary.LittleEndian.Uint16(frame[27:29]),
	}, true
}
