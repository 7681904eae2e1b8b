// Package units provides shared constants and conversions for gimbal angles
package units

// Tick range shared by both gimbal axes. The actuator rejects nothing; callers
// clamp into this range before commanding.
const (
	TickMin = 0
	TickMax = 30000
)

const (
	// YawCenterTicks is the forward-facing yaw reference position.
	YawCenterTicks = 15000

	// DegreesFullScale is the nominal physical travel across the full tick
	// range, taken from the pitch axis calibration (~25 degrees per 30000
	// ticks). Yaw reporting reuses the same nominal scale.
	DegreesFullScale = 25.0
)

// Unit constants
const (
	Ticks   = "ticks"
	Degrees = "degrees"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Ticks, Degrees}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "ticks, degrees"
}

// Clamp bounds a commanded angle to the actuator's valid tick range.
func Clamp(v int) int {
	if v < TickMin {
		return TickMin
	}
	if v > TickMax {
		return TickMax
	}
	return v
}

// InRange reports whether v lies inside the valid tick range without clamping.
func InRange(v int) bool {
	return v >= TickMin && v <= TickMax
}

// PitchDegrees converts a pitch tick value to degrees above the level reference.
func PitchDegrees(ticks int) float64 {
	return float64(ticks) * DegreesFullScale / float64(TickMax)
}

// YawDegrees converts a yaw tick value to a signed degree offset from the
// forward-facing center.
func YawDegrees(ticks int) float64 {
	return float64(ticks-YawCenterTicks) * DegreesFullScale / float64(TickMax)
}

// ConvertPitch converts a pitch tick value to the target units.
// Angles are stored and commanded in ticks.
func ConvertPitch(ticks int, targetUnits string) float64 {
	switch targetUnits {
	case Degrees:
		return PitchDegrees(ticks)
	default:
		return float64(ticks)
	}
}

// ConvertYaw converts a yaw tick value to the target units. In degrees the
// result is the signed offset from center rather than an absolute angle.
func ConvertYaw(ticks int, targetUnits string) float64 {
	switch targetUnits {
	case Degrees:
		return YawDegrees(ticks)
	default:
		return float64(ticks)
	}
}
