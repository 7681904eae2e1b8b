// Package turret implements the control orchestrator: a patrol sweep that
// scans yaw while idle and a tracking engine that locks onto detected
// targets, centers them, and duty-cycles the fire signal.
package turret

import (
	"fmt"
	"strings"
)

// TargetColor selects which class band the tracking engine engages.
type TargetColor string

const (
	ColorBlue TargetColor = "blue"
	ColorRed  TargetColor = "red"
)

// Class ID bands per color. The detector emits ten classes, five per color,
// ordered by target distance.
const (
	blueClassMin = 0
	blueClassMax = 4
	redClassMin  = 5
	redClassMax  = 9
)

// classLabels maps detector class IDs to their calibration labels.
var classLabels = [...]string{
	"blue100", "blue200", "blue300", "blue400", "blue500",
	"red100", "red200", "red300", "red400", "red500",
}

// classPitch maps detector class IDs to hardware-calibrated pitch angles in
// ticks. These are measured constants for the deployed range layout, not
// derived values.
var classPitch = [...]int{
	6000, 8500, 9500, 10000, 14500,
	8000, 10000, 14000, 18000, 20000,
}

// ParseTargetColor converts a user-supplied color name to a TargetColor.
func ParseTargetColor(s string) (TargetColor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blue", "b":
		return ColorBlue, nil
	case "red", "r":
		return ColorRed, nil
	default:
		return "", fmt.Errorf("unknown target color %q (want red or blue)", s)
	}
}

// Detection is one candidate from the vision subsystem: a pixel-space
// bounding box, a class ID, and a confidence in [0, 1].
type Detection struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// CenterX returns the horizontal pixel center of the bounding box.
func (d Detection) CenterX() int {
	return (d.X1 + d.X2) / 2
}

// CenterY returns the vertical pixel center of the bounding box.
func (d Detection) CenterY() int {
	return (d.Y1 + d.Y2) / 2
}

// Label returns the calibration label for the detection's class, or "" for
// an unknown class ID.
func (d Detection) Label() string {
	if d.ClassID < 0 || d.ClassID >= len(classLabels) {
		return ""
	}
	return classLabels[d.ClassID]
}

// Color returns which color band the detection's class belongs to.
func (d Detection) Color() (TargetColor, bool) {
	switch {
	case d.ClassID >= blueClassMin && d.ClassID <= blueClassMax:
		return ColorBlue, true
	case d.ClassID >= redClassMin && d.ClassID <= redClassMax:
		return ColorRed, true
	default:
		return "", false
	}
}

// PitchForClass returns the calibrated pitch angle for a class ID.
func PitchForClass(classID int) (int, bool) {
	if classID < 0 || classID >= len(classPitch) {
		return 0, false
	}
	return classPitch[classID], true
}

// Frame is one control tick's worth of input: the detection list and the
// pixel dimensions of the image it came from.
type Frame struct {
	Detections []Detection `json:"detections"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
}

// selectTarget picks the highest-confidence detection in the given color
// band. Ties keep the earliest candidate. Returns false when no detection
// qualifies.
func selectTarget(dets []Detection, color TargetColor) (Detection, bool) {
	var best Detection
	found := false
	for _, d := range dets {
		c, ok := d.Color()
		if !ok || c != color {
			continue
		}
		if !found || d.Confidence > best.Confidence {
			best = d
			found = true
		}
	}
	return best, found
}
