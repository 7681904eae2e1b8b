// Package sched applies scheduling hints to the calling goroutine's OS
// thread. The tracking loop runs at elevated priority so the firing decision
// keeps up with the camera frame rate; everything else runs at normal
// priority. Platforms without an adapter accept the hint and do nothing.
package sched

// Priority is an abstract scheduling class.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}
