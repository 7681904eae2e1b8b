//go:build !linux

package sched

// Apply accepts the hint on platforms without a priority adapter.
func Apply(p Priority) error {
	return nil
}
