//go:build linux

package sched

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Nice values for the two priority classes. Raising priority (negative
// nice) requires CAP_SYS_NICE; callers treat a failure as advisory.
const (
	niceNormal = 0
	niceHigh   = -10
)

// Apply locks the calling goroutine to its OS thread and sets the thread's
// nice value. The goroutine keeps the thread for its lifetime so the
// priority follows it.
func Apply(p Priority) error {
	runtime.LockOSThread()
	nice := niceNormal
	if p == PriorityHigh {
		nice = niceHigh
	}
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil {
		return fmt.Errorf("setpriority tid %d nice %d: %w", tid, nice, err)
	}
	return nil
}
