// Package monitoring carries the process-wide diagnostic seams: a swappable
// log function and a sampler for rate-limited log lines on hot paths.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Sampler gates repetitive diagnostics to one in every N occurrences. The
// telemetry receive loop uses it so that per-frame events stay observable
// without flooding the log at poll rate.
type Sampler struct {
	every uint64
	count atomic.Uint64
}

// NewSampler returns a Sampler that fires on the first call and then once
// every n calls. n < 1 is treated as 1 (every call fires).
func NewSampler(n int) *Sampler {
	if n < 1 {
		n = 1
	}
	return &Sampler{every: uint64(n)}
}

// Tick records one occurrence and reports whether this one should be logged.
func (s *Sampler) Tick() bool {
	c := s.count.Add(1)
	return (c-1)%s.every == 0
}

// Count returns the number of occurrences recorded so far.
func (s *Sampler) Count() uint64 {
	return s.count.Load()
}
