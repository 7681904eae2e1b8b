package turret

import "time"

// Patrol sweep defaults. The sweep covers yaw center 15000 ± 13000 and slows
// inside the deceleration zone so the gimbal does not slam into a reversal.
const (
	DefaultPatrolRightLimit = 2000
	DefaultPatrolLeftLimit  = 28000
	DefaultPatrolBaseStep   = 50
	DefaultPatrolMinStep    = 30
	DefaultPatrolDecelZone  = 500
	DefaultPatrolInterval   = 30 * time.Millisecond

	// minPatrolFactor keeps the scaled step nonzero at the limit itself.
	minPatrolFactor = 0.1
)

// PatrolConfig holds the sweep geometry and pacing.
type PatrolConfig struct {
	RightLimit int           // Yaw tick at the right end of the sweep
	LeftLimit  int           // Yaw tick at the left end of the sweep
	BaseStep   int           // Ticks advanced per interval at full speed
	MinStep    int           // Floor for the scaled step near a limit
	DecelZone  int           // Distance from a limit where scaling begins
	Interval   time.Duration // Pacing between steps
}

// DefaultPatrolConfig returns the deployed sweep parameters.
func DefaultPatrolConfig() PatrolConfig {
	return PatrolConfig{
		RightLimit: DefaultPatrolRightLimit,
		LeftLimit:  DefaultPatrolLeftLimit,
		BaseStep:   DefaultPatrolBaseStep,
		MinStep:    DefaultPatrolMinStep,
		DecelZone:  DefaultPatrolDecelZone,
		Interval:   DefaultPatrolInterval,
	}
}

// Patrol computes the yaw sweep, one step at a time. It keeps only the sweep
// direction as state; the position is read from and written back to the
// actuator by the caller, so tracking can move the gimbal without the sweep
// losing its place.
type Patrol struct {
	cfg PatrolConfig
	dir int // +1 toward LeftLimit, -1 toward RightLimit
}

// NewPatrol creates a patrol sweep starting toward the left limit.
func NewPatrol(cfg PatrolConfig) *Patrol {
	if cfg.LeftLimit <= cfg.RightLimit {
		cfg = DefaultPatrolConfig()
	}
	return &Patrol{cfg: cfg, dir: 1}
}

// Direction reports the current sweep direction: +1 increasing yaw, -1
// decreasing.
func (p *Patrol) Direction() int {
	return p.dir
}

// Next advances the sweep from the given yaw position and returns the next
// position. The step shrinks proportionally to the remaining distance inside
// the deceleration zone, floored at MinStep, and the direction reverses
// exactly at the limits without overshooting them.
func (p *Patrol) Next(yaw int) int {
	next := yaw + p.dir*p.stepFrom(yaw)
	if next >= p.cfg.LeftLimit {
		next = p.cfg.LeftLimit
		p.dir = -1
	} else if next <= p.cfg.RightLimit {
		next = p.cfg.RightLimit
		p.dir = 1
	}
	return next
}

// stepFrom returns the step size for the given position. Scaling on the
// distance to the nearest limit slows the sweep both approaching and
// leaving an endpoint.
func (p *Patrol) stepFrom(yaw int) int {
	dist := p.cfg.LeftLimit - yaw
	if d := yaw - p.cfg.RightLimit; d < dist {
		dist = d
	}
	if dist < 0 {
		// The actuator was steered outside the sweep band; head back at
		// the floor speed and let Next clamp to the limit.
		dist = 0
	}
	if dist >= p.cfg.DecelZone {
		return p.cfg.BaseStep
	}
	factor := float64(dist) / float64(p.cfg.DecelZone)
	if factor < minPatrolFactor {
		factor = minPatrolFactor
	}
	step := int(float64(p.cfg.BaseStep) * factor)
	if step < p.cfg.MinStep {
		step = p.cfg.MinStep
	}
	return step
}
