package videogen

import "time"

// PollMode selects how the wait between status checks evolves.
type PollMode string

const (
	// PollFixed sleeps a constant interval between checks.
	PollFixed PollMode = "fixed"
	// PollAdaptive honors provider Retry-After hints and otherwise ramps the
	// wait multiplicatively up to a cap. Used for strict LRO semantics where
	// hammering the operation endpoint gets the caller rate limited.
	PollAdaptive PollMode = "adaptive"
)

// PollPolicy is the single knob covering both poll shapes.
type PollPolicy struct {
	Mode        PollMode
	Interval    time.Duration // fixed interval, or the adaptive starting wait
	MaxInterval time.Duration // adaptive cap; ignored for fixed
	Deadline    time.Duration // hard wall-clock budget for the whole poll loop
}

const (
	defaultPollInterval    = 2 * time.Second
	defaultPollMaxInterval = 30 * time.Second
	defaultPollDeadline    = 600 * time.Second
	adaptiveGrowthFactor   = 1.5
)

// DefaultFixedPolicy returns the fixed-interval policy with stock defaults.
func DefaultFixedPolicy() PollPolicy {
	return PollPolicy{
		Mode:     PollFixed,
		Interval: defaultPollInterval,
		Deadline: defaultPollDeadline,
	}
}

// DefaultAdaptivePolicy returns the backoff policy with stock defaults.
func DefaultAdaptivePolicy() PollPolicy {
	return PollPolicy{
		Mode:        PollAdaptive,
		Interval:    defaultPollInterval,
		MaxInterval: defaultPollMaxInterval,
		Deadline:    defaultPollDeadline,
	}
}

// normalized fills zero fields with defaults so a partially specified policy
// from config still behaves.
func (p PollPolicy) normalized() PollPolicy {
	if p.Mode == "" {
		p.Mode = PollFixed
	}
	if p.Interval <= 0 {
		p.Interval = defaultPollInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaultPollMaxInterval
	}
	if p.Deadline <= 0 {
		p.Deadline = defaultPollDeadline
	}
	return p
}

// nextWait computes the sleep before the following status check. prev is the
// wait used last iteration (zero on the first), hintMs a provider Retry-After
// hint in milliseconds (zero = none).
func (p PollPolicy) nextWait(prev time.Duration, hintMs int64) time.Duration {
	if p.Mode != PollAdaptive {
		return p.Interval
	}
	if hintMs > 0 {
		return time.Duration(hintMs) * time.Millisecond
	}
	if prev <= 0 {
		return p.Interval
	}
	next := time.Duration(float64(prev) * adaptiveGrowthFactor)
	if next > p.MaxInterval {
		next = p.MaxInterval
	}
	return next
}
