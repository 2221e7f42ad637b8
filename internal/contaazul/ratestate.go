package contaazul

import "time"

// RateState carries the per-run pacing state of a fan-out fetch: the current
// inter-request delay, doubled for the remainder of the run every time the
// API answers 429. The delay never resets within a run.
type RateState struct {
	delay time.Duration
	sleep func(time.Duration)
}

func NewRateState(initial time.Duration) *RateState {
	return &RateState{delay: initial, sleep: time.Sleep}
}

// SetSleep overrides the sleep function. Tests use this to avoid real
// delays.
func (r *RateState) SetSleep(sleep func(time.Duration)) {
	if sleep != nil {
		r.sleep = sleep
	}
}

// Wait blocks for the current inter-request delay.
func (r *RateState) Wait() {
	r.sleep(r.delay)
}

// Penalize doubles the inter-request delay. Monotonic.
func (r *RateState) Penalize() {
	r.delay *= 2
}

// Delay returns the current inter-request delay.
func (r *RateState) Delay() time.Duration {
	return r.delay
}
