// Package reconnect keeps a chat transport connected. A Supervisor reacts to
// open and close signals from one transport session at a time and schedules
// the next connect after a jittered, capped exponential delay. It never gives up.
package reconnect

import (
	"math/rand/v2"
	"time"
)

// Policy computes reconnect delays: a uniform draw from
// [0, min(Max, (2^attempts - 1) * Base)).
type Policy struct {
	Base time.Duration
	Max  time.Duration
	// Rand returns a value in [0, 1). Defaults to math/rand/v2.Float64.
	Rand func() float64
}

// DefaultPolicy is 1s base, 30s cap, full jitter.
func DefaultPolicy() Policy {
	return Policy{Base: time.Second, Max: 30 * time.Second, Rand: rand.Float64}
}

// MaxDelay is the un-jittered upper bound for the given attempt count.
func (p Policy) MaxDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if attempts >= 31 {
		return p.Max
	}
	d := time.Duration((int64(1)<<attempts)-1) * p.Base
	if d > p.Max || d < 0 {
		return p.Max
	}
	return d
}

// Delay draws the jittered delay for the given attempt count.
func (p Policy) Delay(attempts int) time.Duration {
	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	return time.Duration(r() * float64(p.MaxDelay(attempts)))
}
