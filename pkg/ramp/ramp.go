// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ramp provides the numeric primitives shared by the control loop:
// clamping, a deadbanded sign, a slew-rate limiter and a first-order filter.
package ramp

// DefaultTolerance is the deadband used by Sign when callers have no better value
const DefaultTolerance = 1e-3

// Saturate clamps x into [min, max]
func Saturate(x, min, max float64) float64 {
	if x > max {
		return max
	}
	if x < min {
		return min
	}
	return x
}

// Sign returns +1 when x > tol, -1 when x < -tol and 0 inside the deadband
func Sign(x, tol float64) float64 {
	if x > tol {
		return 1
	}
	if x < -tol {
		return -1
	}
	return 0
}

// RateLimiter moves current toward target by at most period*rate.
// The result is not clamped to target: when the gap is not a whole number of
// steps the value overshoots by less than one step, and callers clamp.
func RateLimiter(target, current, rate, period float64) float64 {
	return current + period*rate*Sign(target-current, DefaultTolerance)
}

// LowPass is a discrete single-pole low-pass filter
type LowPass struct {
	alpha float64
	out   float64
}

// NewLowPass creates a filter sampled every period seconds with time constant tau
func NewLowPass(period, tau float64) *LowPass {
	return &LowPass{alpha: period / (tau + period)}
}

// Update feeds one sample and returns the filtered value
func (f *LowPass) Update(x float64) float64 {
	f.out += f.alpha * (x - f.out)
	return f.out
}

// Value returns the last filtered value
func (f *LowPass) Value() float64 {
	return f.out
}

// Reset forces the filter output to v
func (f *LowPass) Reset(v float64) {
	f.out = v
}
