// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ramp

import (
	"math"
	"testing"
)

func TestSaturate(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		expected float64
	}{
		{"below", -2, -1},
		{"inside", 0.3, 0.3},
		{"above", 5, 1},
		{"at min", -1, -1},
		{"at max", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Saturate(tt.x, -1, 1); got != tt.expected {
				t.Errorf("Saturate(%v) = %v, want %v", tt.x, got, tt.expected)
			}
		})
	}
}

func TestSaturate_IdempotentAndMonotonic(t *testing.T) {
	prev := math.Inf(-1)
	for x := -3.0; x <= 3.0; x += 0.01 {
		once := Saturate(x, -1, 1)
		if twice := Saturate(once, -1, 1); twice != once {
			t.Fatalf("Saturate not idempotent at %v: %v != %v", x, twice, once)
		}
		if once < prev {
			t.Fatalf("Saturate not monotonic at %v: %v < %v", x, once, prev)
		}
		prev = once
	}
}

func TestSign(t *testing.T) {
	tests := []struct {
		x        float64
		tol      float64
		expected float64
	}{
		{0, DefaultTolerance, 0},
		{0.001, DefaultTolerance, 0},
		{-0.001, DefaultTolerance, 0},
		{0.0011, DefaultTolerance, 1},
		{-0.0011, DefaultTolerance, -1},
		{5, 10, 0},
		{-11, 10, -1},
	}

	for _, tt := range tests {
		if got := Sign(tt.x, tt.tol); got != tt.expected {
			t.Errorf("Sign(%v, %v) = %v, want %v", tt.x, tt.tol, got, tt.expected)
		}
	}
}

func TestRateLimiter_Converges(t *testing.T) {
	const (
		period = 100e-6
		rate   = 50.0
	)
	step := rate * period

	tests := []struct {
		name   string
		start  float64
		target float64
	}{
		{"rising exact multiple", 0, 0.5},
		{"rising with remainder", 0.0012, 0.5},
		{"falling", 0.5, -0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxTicks := int(math.Ceil(math.Abs(tt.target-tt.start) / step))
			v := tt.start
			for i := 0; i < maxTicks; i++ {
				v = RateLimiter(tt.target, v, rate, period)
				if math.Abs(v-tt.target) > step+1e-9 && math.Signbit(v-tt.target) != math.Signbit(tt.start-tt.target) {
					t.Fatalf("overshoot by more than one step at tick %d: %v", i, v)
				}
			}
			if math.Abs(v-tt.target) > step+1e-9 {
				t.Errorf("not converged after %d ticks: %v (target %v)", maxTicks, v, tt.target)
			}
		})
	}
}

func TestRateLimiter_HoldsInsideDeadband(t *testing.T) {
	v := RateLimiter(0.5, 0.4995, 50, 100e-6)
	if v != 0.4995 {
		t.Errorf("RateLimiter moved inside deadband: %v", v)
	}
}

func TestLowPass_StepResponse(t *testing.T) {
	f := NewLowPass(100e-6, 0.1)
	var out float64
	for i := 0; i < 1000; i++ {
		out = f.Update(10)
	}
	// one time constant is 1000 samples: ~63%
	if out < 6.0 || out > 6.6 {
		t.Errorf("LowPass after one tau = %v, want ~6.32", out)
	}
	if f.Value() != out {
		t.Errorf("Value() = %v, want %v", f.Value(), out)
	}
	f.Reset(1)
	if f.Value() != 1 {
		t.Errorf("Reset did not force output: %v", f.Value())
	}
}
