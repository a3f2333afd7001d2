// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pid

import (
	"math"
	"testing"
)

func mustNew(t *testing.T, p Params) *PID {
	t.Helper()
	c, err := New(p)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       Params
		wantErr bool
	}{
		{"valid", Params{Ts: 1e-4, Kp: 1, Ti: 1, Min: -1, Max: 1}, false},
		{"zero period", Params{Kp: 1, Max: 1}, true},
		{"negative Ti", Params{Ts: 1e-4, Ti: -1, Max: 1}, true},
		{"inverted bounds", Params{Ts: 1e-4, Min: 1, Max: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPID_Proportional(t *testing.T) {
	c := mustNew(t, Params{Ts: 1e-3, Kp: 2, Min: -100, Max: 100})
	if got := c.Compute(5, 2); got != 6 {
		t.Errorf("Compute() = %v, want 6", got)
	}
}

func TestPID_IntegralAccumulates(t *testing.T) {
	c := mustNew(t, Params{Ts: 0.1, Kp: 1, Ti: 1, Min: -100, Max: 100})
	var out float64
	for i := 0; i < 10; i++ {
		out = c.Compute(1, 0)
	}
	// P = 1, I = 10 * 0.1 = 1
	if math.Abs(out-2) > 1e-9 {
		t.Errorf("Compute() = %v, want 2", out)
	}
}

func TestPID_SaturationAndAntiWindup(t *testing.T) {
	c := mustNew(t, Params{Ts: 0.1, Kp: 1, Ti: 0.1, Min: 0, Max: 1})
	for i := 0; i < 1000; i++ {
		if got := c.Compute(10, 0); got != 1 {
			t.Fatalf("step %d: Compute() = %v, want saturated 1", i, got)
		}
	}
	// without windup the output leaves the upper bound as soon as the error reverses
	if got := c.Compute(0, 0.5); got >= 1 {
		t.Errorf("Compute() after reversal = %v, want below 1", got)
	}
}

func TestPID_Reset(t *testing.T) {
	c := mustNew(t, Params{Ts: 0.1, Kp: 1, Ti: 1, Min: -100, Max: 100})
	c.Compute(1, 0)
	c.Compute(1, 0)
	c.Reset()
	if got := c.Compute(1, 0); math.Abs(got-1.1) > 1e-9 {
		t.Errorf("Compute() after Reset = %v, want 1.1", got)
	}
}

func TestPID_BoostConverges(t *testing.T) {
	ts := 1e-4
	c := mustNew(t, Params{Ts: ts, Kp: 0.000215, Ti: 7.5175e-5, Min: 0, Max: 1})

	// first-order boost: bus rises toward vin/(1-d)
	vin, bus, tau := 20.0, 20.0, 5e-3
	for i := 0; i < 20000; i++ {
		d := c.Compute(33, bus)
		target := vin / (1 - math.Min(d, 0.9))
		bus += ts / tau * (target - bus)
	}
	if math.Abs(bus-33) > 0.5 {
		t.Errorf("bus = %v, want about 33", bus)
	}
}
