// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pid implements a discrete PID controller in the standard
// (Kp, Ti, Td) form with a first-order derivative filter and a saturated
// output.
package pid

import "fmt"

// Params describes a controller. Ti is Kp/Ki; a zero Ti disables the
// integral action and a zero Td the derivative action.
type Params struct {
	Ts  float64 `yaml:"-"` // sample period, s
	Kp  float64 `yaml:"kp"`
	Ti  float64 `yaml:"ti"`
	Td  float64 `yaml:"td"`
	N   float64 `yaml:"n"` // derivative filter coefficient
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Validate rejects parameters the controller cannot run with
func (p Params) Validate() error {
	if p.Ts <= 0 {
		return fmt.Errorf("pid: sample period must be positive, got %v", p.Ts)
	}
	if p.Ti < 0 || p.Td < 0 || p.N < 0 {
		return fmt.Errorf("pid: negative time constant (Ti=%v Td=%v N=%v)", p.Ti, p.Td, p.N)
	}
	if p.Min > p.Max {
		return fmt.Errorf("pid: min %v above max %v", p.Min, p.Max)
	}
	return nil
}

// PID is a discrete controller. It is not safe for concurrent use.
type PID struct {
	p Params

	integral   float64
	derivative float64
	lastError  float64
	primed     bool
}

// New creates a controller
func New(p Params) (*PID, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &PID{p: p}, nil
}

// Params returns the controller parameters
func (c *PID) Params() Params {
	return c.p
}

// Compute runs one step and returns the saturated output. The integral is
// frozen while the output is saturated in the direction of the error.
func (c *PID) Compute(target, measured float64) float64 {
	e := target - measured
	if !c.primed {
		c.lastError = e
		c.primed = true
	}

	integral := c.integral
	if c.p.Ti > 0 {
		integral += c.p.Kp * c.p.Ts / c.p.Ti * e
	}

	if c.p.Td > 0 {
		den := c.p.Td + c.p.N*c.p.Ts
		c.derivative = c.p.Td/den*c.derivative + c.p.Kp*c.p.Td*c.p.N/den*(e-c.lastError)
	}
	c.lastError = e

	out := c.p.Kp*e + integral + c.derivative
	switch {
	case out > c.p.Max:
		if e < 0 {
			c.integral = integral
		}
		return c.p.Max
	case out < c.p.Min:
		if e > 0 {
			c.integral = integral
		}
		return c.p.Min
	}
	c.integral = integral
	return out
}

// Reset clears the controller memory
func (c *PID) Reset() {
	c.integral = 0
	c.derivative = 0
	c.lastError = 0
	c.primed = false
}
