// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

// Actuator starts and stops a group of legs, remembering the last command so
// repeated requests are not forwarded to the hardware.
type Actuator struct {
	stage   PowerStage
	legs    []Leg
	running bool
}

// NewActuator creates a stopped actuator for legs
func NewActuator(stage PowerStage, legs ...Leg) *Actuator {
	return &Actuator{stage: stage, legs: legs}
}

// EnsureStarted starts the legs unless already running. It reports whether
// a start was issued.
func (a *Actuator) EnsureStarted() bool {
	if a.running {
		return false
	}
	for _, leg := range a.legs {
		a.stage.Start(leg)
	}
	a.running = true
	return true
}

// EnsureStopped stops the legs unless already stopped. It reports whether a
// stop was issued.
func (a *Actuator) EnsureStopped() bool {
	if !a.running {
		return false
	}
	for _, leg := range a.legs {
		a.stage.Stop(leg)
	}
	a.running = false
	return true
}

// Running reports the last commanded state
func (a *Actuator) Running() bool {
	return a.running
}

// SetDutyCycle applies the same duty cycle to every leg
func (a *Actuator) SetDutyCycle(duty float64) {
	for _, leg := range a.legs {
		a.stage.SetDutyCycle(leg, duty)
	}
}

// SetDeadTime applies the same dead time to every leg
func (a *Actuator) SetDeadTime(riseNs, fallNs uint16) {
	for _, leg := range a.legs {
		a.stage.SetDeadTime(leg, riseNs, fallNs)
	}
}
