// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mode defines the inverter operating modes and the pure transition
// function evaluated by the supervisor once per low-rate tick.
package mode

import "fmt"

// Mode is the operating mode. Values match the wire encoding.
type Mode uint8

// Operating mode values
const (
	Idle    Mode = 0
	Power   Mode = 1
	Error   Mode = 3
	Startup Mode = 4
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case Idle:
		return "IDLE"
	case Power:
		return "POWER"
	case Error:
		return "ERROR"
	case Startup:
		return "STARTUP"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
	}
}

// Valid reports whether m is one of the defined modes
func (m Mode) Valid() bool {
	switch m {
	case Idle, Power, Error, Startup:
		return true
	}
	return false
}

// Requestable reports whether m may be requested through the command group
func (m Mode) Requestable() bool {
	return m == Idle || m == Power
}

// Parse converts a mode name (case-sensitive lower or upper) to a Mode
func Parse(s string) (Mode, error) {
	switch s {
	case "idle", "IDLE":
		return Idle, nil
	case "power", "POWER":
		return Power, nil
	case "error", "ERROR":
		return Error, nil
	case "startup", "STARTUP":
		return Startup, nil
	}
	return Idle, fmt.Errorf("unknown mode %q", s)
}

// SubMode selects how the inverter regulates once energized
type SubMode uint8

// Sub-mode values
const (
	Following SubMode = iota // current source locked to the grid
	Forming                  // voltage source setting the waveform
)

// String returns the sub-mode name
func (s SubMode) String() string {
	if s == Forming {
		return "forming"
	}
	return "following"
}

// ParseSubMode converts "forming" or "following" to a SubMode
func ParseSubMode(s string) (SubMode, error) {
	switch s {
	case "forming":
		return Forming, nil
	case "following", "":
		return Following, nil
	}
	return Following, fmt.Errorf("unknown inverter mode %q (use forming or following)", s)
}
