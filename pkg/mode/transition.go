// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mode

// Thresholds used by the transition function
const (
	// FormingRampDone is the delta duty cycle at which the forming ramp is complete
	FormingRampDone = 0.49
	// MinGridVoltage is the grid voltage required before a following startup
	MinGridVoltage = 10.0
)

// Indicator is the status LED action requested by a transition
type Indicator int

// Indicator actions
const (
	IndicatorNone Indicator = iota
	IndicatorOn
	IndicatorToggle
)

// Inputs is everything the transition function observes
type Inputs struct {
	Requested        Mode
	InverterOn       bool
	SubMode          SubMode
	DeltaDuty        float64
	Synchronized     bool
	BusVoltage       float64 // filtered DC bus
	GridVoltage      float64
	StartupThreshold float64
	// StartupDone is set once a startup sequence completed with the inverter
	// enabled. It keeps Power from re-entering Startup on every step, which
	// would ping-pong Power and Startup until the inverter is disabled.
	StartupDone     bool
	DownloadPending bool
}

// Effects are the side effects the caller must perform after committing a transition
type Effects struct {
	Indicator   Indicator
	DumpCapture bool
}

// Transition is the result of one evaluation
type Transition struct {
	From    Mode
	To      Mode
	Effects Effects
}

// Changed reports whether the mode changes
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Next evaluates one low-rate tick. It has no side effects.
func Next(current Mode, in Inputs) Transition {
	next := current

	switch current {
	case Idle:
		if in.Requested == Power {
			next = Power
		}

	case Startup:
		switch {
		case !in.InverterOn:
			next = Power
		case in.SubMode == Forming && in.DeltaDuty >= FormingRampDone:
			next = Power
		case in.SubMode == Following && in.Synchronized:
			next = Power
		}

	case Power:
		if in.Requested == Idle {
			next = Idle
		} else if in.InverterOn && !in.StartupDone && in.BusVoltage >= in.StartupThreshold {
			if in.SubMode == Forming || in.GridVoltage >= MinGridVoltage {
				next = Startup
			}
		}

	case Error:
		// only the global return to idle below
	}

	if in.Requested == Idle {
		next = Idle
	}

	return Transition{From: current, To: next, Effects: effectsFor(next, in)}
}

func effectsFor(m Mode, in Inputs) Effects {
	var fx Effects
	switch m {
	case Idle:
		fx.Indicator = IndicatorOn
		fx.DumpCapture = in.DownloadPending
	case Startup, Power:
		if in.Synchronized {
			fx.Indicator = IndicatorToggle
		}
	}
	return fx
}
