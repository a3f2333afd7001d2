// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"fmt"

	"github.com/Thermoquad/verter/pkg/frame"
)

// Channel identifies a sensor channel of the power shield
type Channel int

// Sensor channels
const (
	ILow1 Channel = iota
	VLow
	VAC
	ILow2
	VDCBus
	IAC
)

// Channels lists every channel in sampling order
var Channels = []Channel{ILow1, VLow, VAC, ILow2, VDCBus, IAC}

// String returns the channel name
func (c Channel) String() string {
	switch c {
	case ILow1:
		return "ILow1"
	case VLow:
		return "VLow"
	case VAC:
		return "VAC"
	case ILow2:
		return "ILow2"
	case VDCBus:
		return "VDCBus"
	case IAC:
		return "IAC"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// Leg identifies one switching leg
type Leg int

// Switching legs. The high legs form the inverter bridge, the low legs the
// parallel boost stage.
const (
	Leg1High Leg = iota
	Leg2High
	Leg1Low
	Leg2Low
)

// String returns the leg name
func (l Leg) String() string {
	switch l {
	case Leg1High:
		return "LEG1_HIGH"
	case Leg2High:
		return "LEG2_HIGH"
	case Leg1Low:
		return "LEG1_LOW"
	case Leg2Low:
		return "LEG2_LOW"
	default:
		return fmt.Sprintf("Leg(%d)", int(l))
	}
}

// Sensors gives the latest converted sample of a channel. ok is false when no
// fresh sample arrived since the previous read.
type Sensors interface {
	ReadLatest(ch Channel) (value float64, ok bool)
}

// PowerStage drives the PWM legs
type PowerStage interface {
	SetDutyCycle(leg Leg, duty float64)
	SetDeadTime(leg Leg, riseNs, fallNs uint16)
	Start(leg Leg)
	Stop(leg Leg)
}

// Indicator is the status LED. It is driven from both the control loop and
// the supervisor, so implementations must be safe for concurrent use.
type Indicator interface {
	On()
	Off()
	Toggle()
}

// Hardware groups the board collaborators used by the loop
type Hardware struct {
	Sensors Sensors
	Power   PowerStage
	LED     Indicator
}

// ControlLaw is the inverter control law: grid synchronization, frame
// transforms and the resonant current/voltage regulators.
type ControlLaw interface {
	// CalculateDuty runs one step and returns the differential duty cycle
	CalculateDuty(vgrid, igrid float64) float64
	AngularFrequency() float64
	PhaseAngle() float64
	Frames() frame.Frames
	SetBusVoltage(v float64)
	SetVoltageRef(ref frame.DQ)
	SetCurrentRef(ref frame.DQ)
	RefDelta() frame.DQ
}

// Regulator is a PI/PID controller
type Regulator interface {
	Compute(target, measured float64) float64
	Reset()
}

// Capture records decimated samples of connected variables. Acquire is only
// ever called from the control loop.
type Capture interface {
	ConnectChannel(name string, src *float64)
	Acquire()
}
