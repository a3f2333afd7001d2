// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"github.com/Thermoquad/verter/pkg/frame"
	"github.com/Thermoquad/verter/pkg/mode"
)

// Measurements are the calibrated sensor values and derived quantities of one tick
type Measurements struct {
	VLow       float64 // V
	VAC        float64 // V
	VDCBus     float64 // V
	ILow1      float64 // A, offset removed
	ILow2      float64 // A, offset removed
	IAC        float64 // A
	VDCBusFilt float64 // V
	VGrid      float64 // V, VLow - VAC
	VN         float64 // V, neutral point
	IGrid      float64 // A
}

// InverterDebug mirrors the control law state pulled every tick
type InverterDebug struct {
	Theta       float64 // rad
	Omega       float64 // rad/s
	Frames      frame.Frames
	VqFiltered  float64
	IdqRefDelta frame.DQ
	DeltaDuty   float64
	DutyOffset  float64
	DutyCycle1  float64
	DutyCycle2  float64
}

// BoostDebug describes the boost stage actuation
type BoostDebug struct {
	DutyLeg1       float64
	DutyLeg2       float64
	DeadTimeRiseNs uint16
	DeadTimeFallNs uint16
}

// LiveStatus is refreshed by the supervisor once per low-rate tick
type LiveStatus struct {
	Mode              mode.Mode
	Omega             float64
	VgridAmplitudeRef float64
	PowerD            float64
	PowerQ            float64
	IdRef             float64
	IdRefDelta        float64
	VdRef             float64
	VqRef             float64
}

// LoopStatus is what the control loop exposes to the supervisor
type LoopStatus struct {
	Tick         uint64
	Overruns     uint64
	Overcurrents uint64  // overcurrent trips so far
	SyncLosses   uint64  // synchronization-loss trips so far
	TripILow1    float64 // ILow1 at the last overcurrent trip
	TripILow2    float64
	Synchronized bool
	DeltaDuty    float64
	BusVoltage   float64 // filtered
	GridVoltage  float64
	Omega        float64
}
