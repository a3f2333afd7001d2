// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package frame holds the two-axis quantities exchanged with the control law
package frame

// DQ is a quantity in the rotating frame aligned to the grid phase
type DQ struct {
	D float64
	Q float64
}

// AlphaBeta is a quantity in the stationary frame
type AlphaBeta struct {
	Alpha float64
	Beta  float64
}

// Frames groups every frame quantity the control law exposes for diagnostics
type Frames struct {
	Vab       AlphaBeta // measured grid voltage
	VabOutput AlphaBeta // inverter output voltage
	Iab       AlphaBeta
	Vdq       DQ
	VdqOutput DQ
	Idq       DQ
}
