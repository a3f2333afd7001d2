// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"fmt"
	"math"
	"time"

	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/syncmon"
)

// Config holds the fixed parameters of the control loop
type Config struct {
	Period           time.Duration
	SubMode          mode.SubMode
	NominalFrequency float64 // Hz

	MaxCurrent     float64 // A, trip threshold on both low-side currents
	CurrentOffset1 float64 // A
	CurrentOffset2 float64 // A
	BusFilterTau   float64 // s
	VqFilterTau    float64 // s

	BoostTarget    float64 // V on the filtered DC bus
	DeadTimeRiseNs uint16
	DeadTimeFallNs uint16

	FormingRampRate float64 // duty/s
	OffsetRampRate  float64 // duty/s

	AcquireWindow int // ticks
	LossWindow    int // ticks
	EnergizeDelay int // ticks in closed loop before a following inverter starts

	Decimation int // capture one sample every N ticks
}

// DefaultConfig returns the parameters of the uSolarVerter firmware
func DefaultConfig() Config {
	return Config{
		Period:           100 * time.Microsecond,
		SubMode:          mode.Following,
		NominalFrequency: 50,
		MaxCurrent:       8.0,
		CurrentOffset1:   0.25,
		CurrentOffset2:   0.25,
		BusFilterTau:     0.1,
		VqFilterTau:      1.0,
		BoostTarget:      33.0,
		DeadTimeRiseNs:   100,
		DeadTimeFallNs:   100,
		FormingRampRate:  50,
		OffsetRampRate:   1,
		AcquireWindow:    syncmon.AcquireWindow,
		LossWindow:       syncmon.LossWindow,
		EnergizeDelay:    2000,
		Decimation:       1,
	}
}

// Validate checks the values the loop cannot run with
func (c Config) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("control period must be positive, got %v", c.Period)
	}
	if c.NominalFrequency <= 0 {
		return fmt.Errorf("nominal frequency must be positive, got %v", c.NominalFrequency)
	}
	if c.MaxCurrent <= 0 {
		return fmt.Errorf("max current must be positive, got %v", c.MaxCurrent)
	}
	if c.AcquireWindow <= 0 || c.LossWindow <= 0 {
		return fmt.Errorf("sync windows must be positive (acquire=%d, loss=%d)", c.AcquireWindow, c.LossWindow)
	}
	if c.Decimation <= 0 {
		return fmt.Errorf("capture decimation must be positive, got %d", c.Decimation)
	}
	return nil
}

// Ts returns the period in seconds
func (c Config) Ts() float64 {
	return c.Period.Seconds()
}

// Omega0 returns the nominal angular frequency in rad/s
func (c Config) Omega0() float64 {
	return 2 * math.Pi * c.NominalFrequency
}
