// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package syncmon tracks grid lock acquisition and loss with two independent
// debounce counters over the same frequency tolerance band.
package syncmon

import "math"

// Default windows, in control ticks
const (
	AcquireWindow = 2000 // 200 ms at 100 us
	LossWindow    = 200  // 20 ms at 100 us
	// BandFraction is the tolerance around the nominal angular frequency
	BandFraction = 0.01
)

// InBand reports whether omega lies within nominal +/- tol, inclusive
func InBand(omega, nominal, tol float64) bool {
	return math.Abs(omega-nominal) <= tol
}

// Debounce counts consecutive qualifying ticks
type Debounce struct {
	Window int
	count  int
}

// Observe records one tick. It returns true on the tick the run reaches the
// window, after which the counter starts over. A non-qualifying tick resets it.
func (d *Debounce) Observe(qualifying bool) bool {
	if !qualifying {
		d.count = 0
		return false
	}
	d.count++
	if d.count >= d.Window {
		d.count = 0
		return true
	}
	return false
}

// Count returns the length of the current run
func (d *Debounce) Count() int {
	return d.count
}

// Reset clears the current run
func (d *Debounce) Reset() {
	d.count = 0
}

// Monitor holds the synchronization state owned by the control loop
type Monitor struct {
	Nominal   float64 // rad/s
	Tolerance float64 // rad/s
	Acquire   Debounce
	Loss      Debounce

	synchronized bool
}

// NewMonitor creates a monitor for the given nominal angular frequency using
// the default band and windows
func NewMonitor(nominal float64) *Monitor {
	return &Monitor{
		Nominal:   nominal,
		Tolerance: BandFraction * nominal,
		Acquire:   Debounce{Window: AcquireWindow},
		Loss:      Debounce{Window: LossWindow},
	}
}

// Synchronized reports the current lock state
func (m *Monitor) Synchronized() bool {
	return m.synchronized
}

// ObserveStartup feeds one startup tick. Synchronization is declared once the
// frequency has stayed in band for the acquire window and dropped on any tick
// out of band.
func (m *Monitor) ObserveStartup(omega float64) {
	in := InBand(omega, m.Nominal, m.Tolerance)
	if m.Acquire.Observe(in) {
		m.synchronized = true
	}
	if !in {
		m.synchronized = false
	}
}

// ObservePower feeds one closed-loop tick. The lock state follows the band
// instantly; the return value is true once the frequency has been out of band
// for the loss window.
func (m *Monitor) ObservePower(omega float64) (lost bool) {
	in := InBand(omega, m.Nominal, m.Tolerance)
	m.synchronized = in
	return m.Loss.Observe(!in)
}

// Reset clears both counters and the lock state
func (m *Monitor) Reset() {
	m.Acquire.Reset()
	m.Loss.Reset()
	m.synchronized = false
}
