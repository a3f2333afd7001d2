// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim provides a simulated power shield: a grid, a boost stage feeding
// the DC bus and an H-bridge inverter with an output inductor. It implements
// the hardware interfaces of the control loop so the full firmware stack can
// run on a host.
package sim

import (
	"math"
	"sync/atomic"

	"github.com/Thermoquad/verter/pkg/control"
)

// PlantConfig describes the simulated hardware
type PlantConfig struct {
	Period         float64 `yaml:"-"`               // s
	GridAmplitude  float64 `yaml:"grid_amplitude"`  // V peak
	GridFrequency  float64 `yaml:"grid_frequency"`  // Hz
	GridConnected  bool    `yaml:"grid_connected"`  // false: inverter feeds LoadResistance
	InputVoltage   float64 `yaml:"input_voltage"`   // V on the low-voltage side
	BusTau         float64 `yaml:"bus_tau"`         // s
	Inductance     float64 `yaml:"inductance"`      // H
	Resistance     float64 `yaml:"resistance"`      // ohm
	LoadResistance float64 `yaml:"load_resistance"` // ohm
	CurrentOffset  float64 `yaml:"current_offset"`  // A added to both low-side sensors
}

// DefaultPlantConfig returns a small 20 V grid bench fed from 30 V, close
// enough to the boost target that the bus settles without tripping
func DefaultPlantConfig() PlantConfig {
	return PlantConfig{
		Period:         100e-6,
		GridAmplitude:  20,
		GridFrequency:  50,
		GridConnected:  true,
		InputVoltage:   30,
		BusTau:         5e-3,
		Inductance:     1e-3,
		Resistance:     0.1,
		LoadResistance: 10,
		CurrentOffset:  0.25,
	}
}

// Plant is the simulated power shield. Sensors and PowerStage methods belong
// to the control loop goroutine; the Set and Inject methods may be called
// from any goroutine.
type Plant struct {
	cfg PlantConfig

	gridFreq atomic.Uint64 // float64 bits
	gridAmp  atomic.Uint64 // float64 bits
	spike    atomic.Int64  // ticks of injected overcurrent left
	dropped  atomic.Int64  // ticks of stale samples left
	steps    atomic.Uint64

	// loop owned
	t       float64
	bus     float64
	iInv    float64
	vGrid   float64
	duty    [4]float64
	running [4]bool
	rise    [4]uint16
	fall    [4]uint16
	read    [6]bool
}

// NewPlant creates a plant at rest: bus charged to the input voltage through
// the boost diode, no current flowing.
func NewPlant(cfg PlantConfig) *Plant {
	p := &Plant{cfg: cfg, bus: cfg.InputVoltage}
	p.SetGrid(cfg.GridAmplitude, cfg.GridFrequency)
	return p
}

// SetGrid changes the grid amplitude and frequency
func (p *Plant) SetGrid(amplitude, frequency float64) {
	p.gridAmp.Store(math.Float64bits(amplitude))
	p.gridFreq.Store(math.Float64bits(frequency))
}

// GridFrequency returns the current grid frequency in Hz
func (p *Plant) GridFrequency() float64 {
	return math.Float64frombits(p.gridFreq.Load())
}

// GridAmplitude returns the current grid amplitude in V
func (p *Plant) GridAmplitude() float64 {
	return math.Float64frombits(p.gridAmp.Load())
}

// InjectOvercurrent adds a current spike on ILow1 for the given number of
// steps
func (p *Plant) InjectOvercurrent(steps int) {
	p.spike.Store(int64(steps))
}

// DropSamples makes every channel report stale for the given number of steps
func (p *Plant) DropSamples(steps int) {
	p.dropped.Store(int64(steps))
}

// Steps returns the number of simulated periods
func (p *Plant) Steps() uint64 {
	return p.steps.Load()
}

// ReadLatest implements control.Sensors. Reading a channel a second time
// completes the conversion cycle: the plant advances one period and every
// channel becomes fresh again.
func (p *Plant) ReadLatest(ch control.Channel) (float64, bool) {
	idx := int(ch)
	if idx < 0 || idx >= len(p.read) {
		return 0, false
	}
	if p.read[idx] {
		p.step()
	}
	p.read[idx] = true

	if p.dropped.Load() > 0 {
		return 0, false
	}

	vn := p.bus / 2
	switch ch {
	case control.ILow1:
		i := p.iInv
		if p.spike.Load() > 0 {
			i += 10
		}
		return i + p.cfg.CurrentOffset, true
	case control.ILow2:
		return p.boostCurrent() + p.cfg.CurrentOffset, true
	case control.VLow:
		return vn + p.vGrid/2, true
	case control.VAC:
		return vn - p.vGrid/2, true
	case control.VDCBus:
		return p.bus, true
	case control.IAC:
		return p.iInv, true
	}
	return 0, false
}

func (p *Plant) boostCurrent() float64 {
	if !p.running[control.Leg1Low] || p.cfg.InputVoltage <= 0 {
		return 0
	}
	// lossless transfer of the inverter power, shared by two legs
	pw := p.vGrid * p.iInv
	return pw / p.cfg.InputVoltage / 2
}

func (p *Plant) step() {
	for i := range p.read {
		p.read[i] = false
	}
	p.steps.Add(1)
	if n := p.spike.Load(); n > 0 {
		p.spike.Store(n - 1)
	}
	if n := p.dropped.Load(); n > 0 {
		p.dropped.Store(n - 1)
	}

	ts := p.cfg.Period
	p.t += ts

	// boost: bus settles toward vin/(1-d), or the input voltage through the diode
	target := p.cfg.InputVoltage
	if p.running[control.Leg1Low] && p.running[control.Leg2Low] {
		d := math.Min(p.duty[control.Leg1Low], 0.9)
		target = p.cfg.InputVoltage / (1 - d)
	}
	if p.cfg.BusTau > 0 {
		p.bus += ts / p.cfg.BusTau * (target - p.bus)
	}

	vInv := 0.0
	bridge := p.running[control.Leg1High] && p.running[control.Leg2High]
	if bridge {
		vInv = (p.duty[control.Leg1High] - p.duty[control.Leg2High]) * p.bus
	}

	if p.cfg.GridConnected {
		p.vGrid = p.GridAmplitude() * math.Sin(2*math.Pi*p.GridFrequency()*p.t)
	} else {
		p.vGrid = p.iInv * p.cfg.LoadResistance
	}

	if bridge && p.cfg.Inductance > 0 {
		p.iInv += ts / p.cfg.Inductance * (vInv - p.vGrid - p.cfg.Resistance*p.iInv)
	} else {
		p.iInv = 0
	}
}

// SetDutyCycle implements control.PowerStage
func (p *Plant) SetDutyCycle(leg control.Leg, duty float64) {
	if p.validLeg(leg) {
		p.duty[leg] = duty
	}
}

// SetDeadTime implements control.PowerStage
func (p *Plant) SetDeadTime(leg control.Leg, riseNs, fallNs uint16) {
	if p.validLeg(leg) {
		p.rise[leg] = riseNs
		p.fall[leg] = fallNs
	}
}

// Start implements control.PowerStage
func (p *Plant) Start(leg control.Leg) {
	if p.validLeg(leg) {
		p.running[leg] = true
	}
}

// Stop implements control.PowerStage
func (p *Plant) Stop(leg control.Leg) {
	if p.validLeg(leg) {
		p.running[leg] = false
	}
}

// Running reports whether a leg is switching. Loop goroutine only.
func (p *Plant) Running(leg control.Leg) bool {
	return p.validLeg(leg) && p.running[leg]
}

// Bus returns the simulated DC bus voltage. Loop goroutine only.
func (p *Plant) Bus() float64 {
	return p.bus
}

func (p *Plant) validLeg(leg control.Leg) bool {
	return leg >= control.Leg1High && leg <= control.Leg2Low
}
