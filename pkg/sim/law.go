// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"fmt"
	"math"

	"github.com/Thermoquad/verter/pkg/frame"
	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/pid"
	"github.com/Thermoquad/verter/pkg/ramp"
)

// LawConfig parametrizes the inverter control law
type LawConfig struct {
	Period   float64      `yaml:"-"` // s
	Nominal  float64      `yaml:"-"` // rad/s
	SubMode  mode.SubMode `yaml:"-"`
	SogiGain float64      `yaml:"sogi_gain"`
	PLLKp    float64      `yaml:"pll_kp"`
	PLLKi    float64      `yaml:"pll_ki"`

	// proportional-resonant current regulator, stationary frame
	CurrentKp    float64 `yaml:"current_kp"`
	CurrentKr    float64 `yaml:"current_kr"`
	CurrentLimit float64 `yaml:"current_limit"` // V, resonant term bound

	Voltage pid.Params `yaml:"voltage"`
}

// DefaultLawConfig returns gains suited to the default plant
func DefaultLawConfig() LawConfig {
	return LawConfig{
		Period:       100e-6,
		Nominal:      2 * math.Pi * 50,
		SubMode:      mode.Following,
		SogiGain:     math.Sqrt2,
		PLLKp:        100,
		PLLKi:        5000,
		CurrentKp:    5,
		CurrentKr:    50,
		CurrentLimit: 10,
		Voltage:      pid.Params{Kp: 0.01, Ti: 0.003, N: 1, Min: -63, Max: 63},
	}
}

// sogi is a second-order generalized integrator producing the in-phase and
// quadrature components of a single-phase signal
type sogi struct {
	alpha, beta float64
}

func (s *sogi) update(v, k, omega, ts float64) (alpha, beta float64) {
	s.alpha += ts * (k*omega*(v-s.alpha) - omega*s.beta)
	s.beta += ts * omega * s.alpha
	return s.alpha, s.beta
}

func park(ab frame.AlphaBeta, c, s float64) frame.DQ {
	return frame.DQ{
		D: ab.Alpha*c + ab.Beta*s,
		Q: -ab.Alpha*s + ab.Beta*c,
	}
}

func inversePark(dq frame.DQ, c, s float64) frame.AlphaBeta {
	return frame.AlphaBeta{
		Alpha: dq.D*c - dq.Q*s,
		Beta:  dq.D*s + dq.Q*c,
	}
}

// Law is a single-phase grid-following / grid-forming control law: SOGI
// based frame transforms, a PLL on the grid voltage, a resonant current
// regulator and dq voltage PIs. It implements control.ControlLaw.
type Law struct {
	cfg LawConfig

	vSogi, iSogi sogi
	pllInt       float64
	theta        float64
	omega        float64
	bus          float64

	vref, iref frame.DQ
	frames     frame.Frames
	refDelta   frame.DQ

	res1, res2 float64 // resonant integrator
	voltD      *pid.PID
	voltQ      *pid.PID
}

// NewLaw creates a control law
func NewLaw(cfg LawConfig) (*Law, error) {
	if cfg.Period <= 0 || cfg.Nominal <= 0 {
		return nil, fmt.Errorf("control law needs a positive period and nominal frequency")
	}
	vp := cfg.Voltage
	vp.Ts = cfg.Period
	vd, err := pid.New(vp)
	if err != nil {
		return nil, fmt.Errorf("voltage regulator: %w", err)
	}
	vq, _ := pid.New(vp)

	return &Law{
		cfg:   cfg,
		omega: cfg.Nominal,
		voltD: vd,
		voltQ: vq,
	}, nil
}

// CalculateDuty runs one control step and returns the differential duty
// cycle
func (l *Law) CalculateDuty(vgrid, igrid float64) float64 {
	ts, w0 := l.cfg.Period, l.cfg.Nominal

	va, vb := l.vSogi.update(vgrid, l.cfg.SogiGain, w0, ts)
	ia, ib := l.iSogi.update(igrid, l.cfg.SogiGain, w0, ts)
	l.frames.Vab = frame.AlphaBeta{Alpha: va, Beta: vb}
	l.frames.Iab = frame.AlphaBeta{Alpha: ia, Beta: ib}

	c, s := math.Cos(l.theta), math.Sin(l.theta)
	l.frames.Vdq = park(l.frames.Vab, c, s)
	l.frames.Idq = park(l.frames.Iab, c, s)

	var vout float64
	if l.cfg.SubMode == mode.Forming {
		l.omega = w0
		out := frame.DQ{
			D: l.vref.D + l.voltD.Compute(l.vref.D, l.frames.Vdq.D),
			Q: l.vref.Q + l.voltQ.Compute(l.vref.Q, l.frames.Vdq.Q),
		}
		l.frames.VdqOutput = out
		l.frames.VabOutput = inversePark(out, c, s)
		l.refDelta = frame.DQ{D: l.vref.D - l.frames.Vdq.D, Q: l.vref.Q - l.frames.Vdq.Q}
		vout = l.frames.VabOutput.Alpha
	} else {
		l.track()
		iref := inversePark(l.iref, c, s)
		e := iref.Alpha - igrid
		lim := l.cfg.CurrentLimit
		l.res1 = ramp.Saturate(l.res1+ts*(l.cfg.CurrentKr*e-w0*l.res2), -lim, lim)
		l.res2 = ramp.Saturate(l.res2+ts*w0*l.res1, -lim, lim)
		vout = vgrid + l.cfg.CurrentKp*e + l.res1

		l.frames.VabOutput = frame.AlphaBeta{Alpha: vout, Beta: l.frames.Vab.Beta}
		l.frames.VdqOutput = park(l.frames.VabOutput, c, s)
		l.refDelta = frame.DQ{D: l.iref.D - l.frames.Idq.D, Q: l.iref.Q - l.frames.Idq.Q}
	}

	l.theta = math.Mod(l.theta+l.omega*ts, 2*math.Pi)

	if l.bus < 1 {
		return 0
	}
	return ramp.Saturate(vout/(2*l.bus), -0.5, 0.5)
}

// track advances the PLL on the grid voltage
func (l *Law) track() {
	amp := math.Hypot(l.frames.Vdq.D, l.frames.Vdq.Q)
	if amp < 1 {
		amp = 1
	}
	qn := l.frames.Vdq.Q / amp
	l.pllInt += l.cfg.PLLKi * qn * l.cfg.Period
	l.omega = l.cfg.Nominal + l.cfg.PLLKp*qn + l.pllInt
}

// AngularFrequency returns the estimated grid angular frequency
func (l *Law) AngularFrequency() float64 { return l.omega }

// PhaseAngle returns the PLL angle
func (l *Law) PhaseAngle() float64 { return l.theta }

// Frames returns the latest frame transforms
func (l *Law) Frames() frame.Frames { return l.frames }

// SetBusVoltage sets the DC bus voltage used to normalize the duty cycle
func (l *Law) SetBusVoltage(v float64) { l.bus = v }

// SetVoltageRef sets the dq voltage reference used when forming
func (l *Law) SetVoltageRef(ref frame.DQ) { l.vref = ref }

// SetCurrentRef sets the dq current reference used when following
func (l *Law) SetCurrentRef(ref frame.DQ) { l.iref = ref }

// RefDelta returns reference minus measurement on the active loop
func (l *Law) RefDelta() frame.DQ { return l.refDelta }
