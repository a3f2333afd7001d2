// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"errors"
	"math"

	"github.com/Thermoquad/verter/pkg/frame"
	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/ramp"
	"github.com/Thermoquad/verter/pkg/shared"
	"github.com/Thermoquad/verter/pkg/syncmon"
	"github.com/Thermoquad/verter/pkg/telemetry"
)

// Loop is the high-rate control task. Tick must only ever be called from a
// single goroutine; nothing in it blocks.
type Loop struct {
	cfg   Config
	ts    float64
	hw    Hardware
	law   ControlLaw
	boost Regulator
	sh    *shared.LoopHandle
	sink  *telemetry.LoopSink

	capture Capture

	inverter    *Actuator
	boostLegs   *Actuator
	sync        *syncmon.Monitor
	busFilter   *ramp.LowPass
	vqFilter    *ramp.LowPass
	tick        uint64
	overruns    uint64
	tripCounts  tripCounts
	powerTicks  int
	meas        telemetry.Measurements
	refs        shared.References
	frames      frame.Frames
	theta       float64
	omega       float64
	refDelta    frame.DQ
	vqFilt      float64
	delta       float64
	offset      float64
	duty1       float64
	duty2       float64
	boostDuty   float64
	valphaInOut float64
}

// tripCounts records protective trips for the supervisor to report. The loop
// goroutine never logs.
type tripCounts struct {
	overcurrents uint64
	syncLosses   uint64
	iLow1, iLow2 float64 // currents at the last overcurrent trip
}

// New creates a loop. law and boost are owned by the loop from here on.
func New(cfg Config, hw Hardware, law ControlLaw, boost Regulator, sh *shared.LoopHandle, sink *telemetry.LoopSink) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.Sensors == nil || hw.Power == nil || hw.LED == nil {
		return nil, errors.New("control loop needs sensors, power stage and indicator")
	}
	if law == nil || boost == nil {
		return nil, errors.New("control loop needs a control law and a boost regulator")
	}
	if sh == nil || sink == nil {
		return nil, errors.New("control loop needs its shared state and telemetry handles")
	}

	ts := cfg.Ts()
	mon := syncmon.NewMonitor(cfg.Omega0())
	mon.Acquire.Window = cfg.AcquireWindow
	mon.Loss.Window = cfg.LossWindow

	return &Loop{
		cfg:       cfg,
		ts:        ts,
		hw:        hw,
		law:       law,
		boost:     boost,
		sh:        sh,
		sink:      sink,
		inverter:  NewActuator(hw.Power, Leg1High, Leg2High),
		boostLegs: NewActuator(hw.Power, Leg1Low, Leg2Low),
		sync:      mon,
		busFilter: ramp.NewLowPass(ts, cfg.BusFilterTau),
		vqFilter:  ramp.NewLowPass(ts, cfg.VqFilterTau),
	}, nil
}

// AttachCapture connects the capture channels and enables acquisition.
// Call before the loop starts running.
func (l *Loop) AttachCapture(c Capture) {
	l.capture = c
	c.ConnectChannel("Ilow1", &l.meas.ILow1)
	c.ConnectChannel("Iac", &l.meas.IAC)
	c.ConnectChannel("Vgrid", &l.meas.VGrid)
	c.ConnectChannel("Vdc_bus", &l.meas.VDCBusFilt)
	c.ConnectChannel("duty_cycle1", &l.duty1)
	c.ConnectChannel("duty_cycle2", &l.duty2)
	c.ConnectChannel("Id", &l.frames.Idq.D)
	c.ConnectChannel("Iq", &l.frames.Idq.Q)
	c.ConnectChannel("Id_ref", &l.refs.Idq.D)
	c.ConnectChannel("Ialpha", &l.frames.Iab.Alpha)
	c.ConnectChannel("Ibeta", &l.frames.Iab.Beta)
	c.ConnectChannel("Vq_in", &l.frames.Vdq.Q)
	c.ConnectChannel("Vd_in", &l.frames.Vdq.D)
	c.ConnectChannel("Vq_out", &l.frames.VdqOutput.Q)
	c.ConnectChannel("Vd_out", &l.frames.VdqOutput.D)
	c.ConnectChannel("Valpha", &l.frames.Vab.Alpha)
	c.ConnectChannel("Vbeta", &l.frames.Vab.Beta)
	c.ConnectChannel("Valpha_out_in", &l.valphaInOut)
	c.ConnectChannel("Valpha_out", &l.frames.VabOutput.Alpha)
	c.ConnectChannel("Vbeta_out", &l.frames.VabOutput.Beta)
}

// Tick runs one control period
func (l *Loop) Tick() {
	l.sample()

	current := l.sh.Mode()
	if math.Abs(l.meas.ILow1) > l.cfg.MaxCurrent || math.Abs(l.meas.ILow2) > l.cfg.MaxCurrent {
		l.sh.TripError()
		if current != mode.Error {
			l.tripCounts.overcurrents++
			l.tripCounts.iLow1 = l.meas.ILow1
			l.tripCounts.iLow2 = l.meas.ILow2
		}
		current = mode.Error
	}

	inverterOn := l.sh.InverterOn()
	l.refs = l.sh.References()

	switch current {
	case mode.Idle, mode.Error:
		l.stopAll()
	case mode.Startup, mode.Power:
		l.runBoost()
	}

	if !inverterOn {
		l.inverter.EnsureStopped()
		l.powerTicks = 0
	}

	if current == mode.Startup && inverterOn {
		l.startup()
	}
	if current == mode.Power && inverterOn {
		l.regulate()
	} else {
		l.powerTicks = 0
	}

	l.publish()

	l.tick++
	if l.capture != nil && l.tick%uint64(l.cfg.Decimation) == 0 {
		l.capture.Acquire()
	}
}

func (l *Loop) sample() {
	read := func(ch Channel, dst *float64) {
		if v, ok := l.hw.Sensors.ReadLatest(ch); ok {
			*dst = v
		}
	}

	if v, ok := l.hw.Sensors.ReadLatest(ILow1); ok {
		l.meas.ILow1 = v - l.cfg.CurrentOffset1
	}
	read(VLow, &l.meas.VLow)
	read(VAC, &l.meas.VAC)
	if v, ok := l.hw.Sensors.ReadLatest(ILow2); ok {
		l.meas.ILow2 = v - l.cfg.CurrentOffset2
	}
	read(VDCBus, &l.meas.VDCBus)
	read(IAC, &l.meas.IAC)

	l.meas.VGrid = l.meas.VLow - l.meas.VAC
	l.meas.VN = (l.meas.VLow + l.meas.VAC) / 2
	l.meas.IGrid = l.meas.ILow1
	l.meas.VDCBusFilt = l.busFilter.Update(l.meas.VDCBus)
}

// stopAll stops both leg groups. Regulation state restarts from scratch the
// next time the converter is energized.
func (l *Loop) stopAll() {
	stopped := false
	if l.inverter.EnsureStopped() {
		l.hw.LED.Off()
		stopped = true
	}
	if l.boostLegs.EnsureStopped() {
		stopped = true
	}
	if stopped {
		l.boost.Reset()
		l.sync.Reset()
		l.delta = 0
		l.boostDuty = 0
	}
}

func (l *Loop) runBoost() {
	d := l.boost.Compute(l.cfg.BoostTarget, l.meas.VDCBusFilt)
	l.boostDuty = ramp.Saturate(d, 0, 1)
	l.boostLegs.SetDeadTime(l.cfg.DeadTimeRiseNs, l.cfg.DeadTimeFallNs)
	l.boostLegs.SetDutyCycle(l.boostDuty)
	l.boostLegs.EnsureStarted()
}

func (l *Loop) startup() {
	switch l.cfg.SubMode {
	case mode.Forming:
		l.delta = ramp.RateLimiter(0.5, l.delta, l.cfg.FormingRampRate, l.ts)
		if l.delta > 0.5 {
			l.delta = 0.5
		}
		l.duty1 = ramp.Saturate(l.delta, 0, 1)
		l.duty2 = ramp.Saturate(1-l.delta, 0, 1)
		l.hw.Power.SetDutyCycle(Leg1High, l.duty1)
		l.hw.Power.SetDutyCycle(Leg2High, l.duty2)
		l.inverter.EnsureStarted()
	case mode.Following:
		l.delta = l.law.CalculateDuty(l.meas.VGrid, l.meas.IGrid)
		l.sync.ObserveStartup(l.law.AngularFrequency())
	}
}

func (l *Loop) regulate() {
	l.delta = l.law.CalculateDuty(l.meas.VGrid, l.meas.IGrid)
	if l.sync.ObservePower(l.law.AngularFrequency()) {
		l.tripCounts.syncLosses++
		l.sh.TripIdle()
	}

	l.law.SetBusVoltage(l.meas.VDCBusFilt)
	if l.cfg.SubMode == mode.Forming {
		l.law.SetVoltageRef(l.refs.Vdq)
	} else {
		l.law.SetCurrentRef(l.refs.Idq)
	}

	switch {
	case !l.inverter.Running():
		if l.meas.VDCBusFilt > 0 {
			l.offset = ramp.Saturate(l.meas.VN/l.meas.VDCBusFilt, 0, 1)
		}
	case l.offset < 0.5:
		l.offset = ramp.RateLimiter(0.5, l.offset, l.cfg.OffsetRampRate, l.ts)
		if l.offset > 0.5 {
			l.offset = 0.5
		}
	default:
		l.offset = 0.5
	}

	l.duty1 = ramp.Saturate(l.offset+l.delta, 0, 1)
	l.duty2 = ramp.Saturate(l.offset-l.delta, 0, 1)

	if l.cfg.SubMode == mode.Following && !l.inverter.Running() {
		l.powerTicks++
		if l.powerTicks >= l.cfg.EnergizeDelay {
			l.inverter.EnsureStarted()
		}
	}

	l.hw.Power.SetDutyCycle(Leg1High, l.duty1)
	l.hw.Power.SetDutyCycle(Leg2High, l.duty2)
}

func (l *Loop) publish() {
	l.theta = l.law.PhaseAngle()
	l.omega = l.law.AngularFrequency()
	l.frames = l.law.Frames()
	l.refDelta = l.law.RefDelta()
	l.vqFilt = l.vqFilter.Update(l.frames.Vdq.Q)
	l.valphaInOut = l.frames.VabOutput.Alpha - l.frames.Vab.Alpha

	l.sink.Publish(
		l.meas,
		telemetry.InverterDebug{
			Theta:       l.theta,
			Omega:       l.omega,
			Frames:      l.frames,
			VqFiltered:  l.vqFilt,
			IdqRefDelta: l.refDelta,
			DeltaDuty:   l.delta,
			DutyOffset:  l.offset,
			DutyCycle1:  l.duty1,
			DutyCycle2:  l.duty2,
		},
		telemetry.BoostDebug{
			DutyLeg1:       l.boostDuty,
			DutyLeg2:       l.boostDuty,
			DeadTimeRiseNs: l.cfg.DeadTimeRiseNs,
			DeadTimeFallNs: l.cfg.DeadTimeFallNs,
		},
		telemetry.LoopStatus{
			Tick:         l.tick + 1,
			Overruns:     l.overruns,
			Overcurrents: l.tripCounts.overcurrents,
			SyncLosses:   l.tripCounts.syncLosses,
			TripILow1:    l.tripCounts.iLow1,
			TripILow2:    l.tripCounts.iLow2,
			Synchronized: l.sync.Synchronized(),
			DeltaDuty:    l.delta,
			BusVoltage:   l.meas.VDCBusFilt,
			GridVoltage:  l.meas.VGrid,
			Omega:        l.omega,
		},
	)
}

// Synchronized reports the monitor state. Only valid on the loop goroutine.
func (l *Loop) Synchronized() bool {
	return l.sync.Synchronized()
}

// InverterRunning reports whether the inverter legs were last started.
// Only valid on the loop goroutine.
func (l *Loop) InverterRunning() bool {
	return l.inverter.Running()
}

// BoostRunning reports whether the boost legs were last started.
// Only valid on the loop goroutine.
func (l *Loop) BoostRunning() bool {
	return l.boostLegs.Running()
}

// Duties returns the last inverter leg duties. Only valid on the loop
// goroutine.
func (l *Loop) Duties() (duty1, duty2 float64) {
	return l.duty1, l.duty2
}
