// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"testing"

	"github.com/Thermoquad/verter/pkg/frame"
	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/shared"
	"github.com/Thermoquad/verter/pkg/telemetry"
)

type fakeSensors struct {
	values map[Channel]float64
	stale  map[Channel]bool
}

func newFakeSensors() *fakeSensors {
	return &fakeSensors{values: map[Channel]float64{}, stale: map[Channel]bool{}}
}

func (f *fakeSensors) ReadLatest(ch Channel) (float64, bool) {
	if f.stale[ch] {
		return 0, false
	}
	return f.values[ch], true
}

type fakeStage struct {
	duty     map[Leg]float64
	rise     map[Leg]uint16
	fall     map[Leg]uint16
	starts   map[Leg]int
	stops    map[Leg]int
	dutyLogs []float64
}

func newFakeStage() *fakeStage {
	return &fakeStage{
		duty:   map[Leg]float64{},
		rise:   map[Leg]uint16{},
		fall:   map[Leg]uint16{},
		starts: map[Leg]int{},
		stops:  map[Leg]int{},
	}
}

func (f *fakeStage) SetDutyCycle(leg Leg, duty float64) {
	f.duty[leg] = duty
	f.dutyLogs = append(f.dutyLogs, duty)
}

func (f *fakeStage) SetDeadTime(leg Leg, riseNs, fallNs uint16) {
	f.rise[leg] = riseNs
	f.fall[leg] = fallNs
}

func (f *fakeStage) Start(leg Leg) { f.starts[leg]++ }
func (f *fakeStage) Stop(leg Leg)  { f.stops[leg]++ }

type fakeLED struct {
	on, off, toggles int
}

func (f *fakeLED) On()     { f.on++ }
func (f *fakeLED) Off()    { f.off++ }
func (f *fakeLED) Toggle() { f.toggles++ }

type fakeLaw struct {
	duty     float64
	omega    float64
	theta    float64
	frames   frame.Frames
	bus      float64
	vref     frame.DQ
	iref     frame.DQ
	delta    frame.DQ
	computes int
}

func (f *fakeLaw) CalculateDuty(vgrid, igrid float64) float64 {
	f.computes++
	return f.duty
}

func (f *fakeLaw) AngularFrequency() float64  { return f.omega }
func (f *fakeLaw) PhaseAngle() float64        { return f.theta }
func (f *fakeLaw) Frames() frame.Frames       { return f.frames }
func (f *fakeLaw) SetBusVoltage(v float64)    { f.bus = v }
func (f *fakeLaw) SetVoltageRef(ref frame.DQ) { f.vref = ref }
func (f *fakeLaw) SetCurrentRef(ref frame.DQ) { f.iref = ref }
func (f *fakeLaw) RefDelta() frame.DQ         { return f.delta }

type fakeRegulator struct {
	out    float64
	resets int
}

func (f *fakeRegulator) Compute(target, measured float64) float64 { return f.out }
func (f *fakeRegulator) Reset()                                   { f.resets++ }

type fakeCapture struct {
	channels map[string]*float64
	acquires int
}

func (f *fakeCapture) ConnectChannel(name string, src *float64) {
	if f.channels == nil {
		f.channels = map[string]*float64{}
	}
	f.channels[name] = src
}

func (f *fakeCapture) Acquire() { f.acquires++ }

type rig struct {
	loop    *Loop
	sensors *fakeSensors
	stage   *fakeStage
	led     *fakeLED
	law     *fakeLaw
	boost   *fakeRegulator
	gw      *shared.GatewayHandle
	sup     *shared.SupervisorHandle
	lh      *shared.LoopHandle
	board   *telemetry.Board
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	r := &rig{
		sensors: newFakeSensors(),
		stage:   newFakeStage(),
		led:     &fakeLED{},
		law:     &fakeLaw{omega: cfg.Omega0()},
		boost:   &fakeRegulator{},
	}
	r.gw, r.sup, r.lh = shared.New()
	board, sink, _ := telemetry.NewBoard()
	r.board = board

	// offsets cancel so a zero reading is a zero current
	r.sensors.values[ILow1] = cfg.CurrentOffset1
	r.sensors.values[ILow2] = cfg.CurrentOffset2

	loop, err := New(cfg, Hardware{Sensors: r.sensors, Power: r.stage, LED: r.led}, r.law, r.boost, r.lh, sink)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.loop = loop
	return r
}

// enter commits a mode the way the supervisor would
func (r *rig) enter(m mode.Mode) {
	r.sup.CommitMode(r.sup.Mode(), m)
}

func (r *rig) ticks(n int) {
	for i := 0; i < n; i++ {
		r.loop.Tick()
	}
}
