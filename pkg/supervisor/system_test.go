// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package supervisor

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Thermoquad/verter/pkg/control"
	"github.com/Thermoquad/verter/pkg/frame"
	"github.com/Thermoquad/verter/pkg/gateway"
	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/scope"
	"github.com/Thermoquad/verter/pkg/shared"
	"github.com/Thermoquad/verter/pkg/telemetry"
)

type benchSensors map[control.Channel]float64

func (b benchSensors) ReadLatest(ch control.Channel) (float64, bool) {
	v, ok := b[ch]
	return v, ok
}

type benchStage struct {
	starts map[control.Leg]int
	stops  map[control.Leg]int
}

func (b *benchStage) SetDutyCycle(control.Leg, float64)       {}
func (b *benchStage) SetDeadTime(control.Leg, uint16, uint16) {}
func (b *benchStage) Start(leg control.Leg)                   { b.starts[leg]++ }
func (b *benchStage) Stop(leg control.Leg)                    { b.stops[leg]++ }

type benchLaw struct {
	omega float64
}

func (b *benchLaw) CalculateDuty(vgrid, igrid float64) float64 { return 0.1 }
func (b *benchLaw) AngularFrequency() float64                  { return b.omega }
func (b *benchLaw) PhaseAngle() float64                        { return 0 }
func (b *benchLaw) Frames() frame.Frames                       { return frame.Frames{} }
func (b *benchLaw) SetBusVoltage(float64)                      {}
func (b *benchLaw) SetVoltageRef(frame.DQ)                     {}
func (b *benchLaw) SetCurrentRef(frame.DQ)                     {}
func (b *benchLaw) RefDelta() frame.DQ                         { return frame.DQ{} }

type benchRegulator struct{}

func (benchRegulator) Compute(target, measured float64) float64 { return 0.4 }
func (benchRegulator) Reset()                                   {}

type bench struct {
	loop  *control.Loop
	sup   *Supervisor
	gate  *gateway.Gateway
	stage *benchStage
	law   *benchLaw
	led   *fakeLED
	cap   *scope.Scope
	out   *bytes.Buffer
	lh    *shared.LoopHandle
	sh    *shared.SupervisorHandle
}

func newBench(t *testing.T) *bench {
	t.Helper()
	ccfg := control.DefaultConfig()
	b := &bench{
		stage: &benchStage{starts: map[control.Leg]int{}, stops: map[control.Leg]int{}},
		law:   &benchLaw{omega: ccfg.Omega0()},
		led:   &fakeLED{},
		out:   &bytes.Buffer{},
	}
	sensors := benchSensors{
		control.ILow1:  ccfg.CurrentOffset1,
		control.ILow2:  ccfg.CurrentOffset2,
		control.VLow:   20,
		control.VAC:    0,
		control.VDCBus: 33,
		control.IAC:    0,
	}

	gw, sh, lh := shared.New()
	b.lh, b.sh = lh, sh
	board, sink, live := telemetry.NewBoard()

	capture, err := scope.New(64, 0.5)
	if err != nil {
		t.Fatalf("scope.New() error = %v", err)
	}
	capture.SetTrigger(lh.Trigger)
	b.cap = capture

	loop, err := control.New(ccfg, control.Hardware{Sensors: sensors, Power: b.stage, LED: b.led}, b.law, benchRegulator{}, lh, sink)
	if err != nil {
		t.Fatalf("control.New() error = %v", err)
	}
	loop.AttachCapture(capture)
	b.loop = loop

	sup, err := New(DefaultConfig(), sh, board, live, b.led, capture, b.out)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	b.sup = sup
	b.gate = gateway.New(gw, shared.DefaultBounds(), mode.Following, capture)
	return b
}

func (b *bench) ticks(n int) {
	for i := 0; i < n; i++ {
		b.loop.Tick()
	}
}

func TestSystem_FollowingStartupAndDesync(t *testing.T) {
	b := newBench(t)
	b.ticks(10)

	b.gate.Apply(&gateway.Command{ModeRequest: uint8(mode.Power), InverterOn: true, IdRef: 2})
	if tr := b.sup.Step(); tr.To != mode.Power {
		t.Fatalf("Idle -> %v, want Power", tr.To)
	}
	if tr := b.sup.Step(); tr.To != mode.Startup {
		t.Fatalf("Power -> %v, want Startup", tr.To)
	}

	b.ticks(control.DefaultConfig().AcquireWindow)
	if tr := b.sup.Step(); tr.From != mode.Startup || tr.To != mode.Power {
		t.Fatalf("transition = %v -> %v, want Startup -> Power", tr.From, tr.To)
	}

	b.ticks(control.DefaultConfig().EnergizeDelay + 100)
	b.sup.Step()
	if got := b.sh.Mode(); got != mode.Power {
		t.Fatalf("mode = %v, want Power", got)
	}
	for _, leg := range []control.Leg{control.Leg1High, control.Leg2High} {
		if b.stage.starts[leg] != 1 {
			t.Errorf("%v started %d times, want once", leg, b.stage.starts[leg])
		}
	}
	if b.led.toggles == 0 {
		t.Error("indicator never toggled while synchronized")
	}

	b.law.omega *= 1.1
	b.ticks(control.DefaultConfig().LossWindow)
	if got := b.lh.Mode(); got != mode.Idle {
		t.Fatalf("mode = %v after loss window, want Idle", got)
	}
	b.ticks(1)
	b.sup.Step()

	for _, leg := range []control.Leg{control.Leg1High, control.Leg2High, control.Leg1Low, control.Leg2Low} {
		if b.stage.stops[leg] != 1 {
			t.Errorf("%v stopped %d times, want once", leg, b.stage.stops[leg])
		}
	}
	if got := b.sh.Requested(); got != mode.Idle {
		t.Errorf("requested = %v, want Idle", got)
	}
	if got := b.sup.board.Loop().SyncLosses; got != 1 || b.sup.syncLosses != 1 {
		t.Errorf("loop counted %d synchronization losses, supervisor reported %d, want 1 each", got, b.sup.syncLosses)
	}
}

func TestSystem_CaptureDownload(t *testing.T) {
	b := newBench(t)

	// power request arms the capture, scope_trigger fires it
	b.gate.Apply(&gateway.Command{ModeRequest: uint8(mode.Power)})
	b.ticks(40)
	b.gate.Apply(&gateway.Command{ModeRequest: uint8(mode.Idle), ScopeTrigger: true})
	b.ticks(40)
	if !b.cap.Frozen() {
		t.Fatal("capture not frozen after trigger and post-trigger window")
	}

	b.gate.Apply(&gateway.Command{ModeRequest: uint8(mode.Idle), ScopeDump: true})
	b.sup.Step()

	out := b.out.String()
	if !strings.HasPrefix(out, "begin record\n") || !strings.HasSuffix(out, "end record\n") {
		t.Fatalf("record framing missing: %q", out)
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	// framing, header and 64 samples
	if len(lines) != 67 {
		t.Errorf("record has %d lines, want 67", len(lines))
	}
	if !strings.HasPrefix(lines[1], "Ilow1,Iac,Vgrid,") {
		t.Errorf("header = %q", lines[1])
	}
	if b.sh.Downloading() {
		t.Error("download still pending")
	}
}

func TestSystem_DownloadBeforeFirstArm(t *testing.T) {
	b := newBench(t)

	b.gate.Apply(&gateway.Command{ModeRequest: uint8(mode.Idle), ScopeDump: true})
	for i := 0; i < 3; i++ {
		b.ticks(100)
		b.sup.Step()
	}
	if b.sh.Downloading() {
		t.Fatal("download of a never-armed capture still pending")
	}
	out := b.out.String()
	if !strings.HasPrefix(out, "begin record\n") || !strings.HasSuffix(out, "end record\n") {
		t.Errorf("unexpected record %q", out)
	}

	b.gate.Apply(&gateway.Command{ModeRequest: uint8(mode.Power)})
	b.ticks(control.DefaultConfig().Decimation)
	if got := b.cap.State(); got != scope.Acquiring {
		t.Errorf("capture state after POWER request = %v, want acquiring", got)
	}
}
