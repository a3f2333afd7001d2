// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"math"
	"testing"

	"github.com/Thermoquad/verter/pkg/control"
	"github.com/Thermoquad/verter/pkg/frame"
	"github.com/Thermoquad/verter/pkg/mode"
)

func runLaw(t *testing.T, l *Law, freq, amp float64, ticks int, each func(i int)) {
	t.Helper()
	ts := l.cfg.Period
	for i := 0; i < ticks; i++ {
		v := amp * math.Sin(2*math.Pi*freq*float64(i)*ts)
		l.CalculateDuty(v, 0)
		if each != nil {
			each(i)
		}
	}
}

func TestLaw_LocksToNominalGrid(t *testing.T) {
	l, err := NewLaw(DefaultLawConfig())
	if err != nil {
		t.Fatalf("NewLaw() error = %v", err)
	}
	w0 := l.cfg.Nominal

	runLaw(t, l, 50, 20, 5000, func(i int) {
		if i < 3000 {
			return
		}
		if math.Abs(l.AngularFrequency()-w0) > 0.01*w0 {
			t.Fatalf("tick %d: omega = %v, outside 1%% of %v", i, l.AngularFrequency(), w0)
		}
	})

	vdq := l.Frames().Vdq
	if math.Abs(vdq.D-20) > 1 || math.Abs(vdq.Q) > 1 {
		t.Errorf("Vdq = %+v, want about {20 0}", vdq)
	}
}

func TestLaw_TracksOffNominalGrid(t *testing.T) {
	l, _ := NewLaw(DefaultLawConfig())
	want := 2 * math.Pi * 51

	var sum float64
	n := 0
	runLaw(t, l, 51, 20, 10000, func(i int) {
		if i >= 10000-1960 {
			sum += l.AngularFrequency()
			n++
		}
	})
	if got := sum / float64(n); math.Abs(got-want) > 1.5 {
		t.Errorf("mean omega = %v, want about %v", got, want)
	}
}

func TestLaw_NoBusNoDuty(t *testing.T) {
	l, _ := NewLaw(DefaultLawConfig())
	if d := l.CalculateDuty(15, 0); d != 0 {
		t.Errorf("duty without bus voltage = %v, want 0", d)
	}
}

func TestLaw_DutyBounded(t *testing.T) {
	l, _ := NewLaw(DefaultLawConfig())
	l.SetBusVoltage(5)
	l.SetCurrentRef(frame.DQ{D: 8})
	for i := 0; i < 1000; i++ {
		d := l.CalculateDuty(100, -50)
		if d < -0.5 || d > 0.5 {
			t.Fatalf("duty = %v outside [-0.5, 0.5]", d)
		}
	}
}

func TestLaw_FormingRunsAtNominal(t *testing.T) {
	cfg := DefaultLawConfig()
	cfg.SubMode = mode.Forming
	l, _ := NewLaw(cfg)
	l.SetBusVoltage(33)
	l.SetVoltageRef(frame.DQ{D: 15})

	d := l.CalculateDuty(0, 0)
	if l.AngularFrequency() != cfg.Nominal {
		t.Errorf("omega = %v, want nominal", l.AngularFrequency())
	}
	if want := 15 / 66.0; math.Abs(d-want) > 0.01 {
		t.Errorf("first duty = %v, want about %v", d, want)
	}
}

func TestPlant_ConversionCycle(t *testing.T) {
	p := NewPlant(DefaultPlantConfig())
	for _, ch := range control.Channels {
		if _, ok := p.ReadLatest(ch); !ok {
			t.Fatalf("%v not fresh", ch)
		}
	}
	if p.Steps() != 0 {
		t.Fatalf("steps = %d before a second read", p.Steps())
	}
	p.ReadLatest(control.ILow1)
	if p.Steps() != 1 {
		t.Errorf("steps = %d, want 1", p.Steps())
	}
}

func TestPlant_CurrentOffsetAndSpike(t *testing.T) {
	cfg := DefaultPlantConfig()
	p := NewPlant(cfg)
	if v, _ := p.ReadLatest(control.ILow1); v != cfg.CurrentOffset {
		t.Errorf("idle ILow1 = %v, want the sensor offset %v", v, cfg.CurrentOffset)
	}

	p.InjectOvercurrent(2)
	if v, _ := p.ReadLatest(control.ILow1); v < 10 {
		t.Errorf("ILow1 with spike = %v, want above 10", v)
	}
	p.ReadLatest(control.ILow1)
	p.ReadLatest(control.ILow1)
	if v, _ := p.ReadLatest(control.ILow1); v != cfg.CurrentOffset {
		t.Errorf("ILow1 after spike = %v", v)
	}
}

func TestPlant_DropSamples(t *testing.T) {
	p := NewPlant(DefaultPlantConfig())
	p.DropSamples(1)
	if _, ok := p.ReadLatest(control.VLow); ok {
		t.Error("sample should be stale")
	}
	p.ReadLatest(control.VLow)
	if _, ok := p.ReadLatest(control.VAC); !ok {
		t.Error("sample should be fresh once the drop elapsed")
	}
}

func TestPlant_BoostSettles(t *testing.T) {
	cfg := DefaultPlantConfig()
	p := NewPlant(cfg)
	p.SetDutyCycle(control.Leg1Low, 0.3)
	p.SetDutyCycle(control.Leg2Low, 0.3)
	p.Start(control.Leg1Low)
	p.Start(control.Leg2Low)

	for i := 0; i < 2000; i++ {
		p.ReadLatest(control.VDCBus)
	}
	want := cfg.InputVoltage / 0.7
	if math.Abs(p.Bus()-want) > 0.1 {
		t.Errorf("bus = %v, want about %v", p.Bus(), want)
	}

	p.Stop(control.Leg1Low)
	p.Stop(control.Leg2Low)
	for i := 0; i < 2000; i++ {
		p.ReadLatest(control.VDCBus)
	}
	if math.Abs(p.Bus()-cfg.InputVoltage) > 0.1 {
		t.Errorf("bus after stop = %v, want input voltage", p.Bus())
	}
}

func TestPlant_GridVoltageMeasured(t *testing.T) {
	p := NewPlant(DefaultPlantConfig())
	peak := 0.0
	for i := 0; i < 400; i++ {
		vl, _ := p.ReadLatest(control.VLow)
		va, _ := p.ReadLatest(control.VAC)
		peak = math.Max(peak, vl-va)
	}
	if math.Abs(peak-20) > 0.1 {
		t.Errorf("grid peak = %v, want 20", peak)
	}
}

func TestLED_Toggle(t *testing.T) {
	var l LED
	l.On()
	l.Toggle()
	if l.Lit() {
		t.Error("LED lit after toggle from on")
	}
	if l.Toggles() != 1 {
		t.Errorf("toggles = %d, want 1", l.Toggles())
	}
}
