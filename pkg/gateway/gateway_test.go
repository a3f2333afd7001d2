// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gateway

import (
	"testing"

	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/shared"
)

type fakeCapture struct {
	starts int
}

func (f *fakeCapture) Start() { f.starts++ }

func newTestGateway(sub mode.SubMode) (*Gateway, *shared.SupervisorHandle, *shared.LoopHandle, *fakeCapture) {
	gw, sup, loop := shared.New()
	capture := &fakeCapture{}
	return New(gw, shared.DefaultBounds(), sub, capture), sup, loop, capture
}

func TestApply_ClampsCurrentReference(t *testing.T) {
	tests := []struct {
		name     string
		idRef    float64
		expected float64
	}{
		{"above max", 12.5, 8},
		{"below min", -3, -0.1},
		{"inside", 2.25, 2.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _, loop, _ := newTestGateway(mode.Following)
			cmd := &Command{IdRef: tt.idRef}
			g.Apply(cmd)

			if cmd.IdRef != tt.expected {
				t.Errorf("read-back id_ref = %v, want %v", cmd.IdRef, tt.expected)
			}
			if got := loop.References().Idq.D; got != tt.expected {
				t.Errorf("loop reference = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestApply_FormingClampsVoltageOnly(t *testing.T) {
	g, _, loop, _ := newTestGateway(mode.Forming)
	cmd := &Command{VdRef: 45, IdRef: 99}
	g.Apply(cmd)

	if cmd.VdRef != 30 {
		t.Errorf("vd_ref = %v, want 30", cmd.VdRef)
	}
	if cmd.IdRef != 99 {
		t.Errorf("id_ref touched in forming mode: %v", cmd.IdRef)
	}
	refs := loop.References()
	if refs.Vdq.D != 30 || refs.Idq.D != 0 {
		t.Errorf("references = %+v", refs)
	}
}

func TestApply_ModeRequest(t *testing.T) {
	g, sup, _, capture := newTestGateway(mode.Following)

	g.Apply(&Command{ModeRequest: uint8(mode.Power), InverterOn: true})
	if sup.Requested() != mode.Power || !sup.InverterOn() {
		t.Errorf("requested=%s inverter=%v", sup.Requested(), sup.InverterOn())
	}
	if capture.starts != 1 {
		t.Errorf("capture starts = %d, want 1", capture.starts)
	}

	// startup and error cannot be requested
	g.Apply(&Command{ModeRequest: uint8(mode.Startup), InverterOn: true})
	if sup.Requested() != mode.Power {
		t.Errorf("requested changed to %s", sup.Requested())
	}

	g.Apply(&Command{ModeRequest: uint8(mode.Idle)})
	if sup.Requested() != mode.Idle || sup.InverterOn() {
		t.Errorf("requested=%s inverter=%v", sup.Requested(), sup.InverterOn())
	}
}

func TestApply_NoRearmWhileDownloading(t *testing.T) {
	g, sup, _, capture := newTestGateway(mode.Following)

	g.Apply(&Command{ScopeDump: true})
	if !sup.Downloading() {
		t.Fatal("dump request not latched")
	}
	g.Apply(&Command{ModeRequest: uint8(mode.Power)})
	if capture.starts != 0 {
		t.Errorf("capture re-armed during download: %d", capture.starts)
	}

	sup.FinishDownload()
	g.Apply(&Command{ModeRequest: uint8(mode.Power)})
	if capture.starts != 1 {
		t.Errorf("capture starts = %d, want 1", capture.starts)
	}
}

func TestApply_OneShotFlags(t *testing.T) {
	g, sup, loop, _ := newTestGateway(mode.Following)

	cmd := &Command{ScopeTrigger: true}
	g.Apply(cmd)
	if cmd.ScopeTrigger {
		t.Error("trigger flag not cleared")
	}
	if !loop.Trigger() {
		t.Error("trigger not armed")
	}

	// the flag is consumed: applying again without a fresh write changes nothing
	g.Apply(cmd)
	if !loop.Trigger() {
		t.Error("trigger state changed without a write")
	}

	cmd.ScopeDump = true
	g.Apply(cmd)
	if cmd.ScopeDump {
		t.Error("dump flag not cleared")
	}
	if loop.Trigger() {
		t.Error("dump request should disarm the trigger")
	}
	if !sup.Downloading() {
		t.Error("download not pending")
	}
}
