// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gateway applies operator commands written through the protocol
// layer. Apply is the post-write hook of the command group and runs in the
// protocol's callback context; it never blocks.
package gateway

import (
	"github.com/Thermoquad/verter/internal/logger"
	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/ramp"
	"github.com/Thermoquad/verter/pkg/shared"
)

// Command is the command mailbox as written by the protocol layer
type Command struct {
	ModeRequest  uint8
	InverterOn   bool
	VdRef        float64
	IdRef        float64
	ScopeDump    bool
	ScopeTrigger bool
}

// Arm restarts a capture acquisition
type Arm interface {
	Start()
}

// Gateway translates command writes into shared state
type Gateway struct {
	sh      *shared.GatewayHandle
	bounds  shared.Bounds
	subMode mode.SubMode
	capture Arm
	refs    shared.References
}

// New creates a gateway. capture may be nil when no capture is attached.
func New(sh *shared.GatewayHandle, bounds shared.Bounds, subMode mode.SubMode, capture Arm) *Gateway {
	return &Gateway{
		sh:      sh,
		bounds:  bounds,
		subMode: subMode,
		capture: capture,
		refs:    sh.References(),
	}
}

// Apply consumes one batch of writes. The active axis reference is clamped
// into its band and written back into cmd, and the one-shot flags are
// cleared.
func (g *Gateway) Apply(cmd *Command) {
	switch m := mode.Mode(cmd.ModeRequest); m {
	case mode.Idle:
		g.sh.SetRequested(mode.Idle)
	case mode.Power:
		if !g.sh.Downloading() && g.capture != nil {
			g.capture.Start()
		}
		g.sh.SetRequested(mode.Power)
	default:
		logger.Debug("gateway: ignoring request for mode %s", m)
	}

	g.sh.SetInverterOn(cmd.InverterOn)

	if g.subMode == mode.Forming {
		vd := ramp.Saturate(cmd.VdRef, g.bounds.VdqMin.D, g.bounds.VdqMax.D)
		if vd != cmd.VdRef {
			logger.Debug("gateway: vd_ref %.3f clamped to %.3f", cmd.VdRef, vd)
		}
		g.refs.Vdq.D = vd
		cmd.VdRef = vd
	} else {
		id := ramp.Saturate(cmd.IdRef, g.bounds.IdqMin.D, g.bounds.IdqMax.D)
		if id != cmd.IdRef {
			logger.Debug("gateway: id_ref %.3f clamped to %.3f", cmd.IdRef, id)
		}
		g.refs.Idq.D = id
		cmd.IdRef = id
	}
	g.sh.PublishReferences(g.refs)

	if cmd.ScopeDump {
		g.sh.RequestDownload()
		g.sh.SetTrigger(false)
		cmd.ScopeDump = false
	}
	if cmd.ScopeTrigger {
		g.sh.SetTrigger(true)
		cmd.ScopeTrigger = false
	}
}
