// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package shared is the state exchanged between the three execution contexts:
// the command gateway (protocol callbacks), the supervisor (low-rate task)
// and the control loop (high-rate task).
//
// Each field has one owning context. New returns exactly one handle per
// context and each handle only exposes the setters its owner may call. All
// fields are atomics or copy-on-write snapshots, so the control loop never
// blocks on another context.
package shared

import (
	"sync/atomic"

	"github.com/Thermoquad/verter/pkg/frame"
	"github.com/Thermoquad/verter/pkg/mode"
)

// References are the operating point references, already clamped
type References struct {
	Vdq frame.DQ
	Idq frame.DQ
}

// Bounds are the fixed reference limits
type Bounds struct {
	VdqMin frame.DQ
	VdqMax frame.DQ
	IdqMin frame.DQ
	IdqMax frame.DQ
}

// DefaultBounds returns the reference limits of the uSolarVerter board
func DefaultBounds() Bounds {
	return Bounds{
		VdqMin: frame.DQ{D: -0.1, Q: -0.1},
		VdqMax: frame.DQ{D: 30, Q: 30},
		IdqMin: frame.DQ{D: -0.1, Q: -0.1},
		IdqMax: frame.DQ{D: 8, Q: 1},
	}
}

type state struct {
	mode        atomic.Uint32 // supervisor; loop on trips
	requested   atomic.Uint32 // gateway; loop on desync trip
	inverterOn  atomic.Bool   // gateway
	refs        atomic.Pointer[References]
	downloading atomic.Bool // set by gateway, cleared by supervisor
	trigger     atomic.Bool // gateway
}

// New creates the shared state with everything idle and zero references
func New() (*GatewayHandle, *SupervisorHandle, *LoopHandle) {
	s := &state{}
	s.refs.Store(&References{})
	return &GatewayHandle{s: s}, &SupervisorHandle{s: s}, &LoopHandle{s: s}
}

// readers common to every handle

func (s *state) Mode() mode.Mode        { return mode.Mode(s.mode.Load()) }
func (s *state) Requested() mode.Mode   { return mode.Mode(s.requested.Load()) }
func (s *state) InverterOn() bool       { return s.inverterOn.Load() }
func (s *state) References() References { return *s.refs.Load() }
func (s *state) Downloading() bool      { return s.downloading.Load() }
func (s *state) Trigger() bool          { return s.trigger.Load() }

// GatewayHandle is held by the command gateway
type GatewayHandle struct{ s *state }

func (h *GatewayHandle) Mode() mode.Mode        { return h.s.Mode() }
func (h *GatewayHandle) Requested() mode.Mode   { return h.s.Requested() }
func (h *GatewayHandle) InverterOn() bool       { return h.s.InverterOn() }
func (h *GatewayHandle) References() References { return h.s.References() }
func (h *GatewayHandle) Downloading() bool      { return h.s.Downloading() }
func (h *GatewayHandle) Trigger() bool          { return h.s.Trigger() }

// SetRequested latches the requested mode
func (h *GatewayHandle) SetRequested(m mode.Mode) { h.s.requested.Store(uint32(m)) }

// SetInverterOn propagates the inverter enable flag
func (h *GatewayHandle) SetInverterOn(on bool) { h.s.inverterOn.Store(on) }

// PublishReferences replaces the reference snapshot read by the loop
func (h *GatewayHandle) PublishReferences(r References) { h.s.refs.Store(&r) }

// RequestDownload marks a capture download as pending
func (h *GatewayHandle) RequestDownload() { h.s.downloading.Store(true) }

// SetTrigger arms or disarms the capture trigger
func (h *GatewayHandle) SetTrigger(on bool) { h.s.trigger.Store(on) }

// SupervisorHandle is held by the low-rate supervisor
type SupervisorHandle struct{ s *state }

func (h *SupervisorHandle) Mode() mode.Mode        { return h.s.Mode() }
func (h *SupervisorHandle) Requested() mode.Mode   { return h.s.Requested() }
func (h *SupervisorHandle) InverterOn() bool       { return h.s.InverterOn() }
func (h *SupervisorHandle) References() References { return h.s.References() }
func (h *SupervisorHandle) Downloading() bool      { return h.s.Downloading() }

// CommitMode moves the mode from one value to another. It fails, leaving the
// mode untouched, when the loop overwrote it since from was read.
func (h *SupervisorHandle) CommitMode(from, to mode.Mode) bool {
	return h.s.mode.CompareAndSwap(uint32(from), uint32(to))
}

// FinishDownload clears the pending download once the capture was streamed
func (h *SupervisorHandle) FinishDownload() { h.s.downloading.Store(false) }

// LoopHandle is held by the control loop
type LoopHandle struct{ s *state }

func (h *LoopHandle) Mode() mode.Mode        { return h.s.Mode() }
func (h *LoopHandle) Requested() mode.Mode   { return h.s.Requested() }
func (h *LoopHandle) InverterOn() bool       { return h.s.InverterOn() }
func (h *LoopHandle) References() References { return h.s.References() }
func (h *LoopHandle) Trigger() bool          { return h.s.Trigger() }

// TripError forces the error mode immediately
func (h *LoopHandle) TripError() { h.s.mode.Store(uint32(mode.Error)) }

// TripIdle forces both the requested and the actual mode back to idle
func (h *LoopHandle) TripIdle() {
	h.s.requested.Store(uint32(mode.Idle))
	h.s.mode.Store(uint32(mode.Idle))
}
