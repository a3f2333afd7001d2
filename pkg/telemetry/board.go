// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

// Board is the read side of every publication record
type Board struct {
	measurements Mailbox[Measurements]
	inverter     Mailbox[InverterDebug]
	boost        Mailbox[BoostDebug]
	loop         Mailbox[LoopStatus]
	live         Mailbox[LiveStatus]
}

// LoopSink publishes the records owned by the control loop
type LoopSink struct {
	b *Board
}

// LiveSink publishes the live status owned by the supervisor
type LiveSink struct {
	b *Board
}

// NewBoard creates a board with exactly one sink per writer
func NewBoard() (*Board, *LoopSink, *LiveSink) {
	b := &Board{}
	return b, &LoopSink{b: b}, &LiveSink{b: b}
}

// Measurements returns the latest measurement snapshot
func (b *Board) Measurements() Measurements { return b.measurements.Load() }

// Inverter returns the latest inverter debug snapshot
func (b *Board) Inverter() InverterDebug { return b.inverter.Load() }

// Boost returns the latest boost debug snapshot
func (b *Board) Boost() BoostDebug { return b.boost.Load() }

// Loop returns the latest loop status
func (b *Board) Loop() LoopStatus { return b.loop.Load() }

// Live returns the latest live status
func (b *Board) Live() LiveStatus { return b.live.Load() }

// Publish stores one tick worth of loop records
func (s *LoopSink) Publish(m Measurements, inv InverterDebug, boost BoostDebug, status LoopStatus) {
	s.b.measurements.Publish(m)
	s.b.inverter.Publish(inv)
	s.b.boost.Publish(boost)
	s.b.loop.Publish(status)
}

// Publish stores the live status
func (s *LiveSink) Publish(l LiveStatus) {
	s.b.live.Publish(l)
}
