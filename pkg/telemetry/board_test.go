// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"sync"
	"testing"

	"github.com/Thermoquad/verter/pkg/mode"
)

func TestMailbox_ZeroBeforePublish(t *testing.T) {
	var m Mailbox[Measurements]
	if m.Published() {
		t.Error("Published() true before any publish")
	}
	if got := m.Load(); got != (Measurements{}) {
		t.Errorf("Load() = %+v, want zero", got)
	}
}

func TestMailbox_SnapshotIsCopy(t *testing.T) {
	var m Mailbox[BoostDebug]
	v := BoostDebug{DutyLeg1: 0.3}
	m.Publish(v)
	v.DutyLeg1 = 0.9
	if got := m.Load().DutyLeg1; got != 0.3 {
		t.Errorf("snapshot changed with writer's copy: %v", got)
	}
}

func TestBoard_Sinks(t *testing.T) {
	board, loop, live := NewBoard()
	loop.Publish(Measurements{VGrid: 12}, InverterDebug{Omega: 314}, BoostDebug{DutyLeg2: 0.4}, LoopStatus{Tick: 7})
	live.Publish(LiveStatus{Mode: mode.Power})

	if board.Measurements().VGrid != 12 || board.Inverter().Omega != 314 ||
		board.Boost().DutyLeg2 != 0.4 || board.Loop().Tick != 7 {
		t.Error("loop records not visible on board")
	}
	if board.Live().Mode != mode.Power {
		t.Errorf("live mode = %s", board.Live().Mode)
	}
}

// Readers must always see a record published as a whole.
func TestMailbox_ConcurrentReaders(t *testing.T) {
	var m Mailbox[LoopStatus]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 5000; i++ {
			m.Publish(LoopStatus{Tick: i, Overruns: i})
		}
	}()
	for i := 0; i < 5000; i++ {
		s := m.Load()
		if s.Tick != s.Overruns {
			t.Fatalf("torn read: %+v", s)
		}
	}
	wg.Wait()
}

func TestMailbox_ManyReaders(t *testing.T) {
	var m Mailbox[LoopStatus]
	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5000; i++ {
				if s := m.Load(); s.Tick != s.Overruns {
					t.Errorf("torn read: %+v", s)
					return
				}
			}
		}()
	}
	for i := uint64(1); i <= 5000; i++ {
		m.Publish(LoopStatus{Tick: i, Overruns: i})
	}
	wg.Wait()
	if got := m.Load().Tick; got != 5000 {
		t.Errorf("latest tick = %d, want 5000", got)
	}
}

func TestMailbox_PinnedSlotsKeepPrevious(t *testing.T) {
	var m Mailbox[LoopStatus]
	m.Publish(LoopStatus{Tick: 1})

	cur := int(m.cur.Load()) - 1
	for i := range m.slots {
		if i != cur {
			m.slots[i].readers.Store(1)
		}
	}
	m.Publish(LoopStatus{Tick: 2})
	if got := m.Load().Tick; got != 1 {
		t.Errorf("tick = %d, want 1 while every spare slot is being read", got)
	}

	for i := range m.slots {
		m.slots[i].readers.Store(0)
	}
	m.Publish(LoopStatus{Tick: 3})
	if got := m.Load().Tick; got != 3 {
		t.Errorf("tick = %d, want 3", got)
	}
}

func TestLoopSink_PublishDoesNotAllocate(t *testing.T) {
	_, loop, _ := NewBoard()
	var tick uint64
	allocs := testing.AllocsPerRun(1000, func() {
		tick++
		loop.Publish(Measurements{VGrid: 1}, InverterDebug{Omega: 2}, BoostDebug{DutyLeg1: 3}, LoopStatus{Tick: tick})
	})
	if allocs != 0 {
		t.Errorf("allocs per publish = %v, want 0", allocs)
	}
}
