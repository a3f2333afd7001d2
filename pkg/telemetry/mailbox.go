// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry holds the write-only publication records read by the
// protocol layer. Every record is published as a complete snapshot so a
// reader never observes a half-written record, and the writer never waits
// or allocates.
package telemetry

import "sync/atomic"

// mailboxSlots is the number of preallocated snapshots per mailbox. One is
// current, the others are free for the writer unless a reader is copying.
const mailboxSlots = 4

type slot[T any] struct {
	readers atomic.Int32
	v       T
}

// Mailbox holds the latest published value of T. It has a single writer
// and any number of readers. The zero value is empty and ready to use.
type Mailbox[T any] struct {
	slots [mailboxSlots]slot[T]
	cur   atomic.Int32 // index+1 of the current slot, 0 before the first Publish
	next  int          // writer only
}

// Publish replaces the current snapshot. It copies v into a slot that is
// neither current nor being read; if every spare slot is pinned by a reader
// the snapshot is dropped and the previous one stays current.
func (m *Mailbox[T]) Publish(v T) {
	cur := int(m.cur.Load()) - 1
	for i := 0; i < mailboxSlots; i++ {
		idx := (m.next + i) % mailboxSlots
		if idx == cur || m.slots[idx].readers.Load() != 0 {
			continue
		}
		m.slots[idx].v = v
		m.cur.Store(int32(idx + 1))
		m.next = idx + 1
		return
	}
}

// Load returns a copy of the latest snapshot, or the zero value before the
// first publication
func (m *Mailbox[T]) Load() T {
	for {
		c := m.cur.Load()
		if c == 0 {
			var zero T
			return zero
		}
		s := &m.slots[c-1]
		s.readers.Add(1)
		// the writer never touches the current slot, so a slot still
		// current after pinning is stable until unpinned
		if m.cur.Load() == c {
			v := s.v
			s.readers.Add(-1)
			return v
		}
		s.readers.Add(-1)
	}
}

// Published reports whether anything has been published yet
func (m *Mailbox[T]) Published() bool {
	return m.cur.Load() != 0
}
