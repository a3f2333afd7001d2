// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scope records a fixed window of connected variables around a
// trigger, like a storage oscilloscope. Acquisition runs on the control loop;
// arming, freezing and downloading happen on other goroutines and are
// handed over through atomics, so Acquire never blocks.
package scope

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// State of the capture buffer
type State uint32

// Capture states
const (
	Stopped   State = iota // never armed
	Acquiring              // recording, waiting for or following the trigger
	Frozen                 // window complete, safe to download
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Acquiring:
		return "acquiring"
	case Frozen:
		return "frozen"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// RowsPerChunk is the number of samples returned by one NextChunk call
const RowsPerChunk = 32

// Scope is a triggered multi-channel capture buffer
type Scope struct {
	length int
	delay  float64

	names   []string
	sources []*float64
	buf     []float64

	trigger func() bool

	state     atomic.Uint32
	armReq    atomic.Bool
	freezeReq atomic.Bool

	// loop owned
	write     int
	filled    int
	triggered bool
	post      int

	// downloader owned
	row        int
	headerSent bool
}

// New creates a capture buffer holding length samples per channel. delay is
// the fraction of the window recorded before the trigger.
func New(length int, delay float64) (*Scope, error) {
	if length <= 0 {
		return nil, fmt.Errorf("scope length must be positive, got %d", length)
	}
	if delay < 0 || delay > 1 {
		return nil, fmt.Errorf("scope delay must be within [0,1], got %v", delay)
	}
	return &Scope{length: length, delay: delay}, nil
}

// ConnectChannel adds a variable to the capture. Must be called before the
// first Acquire.
func (s *Scope) ConnectChannel(name string, src *float64) {
	s.names = append(s.names, name)
	s.sources = append(s.sources, src)
	s.buf = make([]float64, s.length*len(s.sources))
}

// SetTrigger sets the level trigger evaluated on every acquired sample. A nil
// trigger fires immediately once the pre-trigger part is full.
func (s *Scope) SetTrigger(fn func() bool) {
	s.trigger = fn
}

// Channels returns the connected channel names
func (s *Scope) Channels() []string {
	return append([]string(nil), s.names...)
}

// Length returns the number of samples per channel
func (s *Scope) Length() int {
	return s.length
}

// State returns the current capture state
func (s *Scope) State() State {
	return State(s.state.Load())
}

// Start arms a fresh capture. The loop picks the request up on its next
// Acquire.
func (s *Scope) Start() {
	s.armReq.Store(true)
}

// Freeze asks the loop to end the current capture where it stands. A
// capture that was never armed freezes at once, holding no samples.
func (s *Scope) Freeze() {
	if s.state.CompareAndSwap(uint32(Stopped), uint32(Frozen)) {
		return
	}
	s.freezeReq.Store(true)
}

// Frozen reports whether the buffer holds a complete window
func (s *Scope) Frozen() bool {
	return s.State() == Frozen
}

// Acquire records one sample of every channel. Called from the control loop
// only.
func (s *Scope) Acquire() {
	if s.armReq.Swap(false) {
		s.write = 0
		s.filled = 0
		s.triggered = false
		s.post = 0
		s.state.Store(uint32(Acquiring))
	}

	if s.State() != Acquiring || len(s.sources) == 0 {
		s.freezeReq.Store(false)
		return
	}

	if s.freezeReq.Swap(false) {
		s.state.Store(uint32(Frozen))
		return
	}

	n := len(s.sources)
	base := s.write * n
	for i, src := range s.sources {
		s.buf[base+i] = *src
	}
	s.write = (s.write + 1) % s.length
	if s.filled < s.length {
		s.filled++
	}

	pre := s.preTrigger()
	if !s.triggered {
		if s.filled <= pre {
			return
		}
		if s.trigger != nil && !s.trigger() {
			return
		}
		s.triggered = true
		s.post = 0
	}

	s.post++
	if s.post >= s.length-pre {
		s.state.Store(uint32(Frozen))
	}
}

func (s *Scope) preTrigger() int {
	pre := int(s.delay * float64(s.length))
	if pre >= s.length {
		pre = s.length - 1
	}
	return pre
}

// ResetDownload rewinds the download cursor. Only meaningful while frozen.
func (s *Scope) ResetDownload() {
	s.row = 0
	s.headerSent = false
}

// Finished reports whether NextChunk has returned every sample
func (s *Scope) Finished() bool {
	return s.headerSent && s.row >= s.filled
}

// NextChunk returns the next part of the capture as CSV text: a header line
// of channel names first, then RowsPerChunk samples per call, oldest first.
func (s *Scope) NextChunk() string {
	var b strings.Builder

	if !s.headerSent {
		b.WriteString(strings.Join(s.names, ","))
		b.WriteByte('\n')
		s.headerSent = true
		return b.String()
	}

	n := len(s.sources)
	start := 0
	if s.filled == s.length {
		start = s.write
	}
	for i := 0; i < RowsPerChunk && s.row < s.filled; i++ {
		base := ((start + s.row) % s.length) * n
		for c := 0; c < n; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatFloat(s.buf[base+c], 'g', 6, 64))
		}
		b.WriteByte('\n')
		s.row++
	}
	return b.String()
}
