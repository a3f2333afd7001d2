// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scope

import (
	"strings"
	"sync/atomic"
	"testing"
)

func TestNew_Validates(t *testing.T) {
	if _, err := New(0, 0.5); err == nil {
		t.Error("New() accepted zero length")
	}
	if _, err := New(16, 1.5); err == nil {
		t.Error("New() accepted delay above 1")
	}
}

func TestAcquire_IgnoredUntilStarted(t *testing.T) {
	s, _ := New(8, 0.5)
	v := 1.0
	s.ConnectChannel("v", &v)
	for i := 0; i < 20; i++ {
		s.Acquire()
	}
	if s.State() != Stopped {
		t.Errorf("state = %v, want stopped", s.State())
	}
}

func TestAcquire_PreTriggerWindow(t *testing.T) {
	s, _ := New(8, 0.5)
	var v float64
	var fire atomic.Bool
	s.ConnectChannel("v", &v)
	s.SetTrigger(fire.Load)
	s.Start()

	for i := 0; i < 20; i++ {
		v = float64(i)
		if i == 10 {
			fire.Store(true)
		}
		s.Acquire()
		if s.Frozen() {
			break
		}
	}

	if !s.Frozen() {
		t.Fatal("capture not frozen after trigger and post-trigger samples")
	}

	rows := collect(t, s)
	if len(rows) != 9 {
		t.Fatalf("got %d lines, want header plus 8 samples", len(rows))
	}
	if rows[0] != "v" {
		t.Errorf("header = %q", rows[0])
	}
	// 4 samples before the trigger sample at 10, which opens the post window
	want := []string{"6", "7", "8", "9", "10", "11", "12", "13"}
	for i, w := range want {
		if rows[i+1] != w {
			t.Errorf("row %d = %q, want %q", i, rows[i+1], w)
		}
	}

	// frozen buffer is not overwritten
	v = 99
	s.Acquire()
	if got := collect(t, s); got[len(got)-1] != "13" {
		t.Errorf("last row after extra acquire = %q, want 13", got[len(got)-1])
	}
}

func TestAcquire_TriggerWaitsForPreTrigger(t *testing.T) {
	s, _ := New(10, 0.5)
	var v float64
	s.ConnectChannel("v", &v)
	s.SetTrigger(func() bool { return true })
	s.Start()

	for i := 0; i < 9; i++ {
		s.Acquire()
	}
	if s.Frozen() {
		t.Fatal("froze before pre-trigger and post-trigger parts were recorded")
	}
	s.Acquire()
	if !s.Frozen() {
		t.Fatal("not frozen after a full window")
	}
}

func TestFreeze_EndsCapture(t *testing.T) {
	s, _ := New(64, 0.5)
	v := 3.0
	s.ConnectChannel("a", &v)
	s.ConnectChannel("b", &v)
	s.SetTrigger(func() bool { return false })
	s.Start()
	for i := 0; i < 5; i++ {
		s.Acquire()
	}

	s.Freeze()
	s.Acquire()
	if !s.Frozen() {
		t.Fatal("freeze request not honoured")
	}

	rows := collect(t, s)
	if len(rows) != 6 || rows[0] != "a,b" || rows[1] != "3,3" {
		t.Errorf("rows = %q", rows)
	}
}

func TestFreeze_NeverArmedIsEmpty(t *testing.T) {
	s, _ := New(8, 0.5)
	v := 1.0
	s.ConnectChannel("v", &v)

	s.Freeze()
	if !s.Frozen() {
		t.Fatalf("state = %v, want frozen", s.State())
	}
	if rows := collect(t, s); len(rows) != 1 || rows[0] != "v" {
		t.Errorf("rows = %q, want header only", rows)
	}

	s.Start()
	s.Acquire()
	if s.State() != Acquiring {
		t.Errorf("state after Start = %v, want acquiring", s.State())
	}
}

func TestStart_RearmsFrozenCapture(t *testing.T) {
	s, _ := New(4, 0)
	var v float64
	s.ConnectChannel("v", &v)
	s.Start()
	for i := 0; i < 4; i++ {
		s.Acquire()
	}
	if !s.Frozen() {
		t.Fatal("not frozen")
	}

	s.Start()
	s.Acquire()
	if s.State() != Acquiring {
		t.Errorf("state = %v, want acquiring", s.State())
	}
}

func TestNextChunk_Chunking(t *testing.T) {
	s, _ := New(100, 0)
	var v float64
	s.ConnectChannel("v", &v)
	s.Start()
	for i := 0; i < 100; i++ {
		v = float64(i)
		s.Acquire()
	}

	s.ResetDownload()
	chunks := 0
	for !s.Finished() {
		s.NextChunk()
		chunks++
	}
	// header plus ceil(100/32)
	if chunks != 5 {
		t.Errorf("chunks = %d, want 5", chunks)
	}
}

func collect(t *testing.T, s *Scope) []string {
	t.Helper()
	s.ResetDownload()
	var b strings.Builder
	for i := 0; !s.Finished(); i++ {
		if i > 1000 {
			t.Fatal("download never finished")
		}
		b.WriteString(s.NextChunk())
	}
	return strings.Split(strings.TrimSuffix(b.String(), "\n"), "\n")
}
