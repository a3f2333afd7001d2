//go:build linux

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rtprio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// LockMemory locks current and future pages so the control loop never
// faults. Requires CAP_IPC_LOCK or a large enough RLIMIT_MEMLOCK.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}

// Elevate switches the calling thread to SCHED_FIFO at priority. The caller
// must have locked its goroutine to the OS thread. Requires CAP_SYS_NICE.
func Elevate(priority int) error {
	if priority <= 0 {
		return nil
	}
	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, attr, 0); err != nil {
		return fmt.Errorf("sched_setattr SCHED_FIFO %d: %w", priority, err)
	}
	return nil
}
