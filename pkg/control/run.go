// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"context"
	"runtime"
	"time"

	"github.com/Thermoquad/verter/internal/logger"
	"github.com/Thermoquad/verter/internal/rtprio"
)

// Run drives Tick at the configured period until ctx is cancelled. The
// goroutine is pinned to its OS thread and, when priority is positive,
// raised to SCHED_FIFO. A tick that takes longer than the period is counted
// as an overrun; missed ticks are not replayed. All legs are stopped on
// return.
func (l *Loop) Run(ctx context.Context, priority int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := rtprio.Elevate(priority); err != nil {
		logger.Warn("control loop running without real-time priority: %v", err)
	}

	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()

	logger.Info("control loop started (period %v, %s)", l.cfg.Period, l.cfg.SubMode)
	for {
		select {
		case <-ctx.Done():
			l.inverter.EnsureStopped()
			l.boostLegs.EnsureStopped()
			logger.Info("control loop stopped after %d ticks (%d overruns)", l.tick, l.overruns)
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			l.Tick()
			if time.Since(start) > l.cfg.Period {
				l.overruns++
			}
		}
	}
}
