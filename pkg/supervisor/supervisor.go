// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package supervisor runs the low-rate background task: it advances the
// operating mode, drives the status indicator, streams captures and keeps
// the live status record current.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/verter/internal/logger"
	"github.com/Thermoquad/verter/pkg/control"
	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/shared"
	"github.com/Thermoquad/verter/pkg/telemetry"
)

// Downloader is the download side of the capture buffer
type Downloader interface {
	Frozen() bool
	Freeze()
	ResetDownload()
	NextChunk() string
	Finished() bool
}

// Config holds the supervisor parameters
type Config struct {
	Period            time.Duration
	SubMode           mode.SubMode
	StartupThreshold  float64 // V on the filtered DC bus
	VgridAmplitudeRef float64 // V, reported in the live record
}

// DefaultConfig returns the firmware defaults
func DefaultConfig() Config {
	return Config{
		Period:            100 * time.Millisecond,
		SubMode:           mode.Following,
		StartupThreshold:  0.0,
		VgridAmplitudeRef: 20.0,
	}
}

// Supervisor is the low-rate task. Step must be called from one goroutine.
type Supervisor struct {
	cfg   Config
	sh    *shared.SupervisorHandle
	board *telemetry.Board
	live  *telemetry.LiveSink
	led   control.Indicator
	dl    Downloader
	out   io.Writer

	startupDone bool

	// trip counts already reported
	overcurrents uint64
	syncLosses   uint64
}

// New creates a supervisor. dl and out may be nil when captures are not
// streamed; pending downloads are then discarded.
func New(cfg Config, sh *shared.SupervisorHandle, board *telemetry.Board, live *telemetry.LiveSink, led control.Indicator, dl Downloader, out io.Writer) (*Supervisor, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("supervisor period must be positive, got %v", cfg.Period)
	}
	if sh == nil || board == nil || live == nil || led == nil {
		return nil, errors.New("supervisor needs shared state, telemetry and an indicator")
	}
	return &Supervisor{
		cfg:   cfg,
		sh:    sh,
		board: board,
		live:  live,
		led:   led,
		dl:    dl,
		out:   out,
	}, nil
}

// reportTrips logs protective trips the control loop counted since the last
// step.
func (s *Supervisor) reportTrips(status telemetry.LoopStatus) {
	if status.Overcurrents != s.overcurrents {
		logger.Warn("overcurrent: ILow1=%.2f A ILow2=%.2f A, entered %s (%d trips)",
			status.TripILow1, status.TripILow2, mode.Error, status.Overcurrents)
		s.overcurrents = status.Overcurrents
	}
	if status.SyncLosses != s.syncLosses {
		logger.Warn("grid synchronization lost, returned to %s (%d times)", mode.Idle, status.SyncLosses)
		s.syncLosses = status.SyncLosses
	}
}

// Step runs one low-rate tick and returns the transition that was applied.
// When the control loop overwrote the mode concurrently the loop wins and
// the returned transition is a no-op on the mode it left.
func (s *Supervisor) Step() mode.Transition {
	current := s.sh.Mode()
	on := s.sh.InverterOn()
	status := s.board.Loop()
	s.reportTrips(status)

	if !on {
		s.startupDone = false
	}

	tr := mode.Next(current, mode.Inputs{
		Requested:        s.sh.Requested(),
		InverterOn:       on,
		SubMode:          s.cfg.SubMode,
		DeltaDuty:        status.DeltaDuty,
		Synchronized:     status.Synchronized,
		BusVoltage:       status.BusVoltage,
		GridVoltage:      status.GridVoltage,
		StartupThreshold: s.cfg.StartupThreshold,
		StartupDone:      s.startupDone,
		DownloadPending:  s.sh.Downloading(),
	})

	if tr.Changed() {
		if !s.sh.CommitMode(tr.From, tr.To) {
			actual := s.sh.Mode()
			logger.Debug("mode %s -> %s superseded by control loop (%s)", tr.From, tr.To, actual)
			s.publishLive(actual)
			return mode.Transition{From: actual, To: actual}
		}
		logger.Info("mode %s -> %s", tr.From, tr.To)
	}

	switch tr.To {
	case mode.Idle, mode.Error:
		s.startupDone = false
	case mode.Power:
		if tr.From == mode.Startup && on {
			s.startupDone = true
		}
	}

	switch tr.Effects.Indicator {
	case mode.IndicatorOn:
		s.led.On()
	case mode.IndicatorToggle:
		s.led.Toggle()
	}

	if tr.Effects.DumpCapture {
		s.dump()
	}

	s.publishLive(tr.To)
	return tr
}

// Run calls Step every period until ctx is cancelled
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
}

// dump streams the frozen capture. A capture still acquiring is asked to
// freeze and the download is retried on the next tick.
func (s *Supervisor) dump() {
	if s.dl == nil || s.out == nil {
		logger.Warn("capture download requested but no capture output is configured")
		s.sh.FinishDownload()
		return
	}
	if !s.dl.Frozen() {
		s.dl.Freeze()
		return
	}

	start := time.Now()
	if err := WriteRecord(s.out, s.dl); err != nil {
		logger.Error("capture download failed: %v", err)
	} else {
		logger.Info("capture streamed in %v", time.Since(start).Round(time.Millisecond))
	}
	s.sh.FinishDownload()
}

// WriteRecord writes one frozen capture framed by begin/end record lines
func WriteRecord(w io.Writer, dl Downloader) error {
	if _, err := io.WriteString(w, "begin record\n"); err != nil {
		return fmt.Errorf("failed to write record header: %w", err)
	}
	dl.ResetDownload()
	for !dl.Finished() {
		if _, err := io.WriteString(w, dl.NextChunk()); err != nil {
			return fmt.Errorf("failed to write record data: %w", err)
		}
	}
	if _, err := io.WriteString(w, "end record\n"); err != nil {
		return fmt.Errorf("failed to write record trailer: %w", err)
	}
	return nil
}

func (s *Supervisor) publishLive(m mode.Mode) {
	inv := s.board.Inverter()
	refs := s.sh.References()
	vdq, idq := inv.Frames.Vdq, inv.Frames.Idq

	s.live.Publish(telemetry.LiveStatus{
		Mode:              m,
		Omega:             inv.Omega,
		VgridAmplitudeRef: s.cfg.VgridAmplitudeRef,
		PowerD:            0.5 * (vdq.D*idq.D + vdq.Q*idq.Q),
		PowerQ:            0.5 * (vdq.Q*idq.D - vdq.D*idq.Q),
		IdRef:             refs.Idq.D,
		IdRefDelta:        inv.IdqRefDelta.D,
		VdRef:             refs.Vdq.D,
		VqRef:             refs.Vdq.Q,
	})
}
