// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device assembles a complete inverter controller around the
// simulated power shield and runs its three contexts: the control loop,
// the supervisor and the link dispatcher.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/verter/internal/config"
	"github.com/Thermoquad/verter/internal/logger"
	"github.com/Thermoquad/verter/internal/rtprio"
	"github.com/Thermoquad/verter/internal/transport"
	"github.com/Thermoquad/verter/pkg/control"
	"github.com/Thermoquad/verter/pkg/frame"
	"github.com/Thermoquad/verter/pkg/gateway"
	"github.com/Thermoquad/verter/pkg/link"
	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/pid"
	"github.com/Thermoquad/verter/pkg/scope"
	"github.com/Thermoquad/verter/pkg/shared"
	"github.com/Thermoquad/verter/pkg/sim"
	"github.com/Thermoquad/verter/pkg/supervisor"
	"github.com/Thermoquad/verter/pkg/telemetry"
)

// Device is a fully wired controller
type Device struct {
	cfg *config.Config

	plant   *sim.Plant
	led     *sim.LED
	capture *scope.Scope
	board   *telemetry.Board
	loop    *control.Loop
	sup     *supervisor.Supervisor
	store   *objects.Store
	link    *link.Server
}

// New builds a device from cfg
func New(cfg *config.Config) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sub, _ := cfg.SubMode()
	period, _ := cfg.ControlPeriod()
	supPeriod, _ := cfg.SupervisorPeriod()
	liveInterval, _ := cfg.LiveInterval()
	ts := period.Seconds()

	cc := cfg.Control
	ccfg := control.Config{
		Period:           period,
		SubMode:          sub,
		NominalFrequency: cc.NominalFrequency,
		MaxCurrent:       cc.MaxCurrent,
		CurrentOffset1:   cc.CurrentOffset1,
		CurrentOffset2:   cc.CurrentOffset2,
		BusFilterTau:     cc.BusFilterTau,
		VqFilterTau:      cc.VqFilterTau,
		BoostTarget:      cfg.Boost.Target,
		DeadTimeRiseNs:   cfg.Boost.DeadTimeRiseNs,
		DeadTimeFallNs:   cfg.Boost.DeadTimeFallNs,
		FormingRampRate:  cc.FormingRampRate,
		OffsetRampRate:   cc.OffsetRampRate,
		AcquireWindow:    cc.AcquireWindow,
		LossWindow:       cc.LossWindow,
		EnergizeDelay:    cc.EnergizeDelay,
		Decimation:       cfg.Scope.Decimation,
	}

	plantCfg := cfg.Sim.Plant
	plantCfg.Period = ts
	d := &Device{
		cfg:   cfg,
		plant: sim.NewPlant(plantCfg),
		led:   &sim.LED{},
	}

	lawCfg := cfg.Sim.Law
	lawCfg.Period = ts
	lawCfg.Nominal = ccfg.Omega0()
	lawCfg.SubMode = sub
	law, err := sim.NewLaw(lawCfg)
	if err != nil {
		return nil, err
	}

	boostParams := cfg.Boost.PI
	boostParams.Ts = ts
	boost, err := pid.New(boostParams)
	if err != nil {
		return nil, fmt.Errorf("boost regulator: %w", err)
	}

	gw, sh, lh := shared.New()
	board, sink, live := telemetry.NewBoard()
	d.board = board

	d.capture, err = scope.New(cfg.Scope.Length, cfg.Scope.Delay)
	if err != nil {
		return nil, err
	}
	d.capture.SetTrigger(lh.Trigger)

	hw := control.Hardware{Sensors: d.plant, Power: d.plant, LED: d.led}
	d.loop, err = control.New(ccfg, hw, law, boost, lh, sink)
	if err != nil {
		return nil, err
	}
	d.loop.AttachCapture(d.capture)

	refs := cfg.References
	bounds := shared.Bounds{
		VdqMin: frame.DQ{D: refs.VdqMin.D, Q: refs.VdqMin.Q},
		VdqMax: frame.DQ{D: refs.VdqMax.D, Q: refs.VdqMax.Q},
		IdqMin: frame.DQ{D: refs.IdqMin.D, Q: refs.IdqMin.Q},
		IdqMax: frame.DQ{D: refs.IdqMax.D, Q: refs.IdqMax.Q},
	}
	d.store = objects.NewStore(board, gateway.New(gw, bounds, sub, d.capture))
	d.link = link.NewServer(link.Config{Address: cfg.Link.Address, LiveInterval: liveInterval}, d.store)

	var out io.Writer = d.link.RecordWriter()
	if cfg.Scope.CaptureDir != "" {
		out = io.MultiWriter(out, &recordFiles{dir: cfg.Scope.CaptureDir})
	}
	d.sup, err = supervisor.New(supervisor.Config{
		Period:            supPeriod,
		SubMode:           sub,
		StartupThreshold:  cc.StartupThreshold,
		VgridAmplitudeRef: cc.VgridAmplitude,
	}, sh, board, live, d.led, d.capture, out)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Link returns the protocol server, for attaching extra connections
func (d *Device) Link() *link.Server { return d.link }

// Plant returns the simulated power shield
func (d *Device) Plant() *sim.Plant { return d.plant }

// Board returns the telemetry board
func (d *Device) Board() *telemetry.Board { return d.board }

// LED returns the status indicator
func (d *Device) LED() *sim.LED { return d.led }

// Run runs every context of the device, plus the configured transports and
// fault schedule, until ctx is cancelled or one of them fails.
func (d *Device) Run(ctx context.Context) error {
	if d.cfg.Control.LockMemory {
		if err := rtprio.LockMemory(); err != nil {
			logger.Warn("running with unlocked memory: %v", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(d.loop.Run(ctx, d.cfg.Control.Priority)) })
	g.Go(func() error { return ignoreCancel(d.sup.Run(ctx)) })
	g.Go(func() error { return ignoreCancel(d.link.Run(ctx)) })
	g.Go(func() error { return d.runFaults(ctx) })

	serve := func(ctx context.Context, conn transport.Connection) error {
		return d.link.Serve(ctx, conn)
	}

	if addr := d.cfg.Link.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle(d.cfg.Link.Path, transport.WebSocketHandler(ctx, d.cfg.Link.Username, d.cfg.Link.Password, serve))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("serving link on ws://%s%s", addr, d.cfg.Link.Path)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("link listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		})
	}

	if port := d.cfg.Link.SerialPort; port != "" {
		conn, err := transport.OpenSerial(port, d.cfg.Link.Baud)
		if err != nil {
			return err
		}
		logger.Info("serving link on %s @ %d baud", port, d.cfg.Link.Baud)
		g.Go(func() error { return transport.ServeUntilDone(ctx, conn, serve) })
	}

	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runFaults applies the scheduled plant disturbances
func (d *Device) runFaults(ctx context.Context) error {
	faults := append([]config.Fault(nil), d.cfg.Sim.Faults...)
	sort.SliceStable(faults, func(i, j int) bool {
		a, _ := faults[i].Delay()
		b, _ := faults[j].Delay()
		return a < b
	})

	start := time.Now()
	for _, f := range faults {
		delay, _ := f.Delay()
		timer := time.NewTimer(time.Until(start.Add(delay)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		d.applyFault(f)
	}
	return nil
}

func (d *Device) applyFault(f config.Fault) {
	switch f.Kind {
	case "overcurrent":
		logger.Info("sim: injecting overcurrent for %d ticks", f.Steps)
		d.plant.InjectOvercurrent(f.Steps)
	case "dropout":
		logger.Info("sim: dropping samples for %d ticks", f.Steps)
		d.plant.DropSamples(f.Steps)
	case "grid":
		logger.Info("sim: grid set to %.1f V / %.2f Hz", f.Amplitude, f.Frequency)
		d.plant.SetGrid(f.Amplitude, f.Frequency)
	}
}
