// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the device configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/pid"
	"github.com/Thermoquad/verter/pkg/sim"
)

// Config is the complete device configuration
type Config struct {
	Control    ControlConfig    `yaml:"control"`
	References ReferencesConfig `yaml:"references"`
	Boost      BoostConfig      `yaml:"boost"`
	Scope      ScopeConfig      `yaml:"scope"`
	Link       LinkConfig       `yaml:"link"`
	Sim        SimConfig        `yaml:"sim"`
}

// ControlConfig covers the control loop and the supervisor
type ControlConfig struct {
	SubMode          string  `yaml:"sub_mode"`          // forming or following
	Period           string  `yaml:"period"`            // control loop, e.g. "100us"
	SupervisorPeriod string  `yaml:"supervisor_period"` // e.g. "100ms"
	NominalFrequency float64 `yaml:"nominal_frequency"` // Hz
	MaxCurrent       float64 `yaml:"max_current"`       // A
	CurrentOffset1   float64 `yaml:"current_offset1"`   // A
	CurrentOffset2   float64 `yaml:"current_offset2"`   // A
	BusFilterTau     float64 `yaml:"bus_filter_tau"`    // s
	VqFilterTau      float64 `yaml:"vq_filter_tau"`     // s
	FormingRampRate  float64 `yaml:"forming_ramp_rate"` // duty/s
	OffsetRampRate   float64 `yaml:"offset_ramp_rate"`  // duty/s
	AcquireWindow    int     `yaml:"acquire_window"`    // ticks
	LossWindow       int     `yaml:"loss_window"`       // ticks
	EnergizeDelay    int     `yaml:"energize_delay"`    // ticks
	StartupThreshold float64 `yaml:"startup_threshold"` // V
	VgridAmplitude   float64 `yaml:"vgrid_amplitude"`   // V, reported reference
	Priority         int     `yaml:"priority"`          // SCHED_FIFO priority, 0 disables
	LockMemory       bool    `yaml:"lock_memory"`
}

// DQ is a two-axis bound
type DQ struct {
	D float64 `yaml:"d"`
	Q float64 `yaml:"q"`
}

// ReferencesConfig holds the operator reference bands
type ReferencesConfig struct {
	VdqMin DQ `yaml:"vdq_min"`
	VdqMax DQ `yaml:"vdq_max"`
	IdqMin DQ `yaml:"idq_min"`
	IdqMax DQ `yaml:"idq_max"`
}

// BoostConfig covers the boost pre-regulator
type BoostConfig struct {
	Target         float64    `yaml:"target"` // V on the filtered bus
	DeadTimeRiseNs uint16     `yaml:"dead_time_rise_ns"`
	DeadTimeFallNs uint16     `yaml:"dead_time_fall_ns"`
	PI             pid.Params `yaml:"pi"`
}

// ScopeConfig covers the capture buffer
type ScopeConfig struct {
	Length     int     `yaml:"length"`      // samples per channel
	Delay      float64 `yaml:"delay"`       // pre-trigger fraction
	Decimation int     `yaml:"decimation"`  // one sample every N ticks
	CaptureDir string  `yaml:"capture_dir"` // also save downloads here when set
}

// LinkConfig covers the protocol link
type LinkConfig struct {
	Address      uint64 `yaml:"address"`
	LiveInterval string `yaml:"live_interval"` // "0s" disables live reports
	Listen       string `yaml:"listen"`        // WebSocket listen address, empty disables
	Path         string `yaml:"path"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	SerialPort   string `yaml:"serial_port"` // empty disables
	Baud         int    `yaml:"baud"`
}

// Fault is a scheduled disturbance applied to the simulated plant
type Fault struct {
	After     string  `yaml:"after"` // delay from start
	Kind      string  `yaml:"kind"`  // overcurrent, dropout or grid
	Steps     int     `yaml:"steps"` // overcurrent and dropout duration in ticks
	Amplitude float64 `yaml:"amplitude"`
	Frequency float64 `yaml:"frequency"`
}

// SimConfig covers the simulated power shield
type SimConfig struct {
	Plant  sim.PlantConfig `yaml:"plant"`
	Law    sim.LawConfig   `yaml:"law"`
	Faults []Fault         `yaml:"faults"`
}

// Default returns the configuration of the reference hardware
func Default() *Config {
	return &Config{
		Control: ControlConfig{
			SubMode:          mode.Following.String(),
			Period:           "100us",
			SupervisorPeriod: "100ms",
			NominalFrequency: 50,
			MaxCurrent:       8,
			CurrentOffset1:   0.25,
			CurrentOffset2:   0.25,
			BusFilterTau:     0.1,
			VqFilterTau:      1,
			FormingRampRate:  50,
			OffsetRampRate:   1,
			AcquireWindow:    2000,
			LossWindow:       200,
			EnergizeDelay:    2000,
			StartupThreshold: 0,
			VgridAmplitude:   20,
		},
		References: ReferencesConfig{
			VdqMin: DQ{D: -0.1, Q: -0.1},
			VdqMax: DQ{D: 30, Q: 30},
			IdqMin: DQ{D: -0.1, Q: -0.1},
			IdqMax: DQ{D: 8, Q: 1},
		},
		Boost: BoostConfig{
			Target:         33,
			DeadTimeRiseNs: 100,
			DeadTimeFallNs: 100,
			PI:             pid.Params{Kp: 0.000215, Ti: 7.5175e-5, Min: 0, Max: 1},
		},
		Scope: ScopeConfig{
			Length:     1024,
			Delay:      0.5,
			Decimation: 1,
		},
		Link: LinkConfig{
			Address:      0x0000000000000001,
			LiveInterval: "1s",
			Listen:       ":8080",
			Path:         "/ws",
			Baud:         115200,
		},
		Sim: SimConfig{
			Plant: sim.DefaultPlantConfig(),
			Law:   sim.DefaultLawConfig(),
		},
	}
}

// Load reads a YAML config. Keys missing from the file keep their default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyDefaults restores defaults for keys present in the file but empty
func applyDefaults(c *Config) {
	d := Default()
	if c.Control.SubMode == "" {
		c.Control.SubMode = d.Control.SubMode
	}
	if c.Control.Period == "" {
		c.Control.Period = d.Control.Period
	}
	if c.Control.SupervisorPeriod == "" {
		c.Control.SupervisorPeriod = d.Control.SupervisorPeriod
	}
	if c.Link.LiveInterval == "" {
		c.Link.LiveInterval = d.Link.LiveInterval
	}
	if c.Link.Path == "" {
		c.Link.Path = d.Link.Path
	}
	if c.Link.Baud == 0 {
		c.Link.Baud = d.Link.Baud
	}
	if c.Scope.Decimation == 0 {
		c.Scope.Decimation = d.Scope.Decimation
	}
}

// Validate checks the fields that are parsed rather than copied
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.SubMode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ControlPeriod(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SupervisorPeriod(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LiveInterval(); err != nil {
		errs = append(errs, err)
	}
	for i, f := range c.Sim.Faults {
		if _, err := f.Delay(); err != nil {
			errs = append(errs, fmt.Errorf("sim fault %d: %w", i, err))
		}
		switch f.Kind {
		case "overcurrent", "dropout", "grid":
		default:
			errs = append(errs, fmt.Errorf("sim fault %d: unknown kind %q", i, f.Kind))
		}
	}
	return errors.Join(errs...)
}

// SubMode returns the parsed inverter sub-mode
func (c *Config) SubMode() (mode.SubMode, error) {
	return mode.ParseSubMode(c.Control.SubMode)
}

// ControlPeriod returns the control loop period
func (c *Config) ControlPeriod() (time.Duration, error) {
	return positiveDuration("control.period", c.Control.Period)
}

// SupervisorPeriod returns the supervisor period
func (c *Config) SupervisorPeriod() (time.Duration, error) {
	return positiveDuration("control.supervisor_period", c.Control.SupervisorPeriod)
}

// LiveInterval returns the live report interval, zero when disabled
func (c *Config) LiveInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Link.LiveInterval)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("link.live_interval: invalid duration %q", c.Link.LiveInterval)
	}
	return d, nil
}

// Delay returns the time from start at which the fault is applied
func (f Fault) Delay() (time.Duration, error) {
	d, err := time.ParseDuration(f.After)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("after: invalid duration %q", f.After)
	}
	return d, nil
}

func positiveDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, s)
	}
	return d, nil
}
