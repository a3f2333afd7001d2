// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/verter/internal/config"
	"github.com/Thermoquad/verter/internal/device"
	"github.com/Thermoquad/verter/internal/logger"
)

var (
	runConfigPath string
	runListen     string
	runServePort  string
	runServeBaud  int
	runSubMode    string
	runCaptureDir string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller against the simulated power shield",
	Long: `Run the inverter controller: the real-time control loop, the supervisor
and the link dispatcher, driving a simulated power shield.

The link protocol is served over WebSocket (--listen) and/or a serial port
(--serve-port). Settings come from the YAML file given with --config; the
flags below override it.

The process runs until interrupted. All converter legs are stopped on exit.`,
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "YAML configuration file")
	runCmd.Flags().StringVar(&runListen, "listen", "", "WebSocket listen address (e.g. :8080)")
	runCmd.Flags().StringVar(&runServePort, "serve-port", "", "Serial port to serve the link on")
	runCmd.Flags().IntVar(&runServeBaud, "serve-baud", 0, "Baud rate for --serve-port")
	runCmd.Flags().StringVar(&runSubMode, "sub-mode", "", "Operating sub-mode: forming or following")
	runCmd.Flags().StringVar(&runCaptureDir, "capture-dir", "", "Directory for downloaded captures")
}

func runDevice(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if runConfigPath != "" {
		var err error
		if cfg, err = config.Load(runConfigPath); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Link.Listen = runListen
	}
	if flags.Changed("serve-port") {
		cfg.Link.SerialPort = runServePort
	}
	if flags.Changed("serve-baud") {
		cfg.Link.Baud = runServeBaud
	}
	if flags.Changed("sub-mode") {
		cfg.Control.SubMode = runSubMode
	}
	if flags.Changed("capture-dir") {
		cfg.Scope.CaptureDir = runCaptureDir
	}

	d, err := device.New(cfg)
	if err != nil {
		return err
	}

	logger.Info("controller address 0x%016X, %s sub-mode", cfg.Link.Address, cfg.Control.SubMode)
	if err := d.Run(cmd.Context()); err != nil {
		return err
	}
	logger.Info("controller stopped")
	return nil
}
