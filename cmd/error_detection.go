// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/verter/internal/logger"
	"github.com/Thermoquad/verter/internal/transport"
	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/wire"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed packets and errors",
	Long: `Track packet errors, malformed data, and anomalous values with statistics.

This command validates each packet and detects:
  - CRC errors and framing failures
  - Malformed payloads (undecodable CBOR, missing fields, wrong types)
  - Anomalous values (NaN or infinite readings)
  - Error replies sent by the controller
  - Statistics and trends (packet rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid packets too.

Packets are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive, got %d", statsInterval)
	}
	ctx := cmd.Context()
	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(ctx, conn, connInfo)
	}
	return runTextMode(ctx, conn, connInfo)
}

// syncTracker ignores decode errors until the first valid packet
type syncTracker struct {
	synchronized bool
	invalid      int
}

// observe reports whether ev is the packet that acquired sync, and whether
// ev should be reported at all.
func (s *syncTracker) observe(ev linkEvent) (first, report bool) {
	if ev.packet == nil {
		if !s.synchronized {
			s.invalid++
			return false, false
		}
		return false, true
	}
	if !s.synchronized {
		s.synchronized = true
		return true, true
	}
	return false, true
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

// printDeviceError prints an error reply from the controller
func printDeviceError(packet *wire.Packet) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDEVICE ERROR:\033[0m from 0x%016X\n", timestamp, packet.Address())
	fmt.Print(wire.FormatPayloadMap(wire.MsgError, packet.PayloadMap(), objects.Names{}))
	fmt.Println()
}

// printValidationErrors prints validation errors for a packet
func printValidationErrors(packet *wire.Packet, errors []wire.ValidationError) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	msgType := wire.FormatMessageType(packet.Type())

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, msgType, packet.Type())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case wire.AnomalyMissingField, wire.AnomalyWrongType, wire.AnomalyDecodeError:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
		case wire.AnomalyNonFinite, wire.AnomalyInvalidValue:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
		if id, ok := err.Details["item"].(int); ok {
			if name, ok := (objects.Names{}).ItemName(id); ok {
				fmt.Printf("    item: %s (0x%04X)\n", name, id)
			}
		}
	}

	fmt.Printf("  >>> PACKET REJECTED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, conn transport.Connection, connInfo string) error {
	p := tea.NewProgram(initialModel(connInfo, showAll), tea.WithAltScreen(), tea.WithContext(ctx))

	// the TUI owns the terminal
	logger.SetOutput(io.Discard)

	go func() {
		var sync syncTracker
		for ev := range readEvents(ctx, conn) {
			if ev.readErr != nil {
				p.Send(linkClosedMsg{err: ev.readErr})
				return
			}
			first, report := sync.observe(ev)
			if first {
				p.Send(syncMsg{invalidFrames: sync.invalid})
			}
			if !report {
				continue
			}
			msg := linkDataMsg{packet: ev.packet, decodeErr: ev.decodeErr}
			if ev.packet != nil {
				msg.validationErrors = wire.ValidatePacket(ev.packet)
			}
			p.Send(msg)
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode prints errors and periodic statistics
func runTextMode(ctx context.Context, conn transport.Connection, connInfo string) error {
	fmt.Printf("Verter - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := wire.NewStatistics()
	var sync syncTracker

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	events := readEvents(ctx, conn)
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.readErr != nil {
				fmt.Print(stats.String())
				return fmt.Errorf("read error: %w", ev.readErr)
			}

			first, report := sync.observe(ev)
			if first {
				if sync.invalid > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid frames\n\n", sync.invalid)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}
			if !report {
				continue
			}

			if ev.decodeErr != nil {
				stats.Update(nil, ev.decodeErr, nil)
				printDecodeError(ev.decodeErr)
				continue
			}

			packet := ev.packet
			validationErrors := wire.ValidatePacket(packet)
			stats.Update(packet, nil, validationErrors)

			switch {
			case len(validationErrors) > 0:
				printValidationErrors(packet, validationErrors)
			case packet.Type() == wire.MsgError:
				printDeviceError(packet)
			case showAll:
				fmt.Print(wire.FormatPacketWith(packet, objects.Names{}))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
