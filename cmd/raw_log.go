// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/verter/internal/logger"
	"github.com/Thermoquad/verter/internal/transport"
	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/wire"
)

var rawLogStats bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display link packets as they arrive.

Each packet is shown with timestamp, address, message type and its items by
name. Live reports and capture records from a running controller appear
here as they are published.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogStats, "stats", false, "Print packet statistics on exit")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Verter - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := wire.NewStatistics()
	defer func() {
		if rawLogStats {
			fmt.Print("\n" + stats.String())
		}
	}()

	// closing the connection releases the blocked reader
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for ev := range readEvents(ctx, conn) {
		switch {
		case ev.readErr != nil:
			if ctx.Err() != nil || errors.Is(ev.readErr, io.EOF) || errors.Is(ev.readErr, transport.ErrConnectionClosed) {
				logger.Info("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", ev.readErr)
		case ev.decodeErr != nil:
			stats.Update(nil, ev.decodeErr, nil)
			fmt.Printf("[ERROR] %v\n", ev.decodeErr)
		default:
			stats.Update(ev.packet, nil, wire.ValidatePacket(ev.packet))
			fmt.Print(wire.FormatPacketWith(ev.packet, objects.Names{}))
		}
	}
	return nil
}
