// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/verter/pkg/wire"
)

var (
	packetTestTimeout  int
	packetTestDuration int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid link packet",
	Long: `Wait for a valid link packet on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
packet, for example a live report. Invalid bytes are ignored until a complete
frame passes its CRC check.

With --duration the connection is instead watched for that many seconds and
packet counts are reported, which helps spot unstable links.

Exit codes:
  0 - Packet received before timeout (or link stable for --duration)
  1 - Timeout reached without receiving a valid packet
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "wait", 10, "Seconds to wait for a packet")
	packetTestCmd.Flags().IntVar(&packetTestDuration, "duration", 0, "Watch the link for this many seconds")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Verter - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)

	events := readEvents(ctx, conn)
	if packetTestDuration > 0 {
		return watchLink(ctx, events, time.Duration(packetTestDuration)*time.Second)
	}

	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid packet...\n\n")

	timeout := time.After(time.Duration(packetTestTimeout) * time.Second)
	invalid := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok || ev.readErr != nil {
				fmt.Fprintf(os.Stderr, "Read error: %v\n", ev.readErr)
				os.Exit(2)
			}
			if ev.decodeErr != nil {
				invalid++
				continue
			}
			packet := ev.packet
			if invalid > 0 {
				fmt.Printf("(skipped %d invalid frames before sync)\n", invalid)
			}
			fmt.Printf("SUCCESS: Received valid packet\n")
			fmt.Printf("  Type: %s (0x%02X)\n", wire.FormatMessageType(packet.Type()), packet.Type())
			fmt.Printf("  Address: 0x%016X\n", packet.Address())
			fmt.Printf("  Length: %d bytes\n", packet.Header().Length)
			fmt.Printf("  CRC: 0x%04X\n", packet.Header().CRC)
			return nil

		case <-timeout:
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
			os.Exit(1)

		case <-ctx.Done():
			return nil
		}
	}
}

// watchLink counts traffic for d and fails on the first read error
func watchLink(ctx context.Context, events <-chan linkEvent, d time.Duration) error {
	fmt.Printf("Duration: %v\n\n", d)

	start := time.Now()
	end := time.After(d)
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	stats := wire.NewStatistics()
	report := func(result string) {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Packets received: %d (%d valid)\n", stats.TotalPackets, stats.ValidPackets)
		fmt.Printf("Result: %s\n", result)
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok || ev.readErr != nil {
				fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), ev.readErr)
				report("FAILED (connection error)")
				os.Exit(1)
			}
			if ev.decodeErr != nil {
				stats.Update(nil, ev.decodeErr, nil)
			} else {
				stats.Update(ev.packet, nil, wire.ValidatePacket(ev.packet))
			}

		case <-heartbeat.C:
			fmt.Printf("[%s] Still connected... %d packets (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), stats.TotalPackets, (d - time.Since(start)).Seconds())

		case <-end:
			report("PASSED (connection stable)")
			return nil

		case <-ctx.Done():
			report("INTERRUPTED")
			return nil
		}
	}
}
