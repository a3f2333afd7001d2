// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/verter/pkg/wire"
)

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send PING_REQUEST to the controller and report round trip times",
	Long: `Send PING_REQUEST packets to the controller and wait for PING_RESPONSE.

The response carries the controller uptime. This is useful for verifying:
  - the serial or WebSocket connection is established
  - HTTP Basic authentication works
  - the link dispatcher is answering requests

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Verter - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Address: 0x%016X\n", deviceAddress)
	fmt.Printf("Timeout: %d seconds per ping\n\n", requestTimeout)

	events := readEvents(ctx, conn)
	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		reqCtx, cancel := withTimeout(ctx)
		reply, err := transact(reqCtx, conn, events, wire.NewPingRequest(deviceAddress), wire.MsgPingResponse)
		cancel()
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			uptime, _ := wire.GetMapUint(reply.PayloadMap(), 0)
			fmt.Printf("PONG from 0x%016X, uptime=%s, rtt=%v\n",
				reply.Address(), wire.FormatDuration(uptime), time.Since(start).Round(time.Millisecond))
			successCount++
		}

		if ctx.Err() != nil {
			break
		}
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	sent := successCount + failCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		sent, successCount, float64(failCount)/float64(max(sent, 1))*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
