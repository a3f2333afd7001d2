// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/wire"
)

var (
	discoveryWindow int
	discoveryRouter bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover controllers via serial or WebSocket",
	Long: `Send a PING_REQUEST to every controller on the link and list the ones
that answer, with their uptime and operating mode.

Modes:
  Broadcast (default): ping address 0, every controller answers.
  Router (--router):   ping the stateless address, for links behind a router
                       that only forwards stateless traffic.

Examples:
  verter discovery --port /dev/ttyUSB0
  verter discovery --url ws://bench.local:8080/ws

Exit codes:
  0 - Discovery successful (at least one controller found)
  1 - No controller answered
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryWindow, "window", 2, "Seconds to collect answers")
	discoveryCmd.Flags().BoolVar(&discoveryRouter, "router", false, "Use router mode (stateless address)")
}

type discoveredDevice struct {
	address uint64
	uptime  uint64
	mode    string
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	var address uint64 = wire.AddressBroadcast
	if discoveryRouter {
		address = wire.AddressStateless
	}

	fmt.Printf("Verter - Controller Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Window: %d seconds\n\n", discoveryWindow)

	frame, err := wire.Encode(wire.NewPingRequest(address))
	if err != nil {
		return err
	}
	fmt.Printf("Sending PING_REQUEST (address=0x%016X)...\n", address)
	if _, err := conn.Write(frame); err != nil {
		fmt.Printf("SEND FAILED: %v\n", err)
		os.Exit(2)
	}

	events := readEvents(ctx, conn)
	found := map[uint64]*discoveredDevice{}
	window, cancel := context.WithTimeout(ctx, time.Duration(discoveryWindow)*time.Second)
	defer cancel()

collect:
	for {
		select {
		case <-window.Done():
			break collect
		case ev, ok := <-events:
			if !ok {
				break collect
			}
			if ev.readErr != nil {
				fmt.Printf("READ FAILED: %v\n", ev.readErr)
				os.Exit(2)
			}
			if ev.packet == nil || ev.packet.Type() != wire.MsgPingResponse {
				continue
			}
			addr := ev.packet.Address()
			if _, seen := found[addr]; seen {
				continue
			}
			uptime, _ := wire.GetMapUint(ev.packet.PayloadMap(), 0)
			found[addr] = &discoveredDevice{address: addr, uptime: uptime}
			fmt.Printf("  answer from 0x%016X\n", addr)
		}
	}

	devices := make([]*discoveredDevice, 0, len(found))
	for _, d := range found {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].address < devices[j].address })

	for _, d := range devices {
		d.mode = "unknown"
		reqCtx, cancel := withTimeout(ctx)
		reply, err := transact(reqCtx, conn, events, wire.NewGetRequest(d.address, objects.GroupLive), wire.MsgGetResponse)
		cancel()
		if err == nil {
			if m, ok := wire.GetMapUint(reply.PayloadMap(), objects.ItemLiveMode); ok {
				d.mode = mode.Mode(m).String()
			}
		}
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Controllers found: %d\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  0x%016X  mode=%-8s uptime=%s\n", d.address, d.mode, wire.FormatDuration(d.uptime))
	}

	if len(devices) == 0 {
		fmt.Printf("No controllers answered. Check connection and device power.\n")
		os.Exit(1)
	}
	return nil
}
