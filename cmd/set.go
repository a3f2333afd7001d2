// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/wire"
)

var setCmd = &cobra.Command{
	Use:   "set <item=value>...",
	Short: "Write command objects on the controller",
	Long: `Write one or more command items in a single update. Either every item is
applied or none is.

Writable items:
  wMode=idle|power     request an operating mode
  wInverterOn=on|off   enable the inverter bridge
  wVdRef=<V>           voltage reference (forming)
  wIdRef=<A>           current reference (following)
  wDump=on             download the capture
  wTrig=on             fire the capture trigger

The controller answers with the command group as applied, after clamping.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
}

// parseAssignments turns name=value arguments into an update payload
func parseAssignments(args []string) (map[int]interface{}, error) {
	items := make(map[int]interface{}, len(args))
	for _, arg := range args {
		name, text, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected item=value, got %q", arg)
		}
		it, ok := objects.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown item %q", name)
		}
		if !it.Writable {
			return nil, fmt.Errorf("%s is read-only", it.Name)
		}
		v, err := it.Parse(text)
		if err != nil {
			return nil, err
		}
		items[it.ID] = v
	}
	return items, nil
}

func runSet(cmd *cobra.Command, args []string) error {
	items, err := parseAssignments(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	conn, _, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	events := readEvents(ctx, conn)

	reqCtx, cancel := withTimeout(ctx)
	defer cancel()
	reply, err := transact(reqCtx, conn, events, wire.NewUpdateRequest(deviceAddress, items), wire.MsgUpdateResponse)
	if err != nil {
		return err
	}

	fmt.Println("Applied:")
	printItems(reply.PayloadMap())
	return nil
}
