// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/wire"
)

var getCmd = &cobra.Command{
	Use:   "get <group|item>...",
	Short: "Read data objects from the controller",
	Long: `Read one or more groups or items from the controller.

Groups are given by name or id:
  measurements (0x10), debug (0x20), inverter (0x21), boost (0x22),
  command (0x30), live (0x40)

Items are given by name, for example rVdc_V or wIdRef. The whole group of the
item is requested and only the item is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	type query struct {
		group int
		item  *objects.Item
	}
	queries := make([]query, 0, len(args))
	for _, arg := range args {
		if it, ok := objects.Lookup(arg); ok {
			queries = append(queries, query{group: it.Group(), item: &it})
			continue
		}
		group, ok := objects.ParseGroup(arg)
		if !ok {
			return fmt.Errorf("unknown group or item %q", arg)
		}
		queries = append(queries, query{group: group})
	}

	ctx := cmd.Context()
	conn, _, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	events := readEvents(ctx, conn)

	for _, q := range queries {
		reqCtx, cancel := withTimeout(ctx)
		reply, err := transact(reqCtx, conn, events, wire.NewGetRequest(deviceAddress, uint16(q.group)), wire.MsgGetResponse)
		cancel()
		if err != nil {
			return err
		}

		values := reply.PayloadMap()
		if q.item != nil {
			v, ok := values[q.item.ID]
			if !ok {
				return fmt.Errorf("%s missing from reply", q.item.Name)
			}
			fmt.Printf("%s = %s\n", q.item.Name, q.item.Format(v))
			continue
		}

		name, _ := objects.GroupName(q.group)
		fmt.Printf("%s (0x%02X):\n", name, q.group)
		printItems(values)
	}
	return nil
}

// printItems lists values ordered by item id
func printItems(values map[int]interface{}) {
	ids := make([]int, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if it, ok := objects.ByID(id); ok {
			fmt.Printf("  %-14s %s\n", it.Name, it.Format(values[id]))
		} else {
			fmt.Printf("  0x%04X         %v\n", id, values[id])
		}
	}
}
