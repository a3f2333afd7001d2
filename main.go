// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Verter - supervisory control for a single-phase grid-tied inverter
//
// Runs the controller against a simulated power shield, and talks to a
// running controller over its serial or WebSocket link.

package main

import (
	"os"

	"github.com/Thermoquad/verter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
