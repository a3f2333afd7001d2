// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logger is the single log output of verter, with a program prefix
// and quiet/verbose switches.
package logger

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var (
	quiet   atomic.Bool
	verbose atomic.Bool
	std     = log.New(os.Stderr, "verter: ", log.LstdFlags|log.Lmicroseconds)
)

// SetQuiet disables Info and Debug output. Warn and Error are always printed.
func SetQuiet(q bool) { quiet.Store(q) }

// SetVerbose enables Debug output
func SetVerbose(v bool) { verbose.Store(v) }

// SetOutput redirects every message, e.g. away from a running TUI
func SetOutput(w io.Writer) { std.SetOutput(w) }

// Debug prints only when verbose output is enabled
func Debug(format string, args ...interface{}) {
	if !verbose.Load() || quiet.Load() {
		return
	}
	std.Printf("debug: "+format, args...)
}

// Info prints unless quiet
func Info(format string, args ...interface{}) {
	if quiet.Load() {
		return
	}
	std.Printf(format, args...)
}

// Warn always prints
func Warn(format string, args ...interface{}) {
	std.Printf("warning: "+format, args...)
}

// Error always prints
func Error(format string, args ...interface{}) {
	std.Printf("error: "+format, args...)
}
