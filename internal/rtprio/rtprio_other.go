//go:build !linux

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rtprio

// LockMemory is a no-op outside Linux
func LockMemory() error {
	return nil
}

// Elevate is a no-op outside Linux
func Elevate(priority int) error {
	_ = priority
	return nil
}
