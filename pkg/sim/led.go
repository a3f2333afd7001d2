// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import "sync/atomic"

// LED is a simulated status LED, safe for concurrent use
type LED struct {
	lit     atomic.Bool
	toggles atomic.Uint64
}

// On lights the LED
func (l *LED) On() { l.lit.Store(true) }

// Off switches the LED off
func (l *LED) Off() { l.lit.Store(false) }

// Toggle inverts the LED
func (l *LED) Toggle() {
	for {
		v := l.lit.Load()
		if l.lit.CompareAndSwap(v, !v) {
			l.toggles.Add(1)
			return
		}
	}
}

// Lit reports the LED state
func (l *LED) Lit() bool { return l.lit.Load() }

// Toggles returns how many times the LED blinked
func (l *LED) Toggles() uint64 { return l.toggles.Load() }
