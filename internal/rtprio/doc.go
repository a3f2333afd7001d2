// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rtprio gives the control loop thread real-time scheduling and
// keeps the process resident.
package rtprio
