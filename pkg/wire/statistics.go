// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// Statistics counts link traffic by outcome
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	TotalPackets     uint64
	ValidPackets     uint64
	CRCErrors        uint64
	DecodeErrors     uint64 // framing errors and undecodable bodies
	MalformedPackets uint64 // missing fields or wrong types
	MissingFields    uint64
	WrongTypes       uint64
	AnomalousValues  uint64
	NonFinite        uint64
	UnknownMessages  uint64
	DeviceErrors     uint64 // valid MsgError replies

	// ByType counts valid packets per message type
	ByType map[uint8]uint64

	PacketRate float64 // packets/sec, see CalculateRates
	ErrorRate  float64 // errors/sec
}

// NewStatistics starts counting now
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByType:         map[uint8]uint64{},
	}
}

// Update records one decoder result: a decode error, or a packet with the
// anomalies ValidatePacket found in it
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	switch {
	case decodeErr != nil && errors.Is(decodeErr, ErrCRCMismatch):
		s.CRCErrors++
		return
	case decodeErr != nil:
		s.DecodeErrors++
		return
	case len(validationErrors) == 0:
		s.ValidPackets++
		if packet != nil {
			s.ByType[packet.Type()]++
			if packet.Type() == MsgError {
				s.DeviceErrors++
			}
		}
		return
	}

	for _, err := range validationErrors {
		s.count(err.Type)
	}
}

func (s *Statistics) count(t AnomalyType) {
	switch t {
	case AnomalyMissingField:
		s.MissingFields++
		s.MalformedPackets++
	case AnomalyWrongType:
		s.WrongTypes++
		s.MalformedPackets++
	case AnomalyDecodeError:
		s.DecodeErrors++
	case AnomalyNonFinite:
		s.NonFinite++
		s.AnomalousValues++
	case AnomalyInvalidValue:
		s.AnomalousValues++
	case AnomalyUnknownMessage:
		s.UnknownMessages++
	}
}

// Errors is the sum of every error counter
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.DecodeErrors + s.MalformedPackets + s.AnomalousValues + s.UnknownMessages
}

// CalculateRates refreshes PacketRate and ErrorRate over the whole run
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		return
	}
	s.PacketRate = float64(s.TotalPackets) / elapsed
	s.ErrorRate = float64(s.Errors()) / elapsed
}

func (s *Statistics) percent(n uint64) float64 {
	if s.TotalPackets == 0 {
		return 0
	}
	return float64(n) * 100 / float64(s.TotalPackets)
}

// String returns a multi-line summary; zero error counters are omitted
func (s *Statistics) String() string {
	s.CalculateRates()

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())

	w := tabwriter.NewWriter(&b, 0, 0, 1, ' ', tabwriter.AlignRight)
	row := func(label string, n uint64, always bool) {
		if n > 0 || always {
			fmt.Fprintf(w, "%s\t%d\t (%.1f%%)\t\n", label, n, s.percent(n))
		}
	}
	row("Total Packets:", s.TotalPackets, true)
	row("Valid Packets:", s.ValidPackets, true)
	row("CRC Errors:", s.CRCErrors, false)
	row("Decode Errors:", s.DecodeErrors, false)
	row("Malformed Pkts:", s.MalformedPackets, false)
	row("  Missing Fields:", s.MissingFields, false)
	row("  Wrong Types:", s.WrongTypes, false)
	row("Anomalous Values:", s.AnomalousValues, false)
	row("  Non-finite:", s.NonFinite, false)
	row("Unknown Msgs:", s.UnknownMessages, false)
	row("Device Errors:", s.DeviceErrors, false)
	w.Flush()

	if len(s.ByType) > 0 {
		types := make([]int, 0, len(s.ByType))
		for t := range s.ByType {
			types = append(types, int(t))
		}
		sort.Ints(types)
		b.WriteString("By type:\n")
		for _, t := range types {
			fmt.Fprintf(&b, "  %-16s %8d\n", FormatMessageType(uint8(t)), s.ByType[uint8(t)])
		}
	}

	fmt.Fprintf(&b, "Packet Rate: %.1f pkts/sec\n", s.PacketRate)
	fmt.Fprintf(&b, "Error Rate:  %.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}

// Reset clears every counter and restarts the clock
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
