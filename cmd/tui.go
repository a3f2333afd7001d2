// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/wire"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// eventLog keeps the most recent entries
type eventLog struct {
	entries []errorLogEntry
	max     int
}

func newEventLog(size int) eventLog {
	return eventLog{entries: make([]errorLogEntry, 0, size), max: size}
}

func (l *eventLog) add(message string, isError bool) {
	l.entries = append(l.entries, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// render shows the last rows entries
func (l eventLog) render(st styles, rows, width int) string {
	var s strings.Builder
	if len(l.entries) == 0 {
		s.WriteString(st.header.Render("  (no events yet)"))
	}
	start := max(len(l.entries)-rows, 0)
	for _, entry := range l.entries[start:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			s.WriteString(fmt.Sprintf("%s %s\n", st.header.Render(timestamp), st.err.Render("✗ "+entry.message)))
		} else {
			s.WriteString(fmt.Sprintf("%s %s\n", st.header.Render(timestamp), st.warning.Render("ℹ "+entry.message)))
		}
	}
	return st.box.Width(width).Render(strings.TrimRight(s.String(), "\n"))
}

// liveData is the latest live report of one controller
type liveData struct {
	timestamp time.Time
	address   uint64
	values    map[int]interface{}
}

func (d *liveData) mode() (mode.Mode, bool) {
	if d == nil {
		return 0, false
	}
	v, ok := wire.GetMapUint(d.values, objects.ItemLiveMode)
	return mode.Mode(v), ok
}

// styles shared by the terminal UIs
type styles struct {
	title, header, label, value, err, warning, box lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}
}

// renderStatistics renders the packet counters
func renderStatistics(stats *wire.Statistics, st styles, width int) string {
	stats.CalculateRates()
	totalErrors := stats.Errors()
	var validPercent, errorPercent float64
	if stats.TotalPackets > 0 {
		validPercent = float64(stats.ValidPackets) * 100.0 / float64(stats.TotalPackets)
		errorPercent = float64(totalErrors) * 100.0 / float64(stats.TotalPackets)
	}

	var s strings.Builder
	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		st.label.Render("Total:"), st.value.Render(fmt.Sprintf("%d", stats.TotalPackets)),
		st.label.Render("Valid:"), st.value.Render(fmt.Sprintf("%d (%.1f%%)", stats.ValidPackets, validPercent)),
		st.label.Render("Errors:"), st.err.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if stats.CRCErrors > 0 || stats.DecodeErrors > 0 {
		s.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			st.label.Render("CRC Errors:"), st.err.Render(fmt.Sprintf("%d", stats.CRCErrors)),
			st.label.Render("Decode Errors:"), st.err.Render(fmt.Sprintf("%d", stats.DecodeErrors)),
		))
	}
	if stats.MalformedPackets > 0 {
		s.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d)\n",
			st.label.Render("Malformed:"), st.err.Render(fmt.Sprintf("%d", stats.MalformedPackets)),
			st.header.Render("missing fields"), stats.MissingFields,
			st.header.Render("wrong types"), stats.WrongTypes,
		))
	}
	if stats.AnomalousValues > 0 {
		s.WriteString(fmt.Sprintf("%s %s (%s: %d)\n",
			st.label.Render("Anomalous:"), st.warning.Render(fmt.Sprintf("%d", stats.AnomalousValues)),
			st.header.Render("non-finite"), stats.NonFinite,
		))
	}

	errorRate := st.value.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	if stats.ErrorRate > 0 {
		errorRate = st.err.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	}
	s.WriteString(fmt.Sprintf("%s %s   %s %s",
		st.label.Render("Packet Rate:"), st.value.Render(fmt.Sprintf("%.1f pkts/s", stats.PacketRate)),
		st.label.Render("Error Rate:"), errorRate,
	))

	return st.box.Width(width).Render(s.String())
}

// renderLive lays the live report out in two columns
func renderLive(live *liveData, st styles, width int) string {
	var s strings.Builder
	s.WriteString(st.label.Render("LIVE"))
	s.WriteString("\n")
	if live == nil {
		s.WriteString(st.header.Render("Waiting for live reports..."))
		return st.box.Width(width).Render(s.String())
	}

	ids := make([]int, 0, len(live.values))
	for id := range live.values {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	cells := make([]string, 0, len(ids))
	for _, id := range ids {
		name := fmt.Sprintf("0x%04X", id)
		text := fmt.Sprintf("%v", live.values[id])
		if it, ok := objects.ByID(id); ok {
			name = it.Name
			text = it.Format(live.values[id])
		}
		cells = append(cells, st.label.Render(fmt.Sprintf("%-14s", name))+" "+st.value.Render(text))
	}

	half := (len(cells) + 1) / 2
	for i := 0; i < half; i++ {
		left := cells[i]
		right := ""
		if i+half < len(cells) {
			right = cells[i+half]
		}
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(36).Render(left), right))
		s.WriteString("\n")
	}
	s.WriteString(st.header.Render(fmt.Sprintf("from 0x%016X at %s", live.address, live.timestamp.Format("15:04:05.000"))))
	return st.box.Width(width).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Error detection TUI
//////////////////////////////////////////////////////////////

// TUI model
type model struct {
	connInfo      string
	showAll       bool
	stats         *wire.Statistics
	log           eventLog
	synchronized  bool
	invalidFrames int
	width         int
	height        int
	quitting      bool
	lastLive      *liveData
}

// Messages
type tickMsg time.Time

type linkDataMsg struct {
	packet           *wire.Packet
	decodeErr        error
	validationErrors []wire.ValidationError
}

type syncMsg struct {
	invalidFrames int
}

type linkClosedMsg struct {
	err error
}

func initialModel(connInfo string, showAll bool) model {
	return model{
		connInfo: connInfo,
		showAll:  showAll,
		stats:    wire.NewStatistics(),
		log:      newEventLog(100),
		width:    80,
		height:   24,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidFrames = msg.invalidFrames
		if msg.invalidFrames > 0 {
			m.log.add(fmt.Sprintf("Synchronized after skipping %d invalid frames", msg.invalidFrames), false)
		} else {
			m.log.add("Synchronized", false)
		}

	case linkClosedMsg:
		m.log.add(fmt.Sprintf("Connection closed: %v", msg.err), true)

	case linkDataMsg:
		if msg.decodeErr != nil {
			m.stats.Update(nil, msg.decodeErr, nil)
			m.log.add(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
			break
		}

		m.stats.Update(msg.packet, nil, msg.validationErrors)
		msgType := wire.FormatMessageType(msg.packet.Type())
		switch {
		case len(msg.validationErrors) > 0:
			for _, err := range msg.validationErrors {
				m.log.add(fmt.Sprintf("%s: %s", msgType, err.Message), true)
			}
		case msg.packet.Type() == wire.MsgLiveReport:
			m.lastLive = &liveData{
				timestamp: msg.packet.Timestamp(),
				address:   msg.packet.Address(),
				values:    msg.packet.PayloadMap(),
			}
		case msg.packet.Type() == wire.MsgError:
			m.log.add(strings.TrimSpace(wire.FormatPayloadMap(wire.MsgError, msg.packet.PayloadMap(), objects.Names{})), true)
		case m.showAll:
			m.log.add(fmt.Sprintf("%s (valid)", msgType), false)
		}
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newStyles()
	var s strings.Builder

	filter := "Errors only"
	if m.showAll {
		filter = "All packets"
	}
	s.WriteString(st.title.Render("VERTER - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit", m.connInfo, filter)))
	s.WriteString("\n\n")

	if !m.synchronized {
		s.WriteString(st.warning.Render("⏳ Waiting for synchronization..."))
	} else {
		s.WriteString(st.value.Render("✓ Synchronized"))
		if m.invalidFrames > 0 {
			s.WriteString(st.header.Render(fmt.Sprintf(" (skipped %d invalid frames)", m.invalidFrames)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(renderStatistics(m.stats, st, m.width-4))
	s.WriteString("\n\n")

	if m.lastLive != nil {
		s.WriteString(renderLive(m.lastLive, st, m.width-4))
		s.WriteString("\n\n")
	}

	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(m.log.render(st, max(m.height-28, 5), m.width-4))

	return s.String()
}
