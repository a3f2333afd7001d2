// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/verter/pkg/mode"
	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/wire"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	pingIntervalSeconds = 5 // Send ping requests every N seconds
	recordEnd           = "end record\n"
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	connMgr  *connectionManager
	connInfo string

	// Monitoring
	stats        *wire.Statistics
	log          eventLog
	lastLive     *liveData
	measurements map[int]interface{}
	command      map[int]interface{}
	uptime       uint64
	hasUptime    bool

	// Capture download
	captureDir string
	record     strings.Builder
	lastSeq    uint64
	recording  bool

	// Setpoint
	refInput   textinput.Model
	refItem    int
	editingRef bool

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
	lastPingTime   time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlDataMsg struct {
	packet           *wire.Packet
	decodeErr        error
	validationErrors []wire.ValidationError
}

type controlBatchMsg struct {
	messages []controlDataMsg
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo, captureDir string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "0.0"
	ti.CharLimit = 8
	ti.Width = 10

	return controlModel{
		connMgr:      connMgr,
		connInfo:     connInfo,
		stats:        wire.NewStatistics(),
		log:          newEventLog(100),
		measurements: map[int]interface{}{},
		command:      map[int]interface{}{},
		captureDir:   captureDir,
		refInput:     ti,
		refItem:      objects.ItemIdRef,
		width:        80,
		height:       24,
		lastPingTime: time.Now(),
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case controlTickMsg:
		m.stats.CalculateRates()
		if !m.connectionLost {
			m.send(wire.NewGetRequest(deviceAddress, objects.GroupMeasurements))
			if time.Since(m.lastPingTime) >= pingIntervalSeconds*time.Second {
				m.lastPingTime = time.Now()
				m.send(wire.NewPingRequest(deviceAddress))
			}
		}
		return m, controlTickCmd()

	case controlBatchMsg:
		for _, data := range msg.messages {
			m.processControlData(data)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.log.add("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.log.add("Reconnected", false)
	}

	if m.editingRef {
		var cmd tea.Cmd
		m.refInput, cmd = m.refInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editingRef {
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc", "tab":
			m.editingRef = false
			m.refInput.Blur()
			return m, nil
		case "enter":
			m.sendReference()
			m.editingRef = false
			m.refInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.refInput, cmd = m.refInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "p":
		m.update(objects.ItemMode, uint64(mode.Power))

	case "i":
		m.update(objects.ItemMode, uint64(mode.Idle))

	case "o":
		on, _ := wire.GetMapBool(m.command, objects.ItemInverterOn)
		m.update(objects.ItemInverterOn, !on)

	case "t":
		m.update(objects.ItemScopeTrigger, true)

	case "d":
		m.update(objects.ItemScopeDump, true)

	case "r":
		if m.refItem == objects.ItemIdRef {
			m.refItem = objects.ItemVdRef
		} else {
			m.refItem = objects.ItemIdRef
		}

	case "tab":
		m.editingRef = true
		return m, m.refInput.Focus()
	}

	return m, nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newStyles()
	width := m.width - 4
	var s strings.Builder

	s.WriteString(st.title.Render("VERTER CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = st.warning.Render("RECONNECTING...")
	}
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | 0x%016X | q=quit", connStatus, deviceAddress)))
	s.WriteString("\n")
	if m.hasUptime {
		s.WriteString(fmt.Sprintf(" %s %s", st.label.Render("Uptime:"), st.value.Render(wire.FormatDuration(m.uptime))))
	}
	s.WriteString("\n\n")

	half := width/2 - 1
	left := m.renderControlPanel(st, half)
	right := m.renderMeasurements(st, width-half-1)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right))
	s.WriteString("\n")

	s.WriteString(renderLive(m.lastLive, st, width))
	s.WriteString("\n")
	s.WriteString(renderStatistics(m.stats, st, width))
	s.WriteString("\n")

	s.WriteString(st.label.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(m.log.render(st, max(m.height-34, 4), width))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(st styles, width int) string {
	var s strings.Builder
	s.WriteString(st.label.Render("CONTROL"))
	s.WriteString("\n")

	current := "unknown"
	if md, ok := m.lastLive.mode(); ok {
		current = md.String()
	}
	modeStyle := st.value
	if current == mode.Error.String() {
		modeStyle = st.err
	}
	s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Mode:"), modeStyle.Render(current)))

	for _, id := range []int{objects.ItemMode, objects.ItemInverterOn, objects.ItemVdRef, objects.ItemIdRef} {
		it, _ := objects.ByID(id)
		text := "-"
		if v, ok := m.command[id]; ok {
			text = it.Format(v)
		}
		s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render(fmt.Sprintf("%-12s", it.Name)), st.value.Render(text)))
	}
	if m.recording {
		s.WriteString(st.warning.Render(fmt.Sprintf("downloading capture (%d bytes)", m.record.Len())))
		s.WriteString("\n")
	}

	ref, _ := objects.ByID(m.refItem)
	s.WriteString("\n")
	s.WriteString(st.label.Render(ref.Name + ": "))
	s.WriteString(m.refInput.View())
	s.WriteString("\n")
	s.WriteString(st.header.Render("p/i power/idle  o inverter  tab setpoint  r Id/Vd  t trig  d dump"))

	return st.box.Width(width).Render(s.String())
}

func (m controlModel) renderMeasurements(st styles, width int) string {
	var s strings.Builder
	s.WriteString(st.label.Render("MEASUREMENTS"))
	s.WriteString("\n")
	if len(m.measurements) == 0 {
		s.WriteString(st.header.Render("(no data yet)"))
		return st.box.Width(width).Render(s.String())
	}
	for _, it := range objects.Items() {
		v, ok := m.measurements[it.ID]
		if !ok {
			continue
		}
		s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render(fmt.Sprintf("%-12s", it.Name)), st.value.Render(it.Format(v))))
	}
	return st.box.Width(width).Render(strings.TrimRight(s.String(), "\n"))
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processControlData(msg controlDataMsg) {
	if msg.decodeErr != nil {
		m.stats.Update(nil, msg.decodeErr, nil)
		m.log.add(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		return
	}

	packet := msg.packet
	m.stats.Update(packet, nil, msg.validationErrors)
	if len(msg.validationErrors) > 0 {
		msgType := wire.FormatMessageType(packet.Type())
		for _, err := range msg.validationErrors {
			m.log.add(fmt.Sprintf("%s: %s", msgType, err.Message), true)
		}
		return
	}
	if !fromTarget(packet, deviceAddress) {
		return
	}

	payload := packet.PayloadMap()
	switch packet.Type() {
	case wire.MsgLiveReport:
		prev, hadPrev := m.lastLive.mode()
		m.lastLive = &liveData{timestamp: packet.Timestamp(), address: packet.Address(), values: payload}
		if cur, ok := m.lastLive.mode(); ok && (!hadPrev || cur != prev) {
			m.log.add(fmt.Sprintf("Mode %s", cur), cur == mode.Error)
		}

	case wire.MsgGetResponse:
		for id, v := range payload {
			switch id >> 8 {
			case objects.GroupMeasValues:
				m.measurements[id] = v
			case objects.GroupCommand:
				m.command[id] = v
			}
		}

	case wire.MsgUpdateResponse:
		for id, v := range payload {
			m.command[id] = v
		}

	case wire.MsgPingResponse:
		if uptime, ok := wire.GetMapUint(payload, 0); ok {
			m.uptime = uptime
			m.hasUptime = true
		}

	case wire.MsgRecordData:
		m.handleRecordData(payload)

	case wire.MsgError:
		m.log.add(strings.TrimSpace(wire.FormatPayloadMap(wire.MsgError, payload, objects.Names{})), true)
	}
}

// handleRecordData reassembles a capture download and saves it once the
// trailer line arrives
func (m *controlModel) handleRecordData(payload map[int]interface{}) {
	seq, _ := wire.GetMapUint(payload, 0)
	text, ok := wire.GetMapString(payload, 1)
	if !ok {
		return
	}
	if m.recording && seq != m.lastSeq+1 {
		m.log.add(fmt.Sprintf("Capture record gap: %d after %d", seq, m.lastSeq), true)
	}
	m.lastSeq = seq
	m.recording = true
	m.record.WriteString(text)

	if !strings.HasSuffix(m.record.String(), recordEnd) {
		return
	}
	m.recording = false
	data := m.record.String()
	m.record.Reset()

	name := filepath.Join(m.captureDir, "capture-"+time.Now().Format("20060102-150405")+".txt")
	if err := os.WriteFile(name, []byte(data), 0o644); err != nil {
		m.log.add(fmt.Sprintf("Capture not saved: %v", err), true)
		return
	}
	m.log.add(fmt.Sprintf("Capture saved to %s (%d lines)", name, strings.Count(data, "\n")), false)
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) send(p *wire.Packet) {
	if err := m.connMgr.send(p); err != nil {
		m.log.add(fmt.Sprintf("Send failed: %v", err), true)
	}
}

// update writes one command item
func (m *controlModel) update(id int, value interface{}) {
	if m.connectionLost {
		m.log.add("Cannot send command: connection lost", true)
		return
	}
	it, _ := objects.ByID(id)
	m.send(wire.NewUpdateRequest(deviceAddress, map[int]interface{}{id: value}))
	m.log.add(fmt.Sprintf("Set %s = %s", it.Name, it.Format(value)), false)
}

func (m *controlModel) sendReference() {
	it, _ := objects.ByID(m.refItem)
	v, err := it.Parse(strings.TrimSpace(m.refInput.Value()))
	if err != nil {
		m.log.add(fmt.Sprintf("Invalid setpoint: %v", err), true)
		return
	}
	m.update(m.refItem, v)
	m.refInput.SetValue("")
}
