// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/verter/internal/logger"
	"github.com/Thermoquad/verter/internal/transport"
	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/wire"
)

var controlCaptureDir string

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for driving a controller",
	Long: `Monitor and drive a controller via an interactive terminal UI.

Features:
  - Live report display (mode, grid frequency, dq power, references)
  - Measurements polled once per second
  - Mode requests, inverter enable, reference setpoints
  - Capture trigger and download, with the record saved to disk
  - Packet statistics and an event log
  - Automatic reconnection on connection loss

Keys:
  p / i      request POWER / IDLE
  o          toggle the inverter bridge
  tab        edit the reference setpoint, enter sends it
  r          switch the setpoint between wIdRef and wVdRef
  t / d      fire the capture trigger / download the capture
  q          quit

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().StringVar(&controlCaptureDir, "capture-dir", ".", "Directory for downloaded captures")
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	ctx      context.Context
	conn     transport.Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
}

func (cm *connectionManager) getConn() transport.Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn transport.Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// send encodes and writes one packet on the current connection
func (cm *connectionManager) send(p *wire.Packet) error {
	frame, err := wire.Encode(p)
	if err != nil {
		return err
	}
	conn := cm.getConn()
	if conn == nil {
		return transport.ErrConnectionClosed
	}
	_, err = conn.Write(frame)
	return err
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}

	cm := &connectionManager{
		ctx:      ctx,
		conn:     conn,
		connInfo: connInfo,
	}

	m := initialControlModel(cm, connInfo, controlCaptureDir)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	cm.p = p

	// the TUI owns the terminal
	logger.SetOutput(io.Discard)

	go cm.readerLoop()
	cm.sendGreeting()

	_, err = p.Run()
	cancel()
	if c := cm.getConn(); c != nil {
		c.Close()
	}
	if err != nil && cmd.Context().Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// readerLoop handles reading from connection with automatic reconnection
func (cm *connectionManager) readerLoop() {
	for {
		cm.readFromConnection()
		if cm.ctx.Err() != nil {
			return
		}

		cm.p.Send(connectionLostMsg{})
		if !cm.reconnect() {
			return
		}
	}
}

// readFromConnection forwards packets to the TUI in batches until the
// connection fails or the context is done
func (cm *connectionManager) readFromConnection() {
	ctx, cancel := context.WithCancel(cm.ctx)
	defer cancel()

	conn := cm.getConn()
	events := readEvents(ctx, conn)

	// closing the connection releases the blocked reader
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var batch controlBatchMsg
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok || ev.readErr != nil {
				if len(batch.messages) > 0 {
					cm.p.Send(batch)
				}
				return
			}
			msg := controlDataMsg{packet: ev.packet, decodeErr: ev.decodeErr}
			if ev.packet != nil {
				msg.validationErrors = wire.ValidatePacket(ev.packet)
			}
			batch.messages = append(batch.messages, msg)

		case <-ticker.C:
			if len(batch.messages) > 0 {
				cm.p.Send(batch)
				batch = controlBatchMsg{}
			}
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection(cm.ctx)
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			cm.sendGreeting()
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// sendGreeting asks for the uptime and the current command record
func (cm *connectionManager) sendGreeting() {
	cm.send(wire.NewPingRequest(deviceAddress))
	cm.send(wire.NewGetRequest(deviceAddress, objects.GroupCommand))
}
