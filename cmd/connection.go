// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/verter/internal/transport"
	"github.com/Thermoquad/verter/pkg/wire"
)

// passwordEnv holds the WebSocket password so it never lands in shell history
const passwordEnv = "VERTER_PASSWORD"

var wsPassword string

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// not a terminal, read a plain line
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on flags
func OpenConnection(ctx context.Context) (transport.Connection, string, error) {
	if wsURL != "" {
		if wsUsername != "" && wsPassword == "" {
			password, err := GetPassword()
			if err != nil {
				return nil, "", err
			}
			// kept for reconnects
			wsPassword = password
		}

		conn, err := transport.DialWebSocket(ctx, wsURL, wsUsername, wsPassword, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		conn, err := transport.OpenSerial(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", errors.New("either --port or --url must be specified")
}

// linkEvent is one outcome of reading the connection: a decoded packet, a
// dropped frame, or the read error that ended the stream.
type linkEvent struct {
	packet    *wire.Packet
	decodeErr error
	readErr   error
}

// readEvents decodes conn on its own goroutine. The channel is closed after
// the event carrying the read error. Closing conn ends the goroutine.
func readEvents(ctx context.Context, conn transport.Connection) <-chan linkEvent {
	events := make(chan linkEvent, 64)
	go func() {
		defer close(events)
		decoder := wire.NewDecoder()
		buf := make([]byte, 512)
		for {
			n, err := conn.Read(buf)
			for i := 0; i < n; i++ {
				packet, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr == nil && packet == nil {
					continue
				}
				select {
				case events <- linkEvent{packet: packet, decodeErr: decodeErr}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				select {
				case events <- linkEvent{readErr: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return events
}

// ErrorReply is a MsgError answer from the device
type ErrorReply struct {
	Code wire.ErrorCode
	Item int
}

func (e *ErrorReply) Error() string {
	if e.Item >= 0 {
		return fmt.Sprintf("device error %s on item 0x%04X", wire.FormatErrorCode(e.Code), e.Item)
	}
	return fmt.Sprintf("device error %s", wire.FormatErrorCode(e.Code))
}

// transact sends req and waits for the reply of type want from the target
// device. A MsgError answering req is returned as *ErrorReply.
func transact(ctx context.Context, conn transport.Connection, events <-chan linkEvent, req *wire.Packet, want uint8) (*wire.Packet, error) {
	frame, err := wire.Encode(req)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("send %s: %w", wire.FormatMessageType(req.Type()), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no %s: %w", wire.FormatMessageType(want), ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return nil, transport.ErrConnectionClosed
			}
			if ev.readErr != nil {
				return nil, ev.readErr
			}
			p := ev.packet
			if p == nil || !fromTarget(p, req.Address()) {
				continue
			}
			switch p.Type() {
			case want:
				return p, nil
			case wire.MsgError:
				m := p.PayloadMap()
				if request, _ := wire.GetMapUint(m, wire.ErrKeyRequest); request != uint64(req.Type()) {
					continue
				}
				code, _ := wire.GetMapUint(m, wire.ErrKeyCode)
				reply := &ErrorReply{Code: wire.ErrorCode(code), Item: -1}
				if item, ok := wire.GetMapUint(m, wire.ErrKeyItem); ok {
					reply.Item = int(item)
				}
				return nil, reply
			}
		}
	}
}

// fromTarget reports whether p was sent by the device a request to addr reaches
func fromTarget(p *wire.Packet, addr uint64) bool {
	return addr == wire.AddressBroadcast || addr == wire.AddressStateless || p.Address() == addr
}

// withTimeout derives the per-request deadline from the --timeout flag
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(requestTimeout)*time.Second)
}
