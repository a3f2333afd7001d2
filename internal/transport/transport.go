// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport carries the link byte stream over a serial port or a
// WebSocket, on both the host and the device side.
package transport

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"

	"github.com/Thermoquad/verter/internal/logger"
)

// Connection is a byte stream to or from a controller
type Connection interface {
	io.ReadWriteCloser
}

// ErrConnectionClosed is returned by reads after the WebSocket has failed
var ErrConnectionClosed = errors.New("websocket connection closed")

// OpenSerial opens portName at baudRate, 8N1
func OpenSerial(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return port, nil
}

// WebSocketConnection presents the binary messages of a WebSocket as one
// byte stream. One goroutine may read while another writes.
type WebSocketConnection struct {
	conn *websocket.Conn
	cur  io.Reader // current message, nil between messages
	err  error     // sticky read error

	wmu sync.Mutex
}

// NewWebSocketConnection wraps an established WebSocket
func NewWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	return &WebSocketConnection{conn: conn}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	for w.err == nil {
		if w.cur == nil {
			kind, r, err := w.conn.NextReader()
			if err != nil {
				w.err = ErrConnectionClosed
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			// the link only uses binary messages
			if kind != websocket.BinaryMessage {
				continue
			}
			w.cur = r
		}

		n, err := w.cur.Read(p)
		if errors.Is(err, io.EOF) {
			w.cur = nil
			err = nil
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
	return 0, w.err
}

// Write sends p as one binary message
func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// DialWebSocket connects to a ws:// or wss:// URL, sending HTTP Basic
// credentials when both are set
func DialWebSocket(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme %q (use ws:// or wss://)", u.Scheme)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: skipSSLVerify},
	}

	header := http.Header{}
	if username != "" && password != "" {
		req := &http.Request{Header: header}
		req.SetBasicAuth(username, password)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: HTTP %d: %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", u.Host, err)
	}
	return NewWebSocketConnection(conn), nil
}

// ServeFunc handles one accepted connection until it returns
type ServeFunc func(ctx context.Context, conn Connection) error

// WebSocketHandler upgrades requests to WebSocket connections and hands
// them to serve. When username is set, HTTP Basic auth is required.
func WebSocketHandler(ctx context.Context, username, password string, serve ServeFunc) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username != "" && !authorized(r, username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="verter"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("transport: upgrade from %s failed: %v", r.RemoteAddr, err)
			return
		}
		conn := NewWebSocketConnection(ws)
		logger.Info("transport: %s connected", r.RemoteAddr)
		if err := ServeUntilDone(ctx, conn, serve); err != nil {
			logger.Debug("transport: %s: %v", r.RemoteAddr, err)
		}
		logger.Info("transport: %s disconnected", r.RemoteAddr)
	})
}

func authorized(r *http.Request, username, password string) bool {
	u, p, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(u), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
	return userOK && passOK
}

// ServeUntilDone runs serve on conn and closes conn when either serve
// returns or ctx is done, so a blocked read is released.
func ServeUntilDone(ctx context.Context, conn Connection, serve ServeFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	go func() {
		<-ctx.Done()
		closeConn()
	}()

	err := serve(ctx, conn)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
