// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func echo(ctx context.Context, conn Connection) error {
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			return err
		}
	}
}

func startServer(t *testing.T, username, password string) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(WebSocketHandler(ctx, username, password, echo))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestWebSocket_RoundTrip(t *testing.T) {
	url := startServer(t, "", "")
	conn, err := DialWebSocket(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{0x7E, 0x01, 0x7F}); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 2)
	got := make([]byte, 0, 3)
	for len(got) < 3 {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != string([]byte{0x7E, 0x01, 0x7F}) {
		t.Errorf("echo returned % X", got)
	}
}

func TestWebSocket_BasicAuth(t *testing.T) {
	url := startServer(t, "admin", "secret")

	if _, err := DialWebSocket(context.Background(), url, "admin", "wrong", false); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected HTTP 401, got %v", err)
	}
	conn, err := DialWebSocket(context.Background(), url, "admin", "secret", false)
	if err != nil {
		t.Fatalf("dial with credentials: %v", err)
	}
	conn.Close()
}

func TestDialWebSocket_BadScheme(t *testing.T) {
	if _, err := DialWebSocket(context.Background(), "http://localhost:1", "", "", false); err == nil {
		t.Error("expected scheme error")
	}
}

func TestWebSocket_ClosedReadsFail(t *testing.T) {
	url := startServer(t, "", "")
	conn, err := DialWebSocket(context.Background(), url, "", "", false)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected read error after close")
	}
	if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed on second read, got %v", err)
	}
}

func TestServeUntilDone_CancelReleasesRead(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeUntilDone(ctx, a, func(ctx context.Context, conn Connection) error {
			_, err := io.ReadAll(conn)
			return err
		})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serve still blocked after cancel")
	}
}
