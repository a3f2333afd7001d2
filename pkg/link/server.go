// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link serves the object dictionary over byte-stream connections.
//
// Every connection has its own reader goroutine, but all requests are
// handled by a single dispatcher so that the command mailbox has exactly
// one writer. Responses go back to the requesting connection; live reports
// and capture records are broadcast to every connection.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/verter/internal/logger"
	"github.com/Thermoquad/verter/pkg/objects"
	"github.com/Thermoquad/verter/pkg/wire"
)

// recordChunk bounds the text carried by one RECORD_DATA packet
const recordChunk = 200

// Config configures a Server
type Config struct {
	Address      uint64        // device address used on every outgoing packet
	LiveInterval time.Duration // zero disables live reports
}

type request struct {
	peer   *peer
	packet *wire.Packet
}

type peer struct {
	w  io.Writer
	mu sync.Mutex
}

func (p *peer) send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.w.Write(frame)
	return err
}

// Server is the device side of the link
type Server struct {
	cfg      Config
	store    *objects.Store
	started  time.Time
	requests chan request

	mu    sync.Mutex
	peers map[*peer]struct{}

	recordSeq atomic.Uint64
}

// NewServer creates a server over store
func NewServer(cfg Config, store *objects.Store) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		started:  time.Now(),
		requests: make(chan request, 16),
		peers:    make(map[*peer]struct{}),
	}
}

// Peers returns the number of attached connections
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) attach(w io.Writer) *peer {
	p := &peer{w: w}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
	return p
}

func (s *Server) detach(p *peer) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
}

// Serve reads requests from rw until it fails or ctx is done. The caller
// owns rw and closes it to unblock a pending read.
func (s *Server) Serve(ctx context.Context, rw io.ReadWriter) error {
	p := s.attach(rw)
	defer s.detach(p)

	dec := wire.NewDecoder()
	buf := make([]byte, 512)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rw.Read(buf)
		if n > 0 {
			packets, errs := dec.Decode(buf[:n])
			for _, e := range errs {
				logger.Debug("link: dropped frame: %v", e)
			}
			for _, pkt := range packets {
				if !pkt.AddressedTo(s.cfg.Address) {
					continue
				}
				select {
				case s.requests <- request{peer: p, packet: pkt}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("link: read: %w", err)
		}
	}
}

// Run is the dispatcher. It handles requests and publishes live reports
// until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.cfg.LiveInterval > 0 {
		ticker := time.NewTicker(s.cfg.LiveInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-s.requests:
			s.handle(r)
		case <-tick:
			s.broadcast(wire.NewPacket(s.cfg.Address, wire.MsgLiveReport, s.store.Live()))
		}
	}
}

func (s *Server) handle(r request) {
	reply := s.respond(r.packet)
	if reply == nil {
		return
	}
	frame, err := wire.Encode(reply)
	if err != nil {
		logger.Warn("link: cannot encode %s: %v", wire.FormatMessageType(reply.Type()), err)
		return
	}
	if err := r.peer.send(frame); err != nil {
		logger.Debug("link: write failed: %v", err)
	}
}

func (s *Server) respond(pkt *wire.Packet) *wire.Packet {
	addr := s.cfg.Address
	if err := pkt.ParseError(); err != nil {
		logger.Debug("link: undecodable payload: %v", err)
		return wire.NewErrorPacket(addr, wire.ErrCodeMalformed, pkt.Type(), -1)
	}

	m := pkt.PayloadMap()
	switch pkt.Type() {
	case wire.MsgPingRequest:
		return wire.NewPingResponse(addr, uint64(time.Since(s.started).Milliseconds()))

	case wire.MsgGetRequest:
		group, ok := wire.GetMapUint(m, 0)
		if !ok {
			return wire.NewErrorPacket(addr, wire.ErrCodeMalformed, wire.MsgGetRequest, -1)
		}
		items, err := s.store.Read(int(group))
		if err != nil {
			return wire.NewErrorPacket(addr, wire.ErrCodeUnknownGroup, wire.MsgGetRequest, int(group))
		}
		return wire.NewPacket(addr, wire.MsgGetResponse, items)

	case wire.MsgUpdateRequest:
		if len(m) == 0 {
			return wire.NewErrorPacket(addr, wire.ErrCodeMalformed, wire.MsgUpdateRequest, -1)
		}
		back, err := s.store.Write(m)
		if err != nil {
			return writeError(addr, err)
		}
		return wire.NewPacket(addr, wire.MsgUpdateResponse, back)

	case wire.MsgPingResponse, wire.MsgLiveReport, wire.MsgRecordData,
		wire.MsgGetResponse, wire.MsgUpdateResponse, wire.MsgError:
		// traffic from another device on a shared bus
		return nil
	}

	return wire.NewErrorPacket(addr, wire.ErrCodeUnsupported, pkt.Type(), -1)
}

func writeError(addr uint64, err error) *wire.Packet {
	item := -1
	var ie *objects.ItemError
	if errors.As(err, &ie) {
		item = ie.ID
	}

	code := wire.ErrCodeMalformed
	switch {
	case errors.Is(err, objects.ErrUnknownItem):
		code = wire.ErrCodeUnknownItem
	case errors.Is(err, objects.ErrReadOnly):
		code = wire.ErrCodeReadOnly
	case errors.Is(err, objects.ErrBadType):
		code = wire.ErrCodeBadType
	}
	return wire.NewErrorPacket(addr, code, wire.MsgUpdateRequest, item)
}

func (s *Server) broadcast(pkt *wire.Packet) {
	frame, err := wire.Encode(pkt)
	if err != nil {
		logger.Warn("link: cannot encode %s: %v", wire.FormatMessageType(pkt.Type()), err)
		return
	}

	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		if err := p.send(frame); err != nil {
			logger.Debug("link: broadcast failed: %v", err)
		}
	}
}

// RecordWriter returns a writer that broadcasts everything written to it as
// a sequence of RECORD_DATA packets. Writes never fail.
func (s *Server) RecordWriter() io.Writer {
	return recordWriter{s: s}
}

type recordWriter struct {
	s *Server
}

func (w recordWriter) Write(b []byte) (int, error) {
	for off := 0; off < len(b); off += recordChunk {
		end := min(off+recordChunk, len(b))
		seq := w.s.recordSeq.Add(1) - 1
		w.s.broadcast(wire.NewRecordData(w.s.cfg.Address, seq, string(b[off:end])))
	}
	return len(b), nil
}
