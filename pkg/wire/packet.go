// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"sync"
	"time"
)

// Header is the fixed part of a received frame
type Header struct {
	Length  uint8 // CBOR body length
	Address uint64
	CRC     uint16
}

// Packet is one link message. Received packets keep their CBOR body and
// decode it on first access; built packets carry the message directly.
type Packet struct {
	hdr      Header
	body     []byte
	received time.Time

	once  sync.Once
	msg   message
	err   error
	built bool
}

// NewPacket builds a packet for sending. A nil or empty items map is sent
// as a CBOR null.
func NewPacket(address uint64, msgType uint8, items map[int]interface{}) *Packet {
	if len(items) == 0 {
		items = nil
	}
	return &Packet{
		hdr:      Header{Address: address},
		msg:      message{Type: msgType, Items: items},
		received: time.Now(),
		built:    true,
	}
}

// newReceived wraps a checked frame body
func newReceived(hdr Header, body []byte) *Packet {
	return &Packet{hdr: hdr, body: body, received: time.Now()}
}

func (p *Packet) parse() {
	p.once.Do(func() {
		if !p.built {
			p.msg, p.err = parseMessage(p.body)
		}
	})
}

// Header returns the frame header; zero fields for built packets
func (p *Packet) Header() Header { return p.hdr }

// Address returns the 64-bit device address
func (p *Packet) Address() uint64 { return p.hdr.Address }

// Type returns the message type, or 0 if the body does not decode
func (p *Packet) Type() uint8 {
	p.parse()
	return p.msg.Type
}

// PayloadMap returns the message items (nil for empty payloads)
func (p *Packet) PayloadMap() map[int]interface{} {
	p.parse()
	return p.msg.Items
}

// ParseError returns the body decoding error, if any
func (p *Packet) ParseError() error {
	p.parse()
	return p.err
}

// Timestamp returns when the packet was received or built
func (p *Packet) Timestamp() time.Time { return p.received }

// AddressedTo reports whether a device with address addr should handle p:
// its own address, broadcast, or the stateless address
func (p *Packet) AddressedTo(addr uint64) bool {
	switch p.hdr.Address {
	case addr, AddressBroadcast, AddressStateless:
		return true
	}
	return false
}
