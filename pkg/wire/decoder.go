// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrCRCMismatch is returned when a complete frame fails its checksum
	ErrCRCMismatch = errors.New("CRC mismatch")
	// ErrFrame is returned for frames with a bad length or a misplaced END
	ErrFrame = errors.New("malformed frame")
)

// Decoder turns a byte stream into packets. A START byte always
// resynchronizes, so a corrupted frame costs at most that frame.
type Decoder struct {
	inFrame bool
	escaped bool
	frame   []byte // unescaped bytes since START
}

// NewDecoder creates a decoder waiting for a START byte
func NewDecoder() *Decoder {
	return &Decoder{frame: make([]byte, 0, MaxPacketSize)}
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.inFrame = false
	d.escaped = false
	d.frame = d.frame[:0]
}

// frameSize is the unescaped size announced by the length byte
func (d *Decoder) frameSize() int {
	return 1 + AddressSize + int(d.frame[0]) + 2
}

// DecodeByte feeds one byte. It returns a packet when b completes a valid
// frame and an error when b ends an invalid one; decoding continues with
// the next frame either way.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch {
	case b == StartByte:
		d.Reset()
		d.inFrame = true
		return nil, nil
	case !d.inFrame:
		// noise between frames
		return nil, nil
	case b == EndByte:
		defer d.Reset()
		return d.finish()
	case b == EscByte && !d.escaped:
		d.escaped = true
		return nil, nil
	}

	if d.escaped {
		b ^= EscXor
		d.escaped = false
	}
	if len(d.frame) == 0 && b > MaxPayloadSize {
		d.Reset()
		return nil, fmt.Errorf("%w: length %d exceeds %d", ErrFrame, b, MaxPayloadSize)
	}
	if len(d.frame) > 0 && len(d.frame) == d.frameSize() {
		d.Reset()
		return nil, fmt.Errorf("%w: expected END, got 0x%02X", ErrFrame, b)
	}
	d.frame = append(d.frame, b)
	return nil, nil
}

// Decode feeds a chunk of bytes and returns every completed packet and every
// frame error, in order of occurrence
func (d *Decoder) Decode(data []byte) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, errs
}

func (d *Decoder) finish() (*Packet, error) {
	if d.escaped {
		return nil, fmt.Errorf("%w: END after escape", ErrFrame)
	}
	if len(d.frame) == 0 || len(d.frame) != d.frameSize() {
		want := 0
		if len(d.frame) > 0 {
			want = d.frameSize()
		}
		return nil, fmt.Errorf("%w: truncated at %d of %d bytes", ErrFrame, len(d.frame), want)
	}

	n := len(d.frame) - 2
	crc := binary.BigEndian.Uint16(d.frame[n:])
	if calculated := Checksum(d.frame[:n]); calculated != crc {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, crc)
	}

	hdr := Header{
		Length:  d.frame[0],
		Address: binary.LittleEndian.Uint64(d.frame[1 : 1+AddressSize]),
		CRC:     crc,
	}
	return newReceived(hdr, bytes.Clone(d.frame[1+AddressSize:n])), nil
}
