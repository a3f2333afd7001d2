// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a message does not fit one frame
var ErrPayloadTooLarge = errors.New("payload too large")

// Encode frames a packet for transmission
func Encode(p *Packet) ([]byte, error) {
	return Frame(p.Address(), p.Type(), p.PayloadMap())
}

// Frame builds a complete frame: START, the escaped length, address, CBOR
// body and big-endian CRC, then END.
func Frame(address uint64, msgType uint8, items map[int]interface{}) ([]byte, error) {
	body, err := marshalMessage(msgType, items)
	if err != nil {
		return nil, fmt.Errorf("encode message 0x%02X: %w", msgType, err)
	}
	if len(body) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(body), MaxPayloadSize)
	}

	raw := make([]byte, 0, MaxPacketSize)
	raw = append(raw, byte(len(body)))
	raw = binary.LittleEndian.AppendUint64(raw, address)
	raw = append(raw, body...)
	raw = binary.BigEndian.AppendUint16(raw, Checksum(raw))

	out := make([]byte, 0, 2*len(raw)+2)
	out = append(out, StartByte)
	out = escape(out, raw)
	return append(out, EndByte), nil
}

func needsEscape(b byte) bool {
	return b == StartByte || b == EndByte || b == EscByte
}

// escape appends src to dst with every framing byte replaced by ESC, b^0x20
func escape(dst, src []byte) []byte {
	for _, b := range src {
		if needsEscape(b) {
			dst = append(dst, EscByte, b^EscXor)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// Unescape reverses escape
func Unescape(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		if src[i] != EscByte {
			out = append(out, src[i])
			continue
		}
		i++
		if i == len(src) {
			return nil, errors.New("dangling escape at end of data")
		}
		out = append(out, src[i]^EscXor)
	}
	return out, nil
}
