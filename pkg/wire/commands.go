// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

// NewGetRequest creates a GET_REQUEST packet (0x01) for an object group.
func NewGetRequest(address uint64, group uint16) *Packet {
	return NewPacket(address, MsgGetRequest, map[int]interface{}{
		0: uint64(group),
	})
}

// NewUpdateRequest creates an UPDATE_REQUEST packet (0x02).
// Values must be float64, integers or bools keyed by item id.
func NewUpdateRequest(address uint64, items map[int]interface{}) *Packet {
	return NewPacket(address, MsgUpdateRequest, items)
}

// NewPingRequest creates a PING_REQUEST packet (0x2F).
// Devices respond with PING_RESPONSE containing uptime.
func NewPingRequest(address uint64) *Packet {
	return NewPacket(address, MsgPingRequest, nil)
}

// NewPingResponse creates a PING_RESPONSE packet (0x3F).
func NewPingResponse(address uint64, uptimeMs uint64) *Packet {
	return NewPacket(address, MsgPingResponse, map[int]interface{}{
		0: uptimeMs,
	})
}

// NewRecordData creates a RECORD_DATA packet (0x50) carrying one piece of a
// capture download.
func NewRecordData(address uint64, seq uint64, text string) *Packet {
	return NewPacket(address, MsgRecordData, map[int]interface{}{
		0: seq,
		1: text,
	})
}

// NewErrorPacket creates an ERROR packet (0xE0) answering a request.
// item is omitted when negative.
func NewErrorPacket(address uint64, code ErrorCode, request uint8, item int) *Packet {
	payload := map[int]interface{}{
		ErrKeyCode:    uint64(code),
		ErrKeyRequest: uint64(request),
	}
	if item >= 0 {
		payload[ErrKeyItem] = uint64(item)
	}
	return NewPacket(address, MsgError, payload)
}
