// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package wire implements the verter link protocol: byte-stuffed frames
// carrying a length, a 64-bit device address, a CBOR message
// [msg_type, payload_map] and a CRC-16-CCITT.
package wire

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	MaxPayloadSize = 240
	AddressSize    = 8
	MaxPacketSize  = 1 + AddressSize + MaxPayloadSize + 2 // length, address, payload, CRC
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Special addresses
const (
	AddressBroadcast = 0x0000000000000000 // All devices
	AddressStateless = 0xFFFFFFFFFFFFFFFF // Routers, subscriptions
)

// Message types - Requests (Host → Device) 0x01-0x2F
const (
	MsgGetRequest    = 0x01 // {0: group id}
	MsgUpdateRequest = 0x02 // {item id: value, ...}
	MsgPingRequest   = 0x2F
)

// Message types - Responses and reports (Device → Host) 0x3F-0x8F
const (
	MsgPingResponse   = 0x3F // {0: uptime ms}
	MsgLiveReport     = 0x40 // live subset, published periodically
	MsgRecordData     = 0x50 // {0: sequence, 1: text}
	MsgGetResponse    = 0x81 // {item id: value, ...}
	MsgUpdateResponse = 0x82 // command group read-back
)

// Message types - Errors (Device → Host) 0xE0-0xEF
const (
	MsgError = 0xE0 // {0: code, 1: request type, 2: item id (optional)}
)

// Error payload keys
const (
	ErrKeyCode    = 0
	ErrKeyRequest = 1
	ErrKeyItem    = 2
)

// ErrorCode is carried in MsgError packets
type ErrorCode int

// Error code values
const (
	ErrCodeNone         ErrorCode = 0x00
	ErrCodeUnknownGroup ErrorCode = 0x01
	ErrCodeUnknownItem  ErrorCode = 0x02
	ErrCodeReadOnly     ErrorCode = 0x03
	ErrCodeBadType      ErrorCode = 0x04
	ErrCodeMalformed    ErrorCode = 0x05
	ErrCodeUnsupported  ErrorCode = 0x06
)
