// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"fmt"
	"sort"
	"strings"
)

// ItemNamer resolves object item ids to names for display
type ItemNamer interface {
	ItemName(id int) (string, bool)
}

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	return FormatPacketWith(p, nil)
}

// FormatPacketWith formats a packet, naming items through names when not nil
func FormatPacketWith(p *Packet, names ItemNamer) string {
	timestamp := p.received.Format("15:04:05.000")
	msgType := FormatMessageType(p.Type())

	result := fmt.Sprintf("[%s] %s (0x%02X) addr=%016X len=%d\n", timestamp, msgType, p.Type(), p.hdr.Address, p.hdr.Length)

	if err := p.ParseError(); err != nil {
		return result + fmt.Sprintf("  (undecodable payload: %v)\n", err)
	}
	return result + FormatPayloadMap(p.Type(), p.PayloadMap(), names)
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgGetRequest:
		return "GET_REQUEST"
	case MsgUpdateRequest:
		return "UPDATE_REQUEST"
	case MsgPingRequest:
		return "PING_REQUEST"
	case MsgPingResponse:
		return "PING_RESPONSE"
	case MsgLiveReport:
		return "LIVE_REPORT"
	case MsgRecordData:
		return "RECORD_DATA"
	case MsgGetResponse:
		return "GET_RESPONSE"
	case MsgUpdateResponse:
		return "UPDATE_RESPONSE"
	case MsgError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FormatErrorCode returns the human-readable name for an error code
func FormatErrorCode(code ErrorCode) string {
	switch code {
	case ErrCodeNone:
		return "NONE"
	case ErrCodeUnknownGroup:
		return "UNKNOWN_GROUP"
	case ErrCodeUnknownItem:
		return "UNKNOWN_ITEM"
	case ErrCodeReadOnly:
		return "READ_ONLY"
	case ErrCodeBadType:
		return "BAD_TYPE"
	case ErrCodeMalformed:
		return "MALFORMED"
	case ErrCodeUnsupported:
		return "UNSUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap formats the CBOR payload map based on message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}, names ItemNamer) string {
	switch msgType {
	case MsgPingRequest:
		return "  (no payload)\n"

	case MsgPingResponse:
		uptime, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Uptime: %s\n", FormatDuration(uptime))

	case MsgGetRequest:
		group, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Group: %s\n", itemLabel(int(group), names))

	case MsgRecordData:
		seq, _ := GetMapUint(m, 0)
		text, _ := GetMapString(m, 1)
		return fmt.Sprintf("  Record #%d: %q\n", seq, text)

	case MsgError:
		code, _ := GetMapUint(m, ErrKeyCode)
		req, _ := GetMapUint(m, ErrKeyRequest)
		result := fmt.Sprintf("  Error: %s (%d), Request: %s", FormatErrorCode(ErrorCode(code)), code, FormatMessageType(uint8(req)))
		if item, ok := GetMapUint(m, ErrKeyItem); ok {
			result += ", Item: " + itemLabel(int(item), names)
		}
		return result + "\n"

	default:
		// item maps: UPDATE_REQUEST, GET_RESPONSE, UPDATE_RESPONSE, LIVE_REPORT
		return formatItems(m, names)
	}
}

func itemLabel(id int, names ItemNamer) string {
	if names != nil {
		if name, ok := names.ItemName(id); ok {
			return fmt.Sprintf("%s (0x%04X)", name, id)
		}
	}
	return fmt.Sprintf("0x%04X", id)
}

func formatItems(m map[int]interface{}, names ItemNamer) string {
	if len(m) == 0 {
		return "  (no items)\n"
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var b strings.Builder
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			fmt.Fprintf(&b, "  %s = %.4f\n", itemLabel(k, names), v)
		default:
			fmt.Fprintf(&b, "  %s = %v\n", itemLabel(k, names), v)
		}
	}
	return b.String()
}

// FormatDuration converts milliseconds to human-readable duration
func FormatDuration(ms uint64) string {
	seconds := ms / 1000
	if seconds == 0 {
		return fmt.Sprintf("%d ms", ms)
	}

	const (
		secondsPerMinute = 60
		secondsPerHour   = 60 * secondsPerMinute
		secondsPerDay    = 24 * secondsPerHour
	)

	units := []struct {
		size uint64
		name string
	}{
		{secondsPerDay, "day"},
		{secondsPerHour, "hour"},
		{secondsPerMinute, "minute"},
		{1, "second"},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	// len(parts) >= 1 since seconds >= 1 here
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		last := parts[len(parts)-1]
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + last
	}
}
