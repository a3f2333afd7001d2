// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

// payloadValuesEqual compares payload values accounting for CBOR type coercion.
func payloadValuesEqual(expected, actual interface{}) bool {
	switch e := expected.(type) {
	case uint64:
		switch a := actual.(type) {
		case uint64:
			return e == a
		case int64:
			return a >= 0 && uint64(a) == e
		}
	case int64:
		switch a := actual.(type) {
		case int64:
			return e == a
		case uint64:
			return e >= 0 && uint64(e) == a
		}
	case float64:
		if a, ok := actual.(float64); ok {
			return math.Abs(e-a) < 1e-9
		}
	case bool:
		if a, ok := actual.(bool); ok {
			return e == a
		}
	case string:
		if a, ok := actual.(string); ok {
			return e == a
		}
	}
	return false
}

func decodeAll(t *testing.T, data []byte) []*Packet {
	t.Helper()
	d := NewDecoder()
	packets, errs := d.Decode(data)
	if len(errs) != 0 {
		t.Fatalf("unexpected decode errors: %v", errs)
	}
	return packets
}

func TestChecksum_KnownValue(t *testing.T) {
	if crc := Checksum([]byte("123456789")); crc != 0x29B1 {
		t.Errorf("CRC mismatch: expected 0x29B1, got 0x%04X", crc)
	}
	if crc := Checksum(nil); crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		address uint64
		msgType uint8
		payload map[int]interface{}
	}{
		{"ping request", 0x0102030405060708, MsgPingRequest, nil},
		{"get request", 0x1122334455667788, MsgGetRequest, map[int]interface{}{0: uint64(0x10)}},
		{
			name:    "update request",
			address: AddressBroadcast,
			msgType: MsgUpdateRequest,
			payload: map[int]interface{}{
				0x3001: uint64(1),
				0x3002: true,
				0x3003: 12.5,
				0x3004: -0.75,
			},
		},
		{
			name:    "live report",
			address: 0xAABBCCDDEEFF0011,
			msgType: MsgLiveReport,
			payload: map[int]interface{}{
				0x4001: uint64(4),
				0x4002: 314.1592653589793,
				0x4004: 0.0,
			},
		},
		{"record data", 0x7E7F7D7E7F7D7E7F, MsgRecordData, map[int]interface{}{0: uint64(3), 1: "1,2,3\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Frame(tt.address, tt.msgType, tt.payload)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if data[0] != StartByte || data[len(data)-1] != EndByte {
				t.Fatalf("packet not framed: % X", data)
			}

			packets := decodeAll(t, data)
			if len(packets) != 1 {
				t.Fatalf("expected 1 packet, got %d", len(packets))
			}
			p := packets[0]
			if p.Address() != tt.address {
				t.Errorf("address: expected 0x%016X, got 0x%016X", tt.address, p.Address())
			}
			if p.Type() != tt.msgType {
				t.Errorf("type: expected 0x%02X, got 0x%02X", tt.msgType, p.Type())
			}
			if err := p.ParseError(); err != nil {
				t.Fatalf("parse error: %v", err)
			}
			got := p.PayloadMap()
			if len(got) != len(tt.payload) {
				t.Fatalf("payload size: expected %d, got %d", len(tt.payload), len(got))
			}
			for k, v := range tt.payload {
				if !payloadValuesEqual(v, got[k]) {
					t.Errorf("key 0x%X: expected %v (%T), got %v (%T)", k, v, v, got[k], got[k])
				}
			}
		})
	}
}

func TestEncode_FramingBytesNeverInBody(t *testing.T) {
	// address bytes are all framing values
	data, err := Frame(0x7D7E7F7D7E7F7D7E, MsgPingRequest, nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	body := data[1 : len(data)-1]
	if bytes.IndexByte(body, StartByte) >= 0 || bytes.IndexByte(body, EndByte) >= 0 {
		t.Errorf("unescaped framing byte in body: % X", body)
	}
	if p := decodeAll(t, data); len(p) != 1 || p[0].Address() != 0x7D7E7F7D7E7F7D7E {
		t.Errorf("stuffed packet did not round-trip")
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	in := []byte{0x00, StartByte, EndByte, EscByte, 0x41, EscByte, EscByte}
	out, err := Unescape(escape(nil, in))
	if err != nil {
		t.Fatalf("unstuff failed: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("expected % X, got % X", in, out)
	}
	if _, err := Unescape([]byte{0x01, EscByte}); err == nil {
		t.Error("expected error for incomplete escape")
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	big := map[int]interface{}{1: strings.Repeat("x", MaxPayloadSize)}
	if _, err := Frame(1, MsgRecordData, big); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestEncode_ShortestFloat(t *testing.T) {
	// 0.5 is exact in float16: 3 bytes instead of 9
	small, err := marshalMessage(MsgLiveReport, map[int]interface{}{1: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	wide, err := marshalMessage(MsgLiveReport, map[int]interface{}{1: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if len(wide)-len(small) != 6 {
		t.Errorf("expected 0.5 to encode 6 bytes shorter than 0.1, got %d and %d", len(small), len(wide))
	}
}

func TestDecoder_CRCMismatch(t *testing.T) {
	data, err := Frame(0x42, MsgPingRequest, nil)
	if err != nil {
		t.Fatal(err)
	}
	// flip a bit of the last CRC byte (never a framing byte for this address)
	data[len(data)-2] ^= 0x01

	d := NewDecoder()
	packets, errs := d.Decode(data)
	if len(packets) != 0 {
		t.Errorf("expected no packets, got %d", len(packets))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrCRCMismatch) {
		t.Errorf("expected one CRC mismatch, got %v", errs)
	}
}

func TestDecoder_StartResynchronizes(t *testing.T) {
	good, err := Frame(0x42, MsgPingRequest, nil)
	if err != nil {
		t.Fatal(err)
	}
	// truncated frame followed by a complete one
	stream := append([]byte{0x11, 0x22}, good[:6]...)
	stream = append(stream, good...)

	d := NewDecoder()
	packets, errs := d.Decode(stream)
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	if len(packets) != 1 || packets[0].Type() != MsgPingRequest {
		t.Fatalf("expected the complete frame to decode, got %d packets", len(packets))
	}
}

func TestDecoder_InvalidLength(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	if _, err := d.DecodeByte(MaxPayloadSize + 1); err == nil {
		t.Error("expected error for invalid length")
	}
	if d.inFrame {
		t.Error("decoder should reset after invalid length")
	}
}

func TestDecoder_UnexpectedEnd(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	d.DecodeByte(3)
	if _, err := d.DecodeByte(EndByte); err == nil {
		t.Error("expected error for premature END")
	}
	// END while idle is ignored
	if p, err := d.DecodeByte(EndByte); p != nil || err != nil {
		t.Errorf("expected idle END to be ignored, got %v %v", p, err)
	}
}

func TestDecoder_MultiplePackets(t *testing.T) {
	var stream []byte
	for i := uint64(0); i < 5; i++ {
		data, err := Frame(i+1, MsgPingResponse, map[int]interface{}{0: i * 1000})
		if err != nil {
			t.Fatal(err)
		}
		stream = append(stream, data...)
	}
	packets := decodeAll(t, stream)
	if len(packets) != 5 {
		t.Fatalf("expected 5 packets, got %d", len(packets))
	}
	for i, p := range packets {
		if up, _ := GetMapUint(p.PayloadMap(), 0); up != uint64(i)*1000 {
			t.Errorf("packet %d: expected uptime %d, got %d", i, i*1000, up)
		}
	}
}

func TestPacket_AddressedTo(t *testing.T) {
	tests := []struct {
		address uint64
		want    bool
	}{
		{0x1234, true},
		{0x5678, false},
		{AddressBroadcast, true},
		{AddressStateless, true},
	}
	for _, tt := range tests {
		p := NewPacket(tt.address, MsgPingRequest, nil)
		if got := p.AddressedTo(0x1234); got != tt.want {
			t.Errorf("AddressedTo(0x1234) for 0x%X: expected %v, got %v", tt.address, tt.want, got)
		}
	}
}

func TestBuilders(t *testing.T) {
	get := NewGetRequest(1, 0x21)
	if g, _ := GetMapUint(get.PayloadMap(), 0); get.Type() != MsgGetRequest || g != 0x21 {
		t.Errorf("bad GET_REQUEST: %v", get.PayloadMap())
	}

	e := NewErrorPacket(1, ErrCodeReadOnly, MsgUpdateRequest, 0x1101)
	if code, _ := GetMapUint(e.PayloadMap(), ErrKeyCode); ErrorCode(code) != ErrCodeReadOnly {
		t.Errorf("expected READ_ONLY, got %d", code)
	}
	if item, ok := GetMapUint(e.PayloadMap(), ErrKeyItem); !ok || item != 0x1101 {
		t.Errorf("expected item 0x1101, got %v", e.PayloadMap())
	}
	if _, ok := NewErrorPacket(1, ErrCodeMalformed, MsgUpdateRequest, -1).PayloadMap()[ErrKeyItem]; ok {
		t.Error("negative item should be omitted")
	}

	rec := NewRecordData(1, 7, "end record\n")
	if s, _ := GetMapString(rec.PayloadMap(), 1); s != "end record\n" {
		t.Errorf("unexpected record text %q", s)
	}
}

func TestValidatePacket(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		want   []AnomalyType
	}{
		{"valid get", NewGetRequest(1, 0x10), nil},
		{"get without group", NewPacket(1, MsgGetRequest, nil), []AnomalyType{AnomalyMissingField}},
		{"get with float group", NewPacket(1, MsgGetRequest, map[int]interface{}{0: 1.5}), []AnomalyType{AnomalyWrongType}},
		{"empty update", NewUpdateRequest(1, nil), []AnomalyType{AnomalyMissingField}},
		{"nan in live report", NewPacket(1, MsgLiveReport, map[int]interface{}{0x4002: math.NaN()}), []AnomalyType{AnomalyNonFinite}},
		{"string item", NewUpdateRequest(1, map[int]interface{}{0x3003: "1.0"}), []AnomalyType{AnomalyWrongType}},
		{"valid ping", NewPingRequest(1), nil},
		{"record without text", NewPacket(1, MsgRecordData, map[int]interface{}{0: uint64(1)}), []AnomalyType{AnomalyMissingField}},
		{"bad error code", NewPacket(1, MsgError, map[int]interface{}{0: uint64(99)}), []AnomalyType{AnomalyInvalidValue}},
		{"unknown type", NewPacket(1, 0x99, nil), []AnomalyType{AnomalyUnknownMessage}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidatePacket(tt.packet)
			if len(errs) != len(tt.want) {
				t.Fatalf("expected %d errors, got %v", len(tt.want), errs)
			}
			for i, e := range errs {
				if e.Type != tt.want[i] {
					t.Errorf("error %d: expected type %d, got %d (%s)", i, tt.want[i], e.Type, e.Error())
				}
			}
		})
	}
}

func TestValidatePacket_UndecodablePayload(t *testing.T) {
	p := newReceived(Header{Length: 2, Address: 1}, []byte{0xFF, 0xFF})
	errs := ValidatePacket(p)
	if len(errs) != 1 || errs[0].Type != AnomalyDecodeError {
		t.Errorf("expected decode error, got %v", errs)
	}
}

type namer map[int]string

func (n namer) ItemName(id int) (string, bool) {
	s, ok := n[id]
	return s, ok
}

func TestFormatPacketWith(t *testing.T) {
	p := NewUpdateRequest(0x1, map[int]interface{}{0x3003: 12.5, 0x3001: uint64(1)})
	out := FormatPacketWith(p, namer{0x3001: "wMode"})

	if !strings.Contains(out, "UPDATE_REQUEST") {
		t.Errorf("missing message type in %q", out)
	}
	if !strings.Contains(out, "wMode (0x3001) = 1") {
		t.Errorf("missing named item in %q", out)
	}
	if !strings.Contains(out, "0x3003 = 12.5000") {
		t.Errorf("missing unnamed item in %q", out)
	}
	if strings.Index(out, "0x3001") > strings.Index(out, "0x3003") {
		t.Errorf("items not sorted by id in %q", out)
	}
}

func TestFormatPayloadMap_Error(t *testing.T) {
	m := NewErrorPacket(1, ErrCodeUnknownItem, MsgUpdateRequest, 0x30FF).PayloadMap()
	out := FormatPayloadMap(MsgError, m, nil)
	if !strings.Contains(out, "UNKNOWN_ITEM") || !strings.Contains(out, "UPDATE_REQUEST") || !strings.Contains(out, "0x30FF") {
		t.Errorf("unexpected error formatting %q", out)
	}
}

func TestFormatMessageType(t *testing.T) {
	tests := map[uint8]string{
		MsgGetRequest:     "GET_REQUEST",
		MsgUpdateRequest:  "UPDATE_REQUEST",
		MsgPingRequest:    "PING_REQUEST",
		MsgPingResponse:   "PING_RESPONSE",
		MsgLiveReport:     "LIVE_REPORT",
		MsgRecordData:     "RECORD_DATA",
		MsgGetResponse:    "GET_RESPONSE",
		MsgUpdateResponse: "UPDATE_RESPONSE",
		MsgError:          "ERROR",
		0x77:              "UNKNOWN",
	}
	for msgType, want := range tests {
		if got := FormatMessageType(msgType); got != want {
			t.Errorf("FormatMessageType(0x%02X): expected %s, got %s", msgType, want, got)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{500, "500 ms"},
		{1000, "1 second"},
		{61000, "1 minute and 1 second"},
		{2*86400000 + 3600000 + 5000, "2 days, 1 hour, and 5 seconds"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d): expected %q, got %q", tt.ms, tt.want, got)
		}
	}
}

func TestStatistics(t *testing.T) {
	s := NewStatistics()
	valid := NewPingRequest(1)

	s.Update(valid, nil, nil)
	s.Update(nil, ErrCRCMismatch, nil)
	s.Update(nil, errors.New("unexpected END byte"), nil)
	s.Update(valid, nil, []ValidationError{{Type: AnomalyMissingField}, {Type: AnomalyNonFinite}})

	if s.TotalPackets != 4 || s.ValidPackets != 1 {
		t.Errorf("expected 4 total / 1 valid, got %d / %d", s.TotalPackets, s.ValidPackets)
	}
	if s.CRCErrors != 1 || s.DecodeErrors != 1 {
		t.Errorf("expected 1 CRC and 1 decode error, got %d / %d", s.CRCErrors, s.DecodeErrors)
	}
	if s.MissingFields != 1 || s.MalformedPackets != 1 || s.NonFinite != 1 || s.AnomalousValues != 1 {
		t.Errorf("validation counters wrong: %+v", s)
	}
	s.Update(NewErrorPacket(1, ErrCodeReadOnly, MsgUpdateRequest, -1), nil, nil)
	if s.DeviceErrors != 1 || s.ByType[MsgPingRequest] != 1 || s.ByType[MsgError] != 1 {
		t.Errorf("per-type counters wrong: %+v", s.ByType)
	}
	if s.Errors() != 4 {
		t.Errorf("expected 4 errors, got %d", s.Errors())
	}
	if !strings.Contains(s.String(), "CRC Errors:") {
		t.Errorf("summary missing CRC line:\n%s", s.String())
	}

	s.Reset()
	if s.TotalPackets != 0 || s.CRCErrors != 0 {
		t.Error("Reset did not clear counters")
	}
}
