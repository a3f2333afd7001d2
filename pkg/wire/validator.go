// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyMissingField AnomalyType = iota
	AnomalyWrongType
	AnomalyNonFinite
	AnomalyInvalidValue
	AnomalyUnknownMessage
	AnomalyDecodeError
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket validates packet structure and detects anomalies.
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	if err := p.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyDecodeError,
			Message: fmt.Sprintf("CBOR decode failed: %v", err),
			Details: map[string]interface{}{"error": err.Error()},
		}}
	}

	m := p.PayloadMap()
	switch p.Type() {
	case MsgGetRequest:
		return requireUint(m, 0, "GET_REQUEST", "group")
	case MsgUpdateRequest:
		if len(m) == 0 {
			return []ValidationError{{
				Type:    AnomalyMissingField,
				Message: "UPDATE_REQUEST without items",
				Details: map[string]interface{}{},
			}}
		}
		return validateValues(m, "UPDATE_REQUEST")
	case MsgGetResponse, MsgUpdateResponse, MsgLiveReport:
		return validateValues(m, FormatMessageType(p.Type()))
	case MsgPingRequest:
		return nil
	case MsgPingResponse:
		return requireUint(m, 0, "PING_RESPONSE", "uptime")
	case MsgRecordData:
		errs := requireUint(m, 0, "RECORD_DATA", "sequence")
		if _, ok := GetMapString(m, 1); !ok {
			errs = append(errs, ValidationError{
				Type:    AnomalyMissingField,
				Message: "RECORD_DATA missing text",
				Details: map[string]interface{}{"key": 1},
			})
		}
		return errs
	case MsgError:
		errs := requireUint(m, ErrKeyCode, "ERROR", "code")
		if code, ok := GetMapUint(m, ErrKeyCode); ok && code > uint64(ErrCodeUnsupported) {
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Invalid error code=%d (max %d)", code, ErrCodeUnsupported),
				Details: map[string]interface{}{"code": code, "max": int(ErrCodeUnsupported)},
			})
		}
		return errs
	}

	return []ValidationError{{
		Type:    AnomalyUnknownMessage,
		Message: fmt.Sprintf("Unknown message type 0x%02X", p.Type()),
		Details: map[string]interface{}{"type": p.Type()},
	}}
}

func requireUint(m map[int]interface{}, key int, msg, field string) []ValidationError {
	if _, present := m[key]; !present {
		return []ValidationError{{
			Type:    AnomalyMissingField,
			Message: fmt.Sprintf("%s missing %s", msg, field),
			Details: map[string]interface{}{"key": key},
		}}
	}
	if _, ok := m[key].(uint64); !ok {
		return []ValidationError{{
			Type:    AnomalyWrongType,
			Message: fmt.Sprintf("%s %s has type %T, want unsigned integer", msg, field, m[key]),
			Details: map[string]interface{}{"key": key},
		}}
	}
	return nil
}

// validateValues checks that every item carries a number or a boolean and
// that floats are finite
func validateValues(m map[int]interface{}, msg string) []ValidationError {
	var errs []ValidationError
	for key, v := range m {
		switch val := v.(type) {
		case uint64, int64, bool:
		case float64:
			if math.IsNaN(val) || math.IsInf(val, 0) {
				errs = append(errs, ValidationError{
					Type:    AnomalyNonFinite,
					Message: fmt.Sprintf("%s item 0x%04X is %v", msg, key, val),
					Details: map[string]interface{}{"item": key, "value": val},
				})
			}
		default:
			errs = append(errs, ValidationError{
				Type:    AnomalyWrongType,
				Message: fmt.Sprintf("%s item 0x%04X has type %T", msg, key, v),
				Details: map[string]interface{}{"item": key},
			})
		}
	}
	return errs
}
