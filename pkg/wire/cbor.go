// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package wire

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// message is the CBOR body of every frame: [msg_type, payload_map]
type message struct {
	_     struct{} `cbor:",toarray"`
	Type  uint8
	Items map[int]interface{}
}

var (
	// encMode writes map keys in canonical order and floats in the
	// shortest form that round-trips exactly
	encMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		ShortestFloat: cbor.ShortestFloat16,
		NaNConvert:    cbor.NaNConvert7e00,
		InfConvert:    cbor.InfConvertFloat16,
	})
	decMode = mustDecMode(cbor.DecOptions{
		MaxArrayElements: MaxPayloadSize,
		MaxMapPairs:      MaxPayloadSize,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: CBOR encode options: %v", err))
	}
	return em
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: CBOR decode options: %v", err))
	}
	return dm
}

func marshalMessage(msgType uint8, items map[int]interface{}) ([]byte, error) {
	if len(items) == 0 {
		items = nil
	}
	return encMode.Marshal(message{Type: msgType, Items: items})
}

func parseMessage(body []byte) (message, error) {
	var m message
	if len(body) == 0 {
		return m, errors.New("empty CBOR body")
	}
	if err := decMode.Unmarshal(body, &m); err != nil {
		return message{}, fmt.Errorf("decode CBOR message: %w", err)
	}
	return m, nil
}

// GetMapUint returns an item as an unsigned integer. Non-negative integral
// floats are accepted.
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	switch v := m[key].(type) {
	case uint64:
		return v, true
	case int64:
		if v >= 0 {
			return uint64(v), true
		}
	case float64:
		if v >= 0 && v == math.Trunc(v) && v < math.MaxUint64 {
			return uint64(v), true
		}
	}
	return 0, false
}

// GetMapFloat returns a numeric item as float64
func GetMapFloat(m map[int]interface{}, key int) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// GetMapBool returns a boolean item
func GetMapBool(m map[int]interface{}, key int) (bool, bool) {
	v, ok := m[key].(bool)
	return v, ok
}

// GetMapString returns a text item
func GetMapString(m map[int]interface{}, key int) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}
