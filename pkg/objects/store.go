// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package objects

import (
	"errors"
	"fmt"
	"math"

	"github.com/Thermoquad/verter/pkg/gateway"
	"github.com/Thermoquad/verter/pkg/telemetry"
)

// Errors returned by Read and Write
var (
	ErrUnknownGroup = errors.New("unknown group")
	ErrUnknownItem  = errors.New("unknown item")
	ErrReadOnly     = errors.New("item is read-only")
	ErrBadType      = errors.New("value has the wrong type")
)

// ItemError ties an error to the item that caused it
type ItemError struct {
	ID  int
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item 0x%04X: %v", e.ID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// CommandHook is run after every accepted write to the command group
type CommandHook interface {
	Apply(cmd *gateway.Command)
}

// Store serves reads from the telemetry board and owns the command mailbox.
// It is not safe for concurrent use; the link dispatcher is its only caller.
type Store struct {
	board *telemetry.Board
	hook  CommandHook
	cmd   gateway.Command
}

// NewStore creates a store over board. hook may be nil.
func NewStore(board *telemetry.Board, hook CommandHook) *Store {
	return &Store{board: board, hook: hook}
}

func (s *Store) view() *view {
	return &view{
		meas:  s.board.Measurements(),
		inv:   s.board.Inverter(),
		boost: s.board.Boost(),
		live:  s.board.Live(),
		cmd:   &s.cmd,
	}
}

// Read returns every item of group keyed by id
func (s *Store) Read(group int) (map[int]interface{}, error) {
	members := groupMembers(group)
	if members == nil {
		return nil, fmt.Errorf("group 0x%02X: %w", group, ErrUnknownGroup)
	}
	v := s.view()
	out := make(map[int]interface{})
	for _, g := range members {
		for i := range dictionary {
			if dictionary[i].Group() == g {
				out[dictionary[i].ID] = dictionary[i].get(v)
			}
		}
	}
	return out, nil
}

// Live returns the periodically published subset
func (s *Store) Live() map[int]interface{} {
	v := s.view()
	out := make(map[int]interface{})
	for i := range dictionary {
		if dictionary[i].Live {
			out[dictionary[i].ID] = dictionary[i].get(v)
		}
	}
	return out
}

// Command returns a copy of the command mailbox
func (s *Store) Command() gateway.Command {
	return s.cmd
}

// Write applies a batch of item writes. The batch is rejected as a whole if
// any item is unknown, read-only or of the wrong type. On success the
// command hook runs once and the command group is returned as read back
// after the hook.
func (s *Store) Write(values map[int]interface{}) (map[int]interface{}, error) {
	converted := make(map[*Item]interface{}, len(values))
	for id, raw := range values {
		it, ok := byID[id]
		if !ok {
			return nil, &ItemError{ID: id, Err: ErrUnknownItem}
		}
		if !it.Writable {
			return nil, &ItemError{ID: id, Err: ErrReadOnly}
		}
		x, err := convert(it.Kind, raw)
		if err != nil {
			return nil, &ItemError{ID: id, Err: err}
		}
		converted[it] = x
	}

	for it, x := range converted {
		it.set(&s.cmd, x)
	}
	if s.hook != nil {
		s.hook.Apply(&s.cmd)
	}
	return s.Read(GroupCommand)
}

// convert coerces a decoded CBOR value into the item's kind
func convert(kind Kind, raw interface{}) (interface{}, error) {
	switch kind {
	case Float:
		switch v := raw.(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite %v", ErrBadType, v)
			}
			return v, nil
		case uint64:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case Bool:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	case Uint:
		switch v := raw.(type) {
		case uint64:
			if v <= math.MaxUint8 {
				return v, nil
			}
		case int64:
			if v >= 0 && v <= math.MaxUint8 {
				return uint64(v), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %T for %s item", ErrBadType, raw, kind)
}
