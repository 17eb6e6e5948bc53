// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package register

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Register is one timestamped snapshot of a register span's raw words.
// Timestamp 0 means the slot was never populated by a real read.
type Register struct {
	Desc      *Descriptor
	Timestamp int64
	Words     []uint16
}

// New allocates an empty (never-read) register for the descriptor.
func New(desc *Descriptor) Register {
	return Register{Desc: desc, Words: make([]uint16, desc.Length)}
}

// Valid reports whether the register holds a real read.
func (r *Register) Valid() bool {
	return r.Timestamp != 0
}

// Equal compares raw words. It is defined only between two valid
// registers; any comparison involving a never-read register is false.
func (r *Register) Equal(other *Register) bool {
	if !r.Valid() || !other.Valid() || len(r.Words) != len(other.Words) {
		return false
	}
	for i := range r.Words {
		if r.Words[i] != other.Words[i] {
			return false
		}
	}
	return true
}

// Value interprets the snapshot according to its descriptor.
func (r *Register) Value() (Value, error) {
	return DecodeValue(r.Words, r.Desc, r.Timestamp)
}

func (r *Register) String() string {
	var sb strings.Builder
	for _, w := range r.Words {
		fmt.Fprintf(&sb, "%04x", w)
	}
	return sb.String()
}

// MarshalJSON serializes the typed interpretation, which carries the
// tag, the timestamp and the payload.
func (r *Register) MarshalJSON() ([]byte, error) {
	v, err := r.Value()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
