// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package register

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is one typed interpretation of a register's raw words at one
// read time. Each Kind has its own concrete type, so a payload can
// never be read under the wrong tag.
type Value interface {
	Kind() Kind
	// Time is the unix time of the read; 0 only for values that were
	// never produced by a real read.
	Time() int64
	String() string
	json.Marshaler
}

// envelope is the serialized form shared by all value kinds.
type envelope struct {
	Type  string `json:"type"`
	Time  int64  `json:"time"`
	Value any    `json:"value"`
}

// HexValue is the raw big-endian byte expansion of the words.
type HexValue struct {
	Timestamp int64
	Raw       []byte
}

func (v *HexValue) Kind() Kind     { return Hex }
func (v *HexValue) Time() int64    { return v.Timestamp }
func (v *HexValue) String() string { return hex.EncodeToString(v.Raw) }
func (v *HexValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: "hex", Time: v.Timestamp, Value: v.String()})
}

// StringValue is the byte expansion reinterpreted as text.
type StringValue struct {
	Timestamp int64
	Text      string
}

func (v *StringValue) Kind() Kind     { return String }
func (v *StringValue) Time() int64    { return v.Timestamp }
func (v *StringValue) String() string { return v.Text }
func (v *StringValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: "string", Time: v.Timestamp, Value: v.Text})
}

// IntegerValue is two words combined big-endian into a signed 32-bit
// integer.
type IntegerValue struct {
	Timestamp int64
	Int       int32
}

func (v *IntegerValue) Kind() Kind     { return Integer }
func (v *IntegerValue) Time() int64    { return v.Timestamp }
func (v *IntegerValue) String() string { return strconv.FormatInt(int64(v.Int), 10) }
func (v *IntegerValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: "integer", Time: v.Timestamp, Value: v.Int})
}

// FloatValue is the 32-bit combination scaled down by the descriptor's
// precision.
type FloatValue struct {
	Timestamp int64
	Float     float64
}

func (v *FloatValue) Kind() Kind     { return Float }
func (v *FloatValue) Time() int64    { return v.Timestamp }
func (v *FloatValue) String() string { return strconv.FormatFloat(v.Float, 'f', -1, 64) }
func (v *FloatValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: "float", Time: v.Timestamp, Value: v.Float})
}

// Flag is one named bit test result.
type Flag struct {
	Set  bool   `json:"value"`
	Name string `json:"name"`
}

// FlagsValue is the per-bit breakdown of a flag register, in the
// descriptor's declaration order.
type FlagsValue struct {
	Timestamp int64
	Flags     []Flag
}

func (v *FlagsValue) Kind() Kind  { return Flags }
func (v *FlagsValue) Time() int64 { return v.Timestamp }
func (v *FlagsValue) String() string {
	var sb strings.Builder
	for i, fl := range v.Flags {
		if i > 0 {
			sb.WriteByte(' ')
		}
		set := '0'
		if fl.Set {
			set = '1'
		}
		fmt.Fprintf(&sb, "%s=%c", fl.Name, set)
	}
	return sb.String()
}
func (v *FlagsValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: "flags", Time: v.Timestamp, Value: v.Flags})
}

// wordBytes re-expands words into their big-endian wire bytes.
func wordBytes(words []uint16) []byte {
	b := make([]byte, 0, 2*len(words))
	for _, w := range words {
		b = append(b, byte(w>>8), byte(w))
	}
	return b
}

// DecodeValue interprets raw words according to the descriptor. The
// Integer and Float formats require exactly two words; register map
// validation enforces that at load time, and DecodeValue re-checks it
// for descriptors built in code.
func DecodeValue(words []uint16, desc *Descriptor, timestamp int64) (Value, error) {
	switch desc.Format {
	case Hex:
		return &HexValue{Timestamp: timestamp, Raw: wordBytes(words)}, nil
	case String:
		text := strings.TrimRight(string(wordBytes(words)), "\x00 ")
		return &StringValue{Timestamp: timestamp, Text: text}, nil
	case Integer:
		n, err := combineWords(words)
		if err != nil {
			return nil, err
		}
		return &IntegerValue{Timestamp: timestamp, Int: n}, nil
	case Float:
		n, err := combineWords(words)
		if err != nil {
			return nil, err
		}
		scale := math.Pow10(int(desc.Precision))
		return &FloatValue{Timestamp: timestamp, Float: float64(n) / scale}, nil
	case Flags:
		flags := make([]Flag, 0, len(desc.Flags))
		for _, fd := range desc.Flags {
			flags = append(flags, Flag{Set: testBit(words, fd.Bit), Name: fd.Name})
		}
		return &FlagsValue{Timestamp: timestamp, Flags: flags}, nil
	}
	return nil, fmt.Errorf("register: unknown format %v", desc.Format)
}

// combineWords folds exactly two words into a signed 32-bit value.
func combineWords(words []uint16) (int32, error) {
	if len(words) != 2 {
		return 0, fmt.Errorf("register: integer decode needs exactly 2 words, have %d", len(words))
	}
	return int32(uint32(words[0])<<16 | uint32(words[1])), nil
}

// testBit tests one bit of the span viewed as a single big-endian
// value.
func testBit(words []uint16, bit uint8) bool {
	word := len(words) - 1 - int(bit)/16
	if word < 0 || word >= len(words) {
		return false
	}
	return words[word]&(1<<(bit%16)) != 0
}
