// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package register

import "fmt"

// Kind dictates how a register's raw words are interpreted.
type Kind uint8

const (
	Hex Kind = iota
	String
	Integer
	Float
	Flags
)

func (k Kind) String() string {
	switch k {
	case Hex:
		return "hex"
	case String:
		return "string"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Flags:
		return "flags"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses the format names used in register map files.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "hex":
		return Hex, nil
	case "string", "ascii":
		return String, nil
	case "integer":
		return Integer, nil
	case "float":
		return Float, nil
	case "flags":
		return Flags, nil
	}
	return Hex, fmt.Errorf("register: unknown format %q", s)
}

// FlagDesc names one bit of a flag register. Bit positions index the
// register span as one big-endian value, bit 0 being the least
// significant bit of the last word.
type FlagDesc struct {
	Bit  uint8
	Name string
}

// Descriptor is the configuration-supplied description of one register
// span: where it lives, how deep its history is kept and how its words
// are interpreted. Descriptors are built once at register map load and
// are read-only afterwards.
type Descriptor struct {
	// Begin is the starting register address.
	Begin uint16
	// Length is the span size in 16-bit words.
	Length uint16
	Name   string
	// Keep is the depth of the historical record.
	Keep uint16
	// ChangesOnly retains a reading only when it differs from the
	// previous one. Useful for state registers.
	ChangesOnly bool

	Format Kind
	// Precision is the fixed-point scale for Float registers.
	Precision uint16
	// Flags describes the bits of a Flags register, in the order they
	// should be reported.
	Flags []FlagDesc
}
