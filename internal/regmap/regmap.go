// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package regmap

import (
	"errors"
	"fmt"
	"time"

	"github.com/ffutop/shelfmon/internal/register"
)

// ErrUnknownDevice is returned when no register map claims an address.
var ErrUnknownDevice = errors.New("regmap: no register map for device address")

// AddrRange is the inclusive span of device addresses a register map
// applies to.
type AddrRange struct {
	Min byte
	Max byte
}

func (r AddrRange) Contains(addr byte) bool {
	return addr >= r.Min && addr <= r.Max
}

func (r AddrRange) Overlaps(other AddrRange) bool {
	return r.Min <= other.Max && other.Min <= r.Max
}

// WriteAction describes where a special handler's payload comes from
// and how to encode it. Exactly one of Shell or Value is set: Shell
// runs a command and uses its stdout, Value is a literal.
type WriteAction struct {
	Shell     string
	Value     string
	Interpret register.Kind
}

// SpecialHandler is a periodic write action declared by a register
// map, e.g. pushing the wall clock into a device's time register.
type SpecialHandler struct {
	Reg    uint16
	Len    uint16
	Period time.Duration
	Info   WriteAction
}

// Map is the in-memory form of one register map file: everything the
// monitor needs to talk to one model of device.
type Map struct {
	Name              string
	Addresses         AddrRange
	ProbeRegister     uint16
	DefaultBaudrate   int
	PreferredBaudrate int
	SpecialHandlers   []SpecialHandler
	Registers         map[uint16]*register.Descriptor
}

// At returns the descriptor starting at the given register address.
func (m *Map) At(reg uint16) (*register.Descriptor, error) {
	d, ok := m.Registers[reg]
	if !ok {
		return nil, fmt.Errorf("regmap %s: no register at address %d", m.Name, reg)
	}
	return d, nil
}

// Database holds every loaded register map, keyed by device address
// range.
type Database struct {
	maps []*Map
}

// Maps returns all loaded register maps.
func (db *Database) Maps() []*Map {
	return db.maps
}

// At resolves a device address to its register map.
func (db *Database) At(addr byte) (*Map, error) {
	for _, m := range db.maps {
		if m.Addresses.Contains(addr) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownDevice, addr)
}

// Add validates a map and inserts it into the database.
func (db *Database) Add(m *Map) error {
	if err := validate(m); err != nil {
		return err
	}
	for _, existing := range db.maps {
		if existing.Addresses.Overlaps(m.Addresses) {
			return fmt.Errorf("regmap %s: address range [%d,%d] overlaps %s",
				m.Name, m.Addresses.Min, m.Addresses.Max, existing.Name)
		}
	}
	db.maps = append(db.maps, m)
	return nil
}

// validate enforces the constraints that register value decoding
// relies on, so decode never has to guess at malformed descriptors.
func validate(m *Map) error {
	if m.Name == "" {
		return errors.New("regmap: map name required")
	}
	if m.Addresses.Min > m.Addresses.Max {
		return fmt.Errorf("regmap %s: inverted address range [%d,%d]",
			m.Name, m.Addresses.Min, m.Addresses.Max)
	}
	for reg, d := range m.Registers {
		if d.Name == "" {
			return fmt.Errorf("regmap %s: register %d has no name", m.Name, reg)
		}
		if d.Length == 0 {
			return fmt.Errorf("regmap %s: register %s has zero length", m.Name, d.Name)
		}
		if d.Keep < 1 {
			return fmt.Errorf("regmap %s: register %s keep must be >= 1", m.Name, d.Name)
		}
		switch d.Format {
		case register.Integer, register.Float:
			// The 32-bit combine is only defined over exactly two
			// words; reject everything else here rather than at
			// decode time.
			if d.Length != 2 {
				return fmt.Errorf("regmap %s: register %s format %v requires length 2, got %d",
					m.Name, d.Name, d.Format, d.Length)
			}
		case register.Flags:
			for _, fl := range d.Flags {
				if int(fl.Bit) >= 16*int(d.Length) {
					return fmt.Errorf("regmap %s: register %s flag %q bit %d beyond %d-word span",
						m.Name, d.Name, fl.Name, fl.Bit, d.Length)
				}
			}
		}
	}
	for i, sh := range m.SpecialHandlers {
		if sh.Period <= 0 {
			return fmt.Errorf("regmap %s: special handler %d period must be positive", m.Name, i)
		}
		if (sh.Info.Shell == "") == (sh.Info.Value == "") {
			return fmt.Errorf("regmap %s: special handler %d needs exactly one of shell or value", m.Name, i)
		}
		switch sh.Info.Interpret {
		case register.Integer, register.String:
		default:
			return fmt.Errorf("regmap %s: special handler %d interpret %v not supported",
				m.Name, i, sh.Info.Interpret)
		}
	}
	return nil
}
