// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package regmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ffutop/shelfmon/internal/register"
)

// rawMap mirrors the register map JSON layout.
type rawMap struct {
	Name              string        `mapstructure:"name"`
	AddressRange      []int         `mapstructure:"address_range"`
	ProbeRegister     int           `mapstructure:"probe_register"`
	DefaultBaudrate   int           `mapstructure:"default_baudrate"`
	PreferredBaudrate int           `mapstructure:"preferred_baudrate"`
	SpecialHandlers   []rawHandler  `mapstructure:"special_handlers"`
	Registers         []rawRegister `mapstructure:"registers"`
}

type rawRegister struct {
	Begin       int       `mapstructure:"begin"`
	Length      int       `mapstructure:"length"`
	Name        string    `mapstructure:"name"`
	Keep        int       `mapstructure:"keep"`
	ChangesOnly bool      `mapstructure:"changes_only"`
	Format      string    `mapstructure:"format"`
	Precision   int       `mapstructure:"precision"`
	Flags       []rawFlag `mapstructure:"flags"`
}

type rawFlag struct {
	Bit  int    `mapstructure:"bit"`
	Name string `mapstructure:"name"`
}

type rawHandler struct {
	Reg    int    `mapstructure:"reg"`
	Len    int    `mapstructure:"len"`
	Period int    `mapstructure:"period"` // seconds
	Action string `mapstructure:"action"`
	Info   struct {
		Shell     string `mapstructure:"shell"`
		Value     string `mapstructure:"value"`
		Interpret string `mapstructure:"interpret"`
	} `mapstructure:"info"`
}

// LoadDirectory loads every .json register map in dir into a database.
func LoadDirectory(dir string) (*Database, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("regmap: read dir: %w", err)
	}

	db := &Database{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		m, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if err := db.Add(m); err != nil {
			return nil, err
		}
	}
	if len(db.maps) == 0 {
		return nil, fmt.Errorf("regmap: no register maps found in %s", dir)
	}
	return db, nil
}

// LoadFile loads and validates a single register map file.
func LoadFile(path string) (*Map, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("regmap: read %s: %w", path, err)
	}

	var raw rawMap
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("regmap: unmarshal %s: %w", path, err)
	}
	m, err := build(&raw)
	if err != nil {
		return nil, fmt.Errorf("regmap: %s: %w", path, err)
	}
	return m, nil
}

func build(raw *rawMap) (*Map, error) {
	if len(raw.AddressRange) != 2 {
		return nil, fmt.Errorf("address_range must have 2 entries, got %d", len(raw.AddressRange))
	}
	m := &Map{
		Name:              raw.Name,
		Addresses:         AddrRange{Min: byte(raw.AddressRange[0]), Max: byte(raw.AddressRange[1])},
		ProbeRegister:     uint16(raw.ProbeRegister),
		DefaultBaudrate:   raw.DefaultBaudrate,
		PreferredBaudrate: raw.PreferredBaudrate,
		Registers:         make(map[uint16]*register.Descriptor, len(raw.Registers)),
	}

	for _, rr := range raw.Registers {
		format, err := register.ParseKind(rr.Format)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", rr.Name, err)
		}
		keep := rr.Keep
		if keep == 0 {
			keep = 1
		}
		d := &register.Descriptor{
			Begin:       uint16(rr.Begin),
			Length:      uint16(rr.Length),
			Name:        rr.Name,
			Keep:        uint16(keep),
			ChangesOnly: rr.ChangesOnly,
			Format:      format,
			Precision:   uint16(rr.Precision),
		}
		for _, fl := range rr.Flags {
			d.Flags = append(d.Flags, register.FlagDesc{Bit: uint8(fl.Bit), Name: fl.Name})
		}
		if _, dup := m.Registers[d.Begin]; dup {
			return nil, fmt.Errorf("duplicate register address %d", d.Begin)
		}
		m.Registers[d.Begin] = d
	}

	for i, rh := range raw.SpecialHandlers {
		if rh.Action != "write" {
			return nil, fmt.Errorf("special handler %d: unknown action %q", i, rh.Action)
		}
		interpret, err := register.ParseKind(rh.Info.Interpret)
		if err != nil {
			return nil, fmt.Errorf("special handler %d: %w", i, err)
		}
		m.SpecialHandlers = append(m.SpecialHandlers, SpecialHandler{
			Reg:    uint16(rh.Reg),
			Len:    uint16(rh.Len),
			Period: time.Duration(rh.Period) * time.Second,
			Info: WriteAction{
				Shell:     rh.Info.Shell,
				Value:     rh.Info.Value,
				Interpret: interpret,
			},
		})
	}
	return m, nil
}
