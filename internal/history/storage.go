// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package history

import (
	"sort"

	"github.com/ffutop/shelfmon/internal/register"
)

// Entry binds one register store to the device address that owns it.
// The pair (DevAddr, Store.Addr) identifies the store across restarts.
type Entry struct {
	DevAddr byte
	Store   *register.Store
}

// Storage persists the circular history of every polled register so
// readings survive a daemon restart.
type Storage interface {
	// Load restores the store contents from disk. A missing or
	// incompatible file leaves the stores in their never-read state.
	Load(entries []Entry) error

	// Save persists the current store contents.
	Save(entries []Entry) error

	Close() error
}

// sortEntries puts entries into the canonical layout order.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DevAddr != entries[j].DevAddr {
			return entries[i].DevAddr < entries[j].DevAddr
		}
		return entries[i].Store.Addr < entries[j].Store.Addr
	})
}
