// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package register

// Store is the fixed-depth circular history of one register span. The
// write cursor always points at the slot to be overwritten next; the
// most recently completed write sits just behind it. The store itself
// is not synchronized: the poll loop is the single writer and must
// serialize readers.
type Store struct {
	desc    *Descriptor
	Addr    uint16
	history []Register
	idx     int
}

// NewStore allocates a store with capacity desc.Keep (minimum 1), all
// slots in the never-read state.
func NewStore(desc *Descriptor) *Store {
	keep := int(desc.Keep)
	if keep < 1 {
		keep = 1
	}
	history := make([]Register, keep)
	for i := range history {
		history[i] = New(desc)
	}
	return &Store{desc: desc, Addr: desc.Begin, history: history}
}

// Descriptor returns the descriptor the store was built from.
func (s *Store) Descriptor() *Descriptor {
	return s.desc
}

// Front returns the slot the next write goes into.
func (s *Store) Front() *Register {
	return &s.history[s.idx]
}

// Back returns the most recently completed write.
func (s *Store) Back() *Register {
	if s.idx == 0 {
		return &s.history[len(s.history)-1]
	}
	return &s.history[s.idx-1]
}

// Advance moves the write cursor forward by one slot. It is the only
// cursor mutation and is performed by the poll loop after it has
// filled Front.
func (s *Store) Advance() {
	s.idx = (s.idx + 1) % len(s.history)
}

// Len returns the history capacity.
func (s *Store) Len() int {
	return len(s.history)
}

// At returns the i-th raw slot and Cursor/SetCursor expose the write
// cursor. They exist for the persistence layer, which serializes the
// ring verbatim; everything else goes through Front/Back/Snapshot.
func (s *Store) At(i int) *Register {
	return &s.history[i]
}

func (s *Store) Cursor() int {
	return s.idx
}

func (s *Store) SetCursor(i int) {
	s.idx = i % len(s.history)
}

// Snapshot flattens the history into a StoreValue, ordered oldest to
// newest. Never-read slots are skipped.
func (s *Store) Snapshot() (StoreValue, error) {
	sv := StoreValue{Addr: s.Addr, Name: s.desc.Name}
	for i := 0; i < len(s.history); i++ {
		reg := &s.history[(s.idx+i)%len(s.history)]
		if !reg.Valid() {
			continue
		}
		v, err := reg.Value()
		if err != nil {
			return StoreValue{}, err
		}
		sv.History = append(sv.History, v)
	}
	return sv, nil
}

// StoreValue is the flattened export of one store's history, consumed
// by reporting.
type StoreValue struct {
	Addr    uint16  `json:"regAddress"`
	Name    string  `json:"name"`
	History []Value `json:"history"`
}
