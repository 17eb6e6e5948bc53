// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ffutop/shelfmon/internal/register"
)

func testEntries() []Entry {
	serial := &register.Descriptor{Begin: 0x00, Length: 4, Name: "serial", Keep: 1, Format: register.String}
	temp := &register.Descriptor{Begin: 0x10, Length: 2, Name: "temp", Keep: 3, Format: register.Integer}
	return []Entry{
		{DevAddr: 0xA4, Store: register.NewStore(temp)},
		{DevAddr: 0xA0, Store: register.NewStore(serial)},
	}
}

func fill(e Entry, ts int64, words []uint16) {
	front := e.Store.Front()
	copy(front.Words, words)
	front.Timestamp = ts
	e.Store.Advance()
}

// byAddr finds the entry for a device address; Load reorders the slice.
func byAddr(t *testing.T, entries []Entry, addr byte) Entry {
	t.Helper()
	for _, e := range entries {
		if e.DevAddr == addr {
			return e
		}
	}
	t.Fatalf("no entry for device %02x", addr)
	return Entry{}
}

func TestMmapRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.bin")

	entries := testEntries()
	ms := NewMmapStorage(path)
	if err := ms.Load(entries); err != nil {
		t.Fatalf("Load() = %v", err)
	}

	tempEntry := byAddr(t, entries, 0xA4)
	serialEntry := byAddr(t, entries, 0xA0)
	fill(tempEntry, 100, []uint16{0x0001, 0x0002})
	fill(tempEntry, 200, []uint16{0x0003, 0x0004})
	fill(serialEntry, 150, []uint16{0x4142, 0x4344, 0x0000, 0x0000})

	if err := ms.Save(entries); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if err := ms.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	// A fresh process: new stores, same maps.
	restored := testEntries()
	ms = NewMmapStorage(path)
	if err := ms.Load(restored); err != nil {
		t.Fatalf("Load() after restart = %v", err)
	}
	defer ms.Close()

	temp := byAddr(t, restored, 0xA4).Store
	back := temp.Back()
	if back.Timestamp != 200 || back.Words[0] != 0x0003 || back.Words[1] != 0x0004 {
		t.Errorf("temp back = ts %d words %v", back.Timestamp, back.Words)
	}
	if temp.Cursor() != 2 {
		t.Errorf("temp cursor = %d, want 2", temp.Cursor())
	}

	serial := byAddr(t, restored, 0xA0).Store
	if got := serial.Back(); got.Timestamp != 150 || got.Words[0] != 0x4142 {
		t.Errorf("serial back = ts %d words %v", got.Timestamp, got.Words)
	}
}

func TestMmapLayoutChangeStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.bin")

	entries := testEntries()
	ms := NewMmapStorage(path)
	if err := ms.Load(entries); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	fill(byAddr(t, entries, 0xA4), 100, []uint16{0x0001, 0x0002})
	if err := ms.Save(entries); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	ms.Close()

	// A register map change alters the layout size.
	grown := testEntries()
	grown = append(grown, Entry{
		DevAddr: 0xB0,
		Store:   register.NewStore(&register.Descriptor{Begin: 0x20, Length: 1, Name: "extra", Keep: 2}),
	})
	ms = NewMmapStorage(path)
	if err := ms.Load(grown); err != nil {
		t.Fatalf("Load() after map change = %v", err)
	}
	defer ms.Close()

	for _, e := range grown {
		for i := 0; i < e.Store.Len(); i++ {
			if e.Store.At(i).Valid() {
				t.Errorf("store %q slot %d restored from stale file", e.Store.Descriptor().Name, i)
			}
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != int64(totalSize(grown)) {
		t.Errorf("file size = %d, want %d", fi.Size(), totalSize(grown))
	}
}

func TestMemoryStorageIsNoop(t *testing.T) {
	ms := NewMemoryStorage()
	entries := testEntries()
	if err := ms.Load(entries); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if err := ms.Save(entries); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if err := ms.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
}
