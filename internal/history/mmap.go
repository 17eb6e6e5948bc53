// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package history

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapStorage implements persistence using a memory-mapped file.
// This provides OS-managed persistence and efficient memory usage.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Load maps the file and restores the store contents from it. A file
// whose size or header does not match the current register maps is
// reinitialized and the stores are left in their never-read state.
func (ms *MmapStorage) Load(entries []Entry) error {
	sortEntries(entries)

	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open mmap file: %w", err)
	}
	ms.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		ms.file = nil
		return err
	}

	want := int64(totalSize(entries))
	fresh := fi.Size() != want
	if fresh {
		if err := f.Truncate(want); err != nil {
			f.Close()
			ms.file = nil
			return fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		ms.file = nil
		return fmt.Errorf("mmap failed: %w", err)
	}
	ms.data = data

	if fresh || !checkHeader(data, len(entries)) {
		slog.Warn("history file does not match register maps, starting fresh", "path", ms.path)
		for i := range data {
			data[i] = 0
		}
		writeHeader(data, len(entries))
		return ms.data.Flush()
	}

	off := headerSize
	for _, e := range entries {
		off = readEntry(data, off, e.Store)
	}
	return nil
}

// Save serializes the stores into the mapping and flushes it to disk.
func (ms *MmapStorage) Save(entries []Entry) error {
	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	sortEntries(entries)

	off := headerSize
	for _, e := range entries {
		off = writeEntry(ms.data, off, e.Store)
	}
	return ms.data.Flush()
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
