// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package history

import (
	"encoding/binary"

	"github.com/ffutop/shelfmon/internal/register"
)

// On-disk layout, all fields little-endian:
//
// - Header: magic uint32, entry count uint32 (Offset 0)
// - Per entry, in (DevAddr, Store.Addr) order:
//   - cursor uint32
//   - keep slots of: timestamp int64, length register words uint16 each
//
// The layout is fully determined by the register maps. If the maps
// change, the file size or entry count no longer matches and the file
// is reinitialized rather than misread.
const (
	fileMagic  = uint32(0x53484D31) // "SHM1"
	headerSize = 8
	cursorSize = 4
	slotHeader = 8 // timestamp
)

func slotSize(length uint16) int {
	return slotHeader + 2*int(length)
}

func entrySize(s *register.Store) int {
	return cursorSize + s.Len()*slotSize(s.Descriptor().Length)
}

// totalSize returns the file size the given entries require.
func totalSize(entries []Entry) int {
	size := headerSize
	for _, e := range entries {
		size += entrySize(e.Store)
	}
	return size
}

// writeHeader stamps the magic and entry count at the front of data.
func writeHeader(data []byte, count int) {
	binary.LittleEndian.PutUint32(data[0:4], fileMagic)
	binary.LittleEndian.PutUint32(data[4:8], uint32(count))
}

// checkHeader reports whether data carries a header for count entries.
func checkHeader(data []byte, count int) bool {
	if len(data) < headerSize {
		return false
	}
	return binary.LittleEndian.Uint32(data[0:4]) == fileMagic &&
		binary.LittleEndian.Uint32(data[4:8]) == uint32(count)
}

// writeEntry serializes one store at data[off:] and returns the offset
// past it.
func writeEntry(data []byte, off int, s *register.Store) int {
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(s.Cursor()))
	off += cursorSize
	for i := 0; i < s.Len(); i++ {
		reg := s.At(i)
		binary.LittleEndian.PutUint64(data[off:off+8], uint64(reg.Timestamp))
		off += slotHeader
		for _, w := range reg.Words {
			binary.LittleEndian.PutUint16(data[off:off+2], w)
			off += 2
		}
	}
	return off
}

// readEntry restores one store from data[off:] and returns the offset
// past it.
func readEntry(data []byte, off int, s *register.Store) int {
	s.SetCursor(int(binary.LittleEndian.Uint32(data[off : off+4])))
	off += cursorSize
	for i := 0; i < s.Len(); i++ {
		reg := s.At(i)
		reg.Timestamp = int64(binary.LittleEndian.Uint64(data[off : off+8]))
		off += slotHeader
		for j := range reg.Words {
			reg.Words[j] = binary.LittleEndian.Uint16(data[off : off+2])
			off += 2
		}
	}
	return off
}
