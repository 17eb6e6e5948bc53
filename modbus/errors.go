// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "fmt"

// CRCError reports a corrupted frame. It is fatal to the transaction;
// the transport decides whether to retry.
type CRCError struct {
	Want uint16
	Got  uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("modbus: crc mismatch: expected 0x%04x, got 0x%04x", e.Want, e.Got)
}

// UnderflowError reports that fewer bytes are available than a command's
// minimum, either on the wire or in a partially drained frame.
type UnderflowError struct {
	Need int
	Have int
}

func (e *UnderflowError) Error() string {
	return fmt.Sprintf("modbus: need %d bytes, have %d", e.Need, e.Have)
}

// FieldMismatchError reports a decoded field that disagrees with the
// value the caller required or the request echoed.
type FieldMismatchError struct {
	Field string
	Want  uint32
	Got   uint32
}

func (e *FieldMismatchError) Error() string {
	return fmt.Sprintf("modbus: field %q: expected %d, got %d", e.Field, e.Want, e.Got)
}

// FramingError reports a frame that was not consumed exactly to empty
// after a full decode.
type FramingError struct {
	Remaining int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("modbus: %d bytes left over after decode", e.Remaining)
}
