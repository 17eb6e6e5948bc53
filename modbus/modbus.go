// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// Function codes used by the rack monitor. The devices on the bus are
// power shelves and sensors that expose everything through holding
// registers and file records.
const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10
	FuncCodeReadFileRecord         = 0x14
)

// FileRecordReferenceType is the only reference type defined by the
// Modbus specification for file record access.
const FileRecordReferenceType = 0x06
