// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"github.com/ffutop/shelfmon/modbus"
)

// Request is the master-side half of a transaction: a command encoded
// into a complete RTU frame.
type Request interface {
	Encode() ([]byte, error)
}

// Response is constructed before any bytes arrive, knowing what is
// expected (echoed parameters, payload sizes). ExpectedLength tells the
// transport how many bytes make up a well-formed reply; Decode then
// validates the CRC and every field, failing fast without ever
// producing a partially populated result.
type Response interface {
	ExpectedLength() int
	Decode(raw []byte) error
}

func checkField(field string, got, want uint32) error {
	if got != want {
		return &modbus.FieldMismatchError{Field: field, Want: want, Got: got}
	}
	return nil
}

// ReadHoldingRegistersReq reads a span of holding registers (0x03).
type ReadHoldingRegistersReq struct {
	DevAddr   byte
	StartAddr uint16
	Count     uint16
}

func (req *ReadHoldingRegistersReq) Encode() ([]byte, error) {
	var f Frame
	f.Push(1, uint32(req.DevAddr))
	f.Push(1, modbus.FuncCodeReadHoldingRegisters)
	f.Push(2, uint32(req.StartAddr))
	f.Push(2, uint32(req.Count))
	return f.Finalize(), nil
}

// ReadHoldingRegistersResp decodes a 0x03 reply into a caller-supplied
// register slice; the slice length fixes the expected payload size.
type ReadHoldingRegistersResp struct {
	DevAddr byte
	Regs    []uint16
}

// NewReadHoldingRegistersResp builds a response expecting len(regs)
// registers. The slice is written only on a fully successful decode.
func NewReadHoldingRegistersResp(regs []uint16) (*ReadHoldingRegistersResp, error) {
	if len(regs) == 0 {
		return nil, &modbus.UnderflowError{Need: 1, Have: 0}
	}
	return &ReadHoldingRegistersResp{Regs: regs}, nil
}

func (resp *ReadHoldingRegistersResp) ExpectedLength() int {
	// addr(1), func(1), byte count(1), data(2*N), crc(2)
	return 5 + 2*len(resp.Regs)
}

func (resp *ReadHoldingRegistersResp) Decode(raw []byte) error {
	f := NewFrame(raw)
	if err := f.Validate(); err != nil {
		return err
	}
	regs, err := f.PopRegisters(len(resp.Regs))
	if err != nil {
		return err
	}
	byteCount, err := f.Pop(1)
	if err != nil {
		return err
	}
	function, err := f.Pop(1)
	if err != nil {
		return err
	}
	devAddr, err := f.Pop(1)
	if err != nil {
		return err
	}
	if err := checkField("function", function, modbus.FuncCodeReadHoldingRegisters); err != nil {
		return err
	}
	if err := checkField("byte_count", byteCount, uint32(2*len(resp.Regs))); err != nil {
		return err
	}
	if err := f.Drained(); err != nil {
		return err
	}
	copy(resp.Regs, regs)
	resp.DevAddr = byte(devAddr)
	return nil
}

// WriteSingleRegisterReq writes one holding register (0x06).
type WriteSingleRegisterReq struct {
	DevAddr byte
	RegOff  uint16
	Value   uint16
}

func (req *WriteSingleRegisterReq) Encode() ([]byte, error) {
	var f Frame
	f.Push(1, uint32(req.DevAddr))
	f.Push(1, modbus.FuncCodeWriteSingleRegister)
	f.Push(2, uint32(req.RegOff))
	f.Push(2, uint32(req.Value))
	return f.Finalize(), nil
}

// WriteSingleRegisterResp decodes the 0x06 echo. ExpectRegOff must
// match the echoed register offset. If ExpectValue is non-nil the
// echoed value is verified as well (write-verify mode).
type WriteSingleRegisterResp struct {
	ExpectRegOff uint16
	ExpectValue  *uint16

	DevAddr byte
	RegOff  uint16
	Value   uint16
}

func (resp *WriteSingleRegisterResp) ExpectedLength() int {
	// addr(1), func(1), reg(2), value(2), crc(2)
	return 8
}

func (resp *WriteSingleRegisterResp) Decode(raw []byte) error {
	f := NewFrame(raw)
	if err := f.Validate(); err != nil {
		return err
	}
	value, err := f.Pop(2)
	if err != nil {
		return err
	}
	regOff, err := f.Pop(2)
	if err != nil {
		return err
	}
	if _, err := f.Pop(1); err != nil { // function
		return err
	}
	devAddr, err := f.Pop(1)
	if err != nil {
		return err
	}
	if err := checkField("reg_off", regOff, uint32(resp.ExpectRegOff)); err != nil {
		return err
	}
	if resp.ExpectValue != nil {
		if err := checkField("value", value, uint32(*resp.ExpectValue)); err != nil {
			return err
		}
	}
	if err := f.Drained(); err != nil {
		return err
	}
	resp.DevAddr = byte(devAddr)
	resp.RegOff = uint16(regOff)
	resp.Value = uint16(value)
	return nil
}

// WriteMultipleRegistersReq writes a span of registers (0x10). The
// payload is accumulated with PushRegister/PushBytes before Encode;
// the header is written only once the payload size is known.
type WriteMultipleRegistersReq struct {
	DevAddr   byte
	StartAddr uint16

	payload []byte
}

// PushRegister appends one register value to the payload.
func (req *WriteMultipleRegistersReq) PushRegister(v uint16) {
	req.payload = append(req.payload, byte(v>>8), byte(v))
}

// PushBytes appends raw payload bytes.
func (req *WriteMultipleRegistersReq) PushBytes(p []byte) {
	req.payload = append(req.payload, p...)
}

// Encode builds the frame. An odd payload is padded with one zero byte
// to keep register-aligned width.
func (req *WriteMultipleRegistersReq) Encode() ([]byte, error) {
	if len(req.payload) == 0 {
		return nil, &modbus.UnderflowError{Need: 2, Have: 0}
	}
	data := req.payload
	if len(data)%2 != 0 {
		data = append(data, 0)
	}
	regCount := len(data) / 2

	var f Frame
	f.Push(1, uint32(req.DevAddr))
	f.Push(1, modbus.FuncCodeWriteMultipleRegisters)
	f.Push(2, uint32(req.StartAddr))
	f.Push(2, uint32(regCount))
	f.Push(1, uint32(len(data)))
	f.PushBytes(data)
	return f.Finalize(), nil
}

// WriteMultipleRegistersResp decodes the 0x10 echo and verifies every
// echoed parameter against the request.
type WriteMultipleRegistersResp struct {
	ExpectDevAddr   byte
	ExpectStartAddr uint16
	ExpectRegCount  uint16
}

func (resp *WriteMultipleRegistersResp) ExpectedLength() int {
	// addr(1), func(1), reg_off(2), reg_count(2), crc(2)
	return 8
}

func (resp *WriteMultipleRegistersResp) Decode(raw []byte) error {
	f := NewFrame(raw)
	if err := f.Validate(); err != nil {
		return err
	}
	regCount, err := f.Pop(2)
	if err != nil {
		return err
	}
	startAddr, err := f.Pop(2)
	if err != nil {
		return err
	}
	function, err := f.Pop(1)
	if err != nil {
		return err
	}
	devAddr, err := f.Pop(1)
	if err != nil {
		return err
	}
	if err := checkField("dev_addr", devAddr, uint32(resp.ExpectDevAddr)); err != nil {
		return err
	}
	if err := checkField("function", function, modbus.FuncCodeWriteMultipleRegisters); err != nil {
		return err
	}
	if err := checkField("starting_addr", startAddr, uint32(resp.ExpectStartAddr)); err != nil {
		return err
	}
	if err := checkField("reg_count", regCount, uint32(resp.ExpectRegCount)); err != nil {
		return err
	}
	return f.Drained()
}

// FileRecord identifies one record in a device's extended file area.
// On requests, len(Data) declares how many registers to read; on
// responses, Data receives the returned registers.
type FileRecord struct {
	FileNum uint16
	RecNum  uint16
	Data    []uint16
}

// ReadFileRecordReq reads a list of file records (0x14). The total
// byte count precedes the record list on the wire and is backpatched
// once all records are serialized.
type ReadFileRecordReq struct {
	DevAddr byte
	Records []FileRecord
}

func (req *ReadFileRecordReq) Encode() ([]byte, error) {
	var f Frame
	f.Push(1, uint32(req.DevAddr))
	f.Push(1, modbus.FuncCodeReadFileRecord)
	f.Push(1, 0) // byte count, patched below
	for _, rec := range req.Records {
		f.Push(1, modbus.FileRecordReferenceType)
		f.Push(2, uint32(rec.FileNum))
		f.Push(2, uint32(rec.RecNum))
		f.Push(2, uint32(len(rec.Data)))
	}
	if err := f.Patch(2, byte(f.Len()-3)); err != nil {
		return nil, err
	}
	return f.Finalize(), nil
}

// ReadFileRecordResp decodes a 0x14 reply. Records must mirror the
// request: each Data slice is pre-sized to the requested length and is
// filled only if the whole frame decodes cleanly.
type ReadFileRecordResp struct {
	DevAddr byte
	Records []FileRecord
}

// NewReadFileRecordResp builds a response expecting the given records.
func NewReadFileRecordResp(devAddr byte, records []FileRecord) (*ReadFileRecordResp, error) {
	if len(records) == 0 {
		return nil, &modbus.UnderflowError{Need: 1, Have: 0}
	}
	return &ReadFileRecordResp{DevAddr: devAddr, Records: records}, nil
}

func (resp *ReadFileRecordResp) ExpectedLength() int {
	// addr(1), func(1), byte count(1), crc(2)
	n := 5
	for _, rec := range resp.Records {
		// field length(1), reference(1), data(2*len)
		n += 2 + 2*len(rec.Data)
	}
	return n
}

func (resp *ReadFileRecordResp) Decode(raw []byte) error {
	f := NewFrame(raw)
	if err := f.Validate(); err != nil {
		return err
	}
	// Everything between addr/func/byte-count and the CRC belongs to
	// the records; this is what the byte count field must declare.
	wantBytes := f.Len() - 3

	data := make([][]uint16, len(resp.Records))
	// Records pop in reverse declaration order: the last record on the
	// wire is nearest the tail.
	for i := len(resp.Records) - 1; i >= 0; i-- {
		rec := &resp.Records[i]
		regs, err := f.PopRegisters(len(rec.Data))
		if err != nil {
			return err
		}
		ref, err := f.Pop(1)
		if err != nil {
			return err
		}
		fieldLen, err := f.Pop(1)
		if err != nil {
			return err
		}
		if err := checkField("reference", ref, modbus.FileRecordReferenceType); err != nil {
			return err
		}
		if err := checkField("field_size", fieldLen, uint32(1+2*len(rec.Data))); err != nil {
			return err
		}
		data[i] = regs
	}
	byteCount, err := f.Pop(1)
	if err != nil {
		return err
	}
	function, err := f.Pop(1)
	if err != nil {
		return err
	}
	devAddr, err := f.Pop(1)
	if err != nil {
		return err
	}
	if err := checkField("data_len", byteCount, uint32(wantBytes)); err != nil {
		return err
	}
	if err := checkField("function", function, modbus.FuncCodeReadFileRecord); err != nil {
		return err
	}
	if err := checkField("addr", devAddr, uint32(resp.DevAddr)); err != nil {
		return err
	}
	if err := f.Drained(); err != nil {
		return err
	}
	for i := range resp.Records {
		copy(resp.Records[i].Data, data[i])
	}
	return nil
}
