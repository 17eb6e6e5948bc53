// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ffutop/shelfmon/modbus"
)

func fieldMismatch(t *testing.T, err error, field string) {
	t.Helper()
	var fm *modbus.FieldMismatchError
	if !errors.As(err, &fm) {
		t.Fatalf("err = %v, want FieldMismatchError", err)
	}
	if fm.Field != field {
		t.Fatalf("mismatched field = %q, want %q", fm.Field, field)
	}
}

func TestReadHoldingRegistersReqEncode(t *testing.T) {
	req := &ReadHoldingRegistersReq{DevAddr: 0x01, StartAddr: 0x0000, Count: 0x0001}
	raw, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if !bytes.Equal(raw, want) {
		t.Fatalf("Encode() = % x, want % x", raw, want)
	}
}

func TestReadHoldingRegistersRespRoundTrip(t *testing.T) {
	var f Frame
	f.Push(1, 0xA4)
	f.Push(1, modbus.FuncCodeReadHoldingRegisters)
	f.Push(1, 4)
	f.PushRegisters([]uint16{0x1234, 0x5678})
	raw := f.Finalize()

	resp, err := NewReadHoldingRegistersResp(make([]uint16, 2))
	if err != nil {
		t.Fatalf("NewReadHoldingRegistersResp() = %v", err)
	}
	if got := resp.ExpectedLength(); got != len(raw) {
		t.Fatalf("ExpectedLength() = %d, want %d", got, len(raw))
	}
	if err := resp.Decode(raw); err != nil {
		t.Fatalf("Decode() = %v", err)
	}
	if resp.DevAddr != 0xA4 {
		t.Fatalf("DevAddr = %02x, want a4", resp.DevAddr)
	}
	if resp.Regs[0] != 0x1234 || resp.Regs[1] != 0x5678 {
		t.Fatalf("Regs = %04x, want 1234 5678", resp.Regs)
	}
}

func TestReadHoldingRegistersRespFieldChecks(t *testing.T) {
	build := func(function byte, byteCount byte) []byte {
		var f Frame
		f.Push(1, 0xA4)
		f.Push(1, uint32(function))
		f.Push(1, uint32(byteCount))
		f.PushRegisters([]uint16{0x1234, 0x5678})
		return f.Finalize()
	}

	tests := []struct {
		name  string
		raw   []byte
		field string
	}{
		{"BadByteCount", build(modbus.FuncCodeReadHoldingRegisters, 3), "byte_count"},
		{"BadFunction", build(0x83, 4), "function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := NewReadHoldingRegistersResp(make([]uint16, 2))
			fieldMismatch(t, resp.Decode(tt.raw), tt.field)
		})
	}
}

func TestReadHoldingRegistersRespEmpty(t *testing.T) {
	_, err := NewReadHoldingRegistersResp(nil)
	var uf *modbus.UnderflowError
	if !errors.As(err, &uf) {
		t.Fatalf("NewReadHoldingRegistersResp(nil) = %v, want UnderflowError", err)
	}
}

func TestReadHoldingRegistersRespShortFrame(t *testing.T) {
	resp, _ := NewReadHoldingRegistersResp(make([]uint16, 2))
	err := resp.Decode([]byte{0x01, 0x03})
	var uf *modbus.UnderflowError
	if !errors.As(err, &uf) {
		t.Fatalf("Decode(short) = %v, want UnderflowError", err)
	}
}

func TestWriteSingleRegisterRoundTrip(t *testing.T) {
	req := &WriteSingleRegisterReq{DevAddr: 0xA4, RegOff: 0x0102, Value: 0xCAFE}
	raw, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	// The reply is a byte-for-byte echo of the request.
	resp := &WriteSingleRegisterResp{ExpectRegOff: 0x0102}
	if err := resp.Decode(raw); err != nil {
		t.Fatalf("Decode() = %v", err)
	}
	if resp.Value != 0xCAFE || resp.RegOff != 0x0102 || resp.DevAddr != 0xA4 {
		t.Fatalf("decoded %02x %04x %04x", resp.DevAddr, resp.RegOff, resp.Value)
	}
}

func TestWriteSingleRegisterVerify(t *testing.T) {
	echo := func(value uint16) []byte {
		req := &WriteSingleRegisterReq{DevAddr: 0xA4, RegOff: 0x0102, Value: value}
		raw, _ := req.Encode()
		return raw
	}
	want := uint16(0xCAFE)

	resp := &WriteSingleRegisterResp{ExpectRegOff: 0x0102, ExpectValue: &want}
	if err := resp.Decode(echo(0xCAFE)); err != nil {
		t.Fatalf("Decode(matching echo) = %v", err)
	}

	resp = &WriteSingleRegisterResp{ExpectRegOff: 0x0102, ExpectValue: &want}
	fieldMismatch(t, resp.Decode(echo(0xBEEF)), "value")

	// Without write-verify a differing value is accepted.
	resp = &WriteSingleRegisterResp{ExpectRegOff: 0x0102}
	if err := resp.Decode(echo(0xBEEF)); err != nil {
		t.Fatalf("Decode(no verify) = %v", err)
	}

	resp = &WriteSingleRegisterResp{ExpectRegOff: 0x0304}
	fieldMismatch(t, resp.Decode(echo(0xCAFE)), "reg_off")
}

func TestWriteMultipleRegistersEncode(t *testing.T) {
	req := &WriteMultipleRegistersReq{DevAddr: 0xA4, StartAddr: 0x0010}
	req.PushRegister(0x1122)
	req.PushRegister(0x3344)
	raw, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	want := []byte{0xA4, 0x10, 0x00, 0x10, 0x00, 0x02, 0x04, 0x11, 0x22, 0x33, 0x44}
	if !bytes.Equal(raw[:len(raw)-2], want) {
		t.Fatalf("Encode() = % x, want % x +crc", raw, want)
	}
}

func TestWriteMultipleRegistersOddPayloadPads(t *testing.T) {
	req := &WriteMultipleRegistersReq{DevAddr: 0xA4, StartAddr: 0x0010}
	req.PushBytes([]byte{0xAA, 0xBB, 0xCC})
	raw, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	if byteCount := raw[6]; byteCount != 4 {
		t.Fatalf("byte count = %d, want 4", byteCount)
	}
	if regCount := uint16(raw[4])<<8 | uint16(raw[5]); regCount != 2 {
		t.Fatalf("reg count = %d, want 2", regCount)
	}
	if pad := raw[10]; pad != 0x00 {
		t.Fatalf("pad byte = %02x, want 00", pad)
	}
}

func TestWriteMultipleRegistersEmptyPayload(t *testing.T) {
	req := &WriteMultipleRegistersReq{DevAddr: 0xA4, StartAddr: 0x0010}
	_, err := req.Encode()
	var uf *modbus.UnderflowError
	if !errors.As(err, &uf) {
		t.Fatalf("Encode() = %v, want UnderflowError", err)
	}
}

func TestWriteMultipleRegistersRespRoundTrip(t *testing.T) {
	var f Frame
	f.Push(1, 0xA4)
	f.Push(1, modbus.FuncCodeWriteMultipleRegisters)
	f.Push(2, 0x0010)
	f.Push(2, 0x0002)
	raw := f.Finalize()

	resp := &WriteMultipleRegistersResp{ExpectDevAddr: 0xA4, ExpectStartAddr: 0x0010, ExpectRegCount: 2}
	if err := resp.Decode(raw); err != nil {
		t.Fatalf("Decode() = %v", err)
	}

	resp = &WriteMultipleRegistersResp{ExpectDevAddr: 0xA5, ExpectStartAddr: 0x0010, ExpectRegCount: 2}
	fieldMismatch(t, resp.Decode(raw), "dev_addr")

	resp = &WriteMultipleRegistersResp{ExpectDevAddr: 0xA4, ExpectStartAddr: 0x0011, ExpectRegCount: 2}
	fieldMismatch(t, resp.Decode(raw), "starting_addr")

	resp = &WriteMultipleRegistersResp{ExpectDevAddr: 0xA4, ExpectStartAddr: 0x0010, ExpectRegCount: 3}
	fieldMismatch(t, resp.Decode(raw), "reg_count")
}

func TestReadFileRecordReqEncode(t *testing.T) {
	req := &ReadFileRecordReq{
		DevAddr: 0xA4,
		Records: []FileRecord{
			{FileNum: 1, RecNum: 0x0020, Data: make([]uint16, 2)},
			{FileNum: 1, RecNum: 0x0030, Data: make([]uint16, 1)},
		},
	}
	raw, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	want := []byte{
		0xA4, 0x14, 0x0E,
		0x06, 0x00, 0x01, 0x00, 0x20, 0x00, 0x02,
		0x06, 0x00, 0x01, 0x00, 0x30, 0x00, 0x01,
	}
	if !bytes.Equal(raw[:len(raw)-2], want) {
		t.Fatalf("Encode() = % x, want % x +crc", raw, want)
	}
}

func TestReadFileRecordRespRoundTrip(t *testing.T) {
	var f Frame
	f.Push(1, 0xA4)
	f.Push(1, modbus.FuncCodeReadFileRecord)
	f.Push(1, 10)
	// record 1: one register
	f.Push(1, 3)
	f.Push(1, modbus.FileRecordReferenceType)
	f.PushRegisters([]uint16{0x00FF})
	// record 2: two registers
	f.Push(1, 5)
	f.Push(1, modbus.FileRecordReferenceType)
	f.PushRegisters([]uint16{0x1234, 0x5678})
	raw := f.Finalize()

	resp, err := NewReadFileRecordResp(0xA4, []FileRecord{
		{FileNum: 1, RecNum: 0, Data: make([]uint16, 1)},
		{FileNum: 1, RecNum: 1, Data: make([]uint16, 2)},
	})
	if err != nil {
		t.Fatalf("NewReadFileRecordResp() = %v", err)
	}
	if got := resp.ExpectedLength(); got != len(raw) {
		t.Fatalf("ExpectedLength() = %d, want %d", got, len(raw))
	}
	if err := resp.Decode(raw); err != nil {
		t.Fatalf("Decode() = %v", err)
	}
	if resp.Records[0].Data[0] != 0x00FF {
		t.Fatalf("record 0 data = %04x, want 00ff", resp.Records[0].Data)
	}
	if resp.Records[1].Data[0] != 0x1234 || resp.Records[1].Data[1] != 0x5678 {
		t.Fatalf("record 1 data = %04x, want 1234 5678", resp.Records[1].Data)
	}
}

func TestReadFileRecordRespBadReference(t *testing.T) {
	var f Frame
	f.Push(1, 0xA4)
	f.Push(1, modbus.FuncCodeReadFileRecord)
	f.Push(1, 4)
	f.Push(1, 3)
	f.Push(1, 0x07) // reference type must be 0x06
	f.PushRegisters([]uint16{0x00FF})
	raw := f.Finalize()

	resp, _ := NewReadFileRecordResp(0xA4, []FileRecord{{Data: make([]uint16, 1)}})
	fieldMismatch(t, resp.Decode(raw), "reference")
}

func TestReadFileRecordRespExtraByteIsFramingError(t *testing.T) {
	// One extra byte between the header and the record list. Every
	// field that pops out of the tail is crafted to pass its check, so
	// the decode only trips on the final consumed-to-empty invariant.
	var f Frame
	f.Push(1, 0xFF)  // true device address, never reached by the pops
	f.Push(1, 0x14)  // popped as the address
	f.Push(1, 0x14)  // popped as the function code
	f.Push(1, 5)     // extra byte, popped as the byte count
	f.Push(1, 3)     // field length
	f.Push(1, modbus.FileRecordReferenceType)
	f.PushRegisters([]uint16{0x00FF})
	raw := f.Finalize()

	resp, _ := NewReadFileRecordResp(0x14, []FileRecord{{Data: make([]uint16, 1)}})
	err := resp.Decode(raw)
	var fr *modbus.FramingError
	if !errors.As(err, &fr) {
		t.Fatalf("Decode() = %v, want FramingError", err)
	}

	// The correctly sized frame decodes and drains completely.
	var g Frame
	g.Push(1, 0x14)
	g.Push(1, 0x14)
	g.Push(1, 4)
	g.Push(1, 3)
	g.Push(1, modbus.FileRecordReferenceType)
	g.PushRegisters([]uint16{0x00FF})
	resp, _ = NewReadFileRecordResp(0x14, []FileRecord{{Data: make([]uint16, 1)}})
	if err := resp.Decode(g.Finalize()); err != nil {
		t.Fatalf("Decode(correct frame) = %v", err)
	}
}
