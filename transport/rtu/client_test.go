// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ffutop/shelfmon/internal/config"
	"github.com/ffutop/shelfmon/modbus"
	rtuframe "github.com/ffutop/shelfmon/modbus/rtu"
)

// mockPort replaces the serial port with in-memory buffers.
type mockPort struct {
	io.Reader
	io.Writer
}

func (m *mockPort) Close() error { return nil }

func newMockClient(response []byte) (*Client, *bytes.Buffer) {
	writer := &bytes.Buffer{}
	mock := &mockPort{Reader: bytes.NewReader(response), Writer: writer}

	client := NewClient(config.SerialConfig{})
	// Pre-setting the port makes connect() skip serial.Open.
	client.rtuSerialTransporter.port = mock
	client.Config.Timeout = 100 * time.Millisecond
	return client, writer
}

func TestClientExecute(t *testing.T) {
	// Response: addr, func 03, byte count 2, one register, CRC.
	var f rtuframe.Frame
	f.Push(1, 0x01)
	f.Push(1, modbus.FuncCodeReadHoldingRegisters)
	f.Push(1, 2)
	f.PushRegisters([]uint16{0xAABB})
	respADU := f.Finalize()

	client, writer := newMockClient(respADU)

	req := &rtuframe.ReadHoldingRegistersReq{DevAddr: 0x01, StartAddr: 0x0000, Count: 1}
	resp, err := rtuframe.NewReadHoldingRegistersResp(make([]uint16, 1))
	if err != nil {
		t.Fatalf("NewReadHoldingRegistersResp() = %v", err)
	}

	if err := client.Execute(context.Background(), req, resp); err != nil {
		t.Fatalf("Execute() = %v", err)
	}

	wantReq := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if !bytes.Equal(writer.Bytes(), wantReq) {
		t.Errorf("request mismatch.\nWant: %X\nGot:  %X", wantReq, writer.Bytes())
	}
	if resp.Regs[0] != 0xAABB {
		t.Errorf("register = %04x, want aabb", resp.Regs[0])
	}
}

func TestClientExecuteCRCError(t *testing.T) {
	respADU := []byte{0x01, 0x03, 0x02, 0xAA, 0xBB, 0xFF, 0xFF} // Bad CRC

	client, _ := newMockClient(respADU)

	req := &rtuframe.ReadHoldingRegistersReq{DevAddr: 0x01, StartAddr: 0x0000, Count: 1}
	resp, _ := rtuframe.NewReadHoldingRegistersResp(make([]uint16, 1))

	err := client.Execute(context.Background(), req, resp)
	var crcErr *modbus.CRCError
	if !errors.As(err, &crcErr) {
		t.Fatalf("Execute() = %v, want CRCError", err)
	}
}

func TestClientExecuteTimeout(t *testing.T) {
	// A reader that never produces the full frame.
	client, _ := newMockClient([]byte{0x01, 0x03})

	req := &rtuframe.ReadHoldingRegistersReq{DevAddr: 0x01, StartAddr: 0x0000, Count: 1}
	resp, _ := rtuframe.NewReadHoldingRegistersResp(make([]uint16, 1))

	err := client.Execute(context.Background(), req, resp)
	if err == nil {
		t.Fatal("Execute() succeeded on truncated response")
	}
}
