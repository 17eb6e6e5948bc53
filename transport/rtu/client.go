// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/shelfmon/internal/config"
	rtuframe "github.com/ffutop/shelfmon/modbus/rtu"
)

var ErrRequestTimedOut = errors.New("modbus: request timed out")

// Client is the Modbus RTU master side of one serial bus.
type Client struct {
	rtuSerialTransporter
}

// NewClient allocates and initializes a RTU Client.
func NewClient(cfg config.SerialConfig) *Client {
	client := &Client{}

	// Map internal config to serial.Config
	client.serialPort.Config.Address = cfg.Device
	client.serialPort.Config.BaudRate = cfg.BaudRate
	client.serialPort.Config.DataBits = cfg.DataBits
	client.serialPort.Config.StopBits = cfg.StopBits
	client.serialPort.Config.Parity = cfg.Parity
	client.serialPort.Config.Timeout = cfg.Timeout

	if cfg.RS485 {
		client.serialPort.Config.RS485.Enabled = true
		client.serialPort.Config.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		client.serialPort.Config.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		client.serialPort.Config.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		client.serialPort.Config.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		client.serialPort.Config.RS485.RxDuringTx = cfg.RxDuringTx
	}

	client.IdleTimeout = serialIdleTimeout
	return client
}

// Execute runs one transaction: it encodes the request, writes it to
// the bus and reads back exactly the number of bytes the response
// declares before handing them to the decoder. The response object is
// untouched if anything fails.
func (mb *Client) Execute(ctx context.Context, req rtuframe.Request, resp rtuframe.Response) error {
	raw, err := req.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	respBytes, err := mb.rtuSerialTransporter.Send(ctx, raw, resp.ExpectedLength())
	if err != nil {
		return err
	}

	return resp.Decode(respBytes)
}

// rtuSerialTransporter implements underlying serial comms.
type rtuSerialTransporter struct {
	serialPort
}

func (mb *rtuSerialTransporter) Send(ctx context.Context, aduRequest []byte, bytesToRead int) (aduResponse []byte, err error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err = mb.connect(ctx); err != nil {
		return
	}
	mb.lastActivity = time.Now()
	mb.startCloseTimer()

	slog.Debug("send to modbus slave", "request", hex.EncodeToString(aduRequest))
	if _, err = mb.port.Write(aduRequest); err != nil {
		return
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(mb.calculateDelay(len(aduRequest) + bytesToRead)):
	}

	data, err := mb.readFull(bytesToRead, time.Now().Add(mb.Config.Timeout))
	if err != nil {
		return nil, err
	}
	slog.Debug("recv from modbus slave", "response", hex.EncodeToString(data))
	aduResponse = data
	return
}

// readFull reads exactly n bytes from the port before the deadline.
// Short reads from the serial layer are retried until the frame is
// complete; the codec is responsible for everything past this point.
func (mb *rtuSerialTransporter) readFull(n int, deadline time.Time) ([]byte, error) {
	data := make([]byte, n)
	read := 0
	for read < n {
		if time.Now().After(deadline) {
			return nil, ErrRequestTimedOut
		}
		k, err := mb.port.Read(data[read:])
		if err != nil {
			return nil, err
		}
		read += k
	}
	return data, nil
}

// calculateDelay calculates the needed delay to separate frames.
func (mb *rtuSerialTransporter) calculateDelay(chars int) time.Duration {
	var characterDelay, frameDelay int

	if mb.BaudRate <= 0 || mb.BaudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / mb.BaudRate
		frameDelay = 35000000 / mb.BaudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}
