// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package crc

const (
	// Reversed polynomial of 0x8005 (x^16 + x^15 + x^2 + 1).
	polynomial = 0xA001
	initial    = 0xFFFF
)

// CRC is an accumulator for the CRC-16/Modbus checksum.
type CRC struct {
	value uint16
}

// Reset initializes the accumulator. It must be called before the
// first PushBytes.
func (c *CRC) Reset() *CRC {
	c.value = initial
	return c
}

// PushBytes folds data into the running checksum.
func (c *CRC) PushBytes(data []byte) *CRC {
	for _, b := range data {
		c.value ^= uint16(b)
		for i := 0; i < 8; i++ {
			if c.value&0x0001 != 0 {
				c.value = (c.value >> 1) ^ polynomial
			} else {
				c.value >>= 1
			}
		}
	}
	return c
}

// Value returns the checksum of the bytes pushed so far. On the wire
// it is transmitted low byte first.
func (c *CRC) Value() uint16 {
	return c.value
}
