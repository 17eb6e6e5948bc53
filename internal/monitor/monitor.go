// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package monitor drives the bus: it discovers devices by probing the
// address ranges the register maps declare, polls every mapped register
// span into its history store and runs the maps' periodic write
// actions.
package monitor

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ffutop/shelfmon/internal/history"
	"github.com/ffutop/shelfmon/internal/regmap"
	"github.com/ffutop/shelfmon/internal/register"
	rtuframe "github.com/ffutop/shelfmon/modbus/rtu"
)

// Transport runs one Modbus transaction. The serial RTU client
// implements it; tests substitute a fake.
type Transport interface {
	Execute(ctx context.Context, req rtuframe.Request, resp rtuframe.Response) error
}

// baudSwitcher is implemented by transports whose bus speed can be
// changed after probing.
type baudSwitcher interface {
	SetBaudRate(baud int) error
}

// Device is one discovered unit on the bus: its address, the register
// map that claims it and one history store per mapped register span.
type Device struct {
	Addr byte
	Map  *regmap.Map

	stores     []*register.Store
	lastAction []time.Time
}

// Monitor owns the poll loop. It is the single writer of every store;
// reporting readers go through Snapshot, which serializes against the
// writer with a RWMutex.
type Monitor struct {
	transport Transport
	db        *regmap.Database
	storage   history.Storage
	interval  time.Duration
	pause     time.Duration

	mu      sync.RWMutex
	devices []*Device
}

func New(transport Transport, db *regmap.Database, storage history.Storage, interval, pause time.Duration) *Monitor {
	return &Monitor{
		transport: transport,
		db:        db,
		storage:   storage,
		interval:  interval,
		pause:     pause,
	}
}

// AddDevice registers a device at the given address, building its
// stores from the register map that claims the address. Adding an
// already known address is a no-op.
func (m *Monitor) AddDevice(addr byte) (*Device, error) {
	rm, err := m.db.At(addr)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.Addr == addr {
			return d, nil
		}
	}

	d := &Device{
		Addr:       addr,
		Map:        rm,
		lastAction: make([]time.Time, len(rm.SpecialHandlers)),
	}
	for _, desc := range rm.Registers {
		d.stores = append(d.stores, register.NewStore(desc))
	}
	sort.Slice(d.stores, func(i, j int) bool { return d.stores[i].Addr < d.stores[j].Addr })

	m.devices = append(m.devices, d)
	sort.Slice(m.devices, func(i, j int) bool { return m.devices[i].Addr < m.devices[j].Addr })
	return d, nil
}

// Devices returns the addresses of all discovered devices.
func (m *Monitor) Devices() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addrs := make([]byte, 0, len(m.devices))
	for _, d := range m.devices {
		addrs = append(addrs, d.Addr)
	}
	return addrs
}

// Probe walks every register map's address range and reads the map's
// probe register at each address. Addresses that answer become devices.
// Afterwards the persisted history is restored and, if every discovered
// device prefers the same non-default baudrate, the bus is switched
// over to it.
func (m *Monitor) Probe(ctx context.Context) error {
	for _, rm := range m.db.Maps() {
		for a := int(rm.Addresses.Min); a <= int(rm.Addresses.Max); a++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			addr := byte(a)

			resp, err := rtuframe.NewReadHoldingRegistersResp(make([]uint16, 1))
			if err != nil {
				return err
			}
			req := &rtuframe.ReadHoldingRegistersReq{DevAddr: addr, StartAddr: rm.ProbeRegister, Count: 1}
			if err := m.transport.Execute(ctx, req, resp); err != nil {
				m.pauseBetween(ctx)
				continue
			}

			slog.Info("discovered device", "addr", addr, "type", rm.Name)
			if _, err := m.AddDevice(addr); err != nil {
				return err
			}
			m.pauseBetween(ctx)
		}
	}

	m.switchBaudRate()
	return m.storage.Load(m.entries())
}

// switchBaudRate moves the bus to the preferred baudrate when all
// discovered devices agree on one.
func (m *Monitor) switchBaudRate() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.devices) == 0 {
		return
	}
	baud := m.devices[0].Map.PreferredBaudrate
	for _, d := range m.devices {
		if d.Map.PreferredBaudrate != baud {
			return
		}
	}
	if baud <= 0 {
		return
	}
	bs, ok := m.transport.(baudSwitcher)
	if !ok {
		return
	}
	if err := bs.SetBaudRate(baud); err != nil {
		slog.Warn("failed to switch baudrate", "baud", baud, "err", err)
		return
	}
	slog.Info("switched bus to preferred baudrate", "baud", baud)
}

// Run polls all devices once immediately and then on every interval
// tick until the context is cancelled. The history is persisted after
// each cycle and once more on shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.pollCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			if err := m.storage.Save(m.entries()); err != nil {
				slog.Error("failed to persist history on shutdown", "err", err)
			}
			return nil
		case <-ticker.C:
			m.pollCycle(ctx)
		}
	}
}

func (m *Monitor) pollCycle(ctx context.Context) {
	m.mu.RLock()
	devices := append([]*Device(nil), m.devices...)
	m.mu.RUnlock()

	for _, d := range devices {
		if ctx.Err() != nil {
			return
		}
		m.runSpecialHandlers(ctx, d)
		m.pollDevice(ctx, d)
	}

	if err := m.storage.Save(m.entries()); err != nil {
		slog.Error("failed to persist history", "err", err)
	}
	slog.Debug("poll cycle complete", "devices", len(devices))
}

// pollDevice reads every register span of one device. A failed read
// leaves that store untouched and moves on; devices drop off the bus
// and come back all the time.
func (m *Monitor) pollDevice(ctx context.Context, d *Device) {
	for _, store := range d.stores {
		if ctx.Err() != nil {
			return
		}
		desc := store.Descriptor()

		scratch := make([]uint16, desc.Length)
		resp, err := rtuframe.NewReadHoldingRegistersResp(scratch)
		if err != nil {
			slog.Error("bad register span", "device", d.Addr, "register", store.Addr, "err", err)
			continue
		}
		req := &rtuframe.ReadHoldingRegistersReq{DevAddr: d.Addr, StartAddr: store.Addr, Count: desc.Length}
		if err := m.transport.Execute(ctx, req, resp); err != nil {
			slog.Warn("register read failed", "device", d.Addr, "register", store.Addr, "err", err)
			m.pauseBetween(ctx)
			continue
		}

		m.commit(store, scratch)
		m.pauseBetween(ctx)
	}
}

// commit records one successful reading. For changes_only registers an
// unchanged value refreshes the timestamp of the previous entry instead
// of consuming a history slot.
func (m *Monitor) commit(store *register.Store, words []uint16) {
	ts := time.Now().Unix()

	m.mu.Lock()
	defer m.mu.Unlock()

	if store.Descriptor().ChangesOnly {
		back := store.Back()
		if back.Valid() && wordsEqual(back.Words, words) {
			back.Timestamp = ts
			return
		}
	}
	front := store.Front()
	copy(front.Words, words)
	front.Timestamp = ts
	store.Advance()
}

func wordsEqual(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// runSpecialHandlers performs the map's periodic write actions that
// are due, e.g. pushing the wall clock into a device's time register.
func (m *Monitor) runSpecialHandlers(ctx context.Context, d *Device) {
	for i := range d.Map.SpecialHandlers {
		sh := &d.Map.SpecialHandlers[i]
		if !d.lastAction[i].IsZero() && time.Since(d.lastAction[i]) < sh.Period {
			continue
		}
		d.lastAction[i] = time.Now()

		raw, err := actionSource(ctx, sh.Info)
		if err != nil {
			slog.Warn("special handler source failed", "device", d.Addr, "register", sh.Reg, "err", err)
			continue
		}
		payload, err := encodeActionPayload(raw, sh.Info.Interpret, sh.Len)
		if err != nil {
			slog.Warn("special handler payload invalid", "device", d.Addr, "register", sh.Reg, "err", err)
			continue
		}

		req := &rtuframe.WriteMultipleRegistersReq{DevAddr: d.Addr, StartAddr: sh.Reg}
		req.PushBytes(payload)
		resp := &rtuframe.WriteMultipleRegistersResp{
			ExpectDevAddr:   d.Addr,
			ExpectStartAddr: sh.Reg,
			ExpectRegCount:  sh.Len,
		}
		if err := m.transport.Execute(ctx, req, resp); err != nil {
			slog.Warn("special handler write failed", "device", d.Addr, "register", sh.Reg, "err", err)
		}
		m.pauseBetween(ctx)
	}
}

// actionSource produces the raw payload text: either the configured
// literal or the trimmed stdout of the configured shell command.
func actionSource(ctx context.Context, act regmap.WriteAction) (string, error) {
	if act.Shell == "" {
		return act.Value, nil
	}
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", act.Shell).Output()
	if err != nil {
		return "", fmt.Errorf("shell command failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// encodeActionPayload fits the raw text into exactly the handler's
// register span. Integers are big-endian and right-aligned, strings are
// zero-padded at the tail.
func encodeActionPayload(raw string, interpret register.Kind, words uint16) ([]byte, error) {
	n := 2 * int(words)
	buf := make([]byte, n)
	switch interpret {
	case register.Integer:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer payload %q: %w", raw, err)
		}
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v))
		if n >= 8 {
			copy(buf[n-8:], tmp[:])
		} else {
			copy(buf, tmp[8-n:])
		}
	case register.String:
		if len(raw) > n {
			return nil, fmt.Errorf("payload %q exceeds %d register words", raw, words)
		}
		copy(buf, raw)
	default:
		return nil, fmt.Errorf("unsupported payload interpretation %v", interpret)
	}
	return buf, nil
}

func (m *Monitor) pauseBetween(ctx context.Context) {
	if m.pause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(m.pause):
	}
}

// entries flattens all stores for the persistence layer.
func (m *Monitor) entries() []history.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []history.Entry
	for _, d := range m.devices {
		for _, s := range d.stores {
			entries = append(entries, history.Entry{DevAddr: d.Addr, Store: s})
		}
	}
	return entries
}

// DeviceValue is the reporting export of one device: every register
// span's history, decoded per its descriptor.
type DeviceValue struct {
	Addr      byte                  `json:"devAddress"`
	Type      string                `json:"deviceType"`
	Registers []register.StoreValue `json:"registers"`
}

// Snapshot decodes the full history of every device for reporting.
func (m *Monitor) Snapshot() ([]DeviceValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DeviceValue, 0, len(m.devices))
	for _, d := range m.devices {
		dv := DeviceValue{Addr: d.Addr, Type: d.Map.Name}
		for _, s := range d.stores {
			sv, err := s.Snapshot()
			if err != nil {
				return nil, err
			}
			dv.Registers = append(dv.Registers, sv)
		}
		out = append(out, dv)
	}
	return out, nil
}
