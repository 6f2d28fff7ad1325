// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/go-lpc/devicesim/internal/region"
)

// Memory is the ordered set of regions belonging to one device
// instance. Its lifetime is bound to the owning instance; callers
// reach it only through Instance.Memory, never construct one
// directly.
//
// Memory is a pure byte store: it knows nothing about the rule
// engine. The optional "back-reference to the rule engine" spec §3
// describes is held by the Manager instead (see manager.go), because
// notification must happen only after the instance lock taken around
// a write has been released — Memory's write path runs entirely
// inside that lock.
type Memory struct {
	handle  Handle
	regions []*region.Store // sorted by base address
}

func newMemory(h Handle) *Memory {
	return &Memory{handle: h}
}

// AddRegion creates and inserts a new region at [base, base+unitSize*length),
// keeping the region list in base-address order. It fails if the new
// region overlaps an existing one.
func (m *Memory) AddRegion(base, unitSize, length uint32) (*region.Store, error) {
	r, err := region.New(uint32(m.handle.Kind), uint32(m.handle.ID), base, unitSize, length)
	if err != nil {
		return nil, fmt.Errorf("device: could not create region: %w", err)
	}

	idx := 0
	for ; idx < len(m.regions); idx++ {
		if m.regions[idx].Base() > base {
			break
		}
	}
	if idx > 0 && m.regions[idx-1].End() > base {
		return nil, fmt.Errorf("device: region [0x%x,0x%x) overlaps existing region: %w", base, r.End(), ErrInvalidArgument)
	}
	if idx < len(m.regions) && r.End() > m.regions[idx].Base() {
		return nil, fmt.Errorf("device: region [0x%x,0x%x) overlaps existing region: %w", base, r.End(), ErrInvalidArgument)
	}

	m.regions = append(m.regions, nil)
	copy(m.regions[idx+1:], m.regions[idx:])
	m.regions[idx] = r
	return r, nil
}

// regionFor returns the region whose span contains addr, linear scan
// over the short ordered region list (1-3 regions per device in
// practice, per spec §4.B).
func (m *Memory) regionFor(addr uint32) (*region.Store, error) {
	for _, r := range m.regions {
		if r.Contains(addr) {
			return r, nil
		}
		if r.Base() > addr {
			break
		}
	}
	return nil, fmt.Errorf("device: address 0x%x not covered by any region: %w", addr, region.ErrOutOfRange)
}

// ReadWord reads the 32-bit little-endian value at addr.
func (m *Memory) ReadWord(addr uint32) (uint32, error) {
	r, err := m.regionFor(addr)
	if err != nil {
		return 0, err
	}
	return r.ReadWord(addr)
}

// WriteWord stores value at addr.
func (m *Memory) WriteWord(addr uint32, value uint32) error {
	r, err := m.regionFor(addr)
	if err != nil {
		return err
	}
	return r.WriteWord(addr, value)
}

// ReadByte reads one byte at addr.
func (m *Memory) ReadByte(addr uint32) (byte, error) {
	r, err := m.regionFor(addr)
	if err != nil {
		return 0, err
	}
	return r.ReadByte(addr)
}

// WriteByte stores one byte at addr.
func (m *Memory) WriteByte(addr uint32, value byte) error {
	r, err := m.regionFor(addr)
	if err != nil {
		return err
	}
	return r.WriteByte(addr, value)
}

// ReadBuffer copies len(p) bytes starting at addr into p.
func (m *Memory) ReadBuffer(addr uint32, p []byte) error {
	r, err := m.regionFor(addr)
	if err != nil {
		return err
	}
	_, err = r.ReadAt(p, int64(addr))
	return err
}

// WriteBuffer stores p at addr.
func (m *Memory) WriteBuffer(addr uint32, p []byte) error {
	r, err := m.regionFor(addr)
	if err != nil {
		return err
	}
	_, err = r.WriteAt(p, int64(addr))
	return err
}

// WordsTouched returns the 4-byte-aligned addresses covered by a write
// of len(p) bytes starting at addr, for a caller that needs to notify
// once per aligned window a buffer write touched, per spec §4.B. The
// manager has no buffer-write path and does not call it.
func WordsTouched(addr uint32, n int) []uint32 {
	if n == 0 {
		return nil
	}
	first := addr &^ 3
	last := (addr + uint32(n) - 1) &^ 3
	out := make([]uint32, 0, (last-first)/4+1)
	for w := first; w <= last; w += 4 {
		out = append(out, w)
	}
	return out
}
