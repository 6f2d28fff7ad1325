// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package region holds the byte-buffer backing store for one
// contiguous, aligned memory region of a simulated device instance.
//
// Store plays the role internal/mmap.Handle plays for the real EDA
// board: an io.ReaderAt/io.WriterAt over a flat byte buffer. The
// difference is deliberate — a simulated device never touches real
// memory-mapped hardware, so Store owns a plain []byte instead of a
// handle onto /dev/mem.
package region // import "github.com/go-lpc/devicesim/internal/region"

import (
	"errors"
	"fmt"
	"io"
)

// ErrOutOfRange is returned when an offset falls outside the region.
var ErrOutOfRange = errors.New("region: offset out of range")

// ErrMisaligned is returned when a word-sized access is not aligned
// to the region's unit size.
var ErrMisaligned = errors.New("region: misaligned access")

// Store holds the raw bytes of one region: base_addr, unit_size,
// length and the owning (kind_id, instance_id), per the data model.
type Store struct {
	base     uint32
	unitSize uint32
	length   uint32
	kindID   uint32
	instID   uint32

	data []byte
}

// New allocates a zero-filled Store spanning [base, base+unitSize*length).
// unitSize and base must be non-zero-aligned to unitSize; length is the
// unit count, not the byte count.
func New(kindID, instID, base, unitSize, length uint32) (*Store, error) {
	if unitSize == 0 {
		return nil, fmt.Errorf("region: invalid unit size 0")
	}
	if base%unitSize != 0 {
		return nil, fmt.Errorf("region: base addr 0x%x not aligned to unit size %d", base, unitSize)
	}
	return &Store{
		base:     base,
		unitSize: unitSize,
		length:   length,
		kindID:   kindID,
		instID:   instID,
		data:     make([]byte, uint64(unitSize)*uint64(length)),
	}, nil
}

// Base returns the region's base address.
func (s *Store) Base() uint32 { return s.base }

// UnitSize returns the region's addressable unit size, in bytes.
func (s *Store) UnitSize() uint32 { return s.unitSize }

// Len returns the length of the underlying byte buffer.
func (s *Store) Len() int { return len(s.data) }

// End returns the address one past the last byte covered by the region.
func (s *Store) End() uint32 { return s.base + uint32(len(s.data)) }

// Owner returns the (kind_id, instance_id) that owns this region.
func (s *Store) Owner() (kindID, instID uint32) { return s.kindID, s.instID }

// Contains reports whether addr falls within [base, base+len(data)).
func (s *Store) Contains(addr uint32) bool {
	return addr >= s.base && addr < s.End()
}

// ReadAt implements io.ReaderAt over the region's address space (not
// its internal byte offset): off is an absolute device address.
func (s *Store) ReadAt(p []byte, off int64) (int, error) {
	rel, err := s.relOffset(off)
	if err != nil {
		return 0, err
	}
	n := copy(p, s.data[rel:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt over the region's address space.
func (s *Store) WriteAt(p []byte, off int64) (int, error) {
	rel, err := s.relOffset(off)
	if err != nil {
		return 0, err
	}
	n := copy(s.data[rel:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (s *Store) relOffset(addr int64) (int64, error) {
	if addr < int64(s.base) || addr >= int64(s.End()) {
		return 0, fmt.Errorf("region: invalid offset 0x%x: %w", addr, ErrOutOfRange)
	}
	return addr - int64(s.base), nil
}

// ReadWord reads a 32-bit little-endian value at absolute address addr.
// addr must be aligned to 4 bytes.
func (s *Store) ReadWord(addr uint32) (uint32, error) {
	if addr%4 != 0 {
		return 0, fmt.Errorf("region: misaligned word read at 0x%x: %w", addr, ErrMisaligned)
	}
	var buf [4]byte
	_, err := s.ReadAt(buf[:], int64(addr))
	if err != nil && err != io.EOF {
		return 0, err
	}
	return le32(buf[:]), nil
}

// WriteWord stores a 32-bit little-endian value at absolute address addr.
// addr must be aligned to 4 bytes.
func (s *Store) WriteWord(addr uint32, v uint32) error {
	if addr%4 != 0 {
		return fmt.Errorf("region: misaligned word write at 0x%x: %w", addr, ErrMisaligned)
	}
	var buf [4]byte
	putLE32(buf[:], v)
	_, err := s.WriteAt(buf[:], int64(addr))
	return err
}

// ReadByte reads the byte at absolute address addr.
func (s *Store) ReadByte(addr uint32) (byte, error) {
	rel, err := s.relOffset(int64(addr))
	if err != nil {
		return 0, err
	}
	return s.data[rel], nil
}

// WriteByte stores a byte at absolute address addr.
func (s *Store) WriteByte(addr uint32, v byte) error {
	rel, err := s.relOffset(int64(addr))
	if err != nil {
		return err
	}
	s.data[rel] = v
	return nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

var (
	_ io.ReaderAt = (*Store)(nil)
	_ io.WriterAt = (*Store)(nil)
)
