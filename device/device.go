// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device holds the device-memory model, the device-kind
// capability table, the device instance and the device manager: the
// generic machinery that every simulated peripheral is built from.
//
// The register-access idiom (a word/byte view over an
// io.ReaderAt/io.WriterAt-backed store, read/write funneled through
// one choke point) follows eda.Device and eda/register.go from this
// project's own history; the kind/instance/manager split follows
// eda.Device's capability-table-free design generalized to the
// closed device_type_t/device_registry_t shape of the C program this
// package reimplements.
package device // import "github.com/go-lpc/devicesim/device"

import (
	"context"
	"errors"
	"fmt"

	sim "github.com/go-lpc/devicesim"
	"github.com/go-lpc/devicesim/internal/region"
)

// Sentinel errors for the semantic error kinds a device operation can
// produce; wrap these with fmt.Errorf(...: %w) so errors.Is keeps
// working across package boundaries.
var (
	ErrInvalidArgument = errors.New("device: invalid argument")
	ErrNotFound        = errors.New("device: instance not found")
	ErrDuplicate       = errors.New("device: duplicate instance")
	ErrUnknownKind     = errors.New("device: unknown kind id")
)

// tagErr classifies an error built from this package's own sentinels
// (or internal/region's) into a sim.Kind, via sim.TagErr, so a Manager
// caller can branch on err.(*sim.Error).Kind() instead of chaining
// errors.Is against every sentinel this package and its dependencies
// define.
func tagErr(err error) error {
	return sim.TagErr(err, func(err error) (sim.Kind, bool) {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownKind):
			return sim.KindNotFound, true
		case errors.Is(err, ErrDuplicate):
			return sim.KindDuplicate, true
		case errors.Is(err, region.ErrOutOfRange):
			return sim.KindOutOfRange, true
		case errors.Is(err, region.ErrMisaligned):
			return sim.KindMisalignment, true
		case errors.Is(err, ErrInvalidArgument):
			return sim.KindInvalidArgument, true
		default:
			return sim.KindUnknown, false
		}
	})
}

// KindID identifies a device kind in the manager's closed enumeration.
type KindID uint32

// InstanceID identifies one instance within a kind.
type InstanceID uint32

// Handle is a value-typed (kind_id, instance_id) reference. Rules and
// action targets carry Handles, never *Instance pointers, so the only
// way to reach a live instance is back through a Manager — this is
// the redesign called for when the original's rules held raw pointers
// back into the registry.
type Handle struct {
	Kind KindID
	ID   InstanceID
}

func (h Handle) String() string {
	return fmt.Sprintf("(kind=%d, id=%d)", h.Kind, h.ID)
}

// Less orders handles by (Kind, ID), the order in which two instance
// locks must be acquired together to avoid lock-order inversion.
func (h Handle) Less(o Handle) bool {
	if h.Kind != o.Kind {
		return h.Kind < o.Kind
	}
	return h.ID < o.ID
}

// Notifier is handed a (handle, addr, value) after Memory has already
// stored the new value, and a context carrying the rule-dispatch
// recursion depth (opaque to this package). A rule.Engine is the
// canonical Notifier; device never imports the rule package to avoid
// a cycle.
type Notifier interface {
	OnWrite(ctx context.Context, h Handle, addr, value uint32)
}
