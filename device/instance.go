// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"sync"
)

// Instance is one live simulated device: a kind reference, a numeric
// id, opaque per-kind state and the instance mutex that serializes
// every access to its memory and rule set.
type Instance struct {
	kind *Kind
	id   InstanceID

	mu    sync.Mutex
	mem   *Memory
	state interface{}
}

// Kind returns the instance's device kind.
func (inst *Instance) Kind() *Kind { return inst.kind }

// ID returns the instance's numeric id.
func (inst *Instance) ID() InstanceID { return inst.id }

// Handle returns the instance's (kind_id, instance_id) value handle.
func (inst *Instance) Handle() Handle { return Handle{Kind: inst.kind.ID, ID: inst.id} }

// Mutex returns the instance's lock. The instance's own ReadWord,
// WriteWord, WriteWordMasked and Reset take it; the manager does not
// use it directly and never holds it across rule dispatch.
func (inst *Instance) Mutex() *sync.Mutex { return &inst.mu }

// Memory returns the instance's device memory.
func (inst *Instance) Memory() *Memory { return inst.mem }

// State returns the kind-private state installed by Ops.Init via
// SetState. It replaces the systematic void*-cast pattern of the
// original: each kind package defines its own unexported state type
// and recovers it with a type assertion inside that package (see
// kinds/fpga), so the concrete type never leaks past the kind boundary.
func (inst *Instance) State() interface{} { return inst.state }

// SetState installs the kind-private state. Called once, from Ops.Init.
func (inst *Instance) SetState(v interface{}) { inst.state = v }

// ReadWord performs a locked 32-bit read through the instance's kind.
func (inst *Instance) ReadWord(addr uint32) (uint32, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.kind.Ops.Read != nil {
		return inst.kind.Ops.Read(inst, addr)
	}
	return inst.mem.ReadWord(addr)
}

// WriteWord performs a locked 32-bit write through the instance's
// kind, which MUST funnel through inst.Memory() so the caller (the
// manager) can observe the stored value once this call returns and
// the lock has been released.
//
// WriteWord itself never invokes a rule engine: by the time it
// returns, the instance lock is already released (see §5 — the
// rule-set lock, logically the instance lock, must be released before
// action dispatch), so engine notification is the caller's job. This
// is also what lets a rule's own Write target safely target the very
// instance that triggered it: by dispatch time this lock is free.
func (inst *Instance) WriteWord(addr uint32, value uint32) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.kind.Ops.Write == nil {
		return fmt.Errorf("device: kind %q has no write operation: %w", inst.kind.Name, ErrInvalidArgument)
	}
	return inst.kind.Ops.Write(inst, addr, value)
}

// Reset invokes the kind's optional reset hook.
func (inst *Instance) Reset() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.kind.Ops.Reset == nil {
		return nil
	}
	return inst.kind.Ops.Reset(inst)
}

// WriteWordMasked performs `(current &^ mask) | (value & mask)` at
// addr as one atomic, locked read-modify-write — the primitive the
// rule engine's Write action target uses (spec §3's Write target
// semantics), rather than a separate read then write that could race
// with a concurrent writer of the same instance.
func (inst *Instance) WriteWordMasked(addr, value, mask uint32) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	var (
		cur uint32
		err error
	)
	if inst.kind.Ops.Read != nil {
		cur, err = inst.kind.Ops.Read(inst, addr)
	} else {
		cur, err = inst.mem.ReadWord(addr)
	}
	if err != nil {
		return err
	}

	if inst.kind.Ops.Write == nil {
		return fmt.Errorf("device: kind %q has no write operation: %w", inst.kind.Name, ErrInvalidArgument)
	}
	return inst.kind.Ops.Write(inst, addr, (cur&^mask)|(value&mask))
}
