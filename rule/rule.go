// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rule holds the reactive rule engine: triggers that match on
// a device write, ordered fan-out to write/callback targets, and the
// bounded-reentrancy dispatch loop that lets one rule's write
// re-trigger another rule.
//
// The callback-on-write idiom is grounded on
// IntuitionAmiga-IntuitionEngine's machine_bus.go IORegion type; the
// trigger/target/priority shape follows
// original_source/include/device_rules.h and action_manager.h.
package rule // import "github.com/go-lpc/devicesim/rule"

import (
	"errors"
	"fmt"

	"github.com/go-lpc/devicesim/device"
)

// Sentinel errors for the rule-specific semantic error kinds of spec §7.
var (
	ErrCapacity     = errors.New("rule: rule set at capacity")
	ErrTooManyTargets = errors.New("rule: too many targets for one rule")
	ErrNoTarget     = errors.New("rule: write target instance not found")
	ErrRecursionCap = errors.New("rule: recursion cap exceeded")
	ErrNotFound     = errors.New("rule: rule id not found")
)

// RuleID identifies one installed rule within a Set.
type RuleID uint64

// Trigger is the match criterion of a rule: a write of value v to addr
// matches iff (v & Mask) == (Expected & Mask).
type Trigger struct {
	Addr     uint32
	Expected uint32
	Mask     uint32
}

// Match reports whether a write of value to t.Addr satisfies the trigger.
func (t Trigger) Match(value uint32) bool {
	return value&t.Mask == t.Expected&t.Mask
}

// TargetKind tags the variant a Target holds.
type TargetKind int

const (
	// TargetWrite writes (current &^ Mask) | (Value & Mask) to Handle/Addr.
	TargetWrite TargetKind = iota
	// TargetCallback invokes Callback with an Envelope.
	TargetCallback
	// TargetSignal is reserved; the engine executes it as a no-op.
	TargetSignal
)

func (k TargetKind) String() string {
	switch k {
	case TargetWrite:
		return "write"
	case TargetCallback:
		return "callback"
	case TargetSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// Envelope is what a Callback target receives: the observable info of
// the write that triggered the rule plus this target's own (addr,
// value). Callbacks must be fast. The engine calls them with no lock
// held, so a callback may use the dispatching instance's public API
// (kinds/tempsensor's alert callback reads its band registers this
// way).
type Envelope struct {
	TriggerHandle device.Handle
	TriggerAddr   uint32
	TriggerValue  uint32
	TargetAddr    uint32
	TargetValue   uint32
	UserData      interface{}
}

// CallbackFunc is the function type of a Callback target.
type CallbackFunc func(Envelope)

// Target is a tagged variant: the effect a matching rule executes.
type Target struct {
	Kind TargetKind

	// Write fields.
	Handle device.Handle
	Addr   uint32
	Value  uint32
	Mask   uint32

	// Callback fields.
	Callback CallbackFunc
	UserData interface{}
}

// WriteTarget builds a Write target.
func WriteTarget(h device.Handle, addr, value, mask uint32) Target {
	return Target{Kind: TargetWrite, Handle: h, Addr: addr, Value: value, Mask: mask}
}

// CallbackTarget builds a Callback target.
func CallbackTarget(fn CallbackFunc, userData interface{}) Target {
	return Target{Kind: TargetCallback, Callback: fn, UserData: userData}
}

// SignalTarget builds a reserved, no-op Signal target.
func SignalTarget() Target {
	return Target{Kind: TargetSignal}
}

// Rule pairs a Trigger with an ordered, bounded target list, a
// priority (lower fires first) and a display name. The target list is
// copied on Install, never aliased, so later mutation of a caller's
// slice cannot change an installed rule (spec §3).
type Rule struct {
	id       RuleID
	Trigger  Trigger
	Targets  []Target
	Priority int
	Active   bool
	Name     string
}

// ID returns the rule's stable identifier.
func (r *Rule) ID() RuleID { return r.id }

// defaultRuleName builds the name an unnamed Install falls back to.
// It takes the id the new rule is about to be assigned so that two
// unnamed Installs on the same Set never collide — a name built from
// the handle alone ("rule@(kind=.., id=..)") would be the same for
// every unnamed rule on that handle, which would make the second
// unnamed Install at a shared trigger address silently replace the
// first instead of coexisting with it (the coexistence Set.Install's
// doc comment promises).
func defaultRuleName(h device.Handle, id RuleID) string {
	return fmt.Sprintf("rule@%v#%d", h, id)
}
