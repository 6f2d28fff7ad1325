// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rule // import "github.com/go-lpc/devicesim/rule"

import (
	"errors"
	"testing"

	"github.com/go-lpc/devicesim/device"
)

const testKindID device.KindID = 7

func testKind() device.Kind {
	return device.Kind{
		ID:   testKindID,
		Name: "TEST",
		Ops: device.Ops{
			Init: func(inst *device.Instance) error {
				_, err := inst.Memory().AddRegion(0x00, 4, 16) // [0, 0x40)
				return err
			},
			Read: func(inst *device.Instance, addr uint32) (uint32, error) {
				return inst.Memory().ReadWord(addr)
			},
			Write: func(inst *device.Instance, addr uint32, value uint32) error {
				return inst.Memory().WriteWord(addr, value)
			},
		},
	}
}

func newFixture(t *testing.T) (*device.Manager, *Engine) {
	t.Helper()
	mgr := device.NewManager()
	eng := NewEngine(mgr)
	mgr.SetNotifier(eng)
	if err := mgr.RegisterKind(testKind()); err != nil {
		t.Fatalf("could not register kind: %+v", err)
	}
	return mgr, eng
}

func mustCreate(t *testing.T, mgr *device.Manager, id device.InstanceID) device.Handle {
	t.Helper()
	if _, err := mgr.CreateInstance(testKindID, id); err != nil {
		t.Fatalf("could not create instance %d: %+v", id, err)
	}
	return device.Handle{Kind: testKindID, ID: id}
}

// S2 — cross-device rule: a write to one instance's address writes
// another instance's address.
func TestCrossDeviceRule(t *testing.T) {
	mgr, eng := newFixture(t)
	src := mustCreate(t, mgr, 0)
	dst := mustCreate(t, mgr, 1)

	_, err := eng.Install(src, Trigger{Addr: 0x04, Expected: 0x3, Mask: 0xFFFFFFFF},
		[]Target{WriteTarget(dst, 0x08, 0x5, 0xFFFFFFFF)}, 0, "cross")
	if err != nil {
		t.Fatalf("could not install rule: %+v", err)
	}

	if err := mgr.WriteWord(src, 0x04, 0x3); err != nil {
		t.Fatalf("could not write: %+v", err)
	}

	got, err := mgr.ReadWord(dst, 0x08)
	if err != nil {
		t.Fatalf("could not read target: %+v", err)
	}
	if got != 0x5 {
		t.Fatalf("got=0x%x, want=0x5", got)
	}
}

// S3 — callback fan-out: two targets, a callback and a write, both fire
// exactly once in install order.
func TestCallbackFanOut(t *testing.T) {
	mgr, eng := newFixture(t)
	h := mustCreate(t, mgr, 0)

	var sink []Envelope
	cb := func(env Envelope) { sink = append(sink, env) }

	_, err := eng.Install(h, Trigger{Addr: 0x0C, Expected: 0x1, Mask: 0x1}, []Target{
		CallbackTarget(cb, nil),
		WriteTarget(h, 0x10, 0xDEADBEEF, 0xFFFFFFFF),
	}, 0, "fanout")
	if err != nil {
		t.Fatalf("could not install rule: %+v", err)
	}

	if err := mgr.WriteWord(h, 0x0C, 0x1); err != nil {
		t.Fatalf("could not write: %+v", err)
	}

	if len(sink) != 1 {
		t.Fatalf("got=%d callback invocations, want=1", len(sink))
	}
	if sink[0].TriggerAddr != 0x0C || sink[0].TriggerValue != 0x1 {
		t.Fatalf("unexpected envelope: %+v", sink[0])
	}

	v, err := mgr.ReadWord(h, 0x10)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if v != 0xDEADBEEF {
		t.Fatalf("got=0x%x, want=0xDEADBEEF", v)
	}
}

// S4 — masked mismatch: a rule does not fire when the masked bits don't match.
func TestMaskedMismatch(t *testing.T) {
	mgr, eng := newFixture(t)
	h := mustCreate(t, mgr, 0)

	var fired bool
	_, err := eng.Install(h, Trigger{Addr: 0x10, Expected: 0x01, Mask: 0x01},
		[]Target{CallbackTarget(func(Envelope) { fired = true }, nil)}, 0, "mask")
	if err != nil {
		t.Fatalf("could not install rule: %+v", err)
	}

	if err := mgr.WriteWord(h, 0x10, 0xFE); err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if fired {
		t.Fatalf("rule fired on a masked mismatch")
	}
}

// S5 — priority ordering: two distinct rules share a trigger address;
// the higher-priority-number rule's target writes last, so it wins.
func TestPriorityOrder(t *testing.T) {
	mgr, eng := newFixture(t)
	h := mustCreate(t, mgr, 0)

	trig := Trigger{Addr: 0x20, Expected: 0x1, Mask: 0x1}
	if _, err := eng.Install(h, trig, []Target{WriteTarget(h, 0x30, 0xAA, 0xFFFFFFFF)}, 10, "p10"); err != nil {
		t.Fatalf("could not install p10 rule: %+v", err)
	}
	if _, err := eng.Install(h, trig, []Target{WriteTarget(h, 0x30, 0xBB, 0xFFFFFFFF)}, 20, "p20"); err != nil {
		t.Fatalf("could not install p20 rule: %+v", err)
	}

	if err := mgr.WriteWord(h, 0x20, 0x1); err != nil {
		t.Fatalf("could not write: %+v", err)
	}

	v, err := mgr.ReadWord(h, 0x30)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if v != 0xBB {
		t.Fatalf("got=0x%x, want=0xBB (priority 20 must execute last)", v)
	}
}

// Property 7 — recursion cap: a self-triggering rule terminates with a
// recursion-cap diagnostic instead of recursing forever.
func TestRecursionCap(t *testing.T) {
	mgr := device.NewManager()
	sink := &captureSink{}
	eng := NewEngine(mgr, WithSink(sink), WithRecursionCap(4))
	mgr.SetNotifier(eng)
	if err := mgr.RegisterKind(testKind()); err != nil {
		t.Fatalf("could not register kind: %+v", err)
	}
	h := mustCreate(t, mgr, 0)

	if _, err := eng.Install(h, Trigger{Addr: 0x04, Expected: 0x1, Mask: 0x1},
		[]Target{WriteTarget(h, 0x04, 0x1, 0x1)}, 0, "self"); err != nil {
		t.Fatalf("could not install self-triggering rule: %+v", err)
	}

	if err := mgr.WriteWord(h, 0x04, 0x1); err != nil {
		t.Fatalf("triggering write must still succeed: %+v", err)
	}

	if sink.count(DiagnosticRecursionCap) == 0 {
		t.Fatalf("expected at least one recursion-cap diagnostic")
	}

	v, err := mgr.ReadWord(h, 0x04)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if v&0x1 != 0x1 {
		t.Fatalf("triggering store was not applied: got=0x%x", v)
	}
}

// Property 8 — replacement semantics: re-installing under the same
// name at the same trigger address replaces the old targets; they are
// not invoked afterwards.
func TestReplacementSemantics(t *testing.T) {
	mgr, eng := newFixture(t)
	h := mustCreate(t, mgr, 0)

	var oldFired, newFired bool
	firstID, err := eng.Install(h, Trigger{Addr: 0x40, Expected: 0x1, Mask: 0x1},
		[]Target{CallbackTarget(func(Envelope) { oldFired = true }, nil)}, 0, "alarm")
	if err != nil {
		t.Fatalf("could not install old rule: %+v", err)
	}
	secondID, err := eng.Install(h, Trigger{Addr: 0x40, Expected: 0x1, Mask: 0x1},
		[]Target{CallbackTarget(func(Envelope) { newFired = true }, nil)}, 0, "alarm")
	if err != nil {
		t.Fatalf("could not install replacement rule: %+v", err)
	}
	if firstID != secondID {
		t.Fatalf("re-installing the same name at the same address should reuse the rule id: got=%d and %d", firstID, secondID)
	}

	if err := mgr.WriteWord(h, 0x40, 0x1); err != nil {
		t.Fatalf("could not write: %+v", err)
	}

	if oldFired {
		t.Fatalf("old rule's target fired after replacement")
	}
	if !newFired {
		t.Fatalf("replacement rule's target did not fire")
	}
}

// No-target: a Write target referring to a nonexistent instance
// reports a diagnostic instead of panicking.
func TestNoTargetDiagnostic(t *testing.T) {
	mgr, eng := newFixture(t)
	h := mustCreate(t, mgr, 0)
	sink := &captureSink{}
	eng.sink = sink

	ghost := device.Handle{Kind: testKindID, ID: 99}
	if _, err := eng.Install(h, Trigger{Addr: 0x04, Expected: 0x1, Mask: 0x1},
		[]Target{WriteTarget(ghost, 0x00, 1, 0xFFFFFFFF)}, 0, "ghost"); err != nil {
		t.Fatalf("could not install rule: %+v", err)
	}

	if err := mgr.WriteWord(h, 0x04, 0x1); err != nil {
		t.Fatalf("triggering write must still succeed: %+v", err)
	}
	if sink.count(DiagnosticNoTarget) == 0 {
		t.Fatalf("expected a no-target diagnostic")
	}
}

func TestCapacityExceeded(t *testing.T) {
	mgr := device.NewManager()
	eng := NewEngine(mgr, WithRuleCapacity(1))
	mgr.SetNotifier(eng)
	if err := mgr.RegisterKind(testKind()); err != nil {
		t.Fatalf("could not register kind: %+v", err)
	}
	h := mustCreate(t, mgr, 0)

	if _, err := eng.Install(h, Trigger{Addr: 0x04, Expected: 1, Mask: 1}, nil, 0, "a"); err != nil {
		t.Fatalf("could not install first rule: %+v", err)
	}
	if _, err := eng.Install(h, Trigger{Addr: 0x08, Expected: 1, Mask: 1}, nil, 0, "b"); !errors.Is(err, ErrCapacity) {
		t.Fatalf("got=%v, want=%v", err, ErrCapacity)
	}
}

type captureSink struct {
	diags []Diagnostic
}

func (s *captureSink) Notify(d Diagnostic) { s.diags = append(s.diags, d) }

func (s *captureSink) count(k DiagnosticKind) int {
	n := 0
	for _, d := range s.diags {
		if d.Kind == k {
			n++
		}
	}
	return n
}
