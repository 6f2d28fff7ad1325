// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flash // import "github.com/go-lpc/devicesim/kinds/flash"

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/go-lpc/devicesim/device"
	"github.com/go-lpc/devicesim/rule"
)

func newFixture(t *testing.T) (*device.Manager, *rule.Engine, device.Handle) {
	t.Helper()
	mgr := device.NewManager()
	eng := rule.NewEngine(mgr)
	mgr.SetNotifier(eng)
	if err := mgr.RegisterKind(Kind()); err != nil {
		t.Fatalf("could not register kind: %+v", err)
	}
	if _, err := mgr.CreateInstance(KindID, 0); err != nil {
		t.Fatalf("could not create instance: %+v", err)
	}
	h := device.Handle{Kind: KindID, ID: 0}
	if err := InstallRules(eng, h); err != nil {
		t.Fatalf("could not install rules: %+v", err)
	}
	return mgr, eng, h
}

// S1 — status write-ready: writing the ready bit to status reads back unchanged.
func TestStatusWriteReady(t *testing.T) {
	mgr, _, h := newFixture(t)

	if err := mgr.WriteWord(h, RegStatus, StatusReady); err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	got, err := mgr.ReadWord(h, RegStatus)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if got != StatusReady {
		t.Fatalf("got=0x%x, want=0x%x", got, StatusReady)
	}
}

// S6 — out-of-range write: the first unmapped word rejects the write
// and leaves the region untouched.
func TestOutOfRangeWrite(t *testing.T) {
	mgr, _, h := newFixture(t)

	if err := mgr.WriteWord(h, RegionEnd, 1); err == nil {
		t.Fatalf("expected an out-of-range error")
	}
	v, err := mgr.ReadWord(h, RegStatus)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if v != StatusReady {
		t.Fatalf("region was modified by an out-of-range write: status=0x%x", v)
	}
}

func TestResetDefaults(t *testing.T) {
	mgr, _, h := newFixture(t)

	if err := mgr.WriteWord(h, RegControl, CtrlErase); err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	inst, ok := mgr.Get(h)
	if !ok {
		t.Fatalf("instance not found")
	}
	if err := inst.Reset(); err != nil {
		t.Fatalf("could not reset: %+v", err)
	}
	v, err := mgr.ReadWord(h, RegControl)
	if err != nil {
		t.Fatalf("could not read: %+v", err)
	}
	if v != 0 {
		t.Fatalf("control register not cleared by reset: got=0x%x", v)
	}
}

func TestEraseRuleFires(t *testing.T) {
	mgr, _, h := newFixture(t)

	var buf bytes.Buffer
	prev := Logger
	defer func() { Logger = prev }()
	Logger = log.New(&buf, "", 0)

	if err := mgr.WriteWord(h, RegControl, CtrlErase); err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if !strings.Contains(buf.String(), "erase command") {
		t.Fatalf("erase rule did not log: %q", buf.String())
	}
}
