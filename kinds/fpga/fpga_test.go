// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fpga // import "github.com/go-lpc/devicesim/kinds/fpga"

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/go-lpc/devicesim/device"
	"github.com/go-lpc/devicesim/rule"
)

func newFixture(t *testing.T) (*device.Manager, device.Handle) {
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
	if err := InstallRules(eng, mgr, h); err != nil {
		t.Fatalf("could not install rules: %+v", err)
	}
	return mgr, h
}

func TestStartSetsBusy(t *testing.T) {
	mgr, h := newFixture(t)

	if err := mgr.WriteWord(h, RegControl, CtrlStart); err != nil {
		t.Fatalf("could not write control: %+v", err)
	}
	v, err := mgr.ReadWord(h, RegStatus)
	if err != nil {
		t.Fatalf("could not read status: %+v", err)
	}
	if v&StatusBusy == 0 {
		t.Fatalf("status busy bit not set after start: got=0x%x", v)
	}
}

func TestStartCounterIncrements(t *testing.T) {
	mgr, h := newFixture(t)
	inst, ok := mgr.Get(h)
	if !ok {
		t.Fatalf("instance not found")
	}

	if got := Starts(inst); got != 0 {
		t.Fatalf("got=%d starts before any command, want=0", got)
	}

	for i := 0; i < 3; i++ {
		if err := mgr.WriteWord(h, RegControl, CtrlStart); err != nil {
			t.Fatalf("could not write control: %+v", err)
		}
	}
	if got := Starts(inst); got != 3 {
		t.Fatalf("got=%d starts, want=3", got)
	}
}

func TestIRQSelfClears(t *testing.T) {
	mgr, h := newFixture(t)

	var buf bytes.Buffer
	prev := Logger
	defer func() { Logger = prev }()
	Logger = log.New(&buf, "", 0)

	if err := mgr.WriteWord(h, RegIRQ, 0x1); err != nil {
		t.Fatalf("could not write irq: %+v", err)
	}
	if !strings.Contains(buf.String(), "interrupt asserted") {
		t.Fatalf("expected an interrupt-asserted log line: %q", buf.String())
	}

	v, err := mgr.ReadWord(h, RegIRQ)
	if err != nil {
		t.Fatalf("could not read irq: %+v", err)
	}
	if v&0x1 != 0 {
		t.Fatalf("irq flag was not self-cleared: got=0x%x", v)
	}
}
