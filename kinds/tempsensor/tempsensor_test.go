// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tempsensor // import "github.com/go-lpc/devicesim/kinds/tempsensor"

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

func TestWithinBandNoAlert(t *testing.T) {
	mgr, h := newFixture(t)

	var buf bytes.Buffer
	prev := Logger
	defer func() { Logger = prev }()
	Logger = log.New(&buf, "", 0)

	if err := mgr.WriteWord(h, RegTHigh, 300); err != nil {
		t.Fatalf("could not write thigh: %+v", err)
	}
	if err := mgr.WriteWord(h, RegTLow, 0); err != nil {
		t.Fatalf("could not write tlow: %+v", err)
	}
	if err := mgr.WriteWord(h, RegTemp, 250); err != nil {
		t.Fatalf("could not write temp: %+v", err)
	}
	if strings.Contains(buf.String(), "outside band") {
		t.Fatalf("unexpected alert for an in-band reading: %q", buf.String())
	}
}

func TestOutOfBandAlert(t *testing.T) {
	mgr, h := newFixture(t)

	var buf bytes.Buffer
	prev := Logger
	defer func() { Logger = prev }()
	Logger = log.New(&buf, "", 0)

	if err := mgr.WriteWord(h, RegTHigh, 300); err != nil {
		t.Fatalf("could not write thigh: %+v", err)
	}
	if err := mgr.WriteWord(h, RegTemp, 450); err != nil {
		t.Fatalf("could not write temp: %+v", err)
	}
	if !strings.Contains(buf.String(), "outside band") {
		t.Fatalf("expected an out-of-band alert: %q", buf.String())
	}
}

func TestConfigAlertEnableLogged(t *testing.T) {
	mgr, h := newFixture(t)

	var buf bytes.Buffer
	prev := Logger
	defer func() { Logger = prev }()
	Logger = log.New(&buf, "", 0)

	if err := mgr.WriteWord(h, RegConfig, ConfigAlert); err != nil {
		t.Fatalf("could not write config: %+v", err)
	}
	if !strings.Contains(buf.String(), "alert mode enabled") {
		t.Fatalf("expected an alert-mode-enabled log line: %q", buf.String())
	}
}
