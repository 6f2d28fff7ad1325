// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestShellCreateReadWrite(t *testing.T) {
	var buf bytes.Buffer
	sh := newShell(&buf)

	for _, cmd := range []string{
		"create flash 0",
		"rules flash 0",
		"read flash 0 0x00",
		"write flash 0 0x04 0x03",
		"read flash 0 0x00",
	} {
		if err := sh.dispatch(cmd); err != nil {
			t.Fatalf("dispatch(%q): %+v", cmd, err)
		}
	}

	out := buf.String()
	if !strings.Contains(out, "created") {
		t.Fatalf("missing create confirmation: %q", out)
	}
	if strings.Count(out, "0x") < 2 {
		t.Fatalf("expected two read results logged: %q", out)
	}
}

func TestShellUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	sh := newShell(&buf)

	if err := sh.dispatch("create bogus 0"); err == nil {
		t.Fatalf("expected an error for an unknown kind")
	}
}

func TestShellUnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	sh := newShell(&buf)

	if err := sh.dispatch("frobnicate"); err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
}

func TestShellDestroyAndReset(t *testing.T) {
	var buf bytes.Buffer
	sh := newShell(&buf)

	if err := sh.dispatch("create fpga 1"); err != nil {
		t.Fatalf("create: %+v", err)
	}
	if err := sh.dispatch("reset fpga 1"); err != nil {
		t.Fatalf("reset: %+v", err)
	}
	if err := sh.dispatch("destroy fpga 1"); err != nil {
		t.Fatalf("destroy: %+v", err)
	}
	if err := sh.dispatch("read fpga 1 0x00"); err == nil {
		t.Fatalf("expected an error reading a destroyed instance")
	}
}
