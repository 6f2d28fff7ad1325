// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alertsink // import "github.com/go-lpc/devicesim/alertsink"

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/go-lpc/devicesim/rule"
)

type captureSink struct {
	diags []rule.Diagnostic
}

func (s *captureSink) Notify(d rule.Diagnostic) { s.diags = append(s.diags, d) }

func TestNotifyAlwaysForwardsToInner(t *testing.T) {
	inner := &captureSink{}
	a := New("127.0.0.1", 0, "from@example.com", "pwd", "from@example.com", []string{"to@example.com"},
		WithInner(inner), WithLogger(log.New(&bytes.Buffer{}, "", 0)))

	d := rule.Diagnostic{Kind: rule.DiagnosticCallbackPanic, Message: "boom"}
	a.Notify(d)

	if len(inner.diags) != 1 || inner.diags[0].Message != "boom" {
		t.Fatalf("diagnostic was not forwarded to inner sink: %+v", inner.diags)
	}
}

func TestNotifyMailsAlertKindsOnly(t *testing.T) {
	var buf bytes.Buffer
	inner := &captureSink{}
	a := New("127.0.0.1", 0, "from@example.com", "pwd", "from@example.com", []string{"to@example.com"},
		WithInner(inner), WithLogger(log.New(&buf, "", 0)))

	a.Notify(rule.Diagnostic{Kind: rule.DiagnosticCallbackPanic, Message: "not alert-worthy"})
	if strings.Contains(buf.String(), "could not send mail alert") {
		t.Fatalf("mailed a non-alert-worthy diagnostic kind")
	}

	a.Notify(rule.Diagnostic{Kind: rule.DiagnosticRecursionCap, Message: "alert-worthy"})
	if !strings.Contains(buf.String(), "could not send mail alert") {
		t.Fatalf("expected a (failing, no real server) mail attempt to be logged")
	}
}

func TestNotifyRespectsMaxAlerts(t *testing.T) {
	var buf bytes.Buffer
	a := New("127.0.0.1", 0, "from@example.com", "pwd", "from@example.com", []string{"to@example.com"},
		WithMaxAlerts(1), WithLogger(log.New(&buf, "", 0)))

	a.Notify(rule.Diagnostic{Kind: rule.DiagnosticNoTarget})
	first := buf.Len()
	a.Notify(rule.Diagnostic{Kind: rule.DiagnosticNoTarget})
	if buf.Len() != first {
		t.Fatalf("expected no further mail attempt after the max-alerts cap was reached")
	}
}
