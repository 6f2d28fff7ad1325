// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rule

import (
	"log"

	"github.com/go-lpc/devicesim/device"
)

// DiagnosticKind names the semantic kind of a diagnostic the engine
// can emit: devicesim.Kind's no-target and recursion-cap, plus
// callback-panic, which has no devicesim.Kind counterpart.
type DiagnosticKind int

const (
	DiagnosticNoTarget DiagnosticKind = iota
	DiagnosticRecursionCap
	DiagnosticCallbackPanic
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticNoTarget:
		return "no-target"
	case DiagnosticRecursionCap:
		return "recursion-cap"
	case DiagnosticCallbackPanic:
		return "callback-panic"
	default:
		return "unknown"
	}
}

// Diagnostic is one message the engine's error channel carries: spec
// §7's "optional sink configured at manager creation; default is
// silent-drop".
type Diagnostic struct {
	Kind    DiagnosticKind
	Source  device.Handle
	Addr    uint32
	Message string
}

// Sink receives diagnostics the engine cannot return synchronously
// (a callback's own failure, a suppressed cascade). Implementations
// must not block for long — Notify is called from inside the
// dispatch path.
type Sink interface {
	Notify(d Diagnostic)
}

// dropSink is the default sink: silent-drop, per spec §7.
type dropSink struct{}

func (dropSink) Notify(Diagnostic) {}

// logSink adapts a Sink onto a standard *log.Logger, the pattern used
// throughout this project for injected diagnostic output (e.g. the
// msg *log.Logger field on eda.Device/eda.server).
type logSink struct {
	log *log.Logger
}

// NewLogSink returns a Sink that writes one line per diagnostic to l.
func NewLogSink(l *log.Logger) Sink {
	return &logSink{log: l}
}

func (s *logSink) Notify(d Diagnostic) {
	s.log.Printf("rule: %s source=%v addr=0x%x: %s", d.Kind, d.Source, d.Addr, d.Message)
}

// MultiSink fans a diagnostic out to every sink in order, useful for
// combining a log sink with an alerting sink (see package alertsink).
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Notify(d Diagnostic) {
	for _, s := range m {
		s.Notify(d)
	}
}
