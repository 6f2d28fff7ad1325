// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alertsink wraps a rule.Sink to mail a digest for the
// diagnostic kinds a caller marks as alert-worthy, grounded on
// cmd/eda-ctl/main.go's file-watch alertMail: same gomail.v2 dialer,
// with credentials passed to New by the caller, swapped from a
// file-staleness alert to a rule-engine diagnostic alert.
package alertsink // import "github.com/go-lpc/devicesim/alertsink"

import (
	"crypto/tls"
	"fmt"
	"log"
	"sync"
	"time"

	mail "gopkg.in/gomail.v2"

	"github.com/go-lpc/devicesim/rule"
)

// Sink wraps an inner rule.Sink and additionally mails a digest of
// alert-worthy diagnostics, capped at WithMaxAlerts mails per
// diagnostic kind over the Sink's lifetime.
type Sink struct {
	inner rule.Sink
	dial  *mail.Dialer
	from  string
	to    []string

	alertKinds map[rule.DiagnosticKind]bool

	mu     sync.Mutex
	counts map[rule.DiagnosticKind]int
	maxMsg int

	log *log.Logger
}

// Option configures a Sink at construction time.
type Option func(*Sink)

// WithInner chains a Sink onto another rule.Sink (e.g. a rule.NewLogSink),
// the way cmd/eda-ctl's alert() calls alertMail and alertSMS in sequence.
func WithInner(s rule.Sink) Option {
	return func(a *Sink) { a.inner = s }
}

// WithAlertKinds overrides the default alert-worthy diagnostic kinds
// (recursion-cap, no-target).
func WithAlertKinds(kinds ...rule.DiagnosticKind) Option {
	return func(a *Sink) {
		a.alertKinds = make(map[rule.DiagnosticKind]bool, len(kinds))
		for _, k := range kinds {
			a.alertKinds[k] = true
		}
	}
}

// WithMaxAlerts caps how many mails are sent per diagnostic kind
// before Sink stops mailing (it keeps forwarding to inner), mirroring
// cmd/eda-ctl's maxAlerts constant.
func WithMaxAlerts(n int) Option {
	return func(a *Sink) { a.maxMsg = n }
}

// WithLogger installs a logger used to report mail-send failures.
func WithLogger(l *log.Logger) Option {
	return func(a *Sink) { a.log = l }
}

const defaultMaxAlerts = 5

// New returns a Sink that mails from "from" to the "to" addresses
// through server:port, authenticating as usr/pwd.
func New(server string, port int, usr, pwd, from string, to []string, opts ...Option) *Sink {
	dial := mail.NewDialer(server, port, usr, pwd)
	dial.TLSConfig = &tls.Config{InsecureSkipVerify: true}

	a := &Sink{
		inner: rule.MultiSink(),
		dial:  dial,
		from:  from,
		to:    to,
		alertKinds: map[rule.DiagnosticKind]bool{
			rule.DiagnosticRecursionCap: true,
			rule.DiagnosticNoTarget:     true,
		},
		counts: make(map[rule.DiagnosticKind]int),
		maxMsg: defaultMaxAlerts,
		log:    log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Notify implements rule.Sink: it always forwards to the wrapped sink,
// and additionally mails a digest for diagnostic kinds marked
// alert-worthy, up to WithMaxAlerts times per kind.
func (a *Sink) Notify(d rule.Diagnostic) {
	a.inner.Notify(d)

	if !a.alertKinds[d.Kind] {
		return
	}

	a.mu.Lock()
	a.counts[d.Kind]++
	n := a.counts[d.Kind]
	a.mu.Unlock()

	if n > a.maxMsg {
		return
	}

	a.mail(d)
}

func (a *Sink) mail(d rule.Diagnostic) {
	msg := mail.NewMessage()
	msg.SetHeader("From", a.from)
	msg.SetHeader("Bcc", a.to...)
	msg.SetHeader("Subject", fmt.Sprintf("[devicesim] %s diagnostic on %v", d.Kind, d.Source))
	msg.SetBody("text/plain", fmt.Sprintf("kind: %s\nsource: %v\naddr: 0x%x\nmessage: %s\ntime: %v",
		d.Kind, d.Source, d.Addr, d.Message, time.Now().UTC().Format(time.RFC3339)))

	if err := a.dial.DialAndSend(msg); err != nil && a.log != nil {
		a.log.Printf("alertsink: could not send mail alert: %+v", err)
	}
}

var _ rule.Sink = (*Sink)(nil)
