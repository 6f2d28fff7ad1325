// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rule

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-lpc/devicesim/device"
)

// DefaultRecursionCap is the maximum rule-chain depth before further
// cascading writes are suppressed (spec §4.G, default 16).
const DefaultRecursionCap = 16

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithSink installs the engine's diagnostic sink. Default is
// silent-drop, per spec §7.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithRecursionCap overrides the default rule-chain recursion cap.
func WithRecursionCap(n int) Option {
	return func(e *Engine) { e.cap = n }
}

// WithRuleCapacity overrides the default per-instance rule-set capacity.
func WithRuleCapacity(n int) Option {
	return func(e *Engine) { e.ruleCap = n }
}

// WithTargetCapacity overrides the default per-rule target-list capacity.
func WithTargetCapacity(n int) Option {
	return func(e *Engine) { e.targetCap = n }
}

// Engine is the reactive rule engine (spec §4.G component G) plus its
// action executor (component I). One Engine is normally shared by an
// entire device.Manager: it owns one Set per device instance that has
// ever had a rule installed, keyed by the instance's value handle
// rather than a pointer, per the spec §9 "no back-pointers" guidance.
type Engine struct {
	mgr *device.Manager

	sink      Sink
	cap       int
	ruleCap   int
	targetCap int

	mu   sync.Mutex
	sets map[device.Handle]*Set
}

// NewEngine creates an Engine bound to mgr. It does not register
// itself as mgr's notifier — call mgr.SetNotifier(engine) (or pass
// device.WithNotifier(engine) at manager construction) explicitly, so
// the wiring is always visible at the call site rather than implicit.
func NewEngine(mgr *device.Manager, opts ...Option) *Engine {
	e := &Engine{
		mgr:       mgr,
		sink:      dropSink{},
		cap:       DefaultRecursionCap,
		ruleCap:   DefaultRuleCapacity,
		targetCap: DefaultTargetCapacity,
		sets:      make(map[device.Handle]*Set),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RuleSet returns the Set for h, creating an empty one on first use.
// This is how device kinds and the rule catalog install predefined
// rules at instance init (spec §3 "Rule catalog... installed at
// instance init").
func (e *Engine) RuleSet(h device.Handle) *Set {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sets[h]
	if !ok {
		s = newSet(h, e.ruleCap, e.targetCap)
		e.sets[h] = s
	}
	return s
}

func (e *Engine) existingRuleSet(h device.Handle) (*Set, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sets[h]
	return s, ok
}

// Install is a convenience wrapper around RuleSet(h).Install.
func (e *Engine) Install(h device.Handle, trig Trigger, targets []Target, priority int, name string) (RuleID, error) {
	return e.RuleSet(h).Install(trig, targets, priority, name)
}

// OnWrite implements device.Notifier. It is called by the manager
// after a word store has completed and the instance's lock has been
// released — never from inside that lock — so any target this write's
// matching rules dispatch to, including h itself, can be safely
// re-entered.
func (e *Engine) OnWrite(ctx context.Context, h device.Handle, addr, value uint32) {
	depth := device.DepthFromContext(ctx)
	if depth >= e.cap {
		e.sink.Notify(Diagnostic{
			Kind:    DiagnosticRecursionCap,
			Source:  h,
			Addr:    addr,
			Message: fmt.Sprintf("rule-chain depth %d reached cap %d; cascading rules suppressed", depth, e.cap),
		})
		return
	}

	set, ok := e.existingRuleSet(h)
	if !ok {
		return
	}

	for _, r := range set.matching(addr, value) {
		for _, tgt := range r.Targets {
			e.execute(ctx, depth, h, addr, value, tgt)
		}
	}
}

// execute performs one action target's effect (component I, the
// action executor). It is called with no lock held.
func (e *Engine) execute(ctx context.Context, depth int, srcHandle device.Handle, triggerAddr, triggerValue uint32, tgt Target) {
	switch tgt.Kind {
	case TargetWrite:
		if _, ok := e.mgr.Get(tgt.Handle); !ok {
			e.sink.Notify(Diagnostic{
				Kind:    DiagnosticNoTarget,
				Source:  srcHandle,
				Addr:    tgt.Addr,
				Message: fmt.Sprintf("write target %v not found", tgt.Handle),
			})
			return
		}

		childCtx := device.WithDepth(ctx, depth+1)
		if err := e.mgr.WriteWordMaskedContext(childCtx, tgt.Handle, tgt.Addr, tgt.Value, tgt.Mask); err != nil {
			e.sink.Notify(Diagnostic{
				Kind:    DiagnosticNoTarget,
				Source:  srcHandle,
				Addr:    tgt.Addr,
				Message: fmt.Sprintf("could not write target %v: %+v", tgt.Handle, err),
			})
		}

	case TargetCallback:
		if tgt.Callback == nil {
			return
		}
		e.invokeCallback(srcHandle, triggerAddr, triggerValue, tgt)

	case TargetSignal:
		// reserved, no-op.

	default:
		e.sink.Notify(Diagnostic{
			Kind:    DiagnosticNoTarget,
			Source:  srcHandle,
			Addr:    tgt.Addr,
			Message: fmt.Sprintf("unknown target kind %v", tgt.Kind),
		})
	}
}

// invokeCallback calls tgt.Callback with no lock held, recovering a
// panic into a diagnostic so one misbehaving callback cannot take
// down an unrelated write's dispatch chain.
func (e *Engine) invokeCallback(srcHandle device.Handle, triggerAddr, triggerValue uint32, tgt Target) {
	defer func() {
		if r := recover(); r != nil {
			e.sink.Notify(Diagnostic{
				Kind:    DiagnosticCallbackPanic,
				Source:  srcHandle,
				Addr:    triggerAddr,
				Message: fmt.Sprintf("callback panicked: %v", r),
			})
		}
	}()

	tgt.Callback(Envelope{
		TriggerHandle: srcHandle,
		TriggerAddr:   triggerAddr,
		TriggerValue:  triggerValue,
		TargetAddr:    tgt.Addr,
		TargetValue:   tgt.Value,
		UserData:      tgt.UserData,
	})
}
