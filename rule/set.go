// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rule

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-lpc/devicesim/device"
)

// DefaultRuleCapacity is the default maximum number of rules a Set
// holds, matching the source's per-kind cap of 8.
const DefaultRuleCapacity = 8

// DefaultTargetCapacity is the default maximum number of targets one
// Rule holds, matching the source's per-rule cap of 8.
const DefaultTargetCapacity = 8

// Set is the ordered rule collection attached to one device instance.
// It holds its own mutex rather than sharing the instance's: the
// mutex is only ever held for the short snapshot step of dispatch
// (see Engine.OnWrite), never across action execution, so aliasing it
// with the instance mutex buys nothing and would couple this package
// to device internals it has no business touching.
type Set struct {
	mu          sync.Mutex
	handle      device.Handle
	rules       []*Rule
	nextID      RuleID
	ruleCap     int
	targetCap   int
}

func newSet(h device.Handle, ruleCap, targetCap int) *Set {
	return &Set{handle: h, ruleCap: ruleCap, targetCap: targetCap}
}

// Install installs a rule, appending it to the set (spec §3: rules are
// an ordered, bounded list; original_source/src/monitor/device_rules.c's
// device_rule_add is a pure unconditional append, with no notion of a
// colliding trigger address at all). Two rules may freely share a
// trigger address, distinguished only by priority and target list, as
// scenario S5 requires.
//
// Spec §4.F also describes installing onto "the same trigger address"
// as a replace. The original has no such path, so this treats a rule's
// display name as its caller-facing identity for that purpose: Install
// replaces the existing rule whose (trigger address, name) both match,
// and appends otherwise. Callers that don't care about updating a rule
// in place should give each call a distinct name, or rely on the
// default name: an unnamed Install is assigned a name derived from the
// id it is about to receive, so it is unique to this Set and can never
// collide with another unnamed rule at the same address.
func (s *Set) Install(trig Trigger, targets []Target, priority int, name string) (RuleID, error) {
	if len(targets) > s.targetCap {
		return 0, fmt.Errorf("rule: %d targets exceeds cap %d: %w", len(targets), s.targetCap, ErrTooManyTargets)
	}

	cp := make([]Target, len(targets))
	copy(cp, targets)

	s.mu.Lock()
	defer s.mu.Unlock()

	rname := name
	if rname == "" {
		rname = defaultRuleName(s.handle, s.nextID+1)
	}

	for _, r := range s.rules {
		if r.Trigger.Addr == trig.Addr && r.Name == rname {
			r.Trigger = trig
			r.Targets = cp
			r.Priority = priority
			r.Active = true
			return r.id, nil
		}
	}

	if len(s.rules) >= s.ruleCap {
		return 0, fmt.Errorf("rule: set for %v is full (cap=%d): %w", s.handle, s.ruleCap, ErrCapacity)
	}

	s.nextID++
	r := &Rule{
		id:       s.nextID,
		Trigger:  trig,
		Targets:  cp,
		Priority: priority,
		Active:   true,
		Name:     rname,
	}
	s.rules = append(s.rules, r)
	return r.id, nil
}

// Remove drops the rule with the given id.
func (s *Set) Remove(id RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.rules {
		if r.id == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule: %v: %w", id, ErrNotFound)
}

// SetActive toggles a rule's active flag without removing it, keeping
// its id stable, grounded on the original's device_rule_t.active flag
// (original_source/include/device_rules.h).
func (s *Set) SetActive(id RuleID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.id == id {
			r.Active = active
			return nil
		}
	}
	return fmt.Errorf("rule: %v: %w", id, ErrNotFound)
}

// Rules returns a snapshot copy of every installed rule, regardless of
// active state, for introspection/tests.
func (s *Set) Rules() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = *r
	}
	return out
}

// matching returns, in priority order (ascending; ties broken by
// insertion order), every active rule whose trigger fires for a write
// of value to addr. The returned rules are snapshot copies: the set's
// mutex is released before the caller acts on them (spec §4.G step 3).
func (s *Set) matching(addr, value uint32) []*Rule {
	s.mu.Lock()
	var hits []*Rule
	for _, r := range s.rules {
		if r.Active && r.Trigger.Addr == addr && r.Trigger.Match(value) {
			cp := *r
			hits = append(hits, &cp)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Priority < hits[j].Priority })
	return hits
}
