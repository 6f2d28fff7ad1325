// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package catalog holds the rule catalog (spec §3 component H): a
// per-kind table of built-in rule rows, plus two loaders —
// database-backed and CSV-backed — that turn externally configured
// rows into installed rule.Rule values. It never carries the
// closure-based rules a kind installs directly (those live in
// kinds/flash, kinds/tempsensor, kinds/fpga); a catalog row can only
// describe a Write target, since a database column or a CSV cell
// cannot hold a Go func.
package catalog // import "github.com/go-lpc/devicesim/catalog"

import (
	"fmt"

	"github.com/go-lpc/devicesim/device"
	"github.com/go-lpc/devicesim/kinds/flash"
	"github.com/go-lpc/devicesim/kinds/fpga"
	"github.com/go-lpc/devicesim/kinds/tempsensor"
	"github.com/go-lpc/devicesim/rule"
)

// RuleConfig is one row of a rule catalog: the generalized form of
// original_source/include/device_rule_configs.h's device_rule_config_t,
// restricted to a single Write target since catalog rows are meant to
// be loaded from a database or CSV file.
type RuleConfig struct {
	KindName string
	Addr     uint32
	Expected uint32
	Mask     uint32

	TargetKindName string
	TargetID       uint32
	TargetAddr     uint32
	TargetValue    uint32
	TargetMask     uint32

	Priority int
	Name     string
}

// builtins mirrors the Write-target-only subset of each kind's
// *_rule_configs.c table. The callback-bearing rows of those same
// tables are installed directly by kinds/*.InstallRules, since a
// RuleConfig row has no way to carry a callback.
var builtins = map[device.KindID][]RuleConfig{
	fpga.KindID: {
		{
			KindName: "FPGA", Addr: fpga.RegControl, Expected: fpga.CtrlStart, Mask: fpga.CtrlStart,
			TargetKindName: "FPGA", TargetAddr: fpga.RegStatus, TargetValue: fpga.StatusBusy, TargetMask: fpga.StatusBusy,
			Priority: 0, Name: "catalog-start-busy",
		},
	},
}

// BuiltinRules returns the catalog's built-in Write-target rows for
// kindID, or nil if the kind has none.
func BuiltinRules(kindID device.KindID) []RuleConfig {
	rows := builtins[kindID]
	out := make([]RuleConfig, len(rows))
	copy(out, rows)
	return out
}

// kindIDByName resolves the handful of kind names a catalog row can
// reference. It is intentionally small and closed, the same tradeoff
// original_source/include/device_types.h makes with its enum.
func kindIDByName(name string) (device.KindID, error) {
	switch name {
	case "FLASH":
		return flash.KindID, nil
	case "TEMP_SENSOR":
		return tempsensor.KindID, nil
	case "FPGA":
		return fpga.KindID, nil
	default:
		return 0, fmt.Errorf("catalog: unknown kind name %q", name)
	}
}

// Install turns cfg into a rule.Rule and installs it on h's rule set.
func Install(eng *rule.Engine, h device.Handle, cfg RuleConfig) (rule.RuleID, error) {
	targetKind, err := kindIDByName(cfg.TargetKindName)
	if err != nil {
		return 0, err
	}
	targetHandle := device.Handle{Kind: targetKind, ID: device.InstanceID(cfg.TargetID)}

	trig := rule.Trigger{Addr: cfg.Addr, Expected: cfg.Expected, Mask: cfg.Mask}
	targets := []rule.Target{rule.WriteTarget(targetHandle, cfg.TargetAddr, cfg.TargetValue, cfg.TargetMask)}

	id, err := eng.Install(h, trig, targets, cfg.Priority, cfg.Name)
	if err != nil {
		return 0, fmt.Errorf("catalog: could not install rule %q: %w", cfg.Name, err)
	}
	return id, nil
}

// InstallBuiltins installs the catalog's built-in rows for h's kind
// onto eng, targeting h itself unless a row names a different kind.
func InstallBuiltins(eng *rule.Engine, h device.Handle) error {
	for _, cfg := range BuiltinRules(h.Kind) {
		if kindID, err := kindIDByName(cfg.TargetKindName); err == nil && kindID == h.Kind {
			cfg.TargetID = uint32(h.ID)
		}
		if _, err := Install(eng, h, cfg); err != nil {
			return err
		}
	}
	return nil
}

// InstallAll installs every row in cfgs, stopping at the first error.
func InstallAll(eng *rule.Engine, h device.Handle, cfgs []RuleConfig) error {
	for _, cfg := range cfgs {
		if _, err := Install(eng, h, cfg); err != nil {
			return err
		}
	}
	return nil
}
