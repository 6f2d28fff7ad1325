// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flash implements the FLASH device.Kind: a status/control
// register block matching original_source/plugins/flash/flash_device.h,
// plus the built-in rules from flash_rule_configs.c that fire callbacks
// when the control register receives an erase, read or write command.
package flash // import "github.com/go-lpc/devicesim/kinds/flash"

import (
	"log"

	"github.com/go-lpc/devicesim/device"
	"github.com/go-lpc/devicesim/rule"
)

// Register offsets, ported from flash_device.h.
const (
	RegStatus  uint32 = 0x00
	RegControl uint32 = 0x04
	RegConfig  uint32 = 0x08
	RegAddress uint32 = 0x0C
	RegData    uint32 = 0x10

	// RegionEnd is the first unmapped word (scenario S6): the register
	// file is deliberately kept to the five registers above, not the
	// full 64KB data area flash_device.h reserves, since a simulated
	// NOR array is out of scope (spec Non-goals: no real storage-medium
	// emulation).
	RegionEnd uint32 = 0x14
)

// Status register bits.
const (
	StatusBusy  uint32 = 0x01
	StatusError uint32 = 0x02
	StatusReady uint32 = 0x04
	StatusSRWD  uint32 = 0x08
	StatusWEL   uint32 = 0x10
)

// Control register commands.
const (
	CtrlRead  uint32 = 0x01
	CtrlWrite uint32 = 0x02
	CtrlErase uint32 = 0x03
)

// KindID is the device.KindID FLASH instances register under.
const KindID device.KindID = 1

// Logger receives one line per erase/read/write control command, the
// Go equivalent of flash_device.c's callback trio; nil drops them.
var Logger = log.Default()

// Kind returns the FLASH device.Kind. Call InstallRules once per
// instance (after device.Manager.CreateInstance) to wire up its
// built-in control-register rules.
func Kind() device.Kind {
	return device.Kind{
		ID:   KindID,
		Name: "FLASH",
		Ops: device.Ops{
			Init:    initInstance,
			Read:    readWord,
			Write:   writeWord,
			Reset:   resetInstance,
			Destroy: func(*device.Instance) error { return nil },
		},
	}
}

func initInstance(inst *device.Instance) error {
	if _, err := inst.Memory().AddRegion(0x00, 4, (RegionEnd-0x00)/4); err != nil {
		return err
	}
	if err := resetInstance(inst); err != nil {
		return err
	}
	return nil
}

func readWord(inst *device.Instance, addr uint32) (uint32, error) {
	return inst.Memory().ReadWord(addr)
}

func writeWord(inst *device.Instance, addr, value uint32) error {
	return inst.Memory().WriteWord(addr, value)
}

func resetInstance(inst *device.Instance) error {
	mem := inst.Memory()
	for _, w := range []struct {
		addr, value uint32
	}{
		{RegStatus, StatusReady},
		{RegControl, 0},
		{RegConfig, 0},
		{RegAddress, 0},
		{RegData, 0},
	} {
		if err := mem.WriteWord(w.addr, w.value); err != nil {
			return err
		}
	}
	return nil
}

// InstallRules installs flash_rule_configs.c's built-in callback rules
// onto h's rule set: writing CtrlErase/CtrlRead/CtrlWrite to the
// control register logs the corresponding operation. Callers install
// these once per instance, typically right after device.Manager.CreateInstance.
func InstallRules(eng *rule.Engine, h device.Handle) error {
	cmds := []struct {
		name string
		cmd  uint32
		op   string
	}{
		{"erase", CtrlErase, "erase"},
		{"read", CtrlRead, "read"},
		{"write", CtrlWrite, "write"},
	}
	for _, c := range cmds {
		op := c.op
		cb := func(env rule.Envelope) {
			if Logger != nil {
				Logger.Printf("flash %v: %s command (control=0x%x)", env.TriggerHandle, op, env.TriggerValue)
			}
		}
		if _, err := eng.Install(h, rule.Trigger{Addr: RegControl, Expected: c.cmd, Mask: CtrlRead | CtrlWrite | CtrlErase},
			[]rule.Target{rule.CallbackTarget(cb, nil)}, 0, c.name); err != nil {
			return err
		}
	}
	return nil
}
