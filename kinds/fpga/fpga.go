// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fpga implements the FPGA device.Kind, ported from
// original_source/plugins/fpga/fpga_device.h.
package fpga // import "github.com/go-lpc/devicesim/kinds/fpga"

import (
	"log"
	"sync/atomic"

	"github.com/go-lpc/devicesim/device"
	"github.com/go-lpc/devicesim/rule"
)

// Register offsets.
const (
	RegStatus  uint32 = 0x00
	RegConfig  uint32 = 0x04
	RegControl uint32 = 0x08
	RegIRQ     uint32 = 0x0C

	RegionEnd uint32 = 0x10
)

// Status register bits.
const (
	StatusBusy  uint32 = 1 << 0
	StatusDone  uint32 = 1 << 1
	StatusError uint32 = 1 << 2
	StatusReady uint32 = 1 << 3
)

// Config register bits.
const (
	ConfigReset  uint32 = 1 << 0
	ConfigEnable uint32 = 1 << 1
	ConfigIRQEn  uint32 = 1 << 2
	ConfigDMAEn  uint32 = 1 << 3
)

// Control register bits.
const (
	CtrlStart uint32 = 1 << 0
	CtrlStop  uint32 = 1 << 1
	CtrlPause uint32 = 1 << 2
)

// KindID is the device.KindID FPGA instances register under.
const KindID device.KindID = 3

// Logger receives diagnostic lines for control/config/IRQ activity;
// nil drops them.
var Logger = log.Default()

// Kind returns the FPGA device.Kind. Call InstallRules once per
// instance to wire up its built-in control/IRQ rules.
func Kind() device.Kind {
	return device.Kind{
		ID:   KindID,
		Name: "FPGA",
		Ops: device.Ops{
			Init:    initInstance,
			Read:    readWord,
			Write:   writeWord,
			Reset:   resetInstance,
			Destroy: func(*device.Instance) error { return nil },
		},
	}
}

// state is the FPGA kind's private instance state, installed via
// device.Instance.SetState in place of the original's void*-cast
// per-device context pointer. It tracks the number of start commands
// issued, a count that has no register of its own and so cannot live
// in Memory.
type state struct {
	starts atomic.Int64
}

// Starts returns how many times inst's control register has received
// a start command, or 0 if inst carries no FPGA state (e.g. it is not
// an FPGA instance).
func Starts(inst *device.Instance) int64 {
	st, _ := inst.State().(*state)
	if st == nil {
		return 0
	}
	return st.starts.Load()
}

func initInstance(inst *device.Instance) error {
	if _, err := inst.Memory().AddRegion(0x00, 4, RegionEnd/4); err != nil {
		return err
	}
	inst.SetState(&state{})
	return resetInstance(inst)
}

func readWord(inst *device.Instance, addr uint32) (uint32, error) {
	return inst.Memory().ReadWord(addr)
}

func writeWord(inst *device.Instance, addr, value uint32) error {
	return inst.Memory().WriteWord(addr, value)
}

func resetInstance(inst *device.Instance) error {
	mem := inst.Memory()
	for _, w := range []struct{ addr, value uint32 }{
		{RegStatus, StatusReady},
		{RegConfig, 0},
		{RegControl, 0},
		{RegIRQ, 0},
	} {
		if err := mem.WriteWord(w.addr, w.value); err != nil {
			return err
		}
	}
	return nil
}

// InstallRules installs fpga_rule_configs.c's built-in rules: setting
// the control register's start bit raises status busy and bumps the
// instance's private start counter (see state/Starts); acknowledging
// the IRQ register's flag bit clears it back to zero (a self-targeting
// write, exercising the engine's bounded-reentrancy path); any config
// write is logged.
func InstallRules(eng *rule.Engine, mgr *device.Manager, h device.Handle) error {
	if _, err := eng.Install(h, rule.Trigger{Addr: RegControl, Expected: CtrlStart, Mask: CtrlStart},
		[]rule.Target{
			rule.CallbackTarget(func(env rule.Envelope) {
				if inst, ok := mgr.Get(env.TriggerHandle); ok {
					if st, ok := inst.State().(*state); ok {
						st.starts.Add(1)
					}
				}
				if Logger != nil {
					Logger.Printf("fpga %v: start command (control=0x%x)", env.TriggerHandle, env.TriggerValue)
				}
			}, nil),
			rule.WriteTarget(h, RegStatus, StatusBusy, StatusBusy),
		}, 0, "start"); err != nil {
		return err
	}

	if _, err := eng.Install(h, rule.Trigger{Addr: RegIRQ, Expected: 0x1, Mask: 0x1},
		[]rule.Target{
			rule.CallbackTarget(func(env rule.Envelope) {
				if Logger != nil {
					Logger.Printf("fpga %v: interrupt asserted", env.TriggerHandle)
				}
			}, nil),
			rule.WriteTarget(h, RegIRQ, 0, 0x1),
		}, 0, "irq"); err != nil {
		return err
	}

	if _, err := eng.Install(h, rule.Trigger{Addr: RegConfig, Expected: 0, Mask: 0},
		[]rule.Target{rule.CallbackTarget(func(env rule.Envelope) {
			if Logger != nil {
				Logger.Printf("fpga %v: config write 0x%x", env.TriggerHandle, env.TriggerValue)
			}
		}, nil)}, 0, "config"); err != nil {
		return err
	}
	return nil
}
