// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tempsensor implements the temperature-sensor device.Kind,
// ported from original_source/plugins/temp_sensor/temp_sensor.h. The
// original addresses TEMP_REG..THIGH_REG as byte-sized register
// indices 0x00..0x03; this simulator keeps every device word-aligned
// (spec §6 "aligned word access is the norm"), so the four registers
// are spread across 0x00, 0x04, 0x08, 0x0C instead.
package tempsensor // import "github.com/go-lpc/devicesim/kinds/tempsensor"

import (
	"log"

	"github.com/go-lpc/devicesim/device"
	"github.com/go-lpc/devicesim/rule"
)

// Register offsets.
const (
	RegTemp   uint32 = 0x00 // current reading, signed tenths of a degree
	RegConfig uint32 = 0x04
	RegTLow   uint32 = 0x08
	RegTHigh  uint32 = 0x0C

	RegionEnd uint32 = 0x10
)

// Config register bits.
const (
	ConfigShutdown uint32 = 1 << 0
	ConfigAlert    uint32 = 1 << 1
	ConfigPolarity uint32 = 1 << 2
)

// KindID is the device.KindID temperature-sensor instances register under.
const KindID device.KindID = 2

// Logger receives one line whenever a temperature write falls outside
// the configured TLow/THigh band, and one whenever a config write sets
// the alert bit; nil drops them.
var Logger = log.Default()

// Kind returns the temperature-sensor device.Kind. Call InstallRules
// once per instance to wire up its built-in alert rule.
func Kind() device.Kind {
	return device.Kind{
		ID:   KindID,
		Name: "TEMP_SENSOR",
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
	if _, err := inst.Memory().AddRegion(0x00, 4, RegionEnd/4); err != nil {
		return err
	}
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
		{RegTemp, 0},
		{RegConfig, 0},
		{RegTLow, 0},
		{RegTHigh, 0},
	} {
		if err := mem.WriteWord(w.addr, w.value); err != nil {
			return err
		}
	}
	return nil
}

// InstallRules installs temp_sensor_rule_configs.c's built-in rules:
// every write to the temperature register is inspected against the
// TLow/THigh band (the mask-zero trigger there matches unconditionally),
// and a write to the config register's alert-enable bit is logged.
func InstallRules(eng *rule.Engine, mgr *device.Manager, h device.Handle) error {
	alertCB := func(env rule.Envelope) {
		inst, ok := mgr.Get(env.TriggerHandle)
		if !ok {
			return
		}
		lo, errLo := inst.ReadWord(RegTLow)
		hi, errHi := inst.ReadWord(RegTHigh)
		if errLo != nil || errHi != nil {
			return
		}
		temp := int32(env.TriggerValue)
		if Logger == nil {
			return
		}
		if temp < int32(lo) || temp > int32(hi) {
			Logger.Printf("tempsensor %v: reading %d outside band [%d,%d]", env.TriggerHandle, temp, int32(lo), int32(hi))
		}
	}
	if _, err := eng.Install(h, rule.Trigger{Addr: RegTemp, Expected: 0, Mask: 0},
		[]rule.Target{rule.CallbackTarget(alertCB, nil)}, 0, "alert"); err != nil {
		return err
	}

	configCB := func(env rule.Envelope) {
		if Logger != nil {
			Logger.Printf("tempsensor %v: alert mode enabled (config=0x%x)", env.TriggerHandle, env.TriggerValue)
		}
	}
	if _, err := eng.Install(h, rule.Trigger{Addr: RegConfig, Expected: ConfigAlert, Mask: ConfigAlert},
		[]rule.Target{rule.CallbackTarget(configCB, nil)}, 0, "config"); err != nil {
		return err
	}
	return nil
}
