// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command devsim-bench runs the device simulator's scenario battery as
// a smoke test and, optionally, reports the bench process's own
// resource usage via pmon, the way cmd/daq-boot monitors its booted
// processes.
package main // import "github.com/go-lpc/devicesim/cmd/devsim-bench"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"

	"github.com/go-lpc/devicesim/device"
	"github.com/go-lpc/devicesim/kinds/flash"
	"github.com/go-lpc/devicesim/kinds/fpga"
	"github.com/go-lpc/devicesim/kinds/tempsensor"
	"github.com/go-lpc/devicesim/rule"
)

var (
	doMon  = flag.Bool("pmon", false, "enable pmon monitoring of this process")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon sampling frequency")
	logDir = flag.String("logdir", os.TempDir(), "directory for the pmon log file")
)

func main() {
	flag.Parse()

	log.SetPrefix("devsim-bench: ")
	log.SetFlags(0)

	if err := run(*doMon, *doFreq, *logDir); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(doMon bool, freq time.Duration, dir string) error {
	if doMon {
		p, err := pmon.Monitor(os.Getpid())
		if err != nil {
			return fmt.Errorf("could not start monitoring this process: %w", err)
		}
		f, err := os.Create(filepath.Join(dir, "devsim-bench-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file: %w", err)
		}
		defer f.Close()
		p.W = f
		p.Freq = freq

		go func() {
			log.Printf("run pmon...")
			if err := p.Run(); err != nil {
				log.Printf("could not run pmon: %+v", err)
			}
		}()
		defer func() {
			if err := p.Kill(); err != nil {
				log.Printf("could not stop pmon: %+v", err)
			}
		}()
	}

	var grp errgroup.Group
	for _, sc := range scenarios {
		sc := sc
		grp.Go(func() error {
			if err := sc.run(); err != nil {
				return fmt.Errorf("%s: %w", sc.name, err)
			}
			log.Printf("%s: %s: ok", sc.name, sc.want)
			return nil
		})
	}

	return grp.Wait()
}

// scenario is one named, self-contained check run concurrently with
// its siblings, each against its own freshly built device.Manager and
// rule.Engine so none share mutable state.
type scenario struct {
	name string
	want string
	run  func() error
}

var scenarios = []scenario{
	{
		name: "S1",
		want: "flash resets to status ready",
		run: func() error {
			mgr, _, h, err := newFlash()
			if err != nil {
				return err
			}
			v, err := mgr.ReadWord(h, flash.RegStatus)
			if err != nil {
				return err
			}
			if v&flash.StatusReady == 0 {
				return fmt.Errorf("status register 0x%x missing ready bit after reset", v)
			}
			return nil
		},
	},
	{
		name: "S2",
		want: "an FPGA start rule's write target crosses into its own status register",
		run: func() error {
			mgr, eng, h, err := newFPGA()
			if err != nil {
				return err
			}
			if err := fpga.InstallRules(eng, mgr, h); err != nil {
				return err
			}
			if err := mgr.WriteWord(h, fpga.RegControl, fpga.CtrlStart); err != nil {
				return err
			}
			v, err := mgr.ReadWord(h, fpga.RegStatus)
			if err != nil {
				return err
			}
			if v&fpga.StatusBusy == 0 {
				return fmt.Errorf("status register 0x%x not marked busy after start", v)
			}
			return nil
		},
	},
	{
		name: "S3",
		want: "a temperature write outside the configured band fans out to the alert callback",
		run: func() error {
			mgr, eng, h, err := newTempSensor()
			if err != nil {
				return err
			}
			if err := tempsensor.InstallRules(eng, mgr, h); err != nil {
				return err
			}
			if err := mgr.WriteWord(h, tempsensor.RegTLow, 0); err != nil {
				return err
			}
			if err := mgr.WriteWord(h, tempsensor.RegTHigh, 100); err != nil {
				return err
			}
			// in-band: no alert expected, only that the write itself succeeds.
			if err := mgr.WriteWord(h, tempsensor.RegTemp, 50); err != nil {
				return err
			}
			// out-of-band: exercises the alert rule's callback fan-out.
			if err := mgr.WriteWord(h, tempsensor.RegTemp, 150); err != nil {
				return err
			}
			return nil
		},
	},
	{
		name: "S4",
		want: "a masked trigger mismatch does not fire",
		run: func() error {
			mgr, eng, h, err := newFlash()
			if err != nil {
				return err
			}
			var fired bool
			if _, err := eng.Install(h, rule.Trigger{Addr: flash.RegControl, Expected: flash.CtrlErase, Mask: flash.CtrlErase},
				[]rule.Target{rule.CallbackTarget(func(rule.Envelope) { fired = true }, nil)}, 0, "s4"); err != nil {
				return err
			}
			if err := mgr.WriteWord(h, flash.RegControl, flash.CtrlRead); err != nil {
				return err
			}
			if fired {
				return fmt.Errorf("rule fired on a masked-out value")
			}
			return nil
		},
	},
	{
		name: "S5",
		want: "two distinct rules at one trigger address both fire, in priority order",
		run: func() error {
			mgr, eng, h, err := newFlash()
			if err != nil {
				return err
			}
			trig := rule.Trigger{Addr: flash.RegAddress, Expected: 0x1, Mask: 0x1}
			if _, err := eng.Install(h, trig, []rule.Target{rule.WriteTarget(h, flash.RegConfig, 0xAA, 0xFFFFFFFF)}, 10, "p10"); err != nil {
				return err
			}
			if _, err := eng.Install(h, trig, []rule.Target{rule.WriteTarget(h, flash.RegConfig, 0xBB, 0xFFFFFFFF)}, 20, "p20"); err != nil {
				return err
			}
			if err := mgr.WriteWord(h, flash.RegAddress, 0x1); err != nil {
				return err
			}
			v, err := mgr.ReadWord(h, flash.RegConfig)
			if err != nil {
				return err
			}
			if v != 0xBB {
				return fmt.Errorf("higher-priority rule's target did not win: config=0x%x", v)
			}
			return nil
		},
	},
	{
		name: "S6",
		want: "an out-of-range write is rejected",
		run: func() error {
			mgr, _, h, err := newFlash()
			if err != nil {
				return err
			}
			if err := mgr.WriteWord(h, flash.RegionEnd, 0); err == nil {
				return fmt.Errorf("out-of-range write at 0x%x unexpectedly succeeded", flash.RegionEnd)
			}
			return nil
		},
	},
}

func newFlash() (*device.Manager, *rule.Engine, device.Handle, error) {
	mgr := device.NewManager()
	eng := rule.NewEngine(mgr)
	mgr.SetNotifier(eng)
	if err := mgr.RegisterKind(flash.Kind()); err != nil {
		return nil, nil, device.Handle{}, err
	}
	if _, err := mgr.CreateInstance(flash.KindID, 0); err != nil {
		return nil, nil, device.Handle{}, err
	}
	return mgr, eng, device.Handle{Kind: flash.KindID, ID: 0}, nil
}

func newFPGA() (*device.Manager, *rule.Engine, device.Handle, error) {
	mgr := device.NewManager()
	eng := rule.NewEngine(mgr)
	mgr.SetNotifier(eng)
	if err := mgr.RegisterKind(fpga.Kind()); err != nil {
		return nil, nil, device.Handle{}, err
	}
	if _, err := mgr.CreateInstance(fpga.KindID, 0); err != nil {
		return nil, nil, device.Handle{}, err
	}
	return mgr, eng, device.Handle{Kind: fpga.KindID, ID: 0}, nil
}

func newTempSensor() (*device.Manager, *rule.Engine, device.Handle, error) {
	mgr := device.NewManager()
	eng := rule.NewEngine(mgr)
	mgr.SetNotifier(eng)
	if err := mgr.RegisterKind(tempsensor.Kind()); err != nil {
		return nil, nil, device.Handle{}, err
	}
	if _, err := mgr.CreateInstance(tempsensor.KindID, 0); err != nil {
		return nil, nil, device.Handle{}, err
	}
	return mgr, eng, device.Handle{Kind: tempsensor.KindID, ID: 0}, nil
}
