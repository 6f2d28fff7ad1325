// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command devsim-repl is an interactive shell over the device
// simulator: it registers the built-in device kinds, then lets an
// operator create instances and poke at their registers by hand.
package main // import "github.com/go-lpc/devicesim/cmd/devsim-repl"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/go-lpc/devicesim/catalog"
	"github.com/go-lpc/devicesim/device"
	"github.com/go-lpc/devicesim/kinds/flash"
	"github.com/go-lpc/devicesim/kinds/fpga"
	"github.com/go-lpc/devicesim/kinds/tempsensor"
	"github.com/go-lpc/devicesim/rule"
)

var histFile = flag.String("hist", filepath.Join(os.TempDir(), "devsim-repl.history"), "history file")

func main() {
	flag.Parse()

	log.SetPrefix("devsim-repl: ")
	log.SetFlags(0)

	if err := run(*histFile, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("%+v", err)
	}
}

// kindsByName maps the kind name an operator types to its KindID, the
// way repl takes user-facing command verbs.
var kindsByName = map[string]device.KindID{
	"flash": flash.KindID,
	"temp":  tempsensor.KindID,
	"fpga":  fpga.KindID,
}

// shell holds the REPL's live state: one Manager, one Engine, shared
// across every command the operator types.
type shell struct {
	mgr *device.Manager
	eng *rule.Engine
	out io.Writer
}

func newShell(out io.Writer) *shell {
	mgr := device.NewManager()
	eng := rule.NewEngine(mgr, rule.WithSink(rule.NewLogSink(log.Default())))
	mgr.SetNotifier(eng)

	for _, kind := range []device.Kind{flash.Kind(), tempsensor.Kind(), fpga.Kind()} {
		if err := mgr.RegisterKind(kind); err != nil {
			log.Fatalf("could not register kind %q: %+v", kind.Name, err)
		}
	}

	return &shell{mgr: mgr, eng: eng, out: out}
}

func run(histFile string, in io.Reader, out io.Writer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(histFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histFile); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
	}()

	sh := newShell(out)
	fmt.Fprintln(out, "devsim-repl: type 'help' for a command list, 'quit' to exit")

	for {
		cmd, err := line.Prompt("devsim> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read prompt: %w", err)
		}
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		line.AppendHistory(cmd)

		if cmd == "quit" || cmd == "exit" {
			return nil
		}

		if err := sh.dispatch(cmd); err != nil {
			fmt.Fprintf(out, "error: %+v\n", err)
		}
	}
}

func (sh *shell) dispatch(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "help":
		sh.help()
	case "create":
		return sh.create(fields[1:])
	case "destroy":
		return sh.destroy(fields[1:])
	case "read":
		return sh.read(fields[1:])
	case "write":
		return sh.write(fields[1:])
	case "reset":
		return sh.reset(fields[1:])
	case "rules":
		return sh.installRules(fields[1:])
	default:
		return fmt.Errorf("unknown command %q (try 'help')", fields[0])
	}
	return nil
}

func (sh *shell) help() {
	fmt.Fprintln(sh.out, `commands:
  create <kind> <id>          create an instance (kind: flash|temp|fpga)
  destroy <kind> <id>         destroy an instance
  read <kind> <id> <addr>     read a register (hex, e.g. 0x04)
  write <kind> <id> <addr> <value>
  reset <kind> <id>           reset an instance to its power-on defaults
  rules <kind> <id>           install the kind's built-in rules
  quit, exit`)
}

func (sh *shell) parseHandle(kindName, idStr string) (device.Handle, error) {
	kindID, ok := kindsByName[kindName]
	if !ok {
		return device.Handle{}, fmt.Errorf("unknown kind %q (want flash, temp or fpga)", kindName)
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return device.Handle{}, fmt.Errorf("invalid instance id %q: %w", idStr, err)
	}
	return device.Handle{Kind: kindID, ID: device.InstanceID(id)}, nil
}

func (sh *shell) create(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: create <kind> <id>")
	}
	h, err := sh.parseHandle(args[0], args[1])
	if err != nil {
		return err
	}
	if _, err := sh.mgr.CreateInstance(h.Kind, h.ID); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "created %v\n", h)
	return nil
}

func (sh *shell) destroy(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: destroy <kind> <id>")
	}
	h, err := sh.parseHandle(args[0], args[1])
	if err != nil {
		return err
	}
	if err := sh.mgr.DestroyInstance(h.Kind, h.ID); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "destroyed %v\n", h)
	return nil
}

func (sh *shell) read(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: read <kind> <id> <addr>")
	}
	h, err := sh.parseHandle(args[0], args[1])
	if err != nil {
		return err
	}
	addr, err := parseHex(args[2])
	if err != nil {
		return err
	}
	v, err := sh.mgr.ReadWord(h, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "0x%08x\n", v)
	return nil
}

func (sh *shell) write(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: write <kind> <id> <addr> <value>")
	}
	h, err := sh.parseHandle(args[0], args[1])
	if err != nil {
		return err
	}
	addr, err := parseHex(args[2])
	if err != nil {
		return err
	}
	value, err := parseHex(args[3])
	if err != nil {
		return err
	}
	return sh.mgr.WriteWord(h, addr, value)
}

func (sh *shell) reset(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: reset <kind> <id>")
	}
	h, err := sh.parseHandle(args[0], args[1])
	if err != nil {
		return err
	}
	inst, ok := sh.mgr.Get(h)
	if !ok {
		return fmt.Errorf("%v: %w", h, device.ErrNotFound)
	}
	return inst.Reset()
}

// installRules wires up a kind's hardcoded built-in rules plus any
// catalog built-ins registered for it, the way a caller does right
// after create in non-interactive code.
func (sh *shell) installRules(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: rules <kind> <id>")
	}
	h, err := sh.parseHandle(args[0], args[1])
	if err != nil {
		return err
	}
	switch h.Kind {
	case flash.KindID:
		if err := flash.InstallRules(sh.eng, h); err != nil {
			return err
		}
	case tempsensor.KindID:
		if err := tempsensor.InstallRules(sh.eng, sh.mgr, h); err != nil {
			return err
		}
	case fpga.KindID:
		if err := fpga.InstallRules(sh.eng, sh.mgr, h); err != nil {
			return err
		}
	}
	if err := catalog.InstallBuiltins(sh.eng, h); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "installed built-in rules for %v\n", h)
	return nil
}

func parseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return uint32(v), nil
}
