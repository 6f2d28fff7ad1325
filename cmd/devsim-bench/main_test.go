// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	if err := run(false, 1*time.Second, os.TempDir()); err != nil {
		t.Fatalf("could not run scenario battery: %+v", err)
	}
}

func TestRunWithPmon(t *testing.T) {
	dir := t.TempDir()
	if err := run(true, 50*time.Millisecond, dir); err != nil {
		t.Fatalf("could not run scenario battery under pmon: %+v", err)
	}
}

func TestScenariosIndividually(t *testing.T) {
	for _, sc := range scenarios {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			if err := sc.run(); err != nil {
				t.Fatalf("%s (%s): %+v", sc.name, sc.want, err)
			}
		})
	}
}
