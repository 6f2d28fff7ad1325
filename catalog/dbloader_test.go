// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog // import "github.com/go-lpc/devicesim/catalog"

import (
	"context"
	"database/sql/driver"
	"reflect"
	"testing"

	"github.com/go-lpc/devicesim/internal/fakedb"
)

func TestDBLoaderLoad(t *testing.T) {
	l, err := OpenDBLoader("fakedb", "fakedb", "fakedb")
	if err != nil {
		t.Fatalf("could not open db loader: %+v", err)
	}
	defer l.Close()

	want := []RuleConfig{
		{
			KindName: "FPGA", Addr: 0x08, Expected: 1, Mask: 1,
			TargetKindName: "FPGA", TargetID: 0, TargetAddr: 0x00, TargetValue: 1, TargetMask: 1,
			Priority: 0, Name: "db-start",
		},
	}

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{
			"kind_name", "trigger_addr", "expected", "mask",
			"target_kind", "target_id", "target_addr", "target_value", "target_mask",
			"priority", "name",
		},
		Values: [][]driver.Value{
			{
				want[0].KindName, want[0].Addr, want[0].Expected, want[0].Mask,
				want[0].TargetKindName, want[0].TargetID, want[0].TargetAddr, want[0].TargetValue, want[0].TargetMask,
				int64(want[0].Priority), want[0].Name,
			},
		},
	}, func(ctx context.Context) error {
		got, err := l.Load(ctx)
		if err != nil {
			t.Fatalf("could not load rule configs: %+v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid rule configs:\ngot= %#v\nwant=%#v", got, want)
		}
		return nil
	})
}
