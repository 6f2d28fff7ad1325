// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"fmt"

	"go-hep.org/x/hep/csvutil"
)

// CSVLoader reads RuleConfig rows from a checked-in CSV fixture, for
// deployments that want a static rule table instead of a live
// database. Same row shape as DBLoader; column order:
//
//	kind_name,trigger_addr,expected,mask,target_kind,target_id,
//	target_addr,target_value,target_mask,priority,name
type CSVLoader struct {
	path string
}

// NewCSVLoader returns a loader reading from path.
func NewCSVLoader(path string) *CSVLoader {
	return &CSVLoader{path: path}
}

// Load reads every row of the CSV table at l.path.
func (l *CSVLoader) Load() ([]RuleConfig, error) {
	tbl, err := csvutil.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("catalog: could not open csv table %q: %w", l.path, err)
	}
	defer tbl.Close()

	rows, err := tbl.ReadRows(0, -1)
	if err != nil {
		return nil, fmt.Errorf("catalog: could not read csv table %q: %w", l.path, err)
	}
	defer rows.Close()

	var cfgs []RuleConfig
	for rows.Next() {
		var c RuleConfig
		if err := rows.Scan(
			&c.KindName, &c.Addr, &c.Expected, &c.Mask,
			&c.TargetKindName, &c.TargetID, &c.TargetAddr, &c.TargetValue, &c.TargetMask,
			&c.Priority, &c.Name,
		); err != nil {
			return cfgs, fmt.Errorf("catalog: could not scan csv row in %q: %w", l.path, err)
		}
		cfgs = append(cfgs, c)
	}
	if err := rows.Err(); err != nil {
		return cfgs, fmt.Errorf("catalog: error reading csv table %q: %w", l.path, err)
	}

	return cfgs, nil
}
