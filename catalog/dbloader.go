// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// DBLoader reads RuleConfig rows from a device_rules table. Grounded
// on conddb.DB's Open/ping idiom (context-with-timeout dial, %w
// wrapping), generalized from the SDHCAL-specific ASIC config schema
// to a kind-agnostic rule-row schema.
type DBLoader struct {
	db   *sql.DB
	name string
}

const dialTimeout = 5 * time.Second

// OpenDBLoader opens a connection to dbname over driver drv (normally
// "mysql"; tests pass a fake driver name instead).
func OpenDBLoader(drv, dsn, dbname string) (*DBLoader, error) {
	db, err := sql.Open(drv, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: could not open %q db: %w", dbname, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("catalog: could not ping %q db: %w", dbname, err)
	}

	return &DBLoader{db: db, name: dbname}, nil
}

// Close closes the underlying database handle.
func (l *DBLoader) Close() error {
	return l.db.Close()
}

// Load runs the catalog query and returns every row it finds.
func (l *DBLoader) Load(ctx context.Context) ([]RuleConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
SELECT kind_name, trigger_addr, expected, mask,
       target_kind, target_id, target_addr, target_value, target_mask,
       priority, name
FROM device_rules
`)
	if err != nil {
		return nil, fmt.Errorf("catalog: could not query device_rules: %w", err)
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
			return cfgs, fmt.Errorf("catalog: could not scan device_rules row: %w", err)
		}
		cfgs = append(cfgs, c)
	}

	if err := rows.Err(); err != nil {
		return cfgs, fmt.Errorf("catalog: could not scan device_rules: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return cfgs, fmt.Errorf("catalog: context error while loading device_rules: %w", err)
	}

	return cfgs, nil
}
