// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sql is the database/sql kv.Adapter (C11): a second remote backend
// for operators who run the row store on a relational database instead of
// DynamoDB. Grounded on etalazz-vsa's persistence/postgres.go, which is
// driver-agnostic (no concrete driver import, DDL documented as a comment
// rather than a migration file) — generalized from that file's
// GREATEST(last_token, ...) fencing pattern to a hard equality check, since
// this module's conditional write must fail outright on a version mismatch
// rather than silently taking the larger value.
package sql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cmsd2/monotone/internal/monotone/codec"
	"github.com/cmsd2/monotone/internal/monotone/kv"
	"github.com/cmsd2/monotone/pkg/monotone"
)

// Schema (reference):
//
// CREATE TABLE IF NOT EXISTS monotone_rows (
//   id      TEXT PRIMARY KEY,
//   type    TEXT NOT NULL,
//   version BIGINT NOT NULL,
//   value   BIGINT NOT NULL,
//   items   TEXT NOT NULL DEFAULT '[]'
// );
//
// Conditional write, first-ever row:
//   INSERT INTO monotone_rows(id, type, version, value, items)
//     VALUES ($1,$2,$3,$4,$5)
//   ON CONFLICT (id) DO NOTHING;
//
// Conditional write, existing row (the fencing check):
//   UPDATE monotone_rows
//     SET version = $1, value = $2, items = $3
//     WHERE id = $4 AND version = $5;
// A zero rows-affected result from either statement means the row existed
// with a different version (or expectedVersion was stale), which this
// adapter reports as monotone.KindConditionalUpdateFailed.

const (
	insertStmt = `INSERT INTO monotone_rows (id, type, version, value, items) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`
	updateStmt = `UPDATE monotone_rows SET version = $1, value = $2, items = $3 WHERE id = $4 AND version = $5`
	selectStmt = `SELECT type, version, value, items FROM monotone_rows WHERE id = $1`
	deleteStmt = `DELETE FROM monotone_rows WHERE id = $1`
)

// Adapter implements kv.Adapter over a single table reached through
// database/sql, with no concrete driver imported: callers register the
// driver they need (lib/pq, pgx, mysql, sqlite) and pass the *sql.DB in.
type Adapter struct {
	DB *sql.DB
}

// New builds an Adapter over db.
func New(db *sql.DB) *Adapter {
	return &Adapter{DB: db}
}

var _ kv.Adapter = (*Adapter)(nil)

func (a *Adapter) Read(ctx context.Context, id string) (*kv.Row, error) {
	row := a.DB.QueryRowContext(ctx, selectStmt, id)

	var typ string
	var version, value uint64
	var itemsJSON string
	if err := row.Scan(&typ, &version, &value, &itemsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	items, err := codec.DecodeItemList(itemsJSON)
	if err != nil {
		return nil, monotone.ErrMalformedRow(id, "items", err)
	}

	return &kv.Row{ID: id, Type: kv.RowType(typ), Version: version, Value: value, Items: items}, nil
}

// ConditionalWrite performs an UPDATE guarded by the expected version for an
// existing row, or an INSERT for a brand-new one (expectedVersion == 0 and
// no row present). Either statement affecting zero rows means the race was
// lost.
func (a *Adapter) ConditionalWrite(ctx context.Context, row kv.Row, expectedVersion uint64) error {
	itemsJSON, err := codec.EncodeItemList(row.Items)
	if err != nil {
		return err
	}

	if expectedVersion == 0 {
		res, err := a.DB.ExecContext(ctx, insertStmt, row.ID, string(row.Type), row.Version, row.Value, itemsJSON)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
		// ON CONFLICT DO NOTHING affected zero rows: a concurrent creator won
		// the race. Fall through to the guarded update below, which will fail
		// with ConditionalUpdateFailed unless that row also happens to still
		// be at version 0.
	}

	res, err := a.DB.ExecContext(ctx, updateStmt, row.Version, row.Value, itemsJSON, row.ID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return monotone.ErrConditionalUpdateFailed()
	}
	return nil
}

// Delete idempotently removes the row.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	_, err := a.DB.ExecContext(ctx, deleteStmt, id)
	return err
}

// EnsureNamespace is a no-op: the SQL adapter expects the operator to have
// already applied the schema above via their own migration tooling, the way
// etalazz-vsa's postgres.go documents DDL as a comment rather than code that
// runs it.
func (a *Adapter) EnsureNamespace(_ context.Context, _ string, _, _ int64) error {
	return nil
}

// AwaitNamespaceReady is a no-op for the same reason: a relational database
// the operator already provisioned has no "table creating" state to poll.
func (a *Adapter) AwaitNamespaceReady(_ context.Context, _ string) error {
	return nil
}
