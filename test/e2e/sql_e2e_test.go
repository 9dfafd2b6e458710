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

//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"os"
	"slices"
	"testing"

	"github.com/cmsd2/monotone/internal/monotone/engine"
	sqladapter "github.com/cmsd2/monotone/internal/monotone/kv/sql"
)

// TestSQL_CounterAndQueueRoundTrip requires MONOTONE_E2E_SQL_DSN naming a
// reachable database with the monotone_rows table already applied (see
// internal/monotone/kv/sql/sql.go's schema comment), and
// MONOTONE_E2E_SQL_DRIVER naming a database/sql driver registered by
// whoever built this test binary — this package blank-imports none, the
// same driver-agnostic stance internal/monotone/kv/sql itself takes, so
// operators link in lib/pq, pgx, or their engine of choice.
func TestSQL_CounterAndQueueRoundTrip(t *testing.T) {
	dsn := os.Getenv("MONOTONE_E2E_SQL_DSN")
	driverName := os.Getenv("MONOTONE_E2E_SQL_DRIVER")
	if dsn == "" || driverName == "" {
		t.Skip("Skipping: MONOTONE_E2E_SQL_DSN / MONOTONE_E2E_SQL_DRIVER not set")
	}
	if !slices.Contains(sql.Drivers(), driverName) {
		t.Skipf("Skipping: driver %q not registered in this build", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Skipf("Skipping: database not reachable: %v", err)
	}

	adapter := sqladapter.New(db)
	ctx := context.Background()

	counter := engine.NewCounter(adapter, "e2e-sql-counter", backoffPolicy())
	defer counter.Remove(ctx)

	v, err := counter.NextValue(ctx)
	if err != nil || v != 1 {
		t.Fatalf("next_value: v=%d err=%v", v, err)
	}

	queue := engine.NewQueue(adapter, "e2e-sql-queue", backoffPolicy(), nil)
	defer queue.Remove(ctx)

	token, ticket, err := queue.Join(ctx, "foo", nil)
	if err != nil || token != 1 || ticket.Counter != 1 {
		t.Fatalf("join: token=%d ticket=%+v err=%v", token, ticket, err)
	}
}
