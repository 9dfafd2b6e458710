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

// Package kv defines the uniform contract every backing store must satisfy
// (C1 in the design): read a row, conditionally write a row, delete a row,
// and provision/await readiness of the namespace the rows live in. The
// Counter and Queue engines in internal/monotone/engine depend only on this
// interface, never on a concrete backend.
package kv

import (
	"context"

	"github.com/cmsd2/monotone/pkg/monotone"
)

// RowType discriminates a row's entity kind. It is immutable: a row created
// as one type must never be read or written as the other.
type RowType string

const (
	RowTypeCounter RowType = "COUNTER"
	RowTypeQueue   RowType = "QUEUE"
)

// Position is one participant's place in a queue row's Items list.
type Position struct {
	ProcessID string
	Counter   uint64
	Tags      monotone.Tags
}

// Row is the single backing record for either a counter or a queue. Items is
// populated only for RowTypeQueue.
type Row struct {
	ID      string
	Type    RowType
	Version uint64
	Value   uint64
	Items   []Position
}

// NewRow returns the zero-value default a lazily-created row starts from:
// version 0, value 0, no items.
func NewRow(id string, typ RowType) Row {
	return Row{ID: id, Type: typ}
}

// Adapter is the uniform operation set (C1) every backend implements.
// Implementations: internal/monotone/kv/dynamo, internal/monotone/kv/sql,
// internal/monotone/kv/redis.
type Adapter interface {
	// Read returns the current row, or (nil, nil) if it does not exist.
	// The counter path requires a strongly-consistent read; the queue path
	// may use an eventually-consistent one.
	Read(ctx context.Context, id string) (*Row, error)

	// ConditionalWrite succeeds iff the stored row's Version equals
	// expectedVersion, or no row exists yet (expectedVersion == 0).
	// On a lost race it returns an error matching
	// monotone.KindConditionalUpdateFailed.
	ConditionalWrite(ctx context.Context, row Row, expectedVersion uint64) error

	// Delete idempotently removes the row. A missing row is not an error.
	Delete(ctx context.Context, id string) error

	// EnsureNamespace provisions the namespace (table/bucket) if absent,
	// with the given read/write throughput hints. "Already exists" is
	// treated as success.
	EnsureNamespace(ctx context.Context, name string, readCapacity, writeCapacity int64) error

	// AwaitNamespaceReady polls until the namespace is usable.
	AwaitNamespaceReady(ctx context.Context, name string) error
}
