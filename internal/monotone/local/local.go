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

// Package local provides a process-local implementation of the
// MonotonicCounter and MonotonicQueue contracts (C6 in the design), backed
// by a single in-memory structure guarded by a mutual-exclusion lock, per
// spec.md §4.6. It is behaviorally identical to the remote, CAS-based
// engines under single-process concurrency, useful for tests and embedded
// use without a real backing store.
//
// Grounded on original_source/monotone/src/local/counter.rs and
// .../local/queue.rs for the state machine, generalized so Join is
// idempotent (returns the existing ticket unchanged on a repeat join)
// exactly as spec.md §4.5 mandates for every backend — the original source
// does not do this for its local engine, so this is a deliberate departure,
// recorded in DESIGN.md.
package local

import (
	"context"
	"log"
	"sync"

	"github.com/cmsd2/monotone/internal/monotone/kv"
	"github.com/cmsd2/monotone/internal/monotone/notify"
	"github.com/cmsd2/monotone/internal/monotone/telemetry"
	"github.com/cmsd2/monotone/pkg/monotone"
)

type entry struct {
	typ     kv.RowType
	version uint64
	value   uint64
	items   []kv.Position
}

// Store holds every counter/queue row this process knows about, each
// addressed by its id. All operations take the same lock: per spec.md
// §4.6, the local engine is a single guarded structure, not a per-row lock
// pool.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	publisher notify.Publisher
}

// NewStore creates an empty store. publisher may be nil.
func NewStore(publisher notify.Publisher) *Store {
	return &Store{entries: make(map[string]*entry), publisher: publisher}
}

// Counter returns a handle to the counter row named id.
func (s *Store) Counter(id string) monotone.MonotonicCounter {
	return &localCounter{store: s, id: id}
}

// Queue returns a handle to the queue row named id.
func (s *Store) Queue(id string) monotone.MonotonicQueue {
	return &localQueue{store: s, id: id}
}

func (s *Store) entryFor(id string, typ kv.RowType, create bool) (*entry, error) {
	e, ok := s.entries[id]
	if !ok {
		if !create {
			return nil, nil
		}
		e = &entry{typ: typ}
		s.entries[id] = e
		return e, nil
	}
	if e.typ != typ {
		return nil, monotone.ErrUnrecognisedType(id, string(e.typ), string(typ))
	}
	return e, nil
}

type localCounter struct {
	store *Store
	id    string
}

func (c *localCounter) GetValue(_ context.Context) (uint64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	e, err := c.store.entryFor(c.id, kv.RowTypeCounter, false)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	return e.value, nil
}

func (c *localCounter) NextValue(_ context.Context) (uint64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	telemetry.RecordCASAttempt(telemetry.EntityCounter)
	e, err := c.store.entryFor(c.id, kv.RowTypeCounter, true)
	if err != nil {
		telemetry.RecordOperation(telemetry.EntityCounter, "next_value", "error")
		return 0, err
	}
	e.value++
	e.version++
	telemetry.RecordOperation(telemetry.EntityCounter, "next_value", "ok")
	return e.value, nil
}

func (c *localCounter) Remove(_ context.Context) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	delete(c.store.entries, c.id)
	return nil
}

type localQueue struct {
	store *Store
	id    string
}

func findPosition(items []kv.Position, processID string) int {
	for i, it := range items {
		if it.ProcessID == processID {
			return i
		}
	}
	return -1
}

func ticketAt(items []kv.Position, idx int) monotone.Ticket {
	it := items[idx]
	return monotone.Ticket{ProcessID: it.ProcessID, Counter: it.Counter, Position: idx, Tags: it.Tags.Clone()}
}

func (q *localQueue) Join(ctx context.Context, processID string, tags monotone.Tags) (monotone.FencingToken, monotone.Ticket, error) {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	telemetry.RecordCASAttempt(telemetry.EntityQueue)
	e, err := q.store.entryFor(q.id, kv.RowTypeQueue, true)
	if err != nil {
		telemetry.RecordOperation(telemetry.EntityQueue, "join", "error")
		return 0, monotone.Ticket{}, err
	}

	if idx := findPosition(e.items, processID); idx >= 0 {
		// Idempotent: return the existing ticket unchanged, no write.
		telemetry.RecordOperation(telemetry.EntityQueue, "join", "ok")
		return e.version, ticketAt(e.items, idx), nil
	}

	e.value++
	counter := e.value
	position := len(e.items)
	e.items = append(e.items, kv.Position{ProcessID: processID, Counter: counter, Tags: tags.Clone()})
	e.version++

	telemetry.RecordOperation(telemetry.EntityQueue, "join", "ok")
	telemetry.SetQueueSize(q.id, len(e.items))
	ticket := monotone.Ticket{ProcessID: processID, Counter: counter, Position: position, Tags: tags.Clone()}
	q.publish(ctx, notify.NewJoinEvent(q.id, processID, counter, position, tags, e.version))
	return e.version, ticket, nil
}

func (q *localQueue) Leave(ctx context.Context, processID string) (monotone.FencingToken, error) {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	telemetry.RecordCASAttempt(telemetry.EntityQueue)
	e, err := q.store.entryFor(q.id, kv.RowTypeQueue, false)
	if err != nil {
		telemetry.RecordOperation(telemetry.EntityQueue, "leave", "error")
		return 0, err
	}
	if e == nil {
		telemetry.RecordOperation(telemetry.EntityQueue, "leave", "error")
		return 0, monotone.ErrTicketNotFound(processID)
	}
	idx := findPosition(e.items, processID)
	if idx < 0 {
		telemetry.RecordOperation(telemetry.EntityQueue, "leave", "error")
		return 0, monotone.ErrTicketNotFound(processID)
	}
	e.items = append(e.items[:idx], e.items[idx+1:]...)
	e.version++
	telemetry.RecordOperation(telemetry.EntityQueue, "leave", "ok")
	telemetry.SetQueueSize(q.id, len(e.items))
	q.publish(ctx, notify.NewLeaveEvent(q.id, processID, e.version))
	return e.version, nil
}

func (q *localQueue) GetTicket(_ context.Context, processID string) (monotone.FencingToken, monotone.Ticket, error) {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	e, err := q.store.entryFor(q.id, kv.RowTypeQueue, false)
	if err != nil {
		return 0, monotone.Ticket{}, err
	}
	if e == nil {
		return 0, monotone.Ticket{}, monotone.ErrTicketNotFound(processID)
	}
	idx := findPosition(e.items, processID)
	if idx < 0 {
		return 0, monotone.Ticket{}, monotone.ErrTicketNotFound(processID)
	}
	return e.version, ticketAt(e.items, idx), nil
}

func (q *localQueue) GetTickets(_ context.Context) (monotone.FencingToken, []monotone.Ticket, error) {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	e, err := q.store.entryFor(q.id, kv.RowTypeQueue, false)
	if err != nil {
		return 0, nil, err
	}
	if e == nil {
		return 0, nil, nil
	}
	out := make([]monotone.Ticket, len(e.items))
	for i := range e.items {
		out[i] = ticketAt(e.items, i)
	}
	return e.version, out, nil
}

func (q *localQueue) Remove(_ context.Context) error {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	delete(q.store.entries, q.id)
	return nil
}

func (q *localQueue) publish(ctx context.Context, ev notify.QueueEvent) {
	if q.store.publisher == nil {
		return
	}
	// Best-effort: a notification failure must never turn a successful CAS
	// write into a caller-visible error, so a failure is only logged.
	if err := q.store.publisher.Publish(ctx, ev); err != nil {
		log.Printf("monotone: publish %s event for queue %s: %v", ev.Kind, ev.ID, err)
	}
}
