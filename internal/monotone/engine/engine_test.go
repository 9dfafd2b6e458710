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

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cmsd2/monotone/internal/monotone/backoff"
	"github.com/cmsd2/monotone/internal/monotone/kv"
	"github.com/cmsd2/monotone/internal/monotone/notify"
	"github.com/cmsd2/monotone/pkg/monotone"
)

// fakeAdapter is an in-memory kv.Adapter fake, letting tests inject a
// race (via beforeWrite) to exercise the CAS retry path deterministically.
type fakeAdapter struct {
	mu          sync.Mutex
	rows        map[string]kv.Row
	beforeWrite func()
	writes      int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{rows: make(map[string]kv.Row)}
}

func (f *fakeAdapter) Read(_ context.Context, id string) (*kv.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	cp.Items = append([]kv.Position(nil), row.Items...)
	return &cp, nil
}

func (f *fakeAdapter) ConditionalWrite(_ context.Context, row kv.Row, expectedVersion uint64) error {
	if f.beforeWrite != nil {
		f.beforeWrite()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	existing, ok := f.rows[row.ID]
	var currentVersion uint64
	if ok {
		currentVersion = existing.Version
	}
	if currentVersion != expectedVersion {
		return monotone.ErrConditionalUpdateFailed()
	}
	f.rows[row.ID] = row
	return nil
}

func (f *fakeAdapter) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	return nil
}

func (f *fakeAdapter) EnsureNamespace(_ context.Context, _ string, _, _ int64) error { return nil }
func (f *fakeAdapter) AwaitNamespaceReady(_ context.Context, _ string) error         { return nil }

func fastPolicy() backoff.Policy {
	return backoff.Policy{Base: 0, JitterMillis: 1}
}

func TestCounter_NextValueSequencing(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(newFakeAdapter(), "c1", fastPolicy())

	for want := uint64(1); want <= 5; want++ {
		got, err := c.NextValue(ctx)
		if err != nil || got != want {
			t.Fatalf("next_value: got=%d want=%d err=%v", got, want, err)
		}
	}
	v, err := c.GetValue(ctx)
	if err != nil || v != 5 {
		t.Fatalf("get_value: v=%d err=%v", v, err)
	}
}

func TestCounter_RemoveThenNextValueRestartsAtOne(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(newFakeAdapter(), "c1", fastPolicy())
	_, _ = c.NextValue(ctx)
	_, _ = c.NextValue(ctx)
	if err := c.Remove(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err := c.NextValue(ctx)
	if err != nil || got != 1 {
		t.Fatalf("next_value after remove: got=%d err=%v", got, err)
	}
}

func TestCounter_RetriesOnLostRace(t *testing.T) {
	ctx := context.Background()
	adapter := newFakeAdapter()
	c := NewCounter(adapter, "c1", fastPolicy())

	// Force the first write attempt to race: a concurrent writer commits
	// first, so the engine's own conditional write must fail once and retry.
	first := true
	adapter.beforeWrite = func() {
		if first {
			first = false
			adapter.mu.Lock()
			adapter.rows["c1"] = kv.Row{ID: "c1", Type: kv.RowTypeCounter, Version: 1, Value: 1}
			adapter.mu.Unlock()
		}
	}

	got, err := c.NextValue(ctx)
	if err != nil {
		t.Fatalf("next_value: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected retry to observe the racing write and land on 2, got %d", got)
	}
}

func TestCounter_WrongType(t *testing.T) {
	ctx := context.Background()
	adapter := newFakeAdapter()
	adapter.rows["shared"] = kv.Row{ID: "shared", Type: kv.RowTypeQueue, Version: 1}
	c := NewCounter(adapter, "shared", fastPolicy())
	if _, err := c.GetValue(ctx); err == nil {
		t.Fatal("expected UnrecognisedType")
	}
}

func TestQueue_JoinAssignsCounterAndPosition(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(newFakeAdapter(), "q1", fastPolicy(), nil)

	token1, t1, err := q.Join(ctx, "foo", nil)
	if err != nil || token1 != 1 || t1.Counter != 1 || t1.Position != 0 {
		t.Fatalf("join foo: token=%d ticket=%+v err=%v", token1, t1, err)
	}
	token2, t2, err := q.Join(ctx, "bar", monotone.Tags{"k": "v"})
	if err != nil || token2 != 2 || t2.Counter != 2 || t2.Position != 1 {
		t.Fatalf("join bar: token=%d ticket=%+v err=%v", token2, t2, err)
	}
}

func TestQueue_IdempotentJoin(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(newFakeAdapter(), "q1", fastPolicy(), nil)

	token1, t1, err := q.Join(ctx, "foo", nil)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	token2, t2, err := q.Join(ctx, "foo", monotone.Tags{"role": "x"})
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if token1 != token2 {
		t.Fatalf("idempotent join must not advance fencing token: %d vs %d", token1, token2)
	}
	if t1.Counter != t2.Counter || t1.Position != t2.Position || len(t2.Tags) != 0 {
		t.Fatalf("idempotent join must return original ticket: t1=%+v t2=%+v", t1, t2)
	}
}

func TestQueue_LeaveNotFound(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(newFakeAdapter(), "q1", fastPolicy(), nil)
	_, err := q.Leave(ctx, "ghost")
	if err == nil {
		t.Fatal("expected TicketNotFound")
	}
	var merr *monotone.Error
	if !errors.As(err, &merr) || merr.Kind != monotone.KindTicketNotFound {
		t.Fatalf("expected TicketNotFound kind, got %v", err)
	}
}

func TestQueue_LeaveRetriesOnLostRace(t *testing.T) {
	ctx := context.Background()
	adapter := newFakeAdapter()
	q := NewQueue(adapter, "q1", fastPolicy(), nil)
	_, _, _ = q.Join(ctx, "foo", nil)
	_, _, _ = q.Join(ctx, "bar", nil)

	first := true
	adapter.beforeWrite = func() {
		if first {
			first = false
			adapter.mu.Lock()
			row := adapter.rows["q1"]
			row.Version++
			adapter.rows["q1"] = row
			adapter.mu.Unlock()
		}
	}

	token, err := q.Leave(ctx, "foo")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if token != 4 {
		t.Fatalf("expected fencing token to reflect both the racing write and the retried leave, got %d", token)
	}
	_, tickets, err := q.GetTickets(ctx)
	if err != nil || len(tickets) != 1 || tickets[0].ProcessID != "bar" {
		t.Fatalf("get_tickets after leave: tickets=%+v err=%v", tickets, err)
	}
}

func TestQueue_NotifierReceivesJoinAndLeave(t *testing.T) {
	ctx := context.Background()
	var events []notify.QueueEvent
	var mu sync.Mutex
	pub := notify.PublisherFunc(func(_ context.Context, e notify.QueueEvent) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		return nil
	})

	q := NewQueue(newFakeAdapter(), "q1", fastPolicy(), pub)
	_, _, _ = q.Join(ctx, "foo", nil)
	_, _ = q.Leave(ctx, "foo")

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != notify.KindJoin || events[1].Kind != notify.KindLeave {
		t.Fatalf("unexpected event kinds: %+v", events)
	}
}

func TestQueue_RemoveThenGetTicketsEmpty(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(newFakeAdapter(), "q1", fastPolicy(), nil)
	_, _, _ = q.Join(ctx, "foo", nil)
	if err := q.Remove(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	token, tickets, err := q.GetTickets(ctx)
	if err != nil || token != 0 || len(tickets) != 0 {
		t.Fatalf("get_tickets after remove: token=%d tickets=%+v err=%v", token, tickets, err)
	}
}
