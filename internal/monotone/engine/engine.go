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

// Package engine implements the Counter Engine (C4) and Queue Engine (C5):
// the compare-and-swap retry loops that turn a kv.Adapter into the public
// MonotonicCounter/MonotonicQueue contracts. Every mutation follows the same
// shape — read, mutate in memory, conditional_write, retry on a lost race
// with a jittered sleep — grounded on
// original_source/monotone/src/aws/counter.rs and .../aws/queue.rs, styled
// after etalazz-vsa's internal/ratelimiter/core/worker.go retry-and-backoff
// loop.
package engine

import (
	"context"
	"log"

	"github.com/cmsd2/monotone/internal/monotone/backoff"
	"github.com/cmsd2/monotone/internal/monotone/kv"
	"github.com/cmsd2/monotone/internal/monotone/notify"
	"github.com/cmsd2/monotone/internal/monotone/telemetry"
	"github.com/cmsd2/monotone/pkg/monotone"
)

// isConditionalUpdateFailed reports whether err is the retryable "lost the
// CAS race" error, as opposed to any other failure the loop must surface.
func isConditionalUpdateFailed(err error) bool {
	merr, ok := err.(*monotone.Error)
	return ok && merr.Kind == monotone.KindConditionalUpdateFailed
}

// Counter is the remote, CAS-backed MonotonicCounter implementation (C4).
type Counter struct {
	adapter kv.Adapter
	id      string
	policy  backoff.Policy
}

// NewCounter builds a Counter over id, using adapter as the backing store
// and policy to space out retries. A zero Policy is replaced with
// backoff.DefaultPolicy().
func NewCounter(adapter kv.Adapter, id string, policy backoff.Policy) *Counter {
	if policy.Base == 0 && policy.JitterMillis == 0 {
		policy = backoff.DefaultPolicy()
	}
	return &Counter{adapter: adapter, id: id, policy: policy}
}

var _ monotone.MonotonicCounter = (*Counter)(nil)

// GetValue reads the current value with no retry: a read never races
// anything, per spec.md §4.4.
func (c *Counter) GetValue(ctx context.Context) (uint64, error) {
	row, err := c.adapter.Read(ctx, c.id)
	if err != nil {
		return 0, monotone.ErrBackend(err)
	}
	if row == nil {
		return 0, nil
	}
	if row.Type != kv.RowTypeCounter {
		return 0, monotone.ErrUnrecognisedType(c.id, string(row.Type), string(kv.RowTypeCounter))
	}
	return row.Value, nil
}

// NextValue increments the counter and returns the new value. The returned
// value doubles as the fencing token: value and version always advance
// together by exactly one per successful write, per spec.md §4.4.
func (c *Counter) NextValue(ctx context.Context) (uint64, error) {
	for {
		telemetry.RecordCASAttempt(telemetry.EntityCounter)

		row, err := c.adapter.Read(ctx, c.id)
		if err != nil {
			telemetry.RecordOperation(telemetry.EntityCounter, "next_value", "error")
			return 0, monotone.ErrBackend(err)
		}

		var expectedVersion uint64
		next := kv.NewRow(c.id, kv.RowTypeCounter)
		if row == nil {
			next.Value = 1
			next.Version = 1
		} else {
			if row.Type != kv.RowTypeCounter {
				telemetry.RecordOperation(telemetry.EntityCounter, "next_value", "error")
				return 0, monotone.ErrUnrecognisedType(c.id, string(row.Type), string(kv.RowTypeCounter))
			}
			expectedVersion = row.Version
			next.Value = row.Value + 1
			next.Version = row.Version + 1
		}

		err = c.adapter.ConditionalWrite(ctx, next, expectedVersion)
		if err == nil {
			telemetry.RecordOperation(telemetry.EntityCounter, "next_value", "ok")
			return next.Value, nil
		}
		if !isConditionalUpdateFailed(err) {
			telemetry.RecordOperation(telemetry.EntityCounter, "next_value", "error")
			return 0, monotone.ErrBackend(err)
		}

		telemetry.RecordCASRetry(telemetry.EntityCounter)
		if sleepErr := c.policy.Sleep(ctx); sleepErr != nil {
			telemetry.RecordOperation(telemetry.EntityCounter, "next_value", "error")
			return 0, sleepErr
		}
	}
}

// Remove deletes the counter row. The next NextValue call lazily recreates
// it starting at 1, per spec.md §3.3.
func (c *Counter) Remove(ctx context.Context) error {
	if err := c.adapter.Delete(ctx, c.id); err != nil {
		return monotone.ErrBackend(err)
	}
	return nil
}

// Queue is the remote, CAS-backed MonotonicQueue implementation (C5).
type Queue struct {
	adapter   kv.Adapter
	id        string
	policy    backoff.Policy
	publisher notify.Publisher
}

// NewQueue builds a Queue over id. publisher may be nil — Join/Leave skip
// notification entirely in that case.
func NewQueue(adapter kv.Adapter, id string, policy backoff.Policy, publisher notify.Publisher) *Queue {
	if policy.Base == 0 && policy.JitterMillis == 0 {
		policy = backoff.DefaultPolicy()
	}
	return &Queue{adapter: adapter, id: id, policy: policy, publisher: publisher}
}

var _ monotone.MonotonicQueue = (*Queue)(nil)

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

// Join adds processID to the queue, or — if it is already present —
// returns its existing ticket unchanged, performing no write. Per spec.md
// §4.5, join is idempotent on every backend.
func (q *Queue) Join(ctx context.Context, processID string, tags monotone.Tags) (monotone.FencingToken, monotone.Ticket, error) {
	for {
		telemetry.RecordCASAttempt(telemetry.EntityQueue)

		row, err := q.adapter.Read(ctx, q.id)
		if err != nil {
			telemetry.RecordOperation(telemetry.EntityQueue, "join", "error")
			return 0, monotone.Ticket{}, monotone.ErrBackend(err)
		}

		var expectedVersion uint64
		next := kv.NewRow(q.id, kv.RowTypeQueue)
		var items []kv.Position
		if row != nil {
			if row.Type != kv.RowTypeQueue {
				telemetry.RecordOperation(telemetry.EntityQueue, "join", "error")
				return 0, monotone.Ticket{}, monotone.ErrUnrecognisedType(q.id, string(row.Type), string(kv.RowTypeQueue))
			}
			expectedVersion = row.Version
			items = row.Items
			next.Value = row.Value
			next.Version = row.Version
		}

		if idx := findPosition(items, processID); idx >= 0 {
			telemetry.RecordOperation(telemetry.EntityQueue, "join", "ok")
			return expectedVersion, ticketAt(items, idx), nil
		}

		counter := next.Value + 1
		position := len(items)
		newItems := make([]kv.Position, len(items)+1)
		copy(newItems, items)
		newItems[len(items)] = kv.Position{ProcessID: processID, Counter: counter, Tags: tags.Clone()}

		next.Items = newItems
		next.Value = counter
		next.Version = expectedVersion + 1

		err = q.adapter.ConditionalWrite(ctx, next, expectedVersion)
		if err == nil {
			telemetry.RecordOperation(telemetry.EntityQueue, "join", "ok")
			telemetry.SetQueueSize(q.id, len(newItems))
			ticket := monotone.Ticket{ProcessID: processID, Counter: counter, Position: position, Tags: tags.Clone()}
			q.publish(ctx, notify.NewJoinEvent(q.id, processID, counter, position, tags, next.Version))
			return next.Version, ticket, nil
		}
		if !isConditionalUpdateFailed(err) {
			telemetry.RecordOperation(telemetry.EntityQueue, "join", "error")
			return 0, monotone.Ticket{}, monotone.ErrBackend(err)
		}

		telemetry.RecordCASRetry(telemetry.EntityQueue)
		if sleepErr := q.policy.Sleep(ctx); sleepErr != nil {
			telemetry.RecordOperation(telemetry.EntityQueue, "join", "error")
			return 0, monotone.Ticket{}, sleepErr
		}
	}
}

// Leave removes processID from the queue. It returns monotone.KindTicketNotFound
// if processID is not a current member.
func (q *Queue) Leave(ctx context.Context, processID string) (monotone.FencingToken, error) {
	for {
		telemetry.RecordCASAttempt(telemetry.EntityQueue)

		row, err := q.adapter.Read(ctx, q.id)
		if err != nil {
			telemetry.RecordOperation(telemetry.EntityQueue, "leave", "error")
			return 0, monotone.ErrBackend(err)
		}
		if row == nil {
			telemetry.RecordOperation(telemetry.EntityQueue, "leave", "error")
			return 0, monotone.ErrTicketNotFound(processID)
		}
		if row.Type != kv.RowTypeQueue {
			telemetry.RecordOperation(telemetry.EntityQueue, "leave", "error")
			return 0, monotone.ErrUnrecognisedType(q.id, string(row.Type), string(kv.RowTypeQueue))
		}

		idx := findPosition(row.Items, processID)
		if idx < 0 {
			telemetry.RecordOperation(telemetry.EntityQueue, "leave", "error")
			return 0, monotone.ErrTicketNotFound(processID)
		}

		newItems := make([]kv.Position, 0, len(row.Items)-1)
		newItems = append(newItems, row.Items[:idx]...)
		newItems = append(newItems, row.Items[idx+1:]...)

		next := kv.Row{ID: q.id, Type: kv.RowTypeQueue, Value: row.Value, Version: row.Version + 1, Items: newItems}

		err = q.adapter.ConditionalWrite(ctx, next, row.Version)
		if err == nil {
			telemetry.RecordOperation(telemetry.EntityQueue, "leave", "ok")
			telemetry.SetQueueSize(q.id, len(newItems))
			q.publish(ctx, notify.NewLeaveEvent(q.id, processID, next.Version))
			return next.Version, nil
		}
		if !isConditionalUpdateFailed(err) {
			telemetry.RecordOperation(telemetry.EntityQueue, "leave", "error")
			return 0, monotone.ErrBackend(err)
		}

		telemetry.RecordCASRetry(telemetry.EntityQueue)
		if sleepErr := q.policy.Sleep(ctx); sleepErr != nil {
			telemetry.RecordOperation(telemetry.EntityQueue, "leave", "error")
			return 0, sleepErr
		}
	}
}

// GetTicket reads a single participant's ticket with no retry.
func (q *Queue) GetTicket(ctx context.Context, processID string) (monotone.FencingToken, monotone.Ticket, error) {
	row, err := q.adapter.Read(ctx, q.id)
	if err != nil {
		return 0, monotone.Ticket{}, monotone.ErrBackend(err)
	}
	if row == nil {
		return 0, monotone.Ticket{}, monotone.ErrTicketNotFound(processID)
	}
	if row.Type != kv.RowTypeQueue {
		return 0, monotone.Ticket{}, monotone.ErrUnrecognisedType(q.id, string(row.Type), string(kv.RowTypeQueue))
	}
	idx := findPosition(row.Items, processID)
	if idx < 0 {
		return 0, monotone.Ticket{}, monotone.ErrTicketNotFound(processID)
	}
	return row.Version, ticketAt(row.Items, idx), nil
}

// GetTickets reads the entire queue, ordered by position, with no retry.
func (q *Queue) GetTickets(ctx context.Context) (monotone.FencingToken, []monotone.Ticket, error) {
	row, err := q.adapter.Read(ctx, q.id)
	if err != nil {
		return 0, nil, monotone.ErrBackend(err)
	}
	if row == nil {
		return 0, nil, nil
	}
	if row.Type != kv.RowTypeQueue {
		return 0, nil, monotone.ErrUnrecognisedType(q.id, string(row.Type), string(kv.RowTypeQueue))
	}
	out := make([]monotone.Ticket, len(row.Items))
	for i := range row.Items {
		out[i] = ticketAt(row.Items, i)
	}
	return row.Version, out, nil
}

// Remove deletes the queue row. The next Join lazily recreates it, per
// spec.md §3.3.
func (q *Queue) Remove(ctx context.Context) error {
	if err := q.adapter.Delete(ctx, q.id); err != nil {
		return monotone.ErrBackend(err)
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, ev notify.QueueEvent) {
	if q.publisher == nil {
		return
	}
	if err := q.publisher.Publish(ctx, ev); err != nil {
		log.Printf("monotone: publish %s event for queue %s: %v", ev.Kind, ev.ID, err)
	}
}
