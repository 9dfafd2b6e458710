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

// Package monotone defines the public contracts shared by every backend of
// this module: a monotonic counter and a monotonic FIFO queue, both backed
// by a single replicated row and both returning a fencing token on every
// mutation.
package monotone

import "context"

// FencingToken is a monotonically non-decreasing value returned by every
// successful mutating operation. Downstream systems (lock servers, leaders)
// can use it to reject actions issued by a caller holding an older token.
type FencingToken = uint64

// Tags is a caller-supplied set of short string key/value pairs attached to
// a queue participant at join time. Keys are unique; iteration for
// serialization purposes is always lexicographic on keys.
type Tags map[string]string

// Clone returns a copy of t, or nil if t is empty/nil.
func (t Tags) Clone() Tags {
	if len(t) == 0 {
		return nil
	}
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Ticket is the read-side projection of a queue participant.
type Ticket struct {
	ProcessID string
	Counter   uint64
	Position  int
	Tags      Tags
}

// MonotonicCounter hands out strictly increasing 64-bit values. A fresh
// counter reads as 0; the first successful NextValue returns 1.
//
// Implementations: internal/monotone/engine (remote, CAS-based) and
// internal/monotone/local (in-process, mutex-guarded).
type MonotonicCounter interface {
	// GetValue returns the counter's current value, or 0 if it has never
	// been incremented.
	GetValue(ctx context.Context) (uint64, error)

	// NextValue atomically increments the counter and returns the new
	// value. The fencing token of the write is equal to the returned
	// value (version and value always advance together for a counter),
	// so it is not returned separately.
	NextValue(ctx context.Context) (uint64, error)

	// Remove deletes the counter's backing row unconditionally. The next
	// NextValue call recreates it starting from 1.
	Remove(ctx context.Context) error
}

// MonotonicQueue assigns positions and durable sequence numbers to named
// participants ("process ids") in a FIFO order.
type MonotonicQueue interface {
	// Join admits processID to the queue, or returns its existing ticket
	// unchanged if it is already a member (idempotent: tags supplied on a
	// repeat join are ignored, the original tags are returned).
	Join(ctx context.Context, processID string, tags Tags) (FencingToken, Ticket, error)

	// Leave removes processID from the queue. Returns ErrTicketNotFound if
	// it is not currently a member.
	Leave(ctx context.Context, processID string) (FencingToken, error)

	// GetTicket returns the current ticket for processID. Returns
	// ErrTicketNotFound if it is not a member.
	GetTicket(ctx context.Context, processID string) (FencingToken, Ticket, error)

	// GetTickets returns every current ticket, ordered by position. An
	// absent queue (never joined, or removed) returns fencing token 0 and a
	// nil slice; a queue whose row exists but has no members returns its
	// current version and an empty slice.
	GetTickets(ctx context.Context) (FencingToken, []Ticket, error)

	// Remove deletes the queue's backing row unconditionally.
	Remove(ctx context.Context) error
}
