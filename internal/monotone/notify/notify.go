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

// Package notify provides an optional, best-effort publish hook fired after
// a successful queue join or leave, for downstream consumers that want a
// push-based change feed instead of polling the row.
//
// Grounded on internal/ratelimiter/persistence/kafka.go's KafkaProducer
// interface and CommitMessage shape: broker-agnostic (no concrete client
// library imported), JSON-encoded, carrying the fencing token so consumers
// can discard stale events.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cmsd2/monotone/pkg/monotone"
)

// Kind identifies the queue mutation an Event reports.
type Kind string

const (
	KindJoin  Kind = "join"
	KindLeave Kind = "leave"
)

// QueueEvent is the JSON payload published after a successful queue
// mutation.
type QueueEvent struct {
	ID           string             `json:"id"`
	Kind         Kind               `json:"kind"`
	ProcessID    string             `json:"process_id"`
	Counter      uint64             `json:"counter,omitempty"`
	Position     int                `json:"position,omitempty"`
	Tags         map[string]string  `json:"tags,omitempty"`
	FencingToken monotone.FencingToken `json:"fencing_token"`
	TsUnixMs     int64              `json:"ts_unix_ms"`
}

// Publisher is the minimal abstraction a caller supplies to receive queue
// events. Implementations typically wrap a message broker client; none is
// imported here so this package stays dependency-free, matching the
// teacher's KafkaProducer abstraction.
type Publisher interface {
	Publish(ctx context.Context, event QueueEvent) error
}

// PublisherFunc adapts a plain function to Publisher.
type PublisherFunc func(ctx context.Context, event QueueEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event QueueEvent) error { return f(ctx, event) }

// Marshal renders an event as compact JSON, for publishers that need bytes
// rather than the struct itself.
func (e QueueEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// NewJoinEvent builds the event published after a successful join.
func NewJoinEvent(id, processID string, counter uint64, position int, tags map[string]string, token monotone.FencingToken) QueueEvent {
	return QueueEvent{
		ID: id, Kind: KindJoin, ProcessID: processID, Counter: counter,
		Position: position, Tags: tags, FencingToken: token,
		TsUnixMs: time.Now().UnixMilli(),
	}
}

// NewLeaveEvent builds the event published after a successful leave.
func NewLeaveEvent(id, processID string, token monotone.FencingToken) QueueEvent {
	return QueueEvent{
		ID: id, Kind: KindLeave, ProcessID: processID, FencingToken: token,
		TsUnixMs: time.Now().UnixMilli(),
	}
}
