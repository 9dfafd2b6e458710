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

package notify

import (
	"context"
	"testing"
)

func TestPublisherFunc(t *testing.T) {
	var got QueueEvent
	var pub Publisher = PublisherFunc(func(_ context.Context, e QueueEvent) error {
		got = e
		return nil
	})
	ev := NewJoinEvent("q1", "alice", 1, 0, nil, 7)
	if err := pub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got.ProcessID != "alice" || got.Kind != KindJoin || got.FencingToken != 7 {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestQueueEvent_Marshal(t *testing.T) {
	ev := NewLeaveEvent("q1", "bob", 3)
	b, err := ev.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected non-empty JSON")
	}
}
