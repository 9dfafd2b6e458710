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

package shard

import "testing"

func TestShards(t *testing.T) {
	got := Shards("orders", 3)
	want := []string{"orders-0", "orders-1", "orders-2"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("shard %d: got %q want %q", i, got[i], w)
		}
	}
}

func TestPicker_StableLookup(t *testing.T) {
	p := New(Shards("queue", 4))
	key := "tenant-42"
	first := p.Lookup(key)
	for i := 0; i < 100; i++ {
		if got := p.Lookup(key); got != first {
			t.Fatalf("lookup not stable: got %q want %q", got, first)
		}
	}
}

func TestPicker_DistributesAcrossShards(t *testing.T) {
	p := New(Shards("queue", 8))
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		seen[p.Lookup(keyFor(i))] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected keys to spread across multiple shards, got %d distinct", len(seen))
	}
}

func TestPicker_AddRemove(t *testing.T) {
	p := New(Shards("queue", 2))
	p.Add("queue-2")
	if len(p.IDs()) != 3 {
		t.Fatalf("expected 3 ids after add, got %d", len(p.IDs()))
	}
	p.Remove("queue-1")
	if len(p.IDs()) != 2 {
		t.Fatalf("expected 2 ids after remove, got %d", len(p.IDs()))
	}
}

func keyFor(i int) string {
	return "k-" + string(rune('a'+i%26)) + string(rune('0'+i%10))
}
