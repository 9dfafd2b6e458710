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

// Package codec translates a queue row's Items between []kv.Position and
// the wire shapes backends actually store: a compact, lexicographically-keyed
// JSON object per queue position (C3 in the design), carried either as a set
// of strings or as one JSON array. Version and Value are converted to and
// from numeric strings by each adapter, not here.
//
// Grounded on original_source/monotone/src/aws/dynamodb.rs's QueuePosition
// JSON shape and etalazz-vsa's persistence/kafka.go CommitMessage, which
// uses the same "small JSON struct with ordered fields" style.
package codec

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/cmsd2/monotone/pkg/monotone"

	"github.com/cmsd2/monotone/internal/monotone/kv"
)

// position is the wire shape of kv.Position: {"process_id":"...","counter":N,"tags":{...}}
// with lexicographically-ordered tag keys, matching spec.md §6.2 exactly.
type position struct {
	ProcessID string            `json:"process_id"`
	Counter   uint64            `json:"counter"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// EncodePosition renders p as the compact JSON object spec.md §6.2
// describes: no whitespace, tag keys in lexicographic order.
func EncodePosition(p kv.Position) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"process_id":`)
	pid, err := json.Marshal(p.ProcessID)
	if err != nil {
		return "", err
	}
	buf.Write(pid)
	buf.WriteString(`,"counter":`)
	buf.WriteString(strconv.FormatUint(p.Counter, 10))
	buf.WriteString(`,"tags":{`)
	keys := make([]string, 0, len(p.Tags))
	for k := range p.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		vb, err := json.Marshal(p.Tags[k])
		if err != nil {
			return "", err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteString("}}")
	return buf.String(), nil
}

// DecodePosition parses a single position JSON object produced by
// EncodePosition (or any equivalent producer).
func DecodePosition(s string) (kv.Position, error) {
	var p position
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return kv.Position{}, err
	}
	var tags monotone.Tags
	if len(p.Tags) > 0 {
		tags = monotone.Tags(p.Tags)
	}
	return kv.Position{ProcessID: p.ProcessID, Counter: p.Counter, Tags: tags}, nil
}

// EncodeItemSet renders items as a set of independently-encoded JSON
// strings, the representation DynamoDB's string-set (SS) attribute type
// requires. Per spec.md §4.3, an empty set is rendered as a nil slice so
// callers can omit the attribute entirely (some backends reject empty
// string sets).
func EncodeItemSet(items []kv.Position) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]string, len(items))
	for i, it := range items {
		s, err := EncodePosition(it)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// DecodeItemSet parses an unordered set of position JSON strings and
// returns them sorted by Counter ascending — the stable Items order, even
// though the backing representation carries no order of its own.
func DecodeItemSet(ss []string) ([]kv.Position, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]kv.Position, len(ss))
	for i, s := range ss {
		p, err := DecodePosition(s)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Counter < out[j].Counter })
	return out, nil
}

// EncodeItemList renders items as a single JSON array, for backends (e.g.
// the SQL adapter) with a native ordered list type rather than an unordered
// string set. Per spec.md §9, behavior must be identical modulo storage
// format: the array is still written sorted by Counter.
func EncodeItemList(items []kv.Position) (string, error) {
	sorted := make([]kv.Position, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Counter < sorted[j].Counter })

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, it := range sorted {
		if i > 0 {
			buf.WriteByte(',')
		}
		s, err := EncodePosition(it)
		if err != nil {
			return "", err
		}
		buf.WriteString(s)
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

// DecodeItemList parses the JSON array produced by EncodeItemList.
func DecodeItemList(s string) ([]kv.Position, error) {
	if s == "" {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	out := make([]kv.Position, len(raw))
	for i, r := range raw {
		var p position
		if err := json.Unmarshal(r, &p); err != nil {
			return nil, err
		}
		var tags monotone.Tags
		if len(p.Tags) > 0 {
			tags = monotone.Tags(p.Tags)
		}
		out[i] = kv.Position{ProcessID: p.ProcessID, Counter: p.Counter, Tags: tags}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Counter < out[j].Counter })
	return out, nil
}
