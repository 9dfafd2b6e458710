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

// Package backoff implements the sole rate-limiter on the engines' retry
// loops: an additive jittered sleep. Grounded on
// original_source/monotone/src/time.rs's Jitter trait (base duration plus a
// uniform random addend) and styled after etalazz-vsa's
// internal/ratelimiter/core/worker.go polling idiom.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// DefaultJitterMillis is the default additive jitter window, per spec.md
// §4.2.
const DefaultJitterMillis = 100

// Jittered sleeps for base + U[0, jitterMillis) milliseconds, or returns
// ctx.Err() early if ctx is cancelled first. jitterMillis <= 0 is treated as
// DefaultJitterMillis.
//
// This is the only mechanism decorrelating contending retries; no
// exponential growth is applied; per spec.md §4.2 this is intentional.
func Jittered(ctx context.Context, base time.Duration, jitterMillis int) error {
	if jitterMillis <= 0 {
		jitterMillis = DefaultJitterMillis
	}
	d := base + time.Duration(rand.Intn(jitterMillis))*time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy bundles the base retry duration and jitter window an engine uses
// for every CAS round, matching the retry_time/jitter_millis pair the
// original source's Counter/Queue structs carry per-instance.
type Policy struct {
	Base         time.Duration
	JitterMillis int
}

// DefaultPolicy matches spec.md §5's recommended base retry (100ms) and
// default jitter (100ms).
func DefaultPolicy() Policy {
	return Policy{Base: 100 * time.Millisecond, JitterMillis: DefaultJitterMillis}
}

// Sleep applies p to the current retry round.
func (p Policy) Sleep(ctx context.Context) error {
	return Jittered(ctx, p.Base, p.JitterMillis)
}
