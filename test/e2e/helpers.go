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

//go:build e2e

package e2e

import (
	"time"

	"github.com/cmsd2/monotone/internal/monotone/backoff"
)

// backoffPolicy keeps the e2e suite's retry rounds short: real backends
// rarely contend against themselves in these single-writer tests, so the
// default policy would only slow failures down.
func backoffPolicy() backoff.Policy {
	return backoff.Policy{Base: 5 * time.Millisecond, JitterMillis: 5}
}
