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

// Package telemetry provides opt-in, low-overhead Prometheus instrumentation
// for the counter and queue engines. It is designed to be safe to call from
// the hot CAS-retry path: when disabled, every recorder function is a no-op.
//
// Grounded on internal/ratelimiter/telemetry/churn/prom_counters.go's
// Config{Enabled} gate and eager init()-time registration.
package telemetry

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	casAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monotone_cas_attempts_total",
		Help: "Total compare-and-swap rounds attempted, by entity kind.",
	}, []string{"entity"})

	casRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monotone_cas_retries_total",
		Help: "Total compare-and-swap rounds that lost the race and retried, by entity kind.",
	}, []string{"entity"})

	operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monotone_operations_total",
		Help: "Total completed operations, by entity kind, operation, and result.",
	}, []string{"entity", "op", "result"})

	queueSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "monotone_queue_size",
		Help: "Observed queue size after the most recent successful join/leave, by queue id.",
	}, []string{"id"})
)

func init() {
	prometheus.MustRegister(casAttemptsTotal, casRetriesTotal, operationsTotal, queueSize)
}

// Enable turns instrumentation on or off. Disabled (the default) until
// called; safe to call repeatedly, including concurrently with recorders.
func Enable(on bool) {
	enabled.Store(on)
}

// Enabled reports the current gate state.
func Enabled() bool {
	return enabled.Load()
}

// Entity names used as the "entity" label.
const (
	EntityCounter = "counter"
	EntityQueue   = "queue"
)

// RecordCASAttempt marks one iteration of a CAS retry loop.
func RecordCASAttempt(entity string) {
	if !enabled.Load() {
		return
	}
	casAttemptsTotal.WithLabelValues(entity).Inc()
}

// RecordCASRetry marks one observed ConditionalUpdateFailed.
func RecordCASRetry(entity string) {
	if !enabled.Load() {
		return
	}
	casRetriesTotal.WithLabelValues(entity).Inc()
}

// RecordOperation marks a completed operation and its outcome ("ok" or
// "error").
func RecordOperation(entity, op, result string) {
	if !enabled.Load() {
		return
	}
	operationsTotal.WithLabelValues(entity, op, result).Inc()
}

// SetQueueSize records the observed size of a queue after a successful
// mutation.
func SetQueueSize(id string, size int) {
	if !enabled.Load() {
		return
	}
	queueSize.WithLabelValues(id).Set(float64(size))
}
