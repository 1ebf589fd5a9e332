/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics provides Prometheus instrumentation for the deposit ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DepositsApplied counts deposits newly credited to the ledger.
	DepositsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_deposits_applied_total",
		Help: "Total number of deposits credited",
	})

	// DepositsDuplicate counts deposits skipped because their ref was already applied.
	DepositsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_deposits_duplicate_total",
		Help: "Total number of deposits skipped as duplicates",
	})

	// DepositsFailed counts deposits that could not be applied.
	DepositsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_deposits_failed_total",
		Help: "Total number of deposits that failed to apply",
	})

	// DepositVolume tracks cumulative credited SOL.
	DepositVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_deposit_volume_sol_total",
		Help: "Cumulative SOL credited by deposits",
	})

	// ScanCycles counts scan cycles by result (ok, error, skipped).
	ScanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_scan_cycles_total",
		Help: "Total scan cycles by result",
	}, []string{"result"})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_scan_duration_seconds",
		Help:    "Scan cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Adjustments counts operator adjustments by outcome.
	Adjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_adjustments_total",
		Help: "Total operator adjustments by outcome",
	}, []string{"outcome"})

	// RetentionDeleted counts rows removed by retention, by table.
	RetentionDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_retention_deleted_total",
		Help: "Rows deleted by retention passes",
	}, []string{"table"})

	// RPCErrors counts failed chain RPC calls by method.
	RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rpc_errors_total",
		Help: "Failed Solana RPC calls by method",
	}, []string{"method"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"method"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
