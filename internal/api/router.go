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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sol-deposit-ledger/internal/metrics"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ScanTrigger runs an on-demand scan cycle under the scheduler's scan lock
type ScanTrigger interface {
	TriggerScan(ctx context.Context) (applied int, acquired bool, err error)
}

type RouterConfig struct {
	AdminUser     string
	AdminPassword string
	RetentionDays int
}

// NewRouter exposes the ledger over HTTP. Everything under /admin requires
// basic auth with the configured admin credentials.
func NewRouter(s *LedgerService, scans ScanTrigger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	h := &handlers{service: s, scans: scans, retentionDays: cfg.RetentionDays}

	r.Get("/healthz", h.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/accounts/{identifier}", func(r chi.Router) {
		r.Get("/", h.getAccount)
		r.Get("/entries", h.getEntries)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth(cfg.AdminUser, cfg.AdminPassword))
		r.Use(middleware.Timeout(2 * time.Minute))
		r.Post("/adjustments", h.postAdjustment)
		r.Post("/scan", h.postScan)
		r.Post("/retention", h.postRetention)
	})

	return r
}

type handlers struct {
	service       *LedgerService
	scans         ScanTrigger
	retentionDays int
}

func adminAuth(user, password string) func(http.Handler) http.Handler {
	if password == "" {
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, "admin endpoints are disabled", http.StatusUnauthorized)
			})
		}
	}
	return middleware.BasicAuth("deposit-ledger admin", map[string]string{user: password})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.HealthCheck(r.Context()); err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getAccount handles GET /accounts/{identifier}
func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.AccountSummary(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// getEntries handles GET /accounts/{identifier}/entries?limit=&offset=
func (h *handlers) getEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.service.GetEntryHistory(r.Context(), chi.URLParam(r, "identifier"), limit, offset)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// postAdjustment handles POST /admin/adjustments. A result still processing
// in the background is reported as 202 Accepted.
func (h *handlers) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req models.AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RequestId == "" {
		req.RequestId = r.Header.Get("Idempotency-Key")
	}

	result := h.service.SubmitAdjustment(r.Context(), req)
	switch result.Outcome {
	case models.AdjustmentCompleted:
		writeJSON(w, http.StatusOK, result)
	case models.AdjustmentProcessing:
		writeJSON(w, http.StatusAccepted, result)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, result)
	}
}

// postScan handles POST /admin/scan. A cycle already holding the scan lock
// is reported as 409 Conflict.
func (h *handlers) postScan(w http.ResponseWriter, r *http.Request) {
	applied, acquired, err := h.scans.TriggerScan(r.Context())
	if err != nil {
		zap.L().Error("Scan request failed", zap.Error(err))
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if !acquired {
		writeError(w, "scan already in progress", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
}

// postRetention handles POST /admin/retention?days=
func (h *handlers) postRetention(w http.ResponseWriter, r *http.Request) {
	days := h.retentionDays
	if value := r.URL.Query().Get("days"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			writeError(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	report, err := h.service.RunRetentionCleanup(r.Context(), days)
	if err != nil {
		zap.L().Error("Retention request failed", zap.Error(err))
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrAccountNotFound) {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}
	writeError(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
