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
	"fmt"

	"sol-deposit-ledger/internal/adjust"
	"sol-deposit-ledger/internal/reconciler"
	"sol-deposit-ledger/internal/store"
)

// LedgerService is the entry point for deposit, adjustment and retention
// operations.
type LedgerService struct {
	store      store.LedgerStore
	reconciler *reconciler.Reconciler
	adjuster   *adjust.Adjuster
}

func NewLedgerService(ledger store.LedgerStore, rec *reconciler.Reconciler, adjuster *adjust.Adjuster) *LedgerService {
	return &LedgerService{
		store:      ledger,
		reconciler: rec,
		adjuster:   adjuster,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
