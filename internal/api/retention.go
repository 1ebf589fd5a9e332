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
	"time"

	"sol-deposit-ledger/internal/metrics"
	"sol-deposit-ledger/internal/models"
)

// RunRetentionCleanup deletes entries older than horizonDays. Their amounts
// are folded into each account's archived total; balances do not change.
func (s *LedgerService) RunRetentionCleanup(ctx context.Context, horizonDays int) (*models.RetentionReport, error) {
	if horizonDays <= 0 {
		return nil, fmt.Errorf("retention horizon must be positive, got %d days", horizonDays)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -horizonDays)
	report, err := s.store.PurgeEntriesBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("retention cleanup failed: %w", err)
	}

	metrics.RetentionDeleted.WithLabelValues("ledger_entries").Add(float64(report.LedgerEntries))
	metrics.RetentionDeleted.WithLabelValues("journal_entries").Add(float64(report.JournalEntries))
	return report, nil
}
