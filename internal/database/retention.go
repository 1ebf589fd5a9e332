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

package database

import (
	"context"
	"fmt"
	"time"

	"sol-deposit-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) PurgeEntriesBefore(ctx context.Context, cutoff time.Time) (*models.RetentionReport, error) {
	return s.subledger.PurgeEntriesBefore(ctx, cutoff)
}

// PurgeEntriesBefore deletes ledger and journal entries created before cutoff.
// The signed sum of each account's deleted entries is folded into its
// archived_total so balances stay reconcilable. Balances are untouched.
func (s *SubledgerService) PurgeEntriesBefore(ctx context.Context, cutoff time.Time) (*models.RetentionReport, error) {
	cutoff = cutoff.UTC()
	report := &models.RetentionReport{Cutoff: cutoff}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, queryGetExpiredEntries, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired entries: %w", err)
	}
	archived := make(map[string]decimal.Decimal)
	for rows.Next() {
		var accountId, amountStr string
		if err := rows.Scan(&accountId, &amountStr); err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("failed to scan expired entry: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("failed to parse expired amount '%s': %w", amountStr, err)
		}
		archived[accountId] = archived[accountId].Add(amount)
	}
	if err := rows.Err(); err != nil {
		closeRows(rows)
		return nil, fmt.Errorf("error iterating expired entries: %w", err)
	}
	closeRows(rows)

	now := time.Now().UTC()
	for accountId, sum := range archived {
		var currentStr string
		if err := tx.QueryRowContext(ctx, queryGetArchivedTotal, accountId).Scan(&currentStr); err != nil {
			return nil, fmt.Errorf("failed to read archived total for %s: %w", accountId, err)
		}
		current, err := decimal.NewFromString(currentStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse archived total '%s': %w", currentStr, err)
		}
		if _, err := tx.ExecContext(ctx, queryUpdateArchivedTotal, current.Add(sum).String(), now, accountId); err != nil {
			return nil, fmt.Errorf("failed to update archived total for %s: %w", accountId, err)
		}
	}
	report.AccountsTouched = len(archived)

	result, err := tx.ExecContext(ctx, queryDeleteExpiredJournal, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired journal entries: %w", err)
	}
	if report.JournalEntries, err = result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}

	result, err = tx.ExecContext(ctx, queryDeleteExpiredEntries, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired ledger entries: %w", err)
	}
	if report.LedgerEntries, err = result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit retention pass: %w", err)
	}

	zap.L().Info("Retention pass complete",
		zap.Time("cutoff", cutoff),
		zap.Int64("ledger_entries", report.LedgerEntries),
		zap.Int64("journal_entries", report.JournalEntries),
		zap.Int("accounts_touched", report.AccountsTouched))
	return report, nil
}
