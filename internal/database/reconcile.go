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

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconcileAccount verifies archived_total plus the sum of live entries
// equals the stored balance.
func (s *SubledgerService) ReconcileAccount(ctx context.Context, accountId string) error {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountById, accountId))
	if err != nil {
		return fmt.Errorf("failed to get account for reconciliation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryGetEntryAmounts, accountId)
	if err != nil {
		return fmt.Errorf("failed to get entry amounts: %w", err)
	}
	defer closeRows(rows)

	calculated := account.ArchivedTotal
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return fmt.Errorf("failed to scan entry amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse entry amount '%s': %w", amountStr, err)
		}
		calculated = calculated.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating entry amounts: %w", err)
	}

	if !calculated.Equal(account.Balance) {
		zap.L().Error("Balance mismatch detected",
			zap.String("account_id", accountId),
			zap.String("stored_balance", account.Balance.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("archived_total", account.ArchivedTotal.String()))
		return fmt.Errorf("balance mismatch for account %s: stored=%s, calculated=%s",
			accountId, account.Balance.String(), calculated.String())
	}

	zap.L().Debug("Balance reconciled",
		zap.String("account_id", accountId),
		zap.String("balance", account.Balance.String()))
	return nil
}
