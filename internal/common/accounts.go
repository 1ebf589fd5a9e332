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

package common

import (
	"context"
	"fmt"

	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"go.uber.org/zap"
)

// SelectAccounts returns the single account named by identifier, or every
// account when identifier is empty.
func SelectAccounts(ctx context.Context, ledger store.LedgerStore, identifier string, logger *zap.Logger) ([]models.Account, error) {
	if identifier != "" {
		logger.Info("Looking up account", zap.String("identifier", identifier))
		account, err := ledger.ResolveAccount(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		return []models.Account{*account}, nil
	}

	accounts, err := ledger.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}

	logger.Info("Retrieved accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}

// DisplayName is the handle when set, otherwise the external id.
func DisplayName(account models.Account) string {
	if account.Handle != "" {
		return "@" + account.Handle
	}
	return account.ExternalId
}
