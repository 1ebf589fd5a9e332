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

	"sol-deposit-ledger/internal/models"

	"go.uber.org/zap"
)

// AccountSummary returns an account with its sender links and entry count.
func (s *LedgerService) AccountSummary(ctx context.Context, identifier string) (*models.AccountSummary, error) {
	account, err := s.store.ResolveAccount(ctx, identifier)
	if err != nil {
		return nil, err
	}

	links, err := s.store.GetAccountLinks(ctx, account.Id)
	if err != nil {
		zap.L().Error("Failed to get sender links", zap.String("account_id", account.Id), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve sender links")
	}

	entries, err := s.store.CountEntries(ctx, account.Id)
	if err != nil {
		zap.L().Error("Failed to count entries", zap.String("account_id", account.Id), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve entry count")
	}

	if links == nil {
		links = []models.SenderLink{}
	}
	return &models.AccountSummary{
		Account: *account,
		Links:   links,
		Entries: entries,
	}, nil
}

// GetEntryHistory returns paginated entry history for an account, newest first
func (s *LedgerService) GetEntryHistory(ctx context.Context, identifier string, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	account, err := s.store.ResolveAccount(ctx, identifier)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.GetEntryHistory(ctx, account.Id, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get entry history",
			zap.String("account_id", account.Id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve entry history")
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return entries, nil
}
