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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanLink(row rowScanner) (*models.SenderLink, error) {
	var link models.SenderLink
	if err := row.Scan(&link.Id, &link.AccountId, &link.SenderAddress, &link.CreatedAt, &link.LastUsedAt); err != nil {
		return nil, err
	}
	return &link, nil
}

// LinkSender maps senderAddress to accountId. Re-linking to the same account
// is a no-op; an address owned by another account yields store.ErrLinkConflict.
func (s *Service) LinkSender(ctx context.Context, accountId, senderAddress string) (*models.SenderLink, error) {
	senderAddress = strings.TrimSpace(senderAddress)
	if senderAddress == "" {
		return nil, fmt.Errorf("sender address cannot be empty")
	}

	if _, err := s.GetAccountById(ctx, accountId); err != nil {
		return nil, err
	}

	existing, err := s.FindLinkBySender(ctx, senderAddress)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return checkExistingLink(existing, accountId)
	}

	now := time.Now().UTC()
	link, err := scanLink(s.db.QueryRowContext(ctx, queryInsertSenderLink,
		uuid.New().String(), accountId, senderAddress, now, now))
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with another writer; report whatever won.
			existing, findErr := s.FindLinkBySender(ctx, senderAddress)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return checkExistingLink(existing, accountId)
			}
		}
		return nil, fmt.Errorf("failed to store sender link: %w", err)
	}

	zap.L().Info("Sender linked",
		zap.String("account_id", accountId),
		zap.String("sender_address", senderAddress))
	return link, nil
}

func checkExistingLink(existing *models.SenderLink, accountId string) (*models.SenderLink, error) {
	if existing.AccountId != accountId {
		zap.L().Warn("Sender address already linked to another account",
			zap.String("sender_address", existing.SenderAddress),
			zap.String("linked_account_id", existing.AccountId),
			zap.String("requested_account_id", accountId))
		return nil, fmt.Errorf("%w: %s", store.ErrLinkConflict, existing.SenderAddress)
	}
	return existing, nil
}

// FindLinkBySender returns the link for senderAddress, or nil if unlinked.
func (s *Service) FindLinkBySender(ctx context.Context, senderAddress string) (*models.SenderLink, error) {
	link, err := scanLink(s.db.QueryRowContext(ctx, queryFindLinkBySender, senderAddress))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sender link: %w", err)
	}
	return link, nil
}

// GetAccountLinks returns the account's links, most recently used first.
func (s *Service) GetAccountLinks(ctx context.Context, accountId string) ([]models.SenderLink, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAccountLinks, accountId)
	if err != nil {
		return nil, fmt.Errorf("failed to get sender links: %w", err)
	}
	defer closeRows(rows)

	var links []models.SenderLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sender link: %w", err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sender link rows: %w", err)
	}
	return links, nil
}

func (s *Service) CountLinks(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, queryCountLinks).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sender links: %w", err)
	}
	return count, nil
}
