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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var balanceStr, baselineStr, archivedStr, status string
	err := row.Scan(&account.Id, &account.ExternalId, &account.Handle,
		&balanceStr, &baselineStr, &archivedStr, &status,
		&account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	account.Status = models.AccountStatus(status)
	if account.Balance, err = decimal.NewFromString(balanceStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	if account.Baseline, err = decimal.NewFromString(baselineStr); err != nil {
		return nil, fmt.Errorf("failed to parse baseline '%s': %w", baselineStr, err)
	}
	if account.ArchivedTotal, err = decimal.NewFromString(archivedStr); err != nil {
		return nil, fmt.Errorf("failed to parse archived total '%s': %w", archivedStr, err)
	}
	return &account, nil
}

// normalizeHandle strips surrounding whitespace and a leading '@'.
func normalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// CreateAccount registers an account on first contact. Registering an
// external id that already exists returns the existing account.
func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	externalId := strings.TrimSpace(params.ExternalId)
	if externalId == "" {
		return nil, fmt.Errorf("external id cannot be empty")
	}
	status := params.Status
	if status == "" {
		status = models.AccountStatusOnboarding
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid account status %q", status)
	}

	now := time.Now().UTC()
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryInsertAccount,
		uuid.New().String(), externalId, normalizeHandle(params.Handle), string(status), now, now))
	if err != nil {
		if isUniqueViolation(err) {
			zap.L().Info("Account already exists", zap.String("external_id", externalId))
			return s.GetAccountByExternalId(ctx, externalId)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	zap.L().Info("Account created",
		zap.String("account_id", account.Id),
		zap.String("external_id", account.ExternalId),
		zap.String("handle", account.Handle),
		zap.String("status", string(account.Status)))

	return account, nil
}

func (s *Service) GetAccountById(ctx context.Context, accountId string) (*models.Account, error) {
	return s.getAccount(ctx, queryGetAccountById, accountId)
}

func (s *Service) GetAccountByExternalId(ctx context.Context, externalId string) (*models.Account, error) {
	return s.getAccount(ctx, queryGetAccountByExternalId, externalId)
}

func (s *Service) GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	handle = normalizeHandle(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: empty handle", store.ErrAccountNotFound)
	}
	return s.getAccount(ctx, queryGetAccountByHandle, handle)
}

func (s *Service) getAccount(ctx context.Context, query, key string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ResolveAccount finds an account by internal id, then external id, then handle.
func (s *Service) ResolveAccount(ctx context.Context, identifier string) (*models.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: empty identifier", store.ErrAccountNotFound)
	}

	lookups := []func(context.Context, string) (*models.Account, error){
		s.GetAccountById,
		s.GetAccountByExternalId,
		s.GetAccountByHandle,
	}
	for _, lookup := range lookups {
		account, err := lookup(ctx, identifier)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, store.ErrAccountNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, identifier)
}

func (s *Service) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, queryListAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer closeRows(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during account row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	zap.L().Debug("Listed accounts", zap.Int("count", len(accounts)))
	return accounts, nil
}

func (s *Service) SetAccountStatus(ctx context.Context, accountId string, status models.AccountStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid account status %q", status)
	}

	result, err := s.db.ExecContext(ctx, queryUpdateAccountStatus, string(status), time.Now().UTC(), accountId)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", store.ErrAccountNotFound, accountId)
	}

	zap.L().Info("Account status updated",
		zap.String("account_id", accountId),
		zap.String("status", string(status)))
	return nil
}
