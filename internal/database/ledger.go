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
	"time"

	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const applyMaxAttempts = 5

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var kind, amountStr, balanceBeforeStr, balanceAfterStr string
	err := row.Scan(&entry.Id, &entry.AccountId, &kind,
		&amountStr, &balanceBeforeStr, &balanceAfterStr,
		&entry.ExternalRef, &entry.SenderAddress, &entry.Reference,
		&entry.Status, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	entry.Kind = models.EntryKind(kind)
	if entry.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	if entry.BalanceBefore, err = decimal.NewFromString(balanceBeforeStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance before '%s': %w", balanceBeforeStr, err)
	}
	if entry.BalanceAfter, err = decimal.NewFromString(balanceAfterStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance after '%s': %w", balanceAfterStr, err)
	}
	return &entry, nil
}

// ApplyEntry atomically records an entry and moves the account balance.
// A previously seen external ref is reported as a duplicate without error
// unless it belongs to another account.
// Optimistic-lock conflicts are retried with exponential backoff.
func (s *SubledgerService) ApplyEntry(ctx context.Context, params store.ApplyEntryParams) (*store.ApplyResult, error) {
	if params.AccountId == "" {
		return nil, fmt.Errorf("%w: empty account id", store.ErrAccountNotFound)
	}
	if params.ExternalRef == "" {
		return nil, fmt.Errorf("external ref cannot be empty")
	}
	if !params.Kind.AllowsAmount(params.Amount) {
		return nil, fmt.Errorf("%w: %s amount %s", store.ErrInvalidAmount, params.Kind, params.Amount.String())
	}

	zap.L().Info("Applying ledger entry",
		zap.String("account_id", params.AccountId),
		zap.String("kind", string(params.Kind)),
		zap.String("amount", params.Amount.String()),
		zap.String("external_ref", params.ExternalRef))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	return backoff.Retry(ctx, func() (*store.ApplyResult, error) {
		result, err := s.applyOnce(ctx, params)
		if errors.Is(err, store.ErrConcurrentModification) {
			zap.L().Warn("Concurrent modification, retrying",
				zap.String("account_id", params.AccountId),
				zap.String("external_ref", params.ExternalRef))
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return result, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(applyMaxAttempts))
}

func (s *SubledgerService) applyOnce(ctx context.Context, params store.ApplyEntryParams) (*store.ApplyResult, error) {
	// The DSN sets _txlock=immediate, so this takes the write lock.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanEntry(tx.QueryRowContext(ctx, queryGetEntryByRef, params.ExternalRef))
	if err == nil {
		return s.duplicateResult(ctx, tx, existing, params)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check for duplicate entry: %w", err)
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, queryGetAccountById, params.AccountId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, params.AccountId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	balanceBefore := account.Balance
	balanceAfter := balanceBefore.Add(params.Amount)
	if balanceAfter.IsNegative() {
		zap.L().Warn("Rejecting entry that would overdraw account",
			zap.String("account_id", account.Id),
			zap.String("balance", balanceBefore.String()),
			zap.String("amount", params.Amount.String()))
		return nil, fmt.Errorf("%w: balance %s, requested %s",
			store.ErrInsufficientBalance, balanceBefore.String(), params.Amount.Abs().String())
	}

	baseline := account.Baseline
	status := account.Status
	activated := false
	if params.Kind == models.EntryKindDeposit {
		baseline = nextBaseline(params.BaselinePolicy, baseline, params.Amount)
		if status == models.AccountStatusAwaitingDeposit && balanceAfter.GreaterThanOrEqual(params.ActivationThreshold) {
			status = models.AccountStatusActive
			activated = true
		}
	}

	now := time.Now().UTC()
	entry, err := scanEntry(tx.QueryRowContext(ctx, queryInsertEntry,
		uuid.New().String(), account.Id, string(params.Kind),
		params.Amount.String(), balanceBefore.String(), balanceAfter.String(),
		params.ExternalRef, params.SenderAddress, params.Reference,
		models.EntryStatusCompleted, now))
	if err != nil {
		if isUniqueViolation(err) {
			// Next attempt observes the committed entry as a duplicate.
			return nil, fmt.Errorf("entry insert raced: %w", store.ErrConcurrentModification)
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	// Update account (with optimistic locking)
	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance,
		balanceAfter.String(), baseline.String(), string(status), now, account.Id, account.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	if err := s.addJournalEntries(ctx, tx, entry, now); err != nil {
		return nil, fmt.Errorf("failed to add journal entries: %w", err)
	}

	if params.SenderAddress != "" && params.Kind == models.EntryKindDeposit {
		if _, err := tx.ExecContext(ctx, queryTouchSenderLink, now, params.SenderAddress, account.Id); err != nil {
			return nil, fmt.Errorf("failed to touch sender link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	account.Balance = balanceAfter
	account.Baseline = baseline
	account.Status = status
	account.Version++
	account.UpdatedAt = now

	zap.L().Info("Ledger entry applied",
		zap.String("entry_id", entry.Id),
		zap.String("account_id", account.Id),
		zap.String("kind", string(entry.Kind)),
		zap.String("old_balance", balanceBefore.String()),
		zap.String("new_balance", balanceAfter.String()),
		zap.Bool("activated", activated))

	return &store.ApplyResult{
		Entry:         entry,
		Account:       account,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Activated:     activated,
	}, nil
}

// duplicateResult reports a replayed external ref as a no-op. A ref already
// owned by another account is refused with store.ErrDuplicateTransaction.
func (s *SubledgerService) duplicateResult(ctx context.Context, tx *sql.Tx, existing *models.LedgerEntry, params store.ApplyEntryParams) (*store.ApplyResult, error) {
	if existing.AccountId != params.AccountId {
		zap.L().Warn("External ref already applied to a different account",
			zap.String("external_ref", params.ExternalRef),
			zap.String("existing_account_id", existing.AccountId),
			zap.String("requested_account_id", params.AccountId))
		return nil, fmt.Errorf("%w: %s belongs to account %s",
			store.ErrDuplicateTransaction, params.ExternalRef, existing.AccountId)
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, queryGetAccountById, existing.AccountId))
	if err != nil {
		return nil, fmt.Errorf("failed to load account for duplicate entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Duplicate external ref, skipping",
		zap.String("external_ref", params.ExternalRef),
		zap.String("existing_entry_id", existing.Id))

	return &store.ApplyResult{
		Entry:         existing,
		Account:       account,
		BalanceBefore: account.Balance,
		BalanceAfter:  account.Balance,
		Duplicate:     true,
	}, nil
}

// nextBaseline never lowers the baseline. Zero means unset.
func nextBaseline(policy models.BaselinePolicy, current, deposit decimal.Decimal) decimal.Decimal {
	switch policy {
	case models.BaselineCumulative:
		return current.Add(deposit)
	default:
		if current.IsZero() {
			return deposit
		}
		return current
	}
}

type journalLine struct {
	accountType  string
	accountRef   string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// liabilityRef names the platform-side account an entry kind settles against.
func liabilityRef(kind models.EntryKind) string {
	switch kind {
	case models.EntryKindDeposit:
		return "user_deposits_SOL"
	case models.EntryKindSimulatedTrade:
		return "simulated_trading_SOL"
	default:
		return "admin_adjustments_SOL"
	}
}

// addJournalEntries creates double-entry bookkeeping entries
func (s *SubledgerService) addJournalEntries(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry, now time.Time) error {
	// Credit to the account: debit user asset, credit system liability.
	// Debit from the account: the reverse.
	magnitude := entry.Magnitude()
	var lines []journalLine
	if entry.Amount.IsPositive() {
		lines = []journalLine{
			{"user_asset", entry.AccountId, magnitude, decimal.Zero},
			{"system_liability", liabilityRef(entry.Kind), decimal.Zero, magnitude},
		}
	} else {
		lines = []journalLine{
			{"user_asset", entry.AccountId, decimal.Zero, magnitude},
			{"system_liability", liabilityRef(entry.Kind), magnitude, decimal.Zero},
		}
	}

	for _, line := range lines {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), entry.Id, line.accountType, line.accountRef,
			line.debitAmount.String(), line.creditAmount.String(), now)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SubledgerService) HasEntry(ctx context.Context, externalRef string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, queryCheckDuplicateEntry, externalRef).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check entry: %w", err)
	}
	return true, nil
}

// GetEntryHistory returns paginated entry history for an account, newest first
func (s *SubledgerService) GetEntryHistory(ctx context.Context, accountId string, limit, offset int) ([]models.LedgerEntry, error) {
	zap.L().Debug("Getting entry history",
		zap.String("account_id", accountId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetEntryHistory, accountId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry history: %w", err)
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during ledger entry row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating ledger entry rows: %w", err)
	}
	return entries, nil
}

func (s *SubledgerService) CountEntries(ctx context.Context, accountId string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, queryCountEntries, accountId).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}
