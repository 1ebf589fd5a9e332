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

package store

import (
	"context"
	"errors"
	"time"

	"sol-deposit-ledger/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across the ledger, chain and service layers.
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrOperationTimedOut      = errors.New("operation timed out")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrLinkConflict           = errors.New("sender address already linked to another account")
)

// CreateAccountParams contains the parameters for registering an account.
type CreateAccountParams struct {
	ExternalId string
	Handle     string
	Status     models.AccountStatus
}

// ApplyEntryParams describes one balance-affecting event.
type ApplyEntryParams struct {
	AccountId     string
	Kind          models.EntryKind
	Amount        decimal.Decimal // signed; positive increases balance
	ExternalRef   string
	SenderAddress string
	Reference     string

	// Deposit-only rules, ignored for other kinds.
	ActivationThreshold decimal.Decimal
	BaselinePolicy      models.BaselinePolicy
}

// ApplyResult is the outcome of a committed (or duplicate) entry.
type ApplyResult struct {
	Entry         *models.LedgerEntry
	Account       *models.Account
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Duplicate     bool
	Activated     bool
}

// LedgerStore defines the contract every ledger backend must satisfy.
type LedgerStore interface {
	// --- Accounts ---
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	GetAccountById(ctx context.Context, accountId string) (*models.Account, error)
	GetAccountByExternalId(ctx context.Context, externalId string) (*models.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error)
	ResolveAccount(ctx context.Context, identifier string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	SetAccountStatus(ctx context.Context, accountId string, status models.AccountStatus) error

	// --- Sender links ---
	LinkSender(ctx context.Context, accountId, senderAddress string) (*models.SenderLink, error)
	FindLinkBySender(ctx context.Context, senderAddress string) (*models.SenderLink, error)
	GetAccountLinks(ctx context.Context, accountId string) ([]models.SenderLink, error)
	CountLinks(ctx context.Context) (int64, error)

	// --- Ledger ---
	ApplyEntry(ctx context.Context, params ApplyEntryParams) (*ApplyResult, error)
	HasEntry(ctx context.Context, externalRef string) (bool, error)
	GetEntryHistory(ctx context.Context, accountId string, limit, offset int) ([]models.LedgerEntry, error)
	CountEntries(ctx context.Context, accountId string) (int64, error)
	ReconcileAccount(ctx context.Context, accountId string) error
	PurgeEntriesBefore(ctx context.Context, cutoff time.Time) (*models.RetentionReport, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
