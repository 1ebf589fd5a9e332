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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus is the onboarding state of an account
type AccountStatus string

const (
	AccountStatusOnboarding      AccountStatus = "onboarding"
	AccountStatusAwaitingDeposit AccountStatus = "awaiting_deposit"
	AccountStatusActive          AccountStatus = "active"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusOnboarding, AccountStatusAwaitingDeposit, AccountStatusActive:
		return true
	}
	return false
}

// EntryKind classifies a ledger entry
type EntryKind string

const (
	EntryKindDeposit        EntryKind = "deposit"
	EntryKindAdminCredit    EntryKind = "admin_credit"
	EntryKindAdminDebit     EntryKind = "admin_debit"
	EntryKindSimulatedTrade EntryKind = "simulated_trade"
)

// AllowsAmount reports whether a signed amount is consistent with the kind.
func (k EntryKind) AllowsAmount(amount decimal.Decimal) bool {
	switch k {
	case EntryKindDeposit, EntryKindAdminCredit:
		return amount.IsPositive()
	case EntryKindAdminDebit:
		return amount.IsNegative()
	case EntryKindSimulatedTrade:
		return !amount.IsZero()
	}
	return false
}

const EntryStatusCompleted = "completed"

// Account represents a ledger account (current state - hot data)
type Account struct {
	Id            string          `db:"id" json:"id"`
	ExternalId    string          `db:"external_id" json:"external_id"`
	Handle        string          `db:"handle" json:"handle"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	Baseline      decimal.Decimal `db:"baseline" json:"baseline"`
	ArchivedTotal decimal.Decimal `db:"archived_total" json:"archived_total"`
	Status        AccountStatus   `db:"status" json:"status"`
	Version       int64           `db:"version" json:"version"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// LedgerEntry represents one immutable balance-affecting event (cold data)
type LedgerEntry struct {
	Id            string          `db:"id" json:"id"`
	AccountId     string          `db:"account_id" json:"account_id"`
	Kind          EntryKind       `db:"kind" json:"kind"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balance_after"`
	ExternalRef   string          `db:"external_ref" json:"external_ref"`
	SenderAddress string          `db:"sender_address" json:"sender_address"`
	Reference     string          `db:"reference" json:"reference"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Magnitude returns the unsigned amount of the entry
func (e LedgerEntry) Magnitude() decimal.Decimal {
	return e.Amount.Abs()
}

// SenderLink maps an inbound wallet address to the account it credits
type SenderLink struct {
	Id            string    `db:"id" json:"id"`
	AccountId     string    `db:"account_id" json:"account_id"`
	SenderAddress string    `db:"sender_address" json:"sender_address"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastUsedAt    time.Time `db:"last_used_at" json:"last_used_at"`
}

// RetentionReport summarizes one retention pass
type RetentionReport struct {
	Cutoff          time.Time `json:"cutoff"`
	LedgerEntries   int64     `json:"ledger_entries"`
	JournalEntries  int64     `json:"journal_entries"`
	AccountsTouched int       `json:"accounts_touched"`
}
