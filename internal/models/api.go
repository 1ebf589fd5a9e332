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

// DepositResult represents the result of applying a deposit
type DepositResult struct {
	Success       bool            `json:"success"`
	Duplicate     bool            `json:"duplicate,omitempty"`
	Activated     bool            `json:"activated,omitempty"`
	AccountId     string          `json:"account_id,omitempty"`
	ExternalRef   string          `json:"external_ref,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Error         string          `json:"error,omitempty"`
}

// DepositEvent is published after a deposit has been credited
type DepositEvent struct {
	AccountId    string          `json:"account_id"`
	ExternalId   string          `json:"external_id"`
	ExternalRef  string          `json:"external_ref"`
	Sender       string          `json:"sender,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Activated    bool            `json:"activated"`
	CreditedAt   time.Time       `json:"credited_at"`
}

// AdjustmentRequest is an operator balance change
type AdjustmentRequest struct {
	Identifier string          `json:"identifier"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	RequestId  string          `json:"request_id,omitempty"`
}

// AdjustmentOutcome is the caller-visible state of an adjustment
type AdjustmentOutcome string

const (
	AdjustmentCompleted  AdjustmentOutcome = "completed"
	AdjustmentProcessing AdjustmentOutcome = "processing"
	AdjustmentFailed     AdjustmentOutcome = "failed"
)

// AdjustmentResult represents the result of an operator adjustment
type AdjustmentResult struct {
	Outcome       AdjustmentOutcome `json:"outcome"`
	Duplicate     bool              `json:"duplicate,omitempty"`
	AccountId     string            `json:"account_id,omitempty"`
	ExternalRef   string            `json:"external_ref,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Message       string            `json:"message"`
}

func (r *AdjustmentResult) Success() bool {
	return r.Outcome != AdjustmentFailed
}

// AccountSummary is the read model for balance reports
type AccountSummary struct {
	Account Account      `json:"account"`
	Links   []SenderLink `json:"links"`
	Entries int64        `json:"entries"`
}
