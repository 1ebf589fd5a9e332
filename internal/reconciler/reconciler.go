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

package reconciler

import (
	"context"
	"fmt"
	"iter"
	"time"

	"sol-deposit-ledger/internal/metrics"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/notify"
	"sol-deposit-ledger/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DepositSource yields candidate deposits for one scan cycle
type DepositSource interface {
	Scan(ctx context.Context) iter.Seq[models.Deposit]
}

// Reconciler applies scanned deposits to the ledger exactly once
type Reconciler struct {
	store    store.LedgerStore
	source   DepositSource
	notifier notify.Notifier
	cfg      models.LedgerConfig
}

func NewReconciler(ledger store.LedgerStore, source DepositSource, notifier notify.Notifier, cfg models.LedgerConfig) *Reconciler {
	if cfg.BaselinePolicy == "" {
		cfg.BaselinePolicy = models.BaselineFirstDeposit
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Reconciler{
		store:    ledger,
		source:   source,
		notifier: notifier,
		cfg:      cfg,
	}
}

// ApplyDeposit credits amount to accountId under externalRef. A ref that was
// already applied counts as success.
func (r *Reconciler) ApplyDeposit(ctx context.Context, accountId string, amount decimal.Decimal, externalRef string) bool {
	return r.Credit(ctx, models.Deposit{
		AccountId:   accountId,
		Amount:      amount,
		ExternalRef: externalRef,
	}).Success
}

// Credit applies one deposit and reports the balance snapshot around it.
func (r *Reconciler) Credit(ctx context.Context, deposit models.Deposit) *models.DepositResult {
	result := &models.DepositResult{
		AccountId:   deposit.AccountId,
		ExternalRef: deposit.ExternalRef,
		Amount:      deposit.Amount,
	}

	if !deposit.Amount.IsPositive() {
		err := fmt.Errorf("%w: deposit amount must be positive, got %s", store.ErrInvalidAmount, deposit.Amount.String())
		zap.L().Warn("Rejecting deposit", zap.String("external_ref", deposit.ExternalRef), zap.Error(err))
		metrics.DepositsFailed.Inc()
		result.Error = err.Error()
		return result
	}

	applied, err := r.store.ApplyEntry(ctx, store.ApplyEntryParams{
		AccountId:           deposit.AccountId,
		Kind:                models.EntryKindDeposit,
		Amount:              deposit.Amount,
		ExternalRef:         deposit.ExternalRef,
		SenderAddress:       deposit.Sender,
		Reference:           "SOL deposit",
		ActivationThreshold: r.cfg.MinDeposit,
		BaselinePolicy:      r.cfg.BaselinePolicy,
	})
	if err != nil {
		zap.L().Error("Failed to apply deposit",
			zap.String("account_id", deposit.AccountId),
			zap.String("external_ref", deposit.ExternalRef),
			zap.String("amount", deposit.Amount.String()),
			zap.Error(err))
		metrics.DepositsFailed.Inc()
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Duplicate = applied.Duplicate
	result.Activated = applied.Activated
	result.BalanceBefore = applied.BalanceBefore
	result.BalanceAfter = applied.BalanceAfter

	if applied.Duplicate {
		metrics.DepositsDuplicate.Inc()
		return result
	}

	metrics.DepositsApplied.Inc()
	metrics.DepositVolume.Add(deposit.Amount.InexactFloat64())

	event := models.DepositEvent{
		AccountId:    applied.Account.Id,
		ExternalId:   applied.Account.ExternalId,
		ExternalRef:  deposit.ExternalRef,
		Sender:       deposit.Sender,
		Amount:       deposit.Amount,
		BalanceAfter: applied.BalanceAfter,
		Activated:    applied.Activated,
		CreditedAt:   applied.Entry.CreatedAt,
	}
	if err := r.notifier.DepositCredited(ctx, event); err != nil {
		zap.L().Warn("Deposit notification failed",
			zap.String("external_ref", deposit.ExternalRef),
			zap.Error(err))
	}

	return result
}

// RunScanCycle drains one scan and applies every deposit it yields. It keeps
// going past individual failures and returns how many deposits were newly
// credited.
func (r *Reconciler) RunScanCycle(ctx context.Context) int {
	start := time.Now()
	applied, failed := 0, 0

	for deposit := range r.source.Scan(ctx) {
		result := r.Credit(ctx, deposit)
		switch {
		case !result.Success:
			failed++
		case !result.Duplicate:
			applied++
		}
	}

	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	if failed > 0 {
		metrics.ScanCycles.WithLabelValues("partial").Inc()
	} else {
		metrics.ScanCycles.WithLabelValues("ok").Inc()
	}

	zap.L().Info("Scan cycle complete",
		zap.Int("applied", applied),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return applied
}
