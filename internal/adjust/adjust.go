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

package adjust

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sol-deposit-ledger/internal/metrics"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditHook runs after a completed admin credit
type CreditHook func(ctx context.Context, result models.AdjustmentResult)

type Option func(*Adjuster)

// WithCreditHook registers a hook for completed credits.
func WithCreditHook(hook CreditHook) Option {
	return func(a *Adjuster) {
		a.onCredit = hook
	}
}

// Adjuster executes operator balance adjustments on a bounded worker pool.
// Callers wait up to the configured wait timeout; slower adjustments keep
// running on the worker and are reported as still processing.
type Adjuster struct {
	store         store.LedgerStore
	pool          *ants.Pool
	waitTimeout   time.Duration
	workerTimeout time.Duration
	onCredit      CreditHook
}

func NewAdjuster(ledger store.LedgerStore, cfg models.AdjustConfig, opts ...Option) (*Adjuster, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	if cfg.WorkerTimeout <= 0 {
		cfg.WorkerTimeout = 30 * time.Second
	}

	pool, err := ants.NewPool(cfg.PoolSize,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			zap.L().Error("Adjustment worker panicked", zap.Any("panic", p))
		}),
		ants.WithLogger(zap.NewStdLog(zap.L())),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create adjustment pool: %w", err)
	}

	a := &Adjuster{
		store:         ledger,
		pool:          pool,
		waitTimeout:   cfg.WaitTimeout,
		workerTimeout: cfg.WorkerTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}

	zap.L().Info("Adjustment service started",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Duration("wait_timeout", cfg.WaitTimeout),
		zap.Duration("worker_timeout", cfg.WorkerTimeout))
	return a, nil
}

// AdjustBalance parses amountText and applies it to the account named by
// identifier. It returns whether the adjustment was accepted and a message
// for the operator.
func (a *Adjuster) AdjustBalance(ctx context.Context, identifier, amountText, reason string) (bool, string) {
	amount, err := decimal.NewFromString(strings.TrimSpace(amountText))
	if err != nil {
		metrics.Adjustments.WithLabelValues(string(models.AdjustmentFailed)).Inc()
		return false, fmt.Sprintf("Invalid amount %q: %v", amountText, store.ErrInvalidAmount)
	}

	result := a.Submit(ctx, models.AdjustmentRequest{
		Identifier: identifier,
		Amount:     amount,
		Reason:     reason,
	})
	return result.Success(), result.Message
}

// Submit validates req, resolves the account and runs the adjustment on the
// pool.
func (a *Adjuster) Submit(ctx context.Context, req models.AdjustmentRequest) *models.AdjustmentResult {
	if req.Amount.IsZero() {
		return a.failed(nil, req, fmt.Errorf("%w: amount must be non-zero", store.ErrInvalidAmount))
	}

	account, err := a.store.ResolveAccount(ctx, req.Identifier)
	if err != nil {
		return a.failed(nil, req, err)
	}

	ref := req.RequestId
	if ref == "" {
		ref = "admin-" + uuid.New().String()
	}

	done := make(chan *models.AdjustmentResult, 1)
	err = a.pool.Submit(func() {
		// The worker outlives the caller's wait; detach from its cancellation.
		workerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.workerTimeout)
		defer cancel()
		done <- a.apply(workerCtx, account, req, ref)
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			zap.L().Warn("Adjustment pool is full, rejecting request",
				zap.String("account_id", account.Id),
				zap.Int("running", a.pool.Running()))
			return a.failed(account, req, fmt.Errorf("adjustment service busy, try again shortly"))
		}
		return a.failed(account, req, fmt.Errorf("failed to schedule adjustment: %w", err))
	}

	timer := time.NewTimer(a.waitTimeout)
	defer timer.Stop()

	select {
	case result := <-done:
		return result
	case <-timer.C:
	case <-ctx.Done():
	}

	zap.L().Warn("Adjustment still processing in background",
		zap.String("account_id", account.Id),
		zap.String("external_ref", ref))
	metrics.Adjustments.WithLabelValues(string(models.AdjustmentProcessing)).Inc()
	return &models.AdjustmentResult{
		Outcome:     models.AdjustmentProcessing,
		AccountId:   account.Id,
		ExternalRef: ref,
		Amount:      req.Amount,
		Message:     fmt.Sprintf("Adjustment %s is still processing in background", ref),
	}
}

func (a *Adjuster) apply(ctx context.Context, account *models.Account, req models.AdjustmentRequest, ref string) *models.AdjustmentResult {
	kind := models.EntryKindAdminCredit
	if req.Amount.IsNegative() {
		kind = models.EntryKindAdminDebit
	}

	applied, err := a.store.ApplyEntry(ctx, store.ApplyEntryParams{
		AccountId:   account.Id,
		Kind:        kind,
		Amount:      req.Amount,
		ExternalRef: ref,
		Reference:   req.Reason,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", store.ErrOperationTimedOut, err)
		}
		return a.failed(account, req, err)
	}

	result := &models.AdjustmentResult{
		Outcome:       models.AdjustmentCompleted,
		Duplicate:     applied.Duplicate,
		AccountId:     account.Id,
		ExternalRef:   ref,
		Amount:        req.Amount,
		BalanceBefore: applied.BalanceBefore,
		BalanceAfter:  applied.BalanceAfter,
		Message: fmt.Sprintf("Adjusted balance by %s SOL: %s -> %s",
			req.Amount.String(), applied.BalanceBefore.String(), applied.BalanceAfter.String()),
	}
	if applied.Duplicate {
		result.Message = fmt.Sprintf("Adjustment %s was already applied; balance %s SOL", ref, applied.BalanceAfter.String())
	}

	metrics.Adjustments.WithLabelValues(string(models.AdjustmentCompleted)).Inc()
	zap.L().Info("Adjustment applied",
		zap.String("account_id", account.Id),
		zap.String("external_ref", ref),
		zap.String("amount", req.Amount.String()),
		zap.String("reason", req.Reason),
		zap.String("balance_before", applied.BalanceBefore.String()),
		zap.String("balance_after", applied.BalanceAfter.String()),
		zap.Bool("duplicate", applied.Duplicate))

	if kind == models.EntryKindAdminCredit && !applied.Duplicate && a.onCredit != nil {
		a.onCredit(ctx, *result)
	}
	return result
}

func (a *Adjuster) failed(account *models.Account, req models.AdjustmentRequest, err error) *models.AdjustmentResult {
	metrics.Adjustments.WithLabelValues(string(models.AdjustmentFailed)).Inc()
	zap.L().Warn("Adjustment failed",
		zap.String("identifier", req.Identifier),
		zap.String("amount", req.Amount.String()),
		zap.Error(err))

	result := &models.AdjustmentResult{
		Outcome: models.AdjustmentFailed,
		Amount:  req.Amount,
		Message: describe(err),
	}
	if account != nil {
		result.AccountId = account.Id
		result.BalanceBefore = account.Balance
		result.BalanceAfter = account.Balance
	}
	return result
}

// describe turns an adjustment error into an operator-facing reason.
func describe(err error) string {
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		return "Account not found: " + err.Error()
	case errors.Is(err, store.ErrInsufficientBalance):
		return "Insufficient balance: " + err.Error()
	case errors.Is(err, store.ErrInvalidAmount):
		return "Invalid amount: " + err.Error()
	case errors.Is(err, store.ErrDuplicateTransaction):
		return "Request id already used: " + err.Error()
	case errors.Is(err, store.ErrOperationTimedOut):
		return "Adjustment timed out: " + err.Error()
	default:
		return err.Error()
	}
}

// Running returns the number of busy workers.
func (a *Adjuster) Running() int {
	return a.pool.Running()
}

// Release stops accepting work and waits up to timeout for running workers.
func (a *Adjuster) Release(timeout time.Duration) error {
	zap.L().Info("Shutting down adjustment pool", zap.Int("running_workers", a.pool.Running()))
	return a.pool.ReleaseTimeout(timeout)
}
