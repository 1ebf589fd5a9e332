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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sol-deposit-ledger/internal/database"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore blocks ApplyEntry until release is closed.
type slowStore struct {
	store.LedgerStore
	release chan struct{}
}

func (s *slowStore) ApplyEntry(ctx context.Context, params store.ApplyEntryParams) (*store.ApplyResult, error) {
	<-s.release
	return s.LedgerStore.ApplyEntry(ctx, params)
}

func newTestStore(t *testing.T) *database.Service {
	t.Helper()
	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(service.Close)
	return service
}

func newTestAdjuster(t *testing.T, ledger store.LedgerStore, cfg models.AdjustConfig, opts ...Option) *Adjuster {
	t.Helper()
	a, err := NewAdjuster(ledger, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Release(time.Second) })
	return a
}

func seedAccount(t *testing.T, ledger store.LedgerStore, balance string) *models.Account {
	t.Helper()
	ctx := context.Background()
	account, err := ledger.CreateAccount(ctx, store.CreateAccountParams{ExternalId: "42", Handle: "@operator_friend", Status: models.AccountStatusActive})
	require.NoError(t, err)
	if balance != "0" {
		_, err = ledger.ApplyEntry(ctx, store.ApplyEntryParams{
			AccountId: account.Id, Kind: models.EntryKindAdminCredit,
			Amount: decimal.RequireFromString(balance), ExternalRef: "seed",
		})
		require.NoError(t, err)
	}
	return account
}

func TestAdjustBalance_CreditWithReason(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	account := seedAccount(t, ledger, "0")

	var mu sync.Mutex
	var hooked []models.AdjustmentResult
	a := newTestAdjuster(t, ledger, models.AdjustConfig{PoolSize: 2}, WithCreditHook(func(_ context.Context, r models.AdjustmentResult) {
		mu.Lock()
		defer mu.Unlock()
		hooked = append(hooked, r)
	}))

	ok, message := a.AdjustBalance(ctx, account.Id, "3.0", "bonus")
	require.True(t, ok, message)
	assert.Contains(t, message, "0 -> 3")

	history, err := ledger.GetEntryHistory(ctx, account.Id, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.EntryKindAdminCredit, history[0].Kind)
	assert.True(t, history[0].Amount.Equal(decimal.RequireFromString("3")))
	assert.Equal(t, "bonus", history[0].Reference)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hooked, 1)
	assert.True(t, hooked[0].BalanceAfter.Equal(decimal.RequireFromString("3")))
}

func TestAdjustBalance_DebitBeyondBalance(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	account := seedAccount(t, ledger, "2.0")
	a := newTestAdjuster(t, ledger, models.AdjustConfig{PoolSize: 2})

	result := a.Submit(ctx, models.AdjustmentRequest{Identifier: "42", Amount: decimal.RequireFromString("-5.0")})
	assert.Equal(t, models.AdjustmentFailed, result.Outcome)
	assert.Contains(t, result.Message, "Insufficient balance")
	assert.True(t, result.BalanceAfter.Equal(decimal.RequireFromString("2")))

	got, err := ledger.GetAccountById(ctx, account.Id)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("2")))
}

func TestAdjustBalance_Debit(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	seedAccount(t, ledger, "2.0")
	a := newTestAdjuster(t, ledger, models.AdjustConfig{PoolSize: 2})

	result := a.Submit(ctx, models.AdjustmentRequest{Identifier: "@Operator_Friend", Amount: decimal.RequireFromString("-0.75"), Reason: "fee"})
	require.Equal(t, models.AdjustmentCompleted, result.Outcome, result.Message)
	assert.True(t, result.BalanceBefore.Equal(decimal.RequireFromString("2")))
	assert.True(t, result.BalanceAfter.Equal(decimal.RequireFromString("1.25")))
}

func TestAdjustBalance_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	seedAccount(t, ledger, "1")
	a := newTestAdjuster(t, ledger, models.AdjustConfig{PoolSize: 2})

	ok, message := a.AdjustBalance(ctx, "42", "lots", "")
	assert.False(t, ok)
	assert.Contains(t, message, "Invalid amount")

	ok, message = a.AdjustBalance(ctx, "42", "0", "")
	assert.False(t, ok)
	assert.Contains(t, message, "Invalid amount")

	ok, message = a.AdjustBalance(ctx, "nobody", "1", "")
	assert.False(t, ok)
	assert.Contains(t, message, "Account not found")
}

func TestSubmit_RequestIdIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	account := seedAccount(t, ledger, "0")
	a := newTestAdjuster(t, ledger, models.AdjustConfig{PoolSize: 2})

	req := models.AdjustmentRequest{Identifier: account.Id, Amount: decimal.RequireFromString("1"), RequestId: "ticket-7"}
	first := a.Submit(ctx, req)
	second := a.Submit(ctx, req)

	require.Equal(t, models.AdjustmentCompleted, first.Outcome)
	require.Equal(t, models.AdjustmentCompleted, second.Outcome)
	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, "ticket-7", second.ExternalRef)

	got, err := ledger.GetAccountById(ctx, account.Id)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("1")))
}

func TestSubmit_RequestIdReusedForAnotherAccount(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	first := seedAccount(t, ledger, "0")
	other, err := ledger.CreateAccount(ctx, store.CreateAccountParams{ExternalId: "43", Status: models.AccountStatusActive})
	require.NoError(t, err)
	a := newTestAdjuster(t, ledger, models.AdjustConfig{PoolSize: 2})

	done := a.Submit(ctx, models.AdjustmentRequest{Identifier: first.Id, Amount: decimal.RequireFromString("1"), RequestId: "ticket-9"})
	require.Equal(t, models.AdjustmentCompleted, done.Outcome)

	reused := a.Submit(ctx, models.AdjustmentRequest{Identifier: other.Id, Amount: decimal.RequireFromString("1"), RequestId: "ticket-9"})
	assert.Equal(t, models.AdjustmentFailed, reused.Outcome)
	assert.Contains(t, reused.Message, "Request id already used")

	got, err := ledger.GetAccountById(ctx, other.Id)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
}

func TestSubmit_SlowAdjustmentFinishesInBackground(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	account := seedAccount(t, ledger, "0")
	slow := &slowStore{LedgerStore: ledger, release: make(chan struct{})}
	a := newTestAdjuster(t, slow, models.AdjustConfig{PoolSize: 1, WaitTimeout: 20 * time.Millisecond, WorkerTimeout: 5 * time.Second})

	result := a.Submit(ctx, models.AdjustmentRequest{Identifier: account.Id, Amount: decimal.RequireFromString("2"), RequestId: "slow-1"})
	assert.Equal(t, models.AdjustmentProcessing, result.Outcome)
	assert.True(t, result.Success())
	assert.Contains(t, result.Message, "still processing")

	// Pool of one is occupied: the next request is rejected, not queued
	busy := a.Submit(ctx, models.AdjustmentRequest{Identifier: account.Id, Amount: decimal.RequireFromString("1")})
	assert.Equal(t, models.AdjustmentFailed, busy.Outcome)
	assert.Contains(t, busy.Message, "busy")

	close(slow.release)
	require.Eventually(t, func() bool {
		exists, err := ledger.HasEntry(ctx, "slow-1")
		return err == nil && exists
	}, 2*time.Second, 10*time.Millisecond)

	got, err := ledger.GetAccountById(ctx, account.Id)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("2")))
}
