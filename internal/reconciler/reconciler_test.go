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
	"errors"
	"iter"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"sol-deposit-ledger/internal/database"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/scanner"
	"sol-deposit-ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ledgerConfig = models.LedgerConfig{
	MinDeposit:     decimal.RequireFromString("0.5"),
	BaselinePolicy: models.BaselineFirstDeposit,
}

type sliceSource []models.Deposit

func (s sliceSource) Scan(context.Context) iter.Seq[models.Deposit] {
	return slices.Values(s)
}

type recordingNotifier struct {
	events []models.DepositEvent
	err    error
}

func (n *recordingNotifier) DepositCredited(_ context.Context, event models.DepositEvent) error {
	n.events = append(n.events, event)
	return n.err
}

type fakeChain struct {
	signatures []models.SignatureInfo
	transfers  map[string]*models.Transfer
}

func (f *fakeChain) RecentSignatures(context.Context, string, int) ([]models.SignatureInfo, error) {
	return f.signatures, nil
}

func (f *fakeChain) InboundTransfer(_ context.Context, signature, _ string) (*models.Transfer, error) {
	return f.transfers[signature], nil
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

func newAccount(t *testing.T, s store.LedgerStore, externalId string) *models.Account {
	t.Helper()
	account, err := s.CreateAccount(context.Background(), store.CreateAccountParams{
		ExternalId: externalId,
		Status:     models.AccountStatusAwaitingDeposit,
	})
	require.NoError(t, err)
	return account
}

func TestApplyDeposit_IdempotentAndActivates(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	notifier := &recordingNotifier{}
	r := NewReconciler(ledger, sliceSource(nil), notifier, ledgerConfig)
	account := newAccount(t, ledger, "100")

	amount := decimal.RequireFromString("1.5")
	assert.True(t, r.ApplyDeposit(ctx, account.Id, amount, "tx1"))
	assert.True(t, r.ApplyDeposit(ctx, account.Id, amount, "tx1"))

	got, err := ledger.GetAccountById(ctx, account.Id)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(amount), "balance %s", got.Balance)
	assert.True(t, got.Baseline.Equal(amount), "baseline %s", got.Baseline)
	assert.Equal(t, models.AccountStatusActive, got.Status)

	require.Len(t, notifier.events, 1, "duplicates must not notify")
	assert.True(t, notifier.events[0].Activated)
	assert.Equal(t, "100", notifier.events[0].ExternalId)
}

func TestApplyDeposit_RejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	r := NewReconciler(ledger, sliceSource(nil), nil, ledgerConfig)
	account := newAccount(t, ledger, "100")

	assert.False(t, r.ApplyDeposit(ctx, account.Id, decimal.Zero, "tx1"))
	assert.False(t, r.ApplyDeposit(ctx, account.Id, decimal.RequireFromString("-1"), "tx2"))
	assert.False(t, r.ApplyDeposit(ctx, "missing", decimal.RequireFromString("1"), "tx3"))

	count, err := ledger.CountEntries(ctx, account.Id)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCredit_ReportsSnapshot(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	r := NewReconciler(ledger, sliceSource(nil), nil, ledgerConfig)
	account := newAccount(t, ledger, "100")

	first := r.Credit(ctx, models.Deposit{AccountId: account.Id, Amount: decimal.RequireFromString("0.2"), ExternalRef: "a"})
	require.True(t, first.Success)
	assert.False(t, first.Activated)

	second := r.Credit(ctx, models.Deposit{AccountId: account.Id, Amount: decimal.RequireFromString("0.3"), ExternalRef: "b"})
	require.True(t, second.Success)
	assert.True(t, second.Activated)
	assert.True(t, second.BalanceBefore.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, second.BalanceAfter.Equal(decimal.RequireFromString("0.5")))
}

func TestCredit_NotifierFailureDoesNotFailCredit(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	r := NewReconciler(ledger, sliceSource(nil), &recordingNotifier{err: errors.New("kafka down")}, ledgerConfig)
	account := newAccount(t, ledger, "100")

	result := r.Credit(ctx, models.Deposit{AccountId: account.Id, Amount: decimal.RequireFromString("1"), ExternalRef: "a"})
	assert.True(t, result.Success)
	assert.Empty(t, result.Error)
}

func TestRunScanCycle_CountsOnlyNewCredits(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	account := newAccount(t, ledger, "100")

	deposits := sliceSource{
		{AccountId: account.Id, Amount: decimal.RequireFromString("1"), ExternalRef: "a"},
		{AccountId: account.Id, Amount: decimal.RequireFromString("1"), ExternalRef: "a"},
		{AccountId: "missing", Amount: decimal.RequireFromString("1"), ExternalRef: "b"},
		{AccountId: account.Id, Amount: decimal.RequireFromString("2"), ExternalRef: "c"},
	}
	r := NewReconciler(ledger, deposits, nil, ledgerConfig)

	assert.Equal(t, 2, r.RunScanCycle(ctx))
	assert.Equal(t, 0, r.RunScanCycle(ctx))

	got, err := ledger.GetAccountById(ctx, account.Id)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("3")))
	require.NoError(t, ledger.ReconcileAccount(ctx, account.Id))
}

func TestRunScanCycle_IgnoresUnlinkedSender(t *testing.T) {
	ctx := context.Background()
	ledger := newTestStore(t)
	account := newAccount(t, ledger, "100")
	_, err := ledger.LinkSender(ctx, account.Id, "alice-wallet")
	require.NoError(t, err)

	chain := &fakeChain{
		signatures: []models.SignatureInfo{{Signature: "sig-linked"}, {Signature: "sig-unlinked"}},
		transfers: map[string]*models.Transfer{
			"sig-linked":   {Signature: "sig-linked", Sender: "alice-wallet", Amount: decimal.RequireFromString("1.5")},
			"sig-unlinked": {Signature: "sig-unlinked", Sender: "stranger", Amount: decimal.RequireFromString("4")},
		},
	}
	scan := scanner.NewScanner(chain, ledger, "Deposit", models.ScannerConfig{SignatureLimit: 100, Lookback: time.Hour})
	r := NewReconciler(ledger, scan, nil, ledgerConfig)

	assert.Equal(t, 1, r.RunScanCycle(ctx))
	assert.Equal(t, 0, r.RunScanCycle(ctx), "already applied deposits are skipped")

	history, err := ledger.GetEntryHistory(ctx, account.Id, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "sig-linked", history[0].ExternalRef)
	assert.Equal(t, "alice-wallet", history[0].SenderAddress)

	exists, err := ledger.HasEntry(ctx, "sig-unlinked")
	require.NoError(t, err)
	assert.False(t, exists)
}
