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

package scanner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const depositAddress = "Deposit"

type fakeChain struct {
	signatures []models.SignatureInfo
	transfers  map[string]*models.Transfer
	listErr    error
	fetchErr   map[string]error
	fetched    []string
}

func (f *fakeChain) RecentSignatures(_ context.Context, _ string, limit int) ([]models.SignatureInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.signatures) > limit {
		return f.signatures[:limit], nil
	}
	return f.signatures, nil
}

func (f *fakeChain) InboundTransfer(_ context.Context, signature, _ string) (*models.Transfer, error) {
	f.fetched = append(f.fetched, signature)
	if err := f.fetchErr[signature]; err != nil {
		return nil, err
	}
	return f.transfers[signature], nil
}

type fakeLedger struct {
	entries map[string]bool
	links   map[string]string // sender -> account
}

func (f *fakeLedger) HasEntry(_ context.Context, ref string) (bool, error) {
	return f.entries[ref], nil
}

func (f *fakeLedger) FindLinkBySender(_ context.Context, sender string) (*models.SenderLink, error) {
	accountId, ok := f.links[sender]
	if !ok {
		return nil, nil
	}
	return &models.SenderLink{AccountId: accountId, SenderAddress: sender}, nil
}

func transfer(sig, sender, amount string) *models.Transfer {
	return &models.Transfer{
		Signature: sig,
		Sender:    sender,
		Recipient: depositAddress,
		Amount:    decimal.RequireFromString(amount),
	}
}

func newTestScanner(chain *fakeChain, ledger *fakeLedger, now time.Time) *Scanner {
	s := NewScanner(chain, ledger, depositAddress, models.ScannerConfig{SignatureLimit: 100, Lookback: time.Hour})
	s.now = func() time.Time { return now }
	return s
}

func TestScan_YieldsOnlyLinkedSenders(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		signatures: []models.SignatureInfo{
			{Signature: "linked", BlockTime: now.Add(-time.Minute)},
			{Signature: "unlinked", BlockTime: now.Add(-2 * time.Minute)},
		},
		transfers: map[string]*models.Transfer{
			"linked":   transfer("linked", "alice-wallet", "1.5"),
			"unlinked": transfer("unlinked", "stranger", "9"),
		},
	}
	ledger := &fakeLedger{links: map[string]string{"alice-wallet": "acct-alice"}}

	deposits := slices.Collect(newTestScanner(chain, ledger, now).Scan(context.Background()))

	require.Len(t, deposits, 1)
	assert.Equal(t, "acct-alice", deposits[0].AccountId)
	assert.Equal(t, "linked", deposits[0].ExternalRef)
	assert.Equal(t, "alice-wallet", deposits[0].Sender)
	assert.True(t, deposits[0].Amount.Equal(decimal.RequireFromString("1.5")))
}

func TestScan_SkipsFailedOldAndApplied(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		signatures: []models.SignatureInfo{
			{Signature: "failed", BlockTime: now, Failed: true},
			{Signature: "old", BlockTime: now.Add(-2 * time.Hour)},
			{Signature: "applied", BlockTime: now},
			{Signature: "fresh", BlockTime: now},
		},
		transfers: map[string]*models.Transfer{
			"old":     transfer("old", "alice-wallet", "1"),
			"applied": transfer("applied", "alice-wallet", "1"),
			"fresh":   transfer("fresh", "alice-wallet", "2"),
		},
	}
	ledger := &fakeLedger{
		entries: map[string]bool{"applied": true},
		links:   map[string]string{"alice-wallet": "acct-alice"},
	}

	deposits := slices.Collect(newTestScanner(chain, ledger, now).Scan(context.Background()))

	require.Len(t, deposits, 1)
	assert.Equal(t, "fresh", deposits[0].ExternalRef)
	assert.Equal(t, []string{"fresh"}, chain.fetched)
}

func TestScan_CachesNonDeposits(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		signatures: []models.SignatureInfo{{Signature: "outbound", BlockTime: now}},
		transfers:  map[string]*models.Transfer{},
	}
	s := newTestScanner(chain, &fakeLedger{}, now)

	assert.Empty(t, slices.Collect(s.Scan(context.Background())))
	assert.Empty(t, slices.Collect(s.Scan(context.Background())))
	assert.Equal(t, []string{"outbound"}, chain.fetched, "non-deposit should be fetched once")
	assert.Equal(t, 1, s.SeenCount())
}

func TestScan_UnlinkedSenderCreditedAfterLinking(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		signatures: []models.SignatureInfo{{Signature: "sig", BlockTime: now}},
		transfers:  map[string]*models.Transfer{"sig": transfer("sig", "bob-wallet", "3")},
	}
	ledger := &fakeLedger{links: map[string]string{}}
	s := newTestScanner(chain, ledger, now)

	assert.Empty(t, slices.Collect(s.Scan(context.Background())))

	ledger.links["bob-wallet"] = "acct-bob"
	deposits := slices.Collect(s.Scan(context.Background()))
	require.Len(t, deposits, 1)
	assert.Equal(t, "acct-bob", deposits[0].AccountId)
}

func TestScan_UpstreamFailureEndsSequence(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{listErr: errors.New("rpc down")}
	assert.Empty(t, slices.Collect(newTestScanner(chain, &fakeLedger{}, now).Scan(context.Background())))

	chain = &fakeChain{
		signatures: []models.SignatureInfo{
			{Signature: "broken", BlockTime: now},
			{Signature: "later", BlockTime: now},
		},
		transfers: map[string]*models.Transfer{"later": transfer("later", "alice-wallet", "1")},
		fetchErr:  map[string]error{"broken": fmt.Errorf("%w: getTransaction: timeout", store.ErrUpstreamUnavailable)},
	}
	ledger := &fakeLedger{links: map[string]string{"alice-wallet": "acct-alice"}}
	assert.Empty(t, slices.Collect(newTestScanner(chain, ledger, now).Scan(context.Background())))
	assert.Equal(t, []string{"broken"}, chain.fetched)
}

func TestScan_UndecodableTransactionDoesNotBlockOlderDeposits(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		signatures: []models.SignatureInfo{
			{Signature: "garbled", BlockTime: now},
			{Signature: "older", BlockTime: now.Add(-time.Minute)},
		},
		transfers: map[string]*models.Transfer{"older": transfer("older", "alice-wallet", "2")},
		fetchErr:  map[string]error{"garbled": errors.New("failed to decode transaction: unexpected EOF")},
	}
	ledger := &fakeLedger{links: map[string]string{"alice-wallet": "acct-alice"}}
	s := newTestScanner(chain, ledger, now)

	deposits := slices.Collect(s.Scan(context.Background()))
	require.Len(t, deposits, 1)
	assert.Equal(t, "older", deposits[0].ExternalRef)
	assert.True(t, s.isSeen("garbled"))

	ledger.entries = map[string]bool{"older": true}
	assert.Empty(t, slices.Collect(s.Scan(context.Background())))
	assert.Equal(t, []string{"garbled", "older"}, chain.fetched, "undecodable transaction should be fetched once")
}

func TestScan_StopsWhenConsumerStops(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		signatures: []models.SignatureInfo{
			{Signature: "a", BlockTime: now},
			{Signature: "b", BlockTime: now},
		},
		transfers: map[string]*models.Transfer{
			"a": transfer("a", "alice-wallet", "1"),
			"b": transfer("b", "alice-wallet", "1"),
		},
	}
	ledger := &fakeLedger{links: map[string]string{"alice-wallet": "acct-alice"}}

	for range newTestScanner(chain, ledger, now).Scan(context.Background()) {
		break
	}
	assert.Equal(t, []string{"a"}, chain.fetched)
}

func TestPrune(t *testing.T) {
	now := time.Now()
	s := newTestScanner(&fakeChain{}, &fakeLedger{}, now)
	s.seen["old"] = now.Add(-2 * time.Hour)
	s.seen["new"] = now.Add(-time.Minute)

	assert.Equal(t, 1, s.Prune(time.Hour))
	assert.Equal(t, 1, s.SeenCount())
	assert.True(t, s.isSeen("new"))
}
