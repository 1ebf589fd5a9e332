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

package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sol-deposit-ledger/internal/database"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	senderA = "So11111111111111111111111111111111111111112"
	senderB = "11111111111111111111111111111111"
)

func writeLinksFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "links.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadLinkConfig(t *testing.T) {
	path := writeLinksFile(t, `
links:
  - account: "@alice"
    senders:
      - `+senderA+`
  - account: "42"
    senders: [`+senderB+`]
`)

	links, err := LoadLinkConfig(path)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "@alice", links[0].Account)
	assert.Equal(t, []string{senderA}, links[0].Senders)
	assert.Equal(t, "42", links[1].Account)
}

func TestLoadLinkConfigRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing account", "links:\n  - senders: [" + senderA + "]\n"},
		{"no senders", "links:\n  - account: bob\n"},
		{"invalid address", "links:\n  - account: bob\n    senders: [not-a-key]\n"},
		{"malformed yaml", "links: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadLinkConfig(writeLinksFile(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadLinkConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestImportLinks(t *testing.T) {
	ctx := context.Background()
	ledger, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(ledger.Close)

	alice, err := ledger.CreateAccount(ctx, store.CreateAccountParams{ExternalId: "1", Handle: "alice"})
	require.NoError(t, err)
	bob, err := ledger.CreateAccount(ctx, store.CreateAccountParams{ExternalId: "2", Handle: "bob"})
	require.NoError(t, err)

	summary, err := ImportLinks(ctx, ledger, []LinkConfig{
		{Account: "@alice", Senders: []string{senderA}},
		{Account: "2", Senders: []string{senderA, senderB}},
		{Account: "nobody", Senders: []string{senderB}},
	})
	require.NoError(t, err)
	assert.Equal(t, ImportSummary{Linked: 2, Conflicts: 1, Failed: 1}, summary)

	link, err := ledger.FindLinkBySender(ctx, senderA)
	require.NoError(t, err)
	assert.Equal(t, alice.Id, link.AccountId)

	link, err = ledger.FindLinkBySender(ctx, senderB)
	require.NoError(t, err)
	assert.Equal(t, bob.Id, link.AccountId)
}

func TestSelectAccounts(t *testing.T) {
	ctx := context.Background()
	ledger, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 2,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(ledger.Close)

	_, err = ledger.CreateAccount(ctx, store.CreateAccountParams{ExternalId: "1", Handle: "alice"})
	require.NoError(t, err)
	_, err = ledger.CreateAccount(ctx, store.CreateAccountParams{ExternalId: "2"})
	require.NoError(t, err)

	all, err := SelectAccounts(ctx, ledger, "", zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := SelectAccounts(ctx, ledger, "alice", zap.NewNop())
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "@alice", DisplayName(one[0]))

	_, err = SelectAccounts(ctx, ledger, "carol", zap.NewNop())
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestFormatSOL(t *testing.T) {
	assert.Equal(t, "1.500000000 SOL", FormatSOL(decimal.RequireFromString("1.5")))
}
