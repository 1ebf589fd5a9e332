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

package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcReply is what the fake node answers for one call. A non-200 status is
// sent as a plain text body.
type rpcReply struct {
	status int
	result string
}

type fakeNode struct {
	mu    sync.Mutex
	calls map[string]int
	reply func(method, target string) rpcReply
}

func newFakeNode(t *testing.T, reply func(method, target string) rpcReply) (*fakeNode, *Client) {
	t.Helper()
	node := &fakeNode{calls: make(map[string]int), reply: reply}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	client, err := NewClient(models.ChainConfig{
		RpcUrl:            srv.URL,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		MaxRetries:        2,
	})
	require.NoError(t, err)
	return node, client
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var target string
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params[0], &target)
	}

	n.mu.Lock()
	n.calls[req.Method]++
	n.mu.Unlock()

	reply := n.reply(req.Method, target)
	if reply.status != 0 && reply.status != http.StatusOK {
		http.Error(w, "node unavailable", reply.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, reply.result)
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// encodeTransaction returns a base64 wire transaction carrying only the
// given static account keys.
func encodeTransaction(t *testing.T, keys ...solana.PublicKey) string {
	t.Helper()
	tx := solana.Transaction{
		Signatures: []solana.Signature{{1}},
		Message: solana.Message{
			AccountKeys: keys,
			Header: solana.MessageHeader{
				NumRequiredSignatures:       1,
				NumReadonlyUnsignedAccounts: 1,
			},
		},
	}
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestInboundTransfer_RecipientFromLookupTable(t *testing.T) {
	sender := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()
	lookupProgram := solana.NewWallet().PublicKey()
	signature := solana.Signature{9, 9, 9}

	wire := encodeTransaction(t, sender, solana.SystemProgramID)
	node, client := newFakeNode(t, func(method, target string) rpcReply {
		if method != "getTransaction" || target != signature.String() {
			return rpcReply{result: "null"}
		}
		return rpcReply{result: fmt.Sprintf(`{
			"slot": 42,
			"blockTime": 1700000000,
			"version": "legacy",
			"transaction": [%q, "base64"],
			"meta": {
				"err": null,
				"fee": 5000,
				"preBalances": [5000000000, 1, 0, 1],
				"postBalances": [2999995000, 1, 2000000000, 1],
				"loadedAddresses": {"writable": [%q], "readonly": [%q]}
			}
		}`, wire, recipient.String(), lookupProgram.String())}
	})

	transfer, err := client.InboundTransfer(context.Background(), signature.String(), recipient.String())
	require.NoError(t, err)
	require.NotNil(t, transfer)
	assert.Equal(t, sender.String(), transfer.Sender)
	assert.Equal(t, recipient.String(), transfer.Recipient)
	assert.Equal(t, uint64(2_000_000_000), transfer.Lamports)
	assert.True(t, transfer.Amount.Equal(decimal.RequireFromString("2")))
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), transfer.BlockTime.UTC())
	assert.Equal(t, 1, node.count("getTransaction"))
}

func TestInboundTransfer_FailedTransactionIsIgnored(t *testing.T) {
	sender := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	wire := encodeTransaction(t, sender, recipient)
	_, client := newFakeNode(t, func(string, string) rpcReply {
		return rpcReply{result: fmt.Sprintf(`{
			"slot": 7,
			"transaction": [%q, "base64"],
			"meta": {
				"err": {"InstructionError": [0, {"Custom": 1}]},
				"preBalances": [5000000000, 0],
				"postBalances": [3000000000, 2000000000]
			}
		}`, wire)}
	})

	transfer, err := client.InboundTransfer(context.Background(), solana.Signature{1}.String(), recipient.String())
	require.NoError(t, err)
	assert.Nil(t, transfer)
}

func TestInboundTransfer_UnknownTransaction(t *testing.T) {
	node, client := newFakeNode(t, func(string, string) rpcReply {
		return rpcReply{result: "null"}
	})

	transfer, err := client.InboundTransfer(context.Background(), solana.Signature{2}.String(), solana.NewWallet().PublicKey().String())
	require.NoError(t, err)
	assert.Nil(t, transfer)
	assert.Equal(t, 1, node.count("getTransaction"), "not found should not be retried")
}

func TestInboundTransfer_UndecodableTransactionIsNotUpstream(t *testing.T) {
	_, client := newFakeNode(t, func(string, string) rpcReply {
		return rpcReply{result: `{"slot": 7, "transaction": ["AQID", "base64"], "meta": {"err": null}}`}
	})

	_, err := client.InboundTransfer(context.Background(), solana.Signature{3}.String(), solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrUpstreamUnavailable)

	_, err = client.InboundTransfer(context.Background(), "not-a-signature", solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrUpstreamUnavailable)
}

func TestClient_ServerErrorsWrapUpstreamUnavailable(t *testing.T) {
	node, client := newFakeNode(t, func(string, string) rpcReply {
		return rpcReply{status: http.StatusInternalServerError}
	})

	_, err := client.InboundTransfer(context.Background(), solana.Signature{4}.String(), solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "getTransaction")
	assert.Equal(t, 2, node.count("getTransaction"))

	_, err = client.Balance(context.Background(), solana.NewWallet().PublicKey().String())
	assert.ErrorIs(t, err, store.ErrUpstreamUnavailable)
}

func TestRecentSignaturesAndBalance(t *testing.T) {
	address := solana.NewWallet().PublicKey()
	ok, failed := solana.Signature{5}, solana.Signature{6}

	_, client := newFakeNode(t, func(method, target string) rpcReply {
		if target != address.String() {
			return rpcReply{status: http.StatusBadRequest}
		}
		switch method {
		case "getSignaturesForAddress":
			return rpcReply{result: fmt.Sprintf(`[
				{"signature": %q, "slot": 11, "err": null, "memo": null, "blockTime": 1700000100, "confirmationStatus": "confirmed"},
				{"signature": %q, "slot": 10, "err": {"InstructionError": [0, "InvalidArgument"]}, "memo": null, "blockTime": null, "confirmationStatus": "finalized"}
			]`, ok.String(), failed.String())}
		case "getBalance":
			return rpcReply{result: `{"context": {"slot": 11}, "value": 1500000000}`}
		}
		return rpcReply{result: "null"}
	})

	signatures, err := client.RecentSignatures(context.Background(), address.String(), 10)
	require.NoError(t, err)
	require.Len(t, signatures, 2)
	assert.Equal(t, ok.String(), signatures[0].Signature)
	assert.Equal(t, uint64(11), signatures[0].Slot)
	assert.False(t, signatures[0].Failed)
	assert.Equal(t, int64(1_700_000_100), signatures[0].BlockTime.Unix())
	assert.True(t, signatures[1].Failed)
	assert.True(t, signatures[1].BlockTime.IsZero())

	balance, err := client.Balance(context.Background(), address.String())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1.5")))
}
