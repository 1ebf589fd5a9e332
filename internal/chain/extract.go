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
	"time"

	"sol-deposit-ledger/internal/models"
)

// BalanceSnapshot is the per-account lamport state a confirmed transaction
// reports. Accounts, Pre and Post are index-aligned.
type BalanceSnapshot struct {
	Signature string
	Accounts  []string
	Pre       []uint64
	Post      []uint64
	BlockTime time.Time
}

// ExtractTransfer finds the native SOL received by recipient. The sender is
// the first other account whose balance dropped. It returns false when the
// recipient gained nothing or no sender can be identified.
func ExtractTransfer(snapshot BalanceSnapshot, recipient string) (*models.Transfer, bool) {
	n := len(snapshot.Accounts)
	if len(snapshot.Pre) != n || len(snapshot.Post) != n {
		return nil, false
	}

	recipientIdx := -1
	for i, account := range snapshot.Accounts {
		if account == recipient {
			recipientIdx = i
			break
		}
	}
	if recipientIdx < 0 {
		return nil, false
	}

	pre, post := snapshot.Pre[recipientIdx], snapshot.Post[recipientIdx]
	if post <= pre {
		return nil, false
	}
	received := post - pre

	for i, account := range snapshot.Accounts {
		if i == recipientIdx || account == recipient {
			continue
		}
		if snapshot.Post[i] < snapshot.Pre[i] {
			return &models.Transfer{
				Signature: snapshot.Signature,
				Sender:    account,
				Recipient: recipient,
				Lamports:  received,
				Amount:    LamportsToSOL(received),
				BlockTime: snapshot.BlockTime,
			}, true
		}
	}
	return nil, false
}
