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

// SignatureInfo is one entry of getSignaturesForAddress
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime time.Time // zero when the node did not report it
	Failed    bool
}

// Transfer is a native SOL movement into a watched address
type Transfer struct {
	Signature string
	Sender    string
	Recipient string
	Lamports  uint64
	Amount    decimal.Decimal
	BlockTime time.Time
}

// Deposit is a scanned transfer matched to an account
type Deposit struct {
	AccountId   string
	Amount      decimal.Decimal
	ExternalRef string
	Sender      string
	BlockTime   time.Time
}
