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

package api

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApplyDeposit credits a deposit exactly once. Re-applying a known ref
// reports success without changing the balance.
func (s *LedgerService) ApplyDeposit(ctx context.Context, accountId string, amount decimal.Decimal, externalRef string) bool {
	if s.reconciler == nil {
		zap.L().Error("Deposit reconciler not configured")
		return false
	}
	return s.reconciler.ApplyDeposit(ctx, accountId, amount, externalRef)
}

// RunScanCycle scans the chain once and returns the number of new credits.
func (s *LedgerService) RunScanCycle(ctx context.Context) int {
	if s.reconciler == nil {
		zap.L().Error("Deposit reconciler not configured")
		return 0
	}
	return s.reconciler.RunScanCycle(ctx)
}
