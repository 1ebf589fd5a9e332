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
	"fmt"

	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"
)

// AdjustBalance applies an operator credit (positive) or debit (negative).
func (s *LedgerService) AdjustBalance(ctx context.Context, identifier, amountText, reason string) (bool, string) {
	if s.adjuster == nil {
		return false, "adjustment service not configured"
	}
	return s.adjuster.AdjustBalance(ctx, identifier, amountText, reason)
}

// SubmitAdjustment is AdjustBalance with a typed request and result.
func (s *LedgerService) SubmitAdjustment(ctx context.Context, req models.AdjustmentRequest) *models.AdjustmentResult {
	if s.adjuster == nil {
		return &models.AdjustmentResult{
			Outcome: models.AdjustmentFailed,
			Amount:  req.Amount,
			Message: "adjustment service not configured",
		}
	}
	if req.Identifier == "" {
		return &models.AdjustmentResult{
			Outcome: models.AdjustmentFailed,
			Amount:  req.Amount,
			Message: fmt.Sprintf("identifier is required: %v", store.ErrAccountNotFound),
		}
	}
	return s.adjuster.Submit(ctx, req)
}
