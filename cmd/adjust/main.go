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

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"sol-deposit-ledger/internal/adjust"
	"sol-deposit-ledger/internal/common"
	"sol-deposit-ledger/internal/config"
	"sol-deposit-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	account := flag.String("account", "", "Account id, external id or handle (required)")
	amountFlag := flag.String("amount", "", "Signed SOL amount, e.g. 2.5 or -0.75 (required)")
	reason := flag.String("reason", "", "Reason recorded on the ledger entry")
	requestId := flag.String("request-id", "", "Idempotency key; reruns with the same key are no-ops")
	flag.Parse()

	if *account == "" || *amountFlag == "" {
		flag.Usage()
		return
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		logger.Fatal("Invalid amount", zap.String("amount", *amountFlag), zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	adjuster, err := adjust.NewAdjuster(dbService, cfg.Adjust)
	if err != nil {
		logger.Fatal("Failed to start adjustment service", zap.Error(err))
	}

	result := adjuster.Submit(ctx, models.AdjustmentRequest{
		Identifier: *account,
		Amount:     amount,
		Reason:     *reason,
		RequestId:  *requestId,
	})

	// A processing result still has a worker writing to the database.
	if err := adjuster.Release(cfg.Adjust.WorkerTimeout + time.Second); err != nil {
		logger.Warn("Adjustment worker did not finish before exit", zap.Error(err))
	}

	common.PrintHeader("BALANCE ADJUSTMENT", common.DefaultWidth)
	fmt.Printf("Outcome:  %s\n", result.Outcome)
	fmt.Printf("Account:  %s\n", result.AccountId)
	fmt.Printf("Amount:   %s\n", common.FormatSOL(result.Amount))
	if result.Outcome == models.AdjustmentCompleted {
		fmt.Printf("Balance:  %s -> %s\n", common.FormatSOL(result.BalanceBefore), common.FormatSOL(result.BalanceAfter))
	}
	common.PrintFooter(result.Message, common.DefaultWidth)

	if !result.Success() {
		logger.Fatal("Adjustment failed", zap.String("message", result.Message))
	}
}
