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

	"sol-deposit-ledger/internal/api"
	"sol-deposit-ledger/internal/common"
	"sol-deposit-ledger/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	days := flag.Int("days", cfg.Scheduler.RetentionDays, "Delete ledger entries older than this many days")
	reconcile := flag.Bool("reconcile", true, "Reconcile every account after the purge")
	flag.Parse()

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	ledger := api.NewLedgerService(dbService, nil, nil)
	report, err := ledger.RunRetentionCleanup(ctx, *days)
	if err != nil {
		logger.Fatal("Retention cleanup failed", zap.Error(err))
	}

	common.PrintHeader("RETENTION CLEANUP", common.DefaultWidth)
	fmt.Printf("Cutoff:           %s\n", report.Cutoff.Format("2006-01-02 15:04:05"))
	fmt.Printf("Ledger entries:   %d\n", report.LedgerEntries)
	fmt.Printf("Journal entries:  %d\n", report.JournalEntries)
	fmt.Printf("Accounts touched: %d\n", report.AccountsTouched)

	mismatches := 0
	if *reconcile {
		accounts, err := dbService.ListAccounts(ctx)
		if err != nil {
			logger.Fatal("Failed to list accounts", zap.Error(err))
		}
		for _, account := range accounts {
			if err := dbService.ReconcileAccount(ctx, account.Id); err != nil {
				mismatches++
				logger.Error("Account does not reconcile after cleanup",
					zap.String("account_id", account.Id),
					zap.Error(err))
			}
		}
	}

	common.PrintFooter(fmt.Sprintf("Cleanup complete (%d reconcile mismatches)", mismatches), common.DefaultWidth)
}
