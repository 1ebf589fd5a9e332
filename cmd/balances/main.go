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

	"sol-deposit-ledger/internal/common"
	"sol-deposit-ledger/internal/config"
	"sol-deposit-ledger/internal/database"
	"sol-deposit-ledger/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts  int
	fundedAccounts int
	activeAccounts int
	mismatches     int
}

func formatRef(ref string) string {
	if ref == "" {
		return "none"
	}
	if len(ref) > 12 {
		return ref[:12] + "..."
	}
	return ref
}

func printAccountHeader(account models.Account, links int) {
	fmt.Printf("\n┌─ Account: %s (%s)\n", common.DisplayName(account), account.Status)
	fmt.Printf("│  ID: %s  External: %s  Links: %d\n", account.Id, account.ExternalId, links)
	fmt.Printf("│  Balance:  %s (v%d)\n", common.FormatSOL(account.Balance), account.Version)
	fmt.Printf("│  Baseline: %s  Archived: %s\n", common.FormatSOL(account.Baseline), common.FormatSOL(account.ArchivedTotal))
}

func printEntries(entries []models.LedgerEntry) {
	for i, entry := range entries {
		fmt.Printf("%s %-16s %18s  ref: %s  at: %s\n",
			common.BoxPrefix(i == len(entries)-1),
			entry.Kind,
			entry.Amount.StringFixed(9),
			formatRef(entry.ExternalRef),
			entry.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func processAccount(ctx context.Context, account models.Account, dbService *database.Service, history int, reconcile bool, stats *balanceStats, logger *zap.Logger) error {
	links, err := dbService.GetAccountLinks(ctx, account.Id)
	if err != nil {
		return fmt.Errorf("failed to get links: %w", err)
	}

	printAccountHeader(account, len(links))

	if reconcile {
		if err := dbService.ReconcileAccount(ctx, account.Id); err != nil {
			stats.mismatches++
			fmt.Printf("│  Reconcile: FAILED (%v)\n", err)
			logger.Warn("Account does not reconcile", zap.String("account_id", account.Id), zap.Error(err))
		} else {
			fmt.Println("│  Reconcile: ok")
		}
	}

	if history > 0 {
		entries, err := dbService.GetEntryHistory(ctx, account.Id, history, 0)
		if err != nil {
			return fmt.Errorf("failed to get entry history: %w", err)
		}
		printEntries(entries)
	}

	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	accountFlag := flag.String("account", "", "Filter by account id, external id or handle (optional)")
	historyFlag := flag.Int("history", 0, "Number of recent ledger entries to show per account")
	reconcileFlag := flag.Bool("reconcile", false, "Verify archived total plus entries equals the balance")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	accounts, err := common.SelectAccounts(ctx, dbService, *accountFlag, logger)
	if err != nil {
		logger.Fatal("Failed to select accounts", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, account := range accounts {
		stats.totalAccounts++
		if account.Balance.IsPositive() {
			stats.fundedAccounts++
		}
		if account.Status == models.AccountStatusActive {
			stats.activeAccounts++
		}

		if err := processAccount(ctx, account, dbService, *historyFlag, *reconcileFlag, &stats, logger); err != nil {
			logger.Error("Failed to process account",
				zap.String("account_id", account.Id),
				zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts, %d funded, %d active", stats.totalAccounts, stats.fundedAccounts, stats.activeAccounts)
	if *reconcileFlag {
		summary += fmt.Sprintf(", %d reconcile mismatches", stats.mismatches)
	}
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("funded", stats.fundedAccounts),
		zap.Int("active", stats.activeAccounts),
		zap.Int("mismatches", stats.mismatches))
}
