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

	"sol-deposit-ledger/internal/chain"
	"sol-deposit-ledger/internal/common"
	"sol-deposit-ledger/internal/config"
	"sol-deposit-ledger/internal/database"

	"go.uber.org/zap"
)

func printLinks(ctx context.Context, dbService *database.Service, identifier string, logger *zap.Logger) {
	accounts, err := common.SelectAccounts(ctx, dbService, identifier, logger)
	if err != nil {
		logger.Fatal("Failed to select accounts", zap.Error(err))
	}

	common.PrintHeader("SENDER LINKS", common.WideWidth)
	for _, account := range accounts {
		links, err := dbService.GetAccountLinks(ctx, account.Id)
		if err != nil {
			logger.Error("Failed to get links", zap.String("account_id", account.Id), zap.Error(err))
			continue
		}
		if len(links) == 0 {
			continue
		}

		fmt.Printf("\n┌─ Account: %s (%s)\n", common.DisplayName(account), account.Id)
		for i, link := range links {
			lastUsed := "never"
			if !link.LastUsedAt.Equal(link.CreatedAt) {
				lastUsed = link.LastUsedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s %s (last used: %s)\n", common.BoxPrefix(i == len(links)-1), link.SenderAddress, lastUsed)
		}
	}

	total, err := dbService.CountLinks(ctx)
	if err != nil {
		logger.Fatal("Failed to count links", zap.Error(err))
	}
	common.PrintFooter(fmt.Sprintf("TOTAL: %d sender links", total), common.WideWidth)
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	account := flag.String("account", "", "Account id, external id or handle")
	sender := flag.String("sender", "", "Sender wallet to link to --account")
	file := flag.String("file", "", "YAML file of account/sender links to import")
	list := flag.Bool("list", false, "List existing links (optionally filtered by --account)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	switch {
	case *list:
		printLinks(ctx, dbService, *account, logger)

	case *file != "":
		links, err := common.LoadLinkConfig(*file)
		if err != nil {
			logger.Fatal("Failed to load links file", zap.Error(err))
		}
		summary, err := common.ImportLinks(ctx, dbService, links)
		if err != nil {
			logger.Fatal("Failed to import links", zap.Error(err))
		}
		logger.Info("Links imported",
			zap.String("file", *file),
			zap.Int("linked", summary.Linked),
			zap.Int("conflicts", summary.Conflicts),
			zap.Int("failed", summary.Failed))

	case *account != "" && *sender != "":
		if err := chain.ValidateAddress(*sender); err != nil {
			logger.Fatal("Invalid sender address", zap.Error(err))
		}
		summary, err := common.ImportLinks(ctx, dbService, []common.LinkConfig{{Account: *account, Senders: []string{*sender}}})
		if err != nil {
			logger.Fatal("Failed to link sender", zap.Error(err))
		}
		if summary.Linked != 1 {
			logger.Fatal("Sender was not linked",
				zap.String("account", *account),
				zap.String("sender", *sender))
		}
		logger.Info("Sender linked", zap.String("account", *account), zap.String("sender", *sender))

	default:
		flag.Usage()
	}
}
