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
	"errors"
	"flag"
	"fmt"
	"regexp"
	"strings"

	"sol-deposit-ledger/internal/chain"
	"sol-deposit-ledger/internal/common"
	"sol-deposit-ledger/internal/config"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"go.uber.org/zap"
)

var handleRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

func validateExternalId(externalId string) error {
	if externalId == "" {
		return fmt.Errorf("external id cannot be empty")
	}
	return nil
}

func validateHandle(handle string) error {
	if handle == "" {
		return nil
	}
	if !handleRegex.MatchString(strings.TrimPrefix(handle, "@")) {
		return fmt.Errorf("invalid handle %q: expected 3-32 letters, digits or underscores", handle)
	}
	return nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	externalId := flag.String("external-id", "", "External identity of the account owner (required)")
	handle := flag.String("handle", "", "Optional human-readable handle")
	awaiting := flag.Bool("awaiting", false, "Create the account directly in awaiting_deposit status")
	sender := flag.String("sender", "", "Optional sender wallet to link to the new account")
	flag.Parse()

	if err := validateExternalId(*externalId); err != nil {
		logger.Fatal("Invalid external id", zap.Error(err))
	}
	if err := validateHandle(*handle); err != nil {
		logger.Fatal("Invalid handle", zap.Error(err))
	}
	if *sender != "" {
		if err := chain.ValidateAddress(*sender); err != nil {
			logger.Fatal("Invalid sender address", zap.Error(err))
		}
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

	status := models.AccountStatusOnboarding
	if *awaiting {
		status = models.AccountStatusAwaitingDeposit
	}

	account, err := dbService.CreateAccount(ctx, store.CreateAccountParams{
		ExternalId: *externalId,
		Handle:     *handle,
		Status:     status,
	})
	if err != nil {
		logger.Fatal("Failed to create account", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT", common.DefaultWidth)
	fmt.Printf("ID:          %s\n", account.Id)
	fmt.Printf("External ID: %s\n", account.ExternalId)
	fmt.Printf("Handle:      %s\n", common.DisplayName(*account))
	fmt.Printf("Status:      %s\n", account.Status)
	fmt.Printf("Balance:     %s\n", common.FormatSOL(account.Balance))

	if *sender != "" {
		link, err := dbService.LinkSender(ctx, account.Id, *sender)
		switch {
		case errors.Is(err, store.ErrLinkConflict):
			logger.Fatal("Sender is already linked to another account", zap.String("sender", *sender))
		case err != nil:
			logger.Fatal("Failed to link sender", zap.Error(err))
		}
		fmt.Printf("Sender:      %s\n", link.SenderAddress)
	}

	common.PrintFooter("Account ready", common.DefaultWidth)
	logger.Info("Account registered",
		zap.String("account_id", account.Id),
		zap.String("external_id", account.ExternalId),
		zap.String("status", string(account.Status)))
}
