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

package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sol-deposit-ledger/internal/chain"
	"sol-deposit-ledger/internal/store"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// LinkConfig binds one or more sender wallets to an account identifier
// (account id, external id or handle).
type LinkConfig struct {
	Account string   `yaml:"account"`
	Senders []string `yaml:"senders"`
}

type LinksConfig struct {
	Links []LinkConfig `yaml:"links"`
}

// ImportSummary counts the outcome of a links import
type ImportSummary struct {
	Linked    int
	Conflicts int
	Failed    int
}

func LoadLinkConfig(linksFile string) ([]LinkConfig, error) {
	var linksPath string
	if filepath.IsAbs(linksFile) {
		linksPath = linksFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		linksPath = filepath.Join(wd, linksFile)
	}

	data, err := os.ReadFile(linksPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", linksFile, err)
	}

	var config LinksConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", linksFile, err)
	}

	for i, link := range config.Links {
		if strings.TrimSpace(link.Account) == "" {
			return nil, fmt.Errorf("link at index %d missing account", i)
		}
		if len(link.Senders) == 0 {
			return nil, fmt.Errorf("link at index %d has no senders", i)
		}
		for _, sender := range link.Senders {
			if err := chain.ValidateAddress(sender); err != nil {
				return nil, fmt.Errorf("link at index %d: %w", i, err)
			}
		}
	}

	return config.Links, nil
}

// ImportLinks registers every sender in links. Senders already linked to a
// different account are counted as conflicts and skipped.
func ImportLinks(ctx context.Context, ledger store.LedgerStore, links []LinkConfig) (ImportSummary, error) {
	var summary ImportSummary

	for _, link := range links {
		account, err := ledger.ResolveAccount(ctx, link.Account)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				zap.L().Warn("Skipping links for unknown account", zap.String("account", link.Account))
				summary.Failed += len(link.Senders)
				continue
			}
			return summary, err
		}

		for _, sender := range link.Senders {
			if _, err := ledger.LinkSender(ctx, account.Id, sender); err != nil {
				if errors.Is(err, store.ErrLinkConflict) {
					zap.L().Warn("Sender already linked to another account",
						zap.String("account_id", account.Id),
						zap.String("sender", sender))
					summary.Conflicts++
					continue
				}
				zap.L().Error("Failed to link sender",
					zap.String("account_id", account.Id),
					zap.String("sender", sender),
					zap.Error(err))
				summary.Failed++
				continue
			}
			summary.Linked++
		}
	}

	return summary, nil
}
