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
	"fmt"
	"log"
	"strings"

	"sol-deposit-ledger/internal/chain"
	"sol-deposit-ledger/internal/database"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/notify"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export or docker
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Chain     *chain.Client
	Notifier  notify.Notifier

	kafka *notify.KafkaNotifier
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the ledger database, the Solana RPC client and
// the deposit notifier. Kafka publishing is enabled only when brokers are
// configured.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Connecting to Solana RPC", zap.String("url", cfg.Chain.RpcUrl))
	chainClient, err := chain.NewClient(cfg.Chain)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	services := &Services{
		DbService: dbService,
		Chain:     chainClient,
		Notifier:  notify.LogNotifier{},
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.Kafka)
		if err != nil {
			dbService.Close()
			return nil, fmt.Errorf("failed to create kafka notifier: %w", err)
		}
		services.kafka = kafkaNotifier
		services.Notifier = notify.Multi{notify.LogNotifier{}, kafkaNotifier}
		zap.L().Info("Publishing deposit events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	return services, nil
}

// InitializeDatabaseOnly initializes just the ledger database without RPC access
// Useful for operator tools like linking senders or querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.kafka != nil {
		if err := cs.kafka.Close(); err != nil {
			zap.L().Warn("Failed to close kafka writer", zap.Error(err))
		}
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
