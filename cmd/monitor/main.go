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
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"sol-deposit-ledger/internal/adjust"
	"sol-deposit-ledger/internal/api"
	"sol-deposit-ledger/internal/chain"
	"sol-deposit-ledger/internal/common"
	"sol-deposit-ledger/internal/config"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/reconciler"
	"sol-deposit-ledger/internal/scanner"
	"sol-deposit-ledger/internal/scheduler"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if err := config.Validate(cfg); err != nil {
		zap.L().Fatal("Invalid configuration", zap.Error(err))
	}
	if err := validateDepositAddress(cfg.Chain.DepositAddress); err != nil {
		zap.L().Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.Server.AdminPassword == "" {
		zap.L().Warn("ADMIN_PASSWORD is not set, admin endpoints are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting SOL deposit monitor",
		zap.String("deposit_address", cfg.Chain.DepositAddress),
		zap.Duration("scan_interval", cfg.Scheduler.ScanInterval))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if balance, err := services.Chain.Balance(ctx, cfg.Chain.DepositAddress); err != nil {
		zap.L().Warn("Unable to read deposit address balance", zap.Error(err))
	} else {
		zap.L().Info("Deposit address balance", zap.String("balance", common.FormatSOL(balance)))
	}

	depositScanner := scanner.NewScanner(services.Chain, services.DbService, cfg.Chain.DepositAddress, cfg.Scanner)
	rec := reconciler.NewReconciler(services.DbService, depositScanner, services.Notifier, cfg.Ledger)

	adjuster, err := adjust.NewAdjuster(services.DbService, cfg.Adjust,
		adjust.WithCreditHook(func(_ context.Context, result models.AdjustmentResult) {
			zap.L().Info("Admin credit completed",
				zap.String("account_id", result.AccountId),
				zap.String("amount", result.Amount.String()),
				zap.String("balance_after", result.BalanceAfter.String()))
		}))
	if err != nil {
		zap.L().Fatal("Failed to start adjustment service", zap.Error(err))
	}

	ledger := api.NewLedgerService(services.DbService, rec, adjuster)

	locker, closeLocker := newLocker(ctx, cfg.Redis)
	defer closeLocker()

	supervisor := scheduler.NewSupervisor(ledger, ledger, locker, cfg.Scheduler)
	if err := supervisor.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start scheduler", zap.Error(err))
	}

	router := api.NewRouter(ledger, supervisor, api.RouterConfig{
		AdminUser:     cfg.Server.AdminUser,
		AdminPassword: cfg.Server.AdminPassword,
		RetentionDays: cfg.Scheduler.RetentionDays,
	})
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("Admin HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("Shutdown signal received, stopping monitor...")

		if err := supervisor.Stop(); err != nil {
			zap.L().Warn("Failed to stop scheduler", zap.Error(err))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("HTTP server shutdown incomplete", zap.Error(err))
		}

		if err := adjuster.Release(cfg.Server.ShutdownTimeout); err != nil {
			zap.L().Warn("Adjustment workers still running at shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("Monitor stopped with error", zap.Error(err))
		return
	}
	zap.L().Info("Monitor stopped gracefully")
}

func validateDepositAddress(address string) error {
	if address == "" {
		return errors.New("DEPOSIT_ADDRESS is required")
	}
	if err := chain.ValidateAddress(address); err != nil {
		return fmt.Errorf("DEPOSIT_ADDRESS: %w", err)
	}
	return nil
}

// newLocker returns a Redis-backed locker when REDIS_ADDR is configured so
// that several monitor replicas never scan at the same time.
func newLocker(ctx context.Context, cfg models.RedisConfig) (scheduler.Locker, func()) {
	if cfg.Addr == "" {
		return scheduler.NewLocalLocker(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zap.L().Fatal("Failed to connect to redis", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	zap.L().Info("Using redis job lock", zap.String("addr", cfg.Addr))

	return scheduler.NewRedisLocker(client), func() {
		if err := client.Close(); err != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(err))
		}
	}
}
