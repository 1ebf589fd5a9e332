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

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sol-deposit-ledger/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const defaultRpcUrl = "https://api.mainnet-beta.solana.com"

func Load() (*models.Config, error) {
	var errs []error
	duration := func(key string, defaultValue time.Duration) time.Duration {
		d, err := getEnvDuration(key, defaultValue)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	integer := func(key string, defaultValue int) int {
		n, err := getEnvInt(key, defaultValue)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}
	number := func(key string, defaultValue float64) float64 {
		f, err := getEnvFloat(key, defaultValue)
		if err != nil {
			errs = append(errs, err)
		}
		return f
	}

	minDeposit, err := getEnvDecimal("MIN_DEPOSIT", decimal.RequireFromString("0.5"))
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "ledger.db"),
			MaxOpenConns:    integer("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: duration("DB_CONN_MAX_IDLE_TIME", 30*time.Second),
			PingTimeout:     duration("DB_PING_TIMEOUT", 5*time.Second),
			BusyTimeout:     duration("DB_BUSY_TIMEOUT", 5*time.Second),
		},
		Chain: models.ChainConfig{
			RpcUrl:            getEnvString("SOLANA_RPC_URL", defaultRpcUrl),
			DepositAddress:    getEnvString("DEPOSIT_ADDRESS", ""),
			Timeout:           duration("RPC_TIMEOUT", 15*time.Second),
			RequestsPerSecond: number("RPC_REQUESTS_PER_SECOND", 5),
			MaxRetries:        integer("RPC_MAX_RETRIES", 3),
		},
		Scanner: models.ScannerConfig{
			SignatureLimit: integer("SCAN_SIGNATURE_LIMIT", 100),
			Lookback:       duration("SCAN_LOOKBACK", time.Hour),
		},
		Ledger: models.LedgerConfig{
			MinDeposit:     minDeposit,
			BaselinePolicy: models.BaselinePolicy(strings.ToLower(getEnvString("BASELINE_POLICY", string(models.BaselineFirstDeposit)))),
		},
		Adjust: models.AdjustConfig{
			PoolSize:      integer("ADJUST_POOL_SIZE", 8),
			WaitTimeout:   duration("ADJUST_WAIT_TIMEOUT", 5*time.Second),
			WorkerTimeout: duration("ADJUST_WORKER_TIMEOUT", 30*time.Second),
		},
		Scheduler: models.SchedulerConfig{
			ScanInterval:      duration("SCAN_INTERVAL", 60*time.Second),
			RetentionSchedule: getEnvString("RETENTION_SCHEDULE", "@daily"),
			RetentionDays:     integer("RETENTION_DAYS", 60),
			JobTimeout:        duration("JOB_TIMEOUT", 5*time.Minute),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", "127.0.0.1:8080"),
			ShutdownTimeout: duration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			AdminUser:       getEnvString("ADMIN_USER", "admin"),
			AdminPassword:   getEnvString("ADMIN_PASSWORD", ""),
		},
		Redis: models.RedisConfig{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       integer("REDIS_DB", 0),
		},
		Kafka: models.KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS"),
			Topic:   getEnvString("KAFKA_TOPIC", "deposits.credited"),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot run with. The deposit
// address is only required by the scanner; the monitor checks it with
// chain.ValidateAddress before building one.
func Validate(cfg *models.Config) error {
	var errs []error
	if cfg.Scanner.SignatureLimit <= 0 || cfg.Scanner.SignatureLimit > 1000 {
		errs = append(errs, fmt.Errorf("SCAN_SIGNATURE_LIMIT must be in 1..1000, got %d", cfg.Scanner.SignatureLimit))
	}
	if cfg.Scanner.Lookback <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_LOOKBACK must be positive, got %v", cfg.Scanner.Lookback))
	}
	if cfg.Ledger.MinDeposit.IsNegative() {
		errs = append(errs, fmt.Errorf("MIN_DEPOSIT cannot be negative, got %s", cfg.Ledger.MinDeposit.String()))
	}
	switch cfg.Ledger.BaselinePolicy {
	case models.BaselineFirstDeposit, models.BaselineCumulative:
	default:
		errs = append(errs, fmt.Errorf("BASELINE_POLICY must be %q or %q, got %q",
			models.BaselineFirstDeposit, models.BaselineCumulative, cfg.Ledger.BaselinePolicy))
	}
	if cfg.Adjust.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("ADJUST_POOL_SIZE must be positive, got %d", cfg.Adjust.PoolSize))
	}
	if cfg.Adjust.WaitTimeout <= 0 || cfg.Adjust.WorkerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("adjustment timeouts must be positive"))
	}
	if cfg.Scheduler.ScanInterval <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_INTERVAL must be positive, got %v", cfg.Scheduler.ScanInterval))
	}
	if cfg.Scheduler.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("RETENTION_DAYS must be positive, got %d", cfg.Scheduler.RetentionDays))
	}
	if _, err := cron.ParseStandard(cfg.Scheduler.RetentionSchedule); err != nil {
		errs = append(errs, fmt.Errorf("invalid RETENTION_SCHEDULE %q: %w", cfg.Scheduler.RetentionSchedule, err))
	}
	if cfg.Chain.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("RPC_REQUESTS_PER_SECOND must be positive, got %v", cfg.Chain.RequestsPerSecond))
	}
	return errors.Join(errs...)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %q (%w)", key, value, err)
		}
		return intValue, nil
	}
	return defaultValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return floatValue, nil
	}
	return defaultValue, nil
}

func getEnvList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
