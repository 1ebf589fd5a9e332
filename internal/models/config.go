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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Chain     ChainConfig
	Scanner   ScannerConfig
	Ledger    LedgerConfig
	Adjust    AdjustConfig
	Scheduler SchedulerConfig
	Server    ServerConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// ChainConfig holds Solana RPC settings
type ChainConfig struct {
	RpcUrl            string
	DepositAddress    string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
}

// ScannerConfig holds deposit scan settings
type ScannerConfig struct {
	SignatureLimit int
	Lookback       time.Duration
}

// BaselinePolicy decides how an account baseline evolves after deposits
type BaselinePolicy string

const (
	BaselineFirstDeposit BaselinePolicy = "first"
	BaselineCumulative   BaselinePolicy = "cumulative"
)

// LedgerConfig holds crediting rules
type LedgerConfig struct {
	MinDeposit     decimal.Decimal
	BaselinePolicy BaselinePolicy
}

// AdjustConfig holds admin adjustment worker settings
type AdjustConfig struct {
	PoolSize      int
	WaitTimeout   time.Duration
	WorkerTimeout time.Duration
}

// SchedulerConfig holds periodic job settings
type SchedulerConfig struct {
	ScanInterval      time.Duration
	RetentionSchedule string
	RetentionDays     int
	JobTimeout        time.Duration
}

// ServerConfig holds the admin HTTP listener settings
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	// The /admin routes refuse every request while AdminPassword is empty
	AdminUser     string
	AdminPassword string
}

// RedisConfig enables the distributed scan lock when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig enables deposit event publishing when Brokers is set
type KafkaConfig struct {
	Brokers []string
	Topic   string
}
