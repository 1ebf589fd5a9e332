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
	"testing"
	"time"

	"sol-deposit-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Scanner.SignatureLimit)
	assert.Equal(t, time.Hour, cfg.Scanner.Lookback)
	assert.True(t, cfg.Ledger.MinDeposit.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, models.BaselineFirstDeposit, cfg.Ledger.BaselinePolicy)
	assert.Equal(t, 5*time.Second, cfg.Adjust.WaitTimeout)
	assert.Equal(t, 30*time.Second, cfg.Adjust.WorkerTimeout)
	assert.Equal(t, "@daily", cfg.Scheduler.RetentionSchedule)
	assert.Equal(t, 60, cfg.Scheduler.RetentionDays)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "admin", cfg.Server.AdminUser)
	assert.Empty(t, cfg.Server.AdminPassword)
	assert.NoError(t, Validate(cfg))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MIN_DEPOSIT", "1.25")
	t.Setenv("BASELINE_POLICY", "Cumulative")
	t.Setenv("SCAN_INTERVAL", "15s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Ledger.MinDeposit.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, models.BaselineCumulative, cfg.Ledger.BaselinePolicy)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.ScanInterval)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("SCAN_LOOKBACK", "an hour")
	t.Setenv("MIN_DEPOSIT", "half")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCAN_LOOKBACK")
	assert.Contains(t, err.Error(), "MIN_DEPOSIT")
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("RETENTION_DAYS", "abc")
	t.Setenv("RPC_REQUESTS_PER_SECOND", "fast")
	t.Setenv("ADJUST_POOL_SIZE", "8")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid integer for RETENTION_DAYS")
	assert.Contains(t, err.Error(), "invalid number for RPC_REQUESTS_PER_SECOND")
	assert.NotContains(t, err.Error(), "ADJUST_POOL_SIZE")
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Ledger.BaselinePolicy = "latest"
	cfg.Scheduler.RetentionSchedule = "every now and then"
	cfg.Scanner.SignatureLimit = 0

	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BASELINE_POLICY")
	assert.Contains(t, err.Error(), "RETENTION_SCHEDULE")
	assert.Contains(t, err.Error(), "SCAN_SIGNATURE_LIMIT")
}
