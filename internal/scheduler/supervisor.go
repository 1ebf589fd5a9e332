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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sol-deposit-ledger/internal/metrics"
	"sol-deposit-ledger/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrAlreadyRunning = errors.New("supervisor already running")
	ErrNotRunning     = errors.New("supervisor not running")
)

// Lock keys shared by every process pointed at the same Locker
const (
	ScanLockKey      = "deposit-ledger:scan"
	RetentionLockKey = "deposit-ledger:retention"
)

// State is the supervisor lifecycle state
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

type ScanRunner interface {
	RunScanCycle(ctx context.Context) int
}

type RetentionRunner interface {
	RunRetentionCleanup(ctx context.Context, horizonDays int) (*models.RetentionReport, error)
}

// Supervisor owns the periodic scan and retention jobs
type Supervisor struct {
	scan      ScanRunner
	retention RetentionRunner
	locker    Locker
	cfg       models.SchedulerConfig

	mu     sync.Mutex
	state  State
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(scan ScanRunner, retention RetentionRunner, locker Locker, cfg models.SchedulerConfig) *Supervisor {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 60 * time.Second
	}
	if cfg.RetentionSchedule == "" {
		cfg.RetentionSchedule = "@daily"
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 60
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	return &Supervisor{
		scan:      scan,
		retention: retention,
		locker:    locker,
		cfg:       cfg,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start schedules both jobs and runs one scan immediately. Jobs run with
// ctx until Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		return ErrAlreadyRunning
	}

	logger := cron.PrintfLogger(zap.NewStdLog(zap.L()))
	c := cron.New(cron.WithLogger(logger))
	chain := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))

	runCtx, cancel := context.WithCancel(ctx)
	scanJob := chain.Then(cron.FuncJob(func() { s.runScan(runCtx) }))
	retentionJob := chain.Then(cron.FuncJob(func() { s.runRetention(runCtx) }))

	if _, err := c.AddJob(fmt.Sprintf("@every %s", s.cfg.ScanInterval), scanJob); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule scan job: %w", err)
	}
	if s.retention != nil {
		if _, err := c.AddJob(s.cfg.RetentionSchedule, retentionJob); err != nil {
			cancel()
			return fmt.Errorf("failed to schedule retention job: %w", err)
		}
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.state = Running

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scanJob.Run()
	}()

	zap.L().Info("Supervisor started",
		zap.Duration("scan_interval", s.cfg.ScanInterval),
		zap.String("retention_schedule", s.cfg.RetentionSchedule),
		zap.Int("retention_days", s.cfg.RetentionDays))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		return ErrNotRunning
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()

	s.cron = nil
	s.cancel = nil
	s.state = Stopped
	zap.L().Info("Supervisor stopped")
	return nil
}

func (s *Supervisor) runScan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	applied, acquired, err := s.TriggerScan(ctx)
	switch {
	case err != nil:
		zap.L().Error("Scan lock unavailable, skipping cycle", zap.Error(err))
		metrics.ScanCycles.WithLabelValues("error").Inc()
	case !acquired:
		zap.L().Info("Scan already in progress, skipping tick")
		metrics.ScanCycles.WithLabelValues("skipped").Inc()
	default:
		zap.L().Debug("Scheduled scan finished", zap.Int("applied", applied))
	}
}

// TriggerScan runs one scan cycle under the same lock as the scheduled job.
// acquired is false when another cycle holds the lock; nothing is scanned.
func (s *Supervisor) TriggerScan(ctx context.Context) (applied int, acquired bool, err error) {
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	unlock, acquired, err := s.locker.TryLock(jobCtx, ScanLockKey, s.cfg.JobTimeout)
	if err != nil {
		return 0, false, fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	if !acquired {
		return 0, false, nil
	}
	defer unlock()

	return s.scan.RunScanCycle(jobCtx), true, nil
}

func (s *Supervisor) runRetention(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	unlock, acquired, err := s.locker.TryLock(jobCtx, RetentionLockKey, s.cfg.JobTimeout)
	if err != nil {
		zap.L().Error("Retention lock unavailable, skipping run", zap.Error(err))
		return
	}
	if !acquired {
		zap.L().Info("Retention already in progress, skipping run")
		return
	}
	defer unlock()

	report, err := s.retention.RunRetentionCleanup(jobCtx, s.cfg.RetentionDays)
	if err != nil {
		zap.L().Error("Retention cleanup failed", zap.Error(err))
		return
	}
	zap.L().Info("Scheduled retention finished",
		zap.Int64("ledger_entries", report.LedgerEntries),
		zap.Int64("journal_entries", report.JournalEntries))
}
