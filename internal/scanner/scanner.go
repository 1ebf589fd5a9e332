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

package scanner

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"go.uber.org/zap"
)

// ChainClient is the read-only chain surface the scanner needs.
type ChainClient interface {
	RecentSignatures(ctx context.Context, address string, limit int) ([]models.SignatureInfo, error)
	InboundTransfer(ctx context.Context, signature, recipient string) (*models.Transfer, error)
}

// LedgerReader is the read-only ledger surface the scanner needs.
type LedgerReader interface {
	HasEntry(ctx context.Context, externalRef string) (bool, error)
	FindLinkBySender(ctx context.Context, senderAddress string) (*models.SenderLink, error)
}

// Scanner turns recent deposit-address activity into linked deposits
type Scanner struct {
	chain          ChainClient
	ledger         LedgerReader
	depositAddress string
	signatureLimit int
	lookback       time.Duration
	now            func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time // signatures known to carry no deposit
}

func NewScanner(chain ChainClient, ledger LedgerReader, depositAddress string, cfg models.ScannerConfig) *Scanner {
	if cfg.SignatureLimit <= 0 {
		cfg.SignatureLimit = 100
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Hour
	}
	return &Scanner{
		chain:          chain,
		ledger:         ledger,
		depositAddress: depositAddress,
		signatureLimit: cfg.SignatureLimit,
		lookback:       cfg.Lookback,
		now:            time.Now,
		seen:           make(map[string]time.Time),
	}
}

// Scan performs one full pass over recent signatures and yields every new
// deposit whose sender is linked to an account. Each call starts a fresh
// pass. Upstream failures are logged and end the sequence early; a
// transaction that cannot be decoded is skipped and not fetched again.
func (s *Scanner) Scan(ctx context.Context) iter.Seq[models.Deposit] {
	return func(yield func(models.Deposit) bool) {
		s.Prune(s.lookback)

		signatures, err := s.chain.RecentSignatures(ctx, s.depositAddress, s.signatureLimit)
		if err != nil {
			zap.L().Error("Failed to fetch recent signatures",
				zap.String("deposit_address", s.depositAddress),
				zap.Error(err))
			return
		}

		cutoff := s.now().Add(-s.lookback)
		zap.L().Debug("Scanning signatures",
			zap.Int("count", len(signatures)),
			zap.Time("cutoff", cutoff))

		for _, sig := range signatures {
			if ctx.Err() != nil {
				return
			}
			if !sig.BlockTime.IsZero() && sig.BlockTime.Before(cutoff) {
				continue
			}
			if s.isSeen(sig.Signature) {
				continue
			}
			if sig.Failed {
				s.markSeen(sig.Signature)
				continue
			}

			applied, err := s.ledger.HasEntry(ctx, sig.Signature)
			if err != nil {
				zap.L().Error("Failed to check ledger for signature",
					zap.String("signature", sig.Signature),
					zap.Error(err))
				continue
			}
			if applied {
				continue
			}

			transfer, err := s.chain.InboundTransfer(ctx, sig.Signature, s.depositAddress)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, store.ErrUpstreamUnavailable) {
					zap.L().Error("Failed to fetch transaction",
						zap.String("signature", sig.Signature),
						zap.Error(err))
					return
				}
				zap.L().Warn("Skipping unreadable transaction",
					zap.String("signature", sig.Signature),
					zap.Error(err))
				s.markSeen(sig.Signature)
				continue
			}
			if transfer == nil {
				s.markSeen(sig.Signature)
				continue
			}

			link, err := s.ledger.FindLinkBySender(ctx, transfer.Sender)
			if err != nil {
				zap.L().Error("Failed to look up sender link",
					zap.String("sender", transfer.Sender),
					zap.Error(err))
				continue
			}
			if link == nil {
				// Not marked seen: linking the sender within the lookback
				// window still credits this transfer.
				zap.L().Info("Ignoring deposit from unlinked sender",
					zap.String("signature", sig.Signature),
					zap.String("sender", transfer.Sender),
					zap.String("amount", transfer.Amount.String()))
				continue
			}

			blockTime := transfer.BlockTime
			if blockTime.IsZero() {
				blockTime = sig.BlockTime
			}
			deposit := models.Deposit{
				AccountId:   link.AccountId,
				Amount:      transfer.Amount,
				ExternalRef: sig.Signature,
				Sender:      transfer.Sender,
				BlockTime:   blockTime,
			}
			zap.L().Info("Deposit detected",
				zap.String("signature", deposit.ExternalRef),
				zap.String("account_id", deposit.AccountId),
				zap.String("sender", deposit.Sender),
				zap.String("amount", deposit.Amount.String()))

			if !yield(deposit) {
				return
			}
		}
	}
}

func (s *Scanner) isSeen(signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[signature]
	return ok
}

func (s *Scanner) markSeen(signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[signature] = s.now()
}

// Prune forgets signatures recorded more than maxAge ago and returns how
// many were removed.
func (s *Scanner) Prune(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for signature, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, signature)
			removed++
		}
	}
	if removed > 0 {
		zap.L().Debug("Pruned seen signatures",
			zap.Int("removed", removed),
			zap.Int("remaining", len(s.seen)))
	}
	return removed
}

// SeenCount returns the number of cached signatures.
func (s *Scanner) SeenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
