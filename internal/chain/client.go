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

package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"sol-deposit-ledger/internal/metrics"
	"sol-deposit-ledger/internal/models"
	"sol-deposit-ledger/internal/store"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 3
)

// Client is a rate limited, retrying Solana JSON-RPC client
type Client struct {
	rpc            *rpc.Client
	timeout        time.Duration
	maxRetries     int
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
}

func NewClient(cfg models.ChainConfig) (*Client, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("rpc url cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = maxRetries
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to configure http2 transport: %w", err)
	}
	httpClient := &http.Client{Transport: transport, Timeout: cfg.Timeout}

	cbSettings := gobreaker.Settings{
		Name:        "SolanaRPC",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, rpc.ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			zap.L().Info("RPC circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	zap.L().Info("Solana RPC client configured",
		zap.String("rpc_url", cfg.RpcUrl),
		zap.Duration("timeout", cfg.Timeout),
		zap.Float64("requests_per_second", cfg.RequestsPerSecond))

	return &Client{
		rpc: rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(cfg.RpcUrl, &jsonrpc.RPCClientOpts{
			HTTPClient: httpClient,
		})),
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// call runs op behind the rate limiter and circuit breaker, retrying
// transient failures with exponential backoff. Each attempt gets its own
// timeout. Failures are wrapped in store.ErrUpstreamUnavailable.
func call[T any](ctx context.Context, c *Client, method string, op func(ctx context.Context) (T, error)) (T, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return backoff.Retry(ctx, func() (T, error) {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return *new(T), backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
			attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			value, err := op(attemptCtx)
			if err != nil {
				if errors.Is(err, rpc.ErrNotFound) || ctx.Err() != nil {
					return value, backoff.Permanent(err)
				}
				zap.L().Debug("RPC call failed, retrying", zap.String("method", method), zap.Error(err))
				return value, err
			}
			return value, nil
		},
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(uint(c.maxRetries)),
			backoff.WithMaxElapsedTime(2*c.timeout*time.Duration(c.maxRetries)))
	})
	if err != nil {
		var zero T
		if errors.Is(err, rpc.ErrNotFound) {
			return zero, err
		}
		metrics.RPCErrors.WithLabelValues(method).Inc()
		return zero, fmt.Errorf("%w: %s: %w", store.ErrUpstreamUnavailable, method, err)
	}
	return result.(T), nil
}

// RecentSignatures returns up to limit signatures touching address, newest first.
func (c *Client) RecentSignatures(ctx context.Context, address string, limit int) ([]models.SignatureInfo, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	out, err := call(ctx, c, "getSignaturesForAddress", func(ctx context.Context) ([]*rpc.TransactionSignature, error) {
		return c.rpc.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentConfirmed,
		})
	})
	if err != nil {
		return nil, err
	}

	signatures := make([]models.SignatureInfo, 0, len(out))
	for _, sig := range out {
		if sig == nil {
			continue
		}
		info := models.SignatureInfo{
			Signature: sig.Signature.String(),
			Slot:      sig.Slot,
			Failed:    sig.Err != nil,
		}
		if sig.BlockTime != nil {
			info.BlockTime = sig.BlockTime.Time()
		}
		signatures = append(signatures, info)
	}
	return signatures, nil
}

// InboundTransfer returns the native SOL transfer into recipient made by the
// transaction, or nil when the transaction failed, is unknown, or did not
// credit the recipient.
func (c *Client) InboundTransfer(ctx context.Context, signature, recipient string) (*models.Transfer, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	maxVersion := uint64(0)
	res, err := call(ctx, c, "getTransaction", func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		return c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
	})
	if errors.Is(err, rpc.ErrNotFound) {
		zap.L().Debug("Transaction not found", zap.String("signature", signature))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return nil, nil
	}
	if res.Meta.Err != nil {
		zap.L().Debug("Skipping failed transaction", zap.String("signature", signature))
		return nil, nil
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", signature, err)
	}

	// Balances index static keys followed by lookup-table addresses.
	keys := make([]string, 0, len(tx.Message.AccountKeys)+
		len(res.Meta.LoadedAddresses.Writable)+len(res.Meta.LoadedAddresses.ReadOnly))
	for _, key := range tx.Message.AccountKeys {
		keys = append(keys, key.String())
	}
	for _, key := range res.Meta.LoadedAddresses.Writable {
		keys = append(keys, key.String())
	}
	for _, key := range res.Meta.LoadedAddresses.ReadOnly {
		keys = append(keys, key.String())
	}

	snapshot := BalanceSnapshot{
		Signature: signature,
		Accounts:  keys,
		Pre:       res.Meta.PreBalances,
		Post:      res.Meta.PostBalances,
	}
	if res.BlockTime != nil {
		snapshot.BlockTime = res.BlockTime.Time()
	}

	transfer, ok := ExtractTransfer(snapshot, recipient)
	if !ok {
		return nil, nil
	}
	return transfer, nil
}

// Balance returns the confirmed SOL balance of address.
func (c *Client) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid address %q: %w", address, err)
	}

	res, err := call(ctx, c, "getBalance", func(ctx context.Context) (*rpc.GetBalanceResult, error) {
		return c.rpc.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return LamportsToSOL(res.Value), nil
}
