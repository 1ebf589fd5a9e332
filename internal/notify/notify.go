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

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sol-deposit-ledger/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Notifier is told about every newly credited deposit
type Notifier interface {
	DepositCredited(ctx context.Context, event models.DepositEvent) error
}

// LogNotifier writes deposit events to the process log
type LogNotifier struct{}

func (LogNotifier) DepositCredited(_ context.Context, event models.DepositEvent) error {
	zap.L().Info("Deposit credited",
		zap.String("account_id", event.AccountId),
		zap.String("external_id", event.ExternalId),
		zap.String("external_ref", event.ExternalRef),
		zap.String("sender", event.Sender),
		zap.String("amount", event.Amount.String()),
		zap.String("balance_after", event.BalanceAfter.String()),
		zap.Bool("activated", event.Activated))
	return nil
}

// MessageWriter is the subset of *kafka.Writer used for publishing
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes deposit events as JSON keyed by account id, so
// one account's events stay ordered within a partition.
type KafkaNotifier struct {
	writer MessageWriter
}

func NewKafkaNotifier(cfg models.KafkaConfig) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic cannot be empty")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
	}

	zap.L().Info("Kafka deposit notifier configured",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))
	return NewKafkaNotifierWithWriter(writer), nil
}

func NewKafkaNotifierWithWriter(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (k *KafkaNotifier) DepositCredited(ctx context.Context, event models.DepositEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal deposit event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AccountId),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("deposit.credited")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write error: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// Multi fans an event out to every notifier and joins their errors
type Multi []Notifier

func (m Multi) DepositCredited(ctx context.Context, event models.DepositEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.DepositCredited(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
