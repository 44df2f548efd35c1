package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/pkg/cache"
)

// LedgerFeed fans ledger writes out over Redis pub/sub, one channel per program.
type LedgerFeed struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewLedgerFeed constructs the feed.
func NewLedgerFeed(client redis.UniversalClient, logger *zap.Logger) *LedgerFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerFeed{client: client, logger: logger}
}

func ledgerChannel(programID string) string {
	return cache.Key("ledger", "changes", programID)
}

// Publish announces a ledger write.
func (f *LedgerFeed) Publish(ctx context.Context, change models.LedgerChange) error {
	if f.client == nil {
		return nil
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode ledger change: %w", err)
	}
	if err := f.client.Publish(ctx, ledgerChannel(change.ProgramID), payload).Err(); err != nil {
		return fmt.Errorf("publish ledger change: %w", err)
	}
	return nil
}

// Subscribe streams changes for a program until ctx is cancelled or the
// returned stop func is called. The channel is closed on exit.
func (f *LedgerFeed) Subscribe(ctx context.Context, programID string) (<-chan models.LedgerChange, func(), error) {
	out := make(chan models.LedgerChange, 8)
	if f.client == nil {
		close(out)
		return out, func() {}, nil
	}

	sub := f.client.Subscribe(ctx, ledgerChannel(programID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe ledger changes: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(out)
		defer sub.Close() //nolint:errcheck
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change models.LedgerChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.logger.Warn("drop malformed ledger change", zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, cancel, nil
}
