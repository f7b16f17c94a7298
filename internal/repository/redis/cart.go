package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/repository"
	apperrors "github.com/cswank/store/pkg/errors"
)

const maxMergeAttempts = 5

// CartRepository implements repository.CartStore on Redis. Each slot is one
// string key holding the JSON document.
type CartRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCartRepository creates a Redis cart store. A zero ttl keeps carts forever.
func NewCartRepository(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CartRepository {
	return &CartRepository{client: client, ttl: ttl, logger: logger}
}

func (r *CartRepository) Load(ctx context.Context, slot string) (*domain.Document, error) {
	data, err := r.client.Get(ctx, slot).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w: %w", slot, apperrors.ErrServiceUnavail, err)
	}
	return repository.Decode(ctx, r.logger, slot, data), nil
}

func (r *CartRepository) Save(ctx context.Context, slot string, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := r.client.Set(ctx, slot, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w: %w", slot, apperrors.ErrServiceUnavail, err)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, slot string) error {
	if err := r.client.Del(ctx, slot).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w: %w", slot, apperrors.ErrServiceUnavail, err)
	}
	return nil
}

// Merge watches slot, rebases doc onto its current value and writes the
// result in a MULTI block. A write by someone else in between aborts the
// transaction and the merge is retried.
func (r *CartRepository) Merge(ctx context.Context, slot string, doc *domain.Document) (*domain.Document, error) {
	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		var merged *domain.Document

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, slot).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			merged = doc.Rebase(repository.Decode(ctx, r.logger, slot, data))

			payload, err := json.Marshal(merged)
			if err != nil {
				return fmt.Errorf("marshal cart: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, slot, payload, r.ttl)
				return nil
			})
			return err
		}, slot)

		if errors.Is(err, redis.TxFailedErr) {
			r.logger.DebugContext(ctx, "cart changed during merge, retrying",
				slog.String("slot", slot),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis merge %s: %w: %w", slot, apperrors.ErrServiceUnavail, err)
		}
		return merged, nil
	}
	return nil, apperrors.Conflict("the cart kept changing while saving")
}

// Ping checks the connection.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
