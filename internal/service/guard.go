package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rent_notifications/internal/cache"
	"rent_notifications/internal/models"
	"rent_notifications/internal/repository"

	"go.uber.org/zap"
)

// NotificationLog is the slice of the log store the guard needs.
type NotificationLog interface {
	HasSucceeded(ctx context.Context, key string) (bool, error)
	RecordSent(ctx context.Context, rec *models.NotificationRecord) error
	RecordFailed(ctx context.Context, rec *models.NotificationRecord) error
}

// Guard enforces at-most-one successful notification per idempotency key.
// It fronts the log store with a positive-only redis cache: sent rows are
// permanent, so a cached "sent" can never be wrong. The cache is optional.
type Guard struct {
	log    NotificationLog
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewGuard(log NotificationLog, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Guard{log: log, cache: c, ttl: ttl, logger: logger}
}

// HasSucceeded reports whether a sent row already exists for the key.
// Must be called before any transport send for that key.
func (g *Guard) HasSucceeded(ctx context.Context, key string) (bool, error) {
	if g.cache != nil {
		if _, ok, err := g.cache.Get(ctx, cache.SentKey(key)); err == nil && ok {
			return true, nil
		}
	}

	sent, err := g.log.HasSucceeded(ctx, key)
	if err != nil {
		return false, fmt.Errorf("idempotency check: %w", err)
	}

	if sent {
		g.cacheSent(ctx, key)
	}
	return sent, nil
}

// RecordSent writes the sent audit row. A duplicate means a concurrent run
// already sent under this key; callers treat that the same as a fresh
// success, so it is surfaced as repository.ErrDuplicateSent unchanged.
func (g *Guard) RecordSent(ctx context.Context, rec *models.NotificationRecord) error {
	err := g.log.RecordSent(ctx, rec)
	if err != nil && !errors.Is(err, repository.ErrDuplicateSent) {
		return err
	}
	g.cacheSent(ctx, rec.IdempotencyKey)
	return err
}

// RecordFailed appends a failed audit row; failed rows never block retries.
func (g *Guard) RecordFailed(ctx context.Context, rec *models.NotificationRecord) error {
	return g.log.RecordFailed(ctx, rec)
}

func (g *Guard) cacheSent(ctx context.Context, key string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, cache.SentKey(key), []byte("1"), g.ttl); err != nil {
		g.logger.Warn("sent-key cache write failed", zap.String("key", key), zap.Error(err))
	}
}
