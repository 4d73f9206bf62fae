package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rent_notifications/internal/cache"
	"rent_notifications/internal/models"
	"rent_notifications/internal/repository"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memCache) Close() error { return nil }

func (m *memCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func TestGuardCacheHitSkipsLogStore(t *testing.T) {
	log := newMemLog()
	log.checkErr = errors.New("db down")

	c := newMemCache()
	c.data[cache.SentKey("k1")] = []byte("1")

	g := NewGuard(log, c, time.Hour, nil)

	sent, err := g.HasSucceeded(context.Background(), "k1")
	if err != nil || !sent {
		t.Fatalf("sent=%v err=%v, want cache hit", sent, err)
	}
}

func TestGuardBackfillsCacheFromLogStore(t *testing.T) {
	log := newMemLog()
	log.sent["k1"] = true
	c := newMemCache()
	g := NewGuard(log, c, time.Hour, nil)

	sent, err := g.HasSucceeded(context.Background(), "k1")
	if err != nil || !sent {
		t.Fatalf("sent=%v err=%v", sent, err)
	}
	if !c.has(cache.SentKey("k1")) {
		t.Fatal("cache not backfilled")
	}
}

func TestGuardNeverCachesNegatives(t *testing.T) {
	log := newMemLog()
	c := newMemCache()
	g := NewGuard(log, c, time.Hour, nil)

	if sent, _ := g.HasSucceeded(context.Background(), "k1"); sent {
		t.Fatal("unexpected sent")
	}
	if c.has(cache.SentKey("k1")) {
		t.Fatal("negative result must not be cached")
	}
}

func TestGuardRecordSentCachesAndPropagatesDuplicate(t *testing.T) {
	log := newMemLog()
	c := newMemCache()
	g := NewGuard(log, c, time.Hour, nil)

	rec := &models.NotificationRecord{IdempotencyKey: "k1", Status: models.StatusSent}
	if err := g.RecordSent(context.Background(), rec); err != nil {
		t.Fatalf("first RecordSent: %v", err)
	}
	if !c.has(cache.SentKey("k1")) {
		t.Fatal("sent key not cached")
	}

	// A duplicate still surfaces as ErrDuplicateSent but keeps the cache warm.
	c.data = make(map[string][]byte)
	err := g.RecordSent(context.Background(), &models.NotificationRecord{IdempotencyKey: "k1"})
	if !errors.Is(err, repository.ErrDuplicateSent) {
		t.Fatalf("err = %v, want ErrDuplicateSent", err)
	}
	if !c.has(cache.SentKey("k1")) {
		t.Fatal("duplicate must still warm the cache")
	}
}

func TestGuardWorksWithoutCache(t *testing.T) {
	log := newMemLog()
	g := NewGuard(log, nil, 0, nil)

	rec := &models.NotificationRecord{IdempotencyKey: "k1"}
	if err := g.RecordSent(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	sent, err := g.HasSucceeded(context.Background(), "k1")
	if err != nil || !sent {
		t.Fatalf("sent=%v err=%v", sent, err)
	}
}
