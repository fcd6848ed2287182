package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/logging"
)

const (
	// snapshotKey holds the single recovery document.
	snapshotKey = "bot:position:snapshot"

	// snapshotTTL keeps stale snapshots from resurrecting positions
	// long after the fact.
	snapshotTTL = 7 * 24 * time.Hour
)

// RedisStore persists the snapshot in Redis with an in-memory fallback
// so a Redis outage never blocks a save during shutdown.
type RedisStore struct {
	client    *redis.Client
	mu        sync.RWMutex
	fallback  *Snapshot
	available atomic.Bool
	log       *logging.Logger
}

// NewRedisStore connects to Redis. When the initial ping fails the
// store starts in memory-only mode and retries Redis on each call.
func NewRedisStore(cfg config.RedisConfig, log *logging.Logger) *RedisStore {
	s := &RedisStore{log: log.WithComponent("state_redis")}

	s.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.log.Warn("redis unavailable at startup, using in-memory fallback", "error", err.Error())
		s.available.Store(false)
	} else {
		s.log.Info("redis connected", "address", cfg.Address)
		s.available.Store(true)
	}
	return s
}

// Save writes the snapshot to Redis and always mirrors it into the
// in-memory fallback.
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil snapshot")
	}
	snap.SavedAt = time.Now().UTC()

	s.mu.Lock()
	copied := *snap
	s.fallback = &copied
	s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		s.available.Store(false)
		s.log.Warn("redis save failed, snapshot kept in memory only", "error", err.Error())
		return nil
	}
	s.available.Store(true)
	s.log.Info("position snapshot saved", "key", snapshotKey, "symbol", snap.Position.Symbol)
	return nil
}

// Load reads and deletes the snapshot, preferring Redis over the
// fallback.
func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	switch {
	case err == redis.Nil:
		return s.loadFallback()
	case err != nil:
		s.available.Store(false)
		s.log.Warn("redis load failed, trying in-memory fallback", "error", err.Error())
		return s.loadFallback()
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if err := s.client.Del(ctx, snapshotKey).Err(); err != nil {
		s.log.Warn("could not remove consumed snapshot", "error", err.Error())
	}
	s.mu.Lock()
	s.fallback = nil
	s.mu.Unlock()
	s.available.Store(true)
	return &snap, nil
}

func (s *RedisStore) loadFallback() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallback == nil {
		return nil, ErrNoSnapshot
	}
	snap := *s.fallback
	s.fallback = nil
	return &snap, nil
}

// Clear removes the snapshot from Redis and the fallback.
func (s *RedisStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.fallback = nil
	s.mu.Unlock()

	if err := s.client.Del(ctx, snapshotKey).Err(); err != nil {
		s.available.Store(false)
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// Available reports whether the last Redis operation succeeded.
func (s *RedisStore) Available() bool {
	return s.available.Load()
}
