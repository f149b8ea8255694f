// Package cache memoizes assessment results in process memory and,
// optionally, in Redis.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irb-determination-server/internal/domain"
)

// Stats represents cache performance statistics
type Stats struct {
	MemoryHits   int64     `json:"memory_hits"`
	MemoryMisses int64     `json:"memory_misses"`
	RemoteHits   int64     `json:"remote_hits"`
	RemoteMisses int64     `json:"remote_misses"`
	ErrorCount   int64     `json:"error_count"`
	LastReset    time.Time `json:"last_reset"`
}

// TieredCache checks a process-local tier before a shared remote tier and
// back-fills the local tier on remote hits.
type TieredCache struct {
	memory domain.ResultCache
	remote domain.ResultCache
	logger *logrus.Logger

	statsMu sync.Mutex
	stats   Stats
}

// NewTieredCache combines two caches. remote may be nil.
func NewTieredCache(memory, remote domain.ResultCache, logger *logrus.Logger) *TieredCache {
	return &TieredCache{
		memory: memory,
		remote: remote,
		logger: logger,
		stats:  Stats{LastReset: time.Now()},
	}
}

// New builds the cache described by config: memory only when no Redis URL
// is set, tiered otherwise. A Redis connection failure is logged and the
// memory tier is used on its own.
func New(config domain.CacheConfig, logger *logrus.Logger) domain.ResultCache {
	memory := NewMemoryCache(config.MemoryMaxItems, config.DefaultTTL)
	if config.RedisURL == "" {
		return NewTieredCache(memory, nil, logger)
	}

	remote, err := NewRedisCache(config, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, using in-memory cache only")
		return NewTieredCache(memory, nil, logger)
	}
	return NewTieredCache(memory, remote, logger)
}

func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if data, ok, err := c.memory.Get(ctx, key); err == nil && ok {
		c.count(func(s *Stats) { s.MemoryHits++ })
		return data, true, nil
	}
	c.count(func(s *Stats) { s.MemoryMisses++ })

	if c.remote == nil {
		return nil, false, nil
	}

	data, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		c.count(func(s *Stats) { s.ErrorCount++ })
		return nil, false, err
	}
	if !ok {
		c.count(func(s *Stats) { s.RemoteMisses++ })
		return nil, false, nil
	}

	c.count(func(s *Stats) { s.RemoteHits++ })
	if err := c.memory.Set(ctx, key, data, 0); err != nil {
		c.logger.WithError(err).WithField("cache_key", key).Debug("Failed to back-fill memory cache")
	}
	return data, true, nil
}

// Set writes both tiers. The memory write always happens; a remote failure
// is returned after it.
func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if c.remote == nil {
		return nil
	}
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		c.count(func(s *Stats) { s.ErrorCount++ })
		return err
	}
	return nil
}

func (c *TieredCache) Delete(ctx context.Context, key string) error {
	err := c.memory.Delete(ctx, key)
	if c.remote != nil {
		err = errors.Join(err, c.remote.Delete(ctx, key))
	}
	return err
}

// Stats returns a snapshot of the hit counters.
func (c *TieredCache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Ping checks the remote tier. A memory-only cache is always reachable.
func (c *TieredCache) Ping(ctx context.Context) error {
	if p, ok := c.remote.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *TieredCache) Close() error {
	err := c.memory.Close()
	if c.remote != nil {
		err = errors.Join(err, c.remote.Close())
	}
	return err
}

func (c *TieredCache) count(update func(*Stats)) {
	c.statsMu.Lock()
	update(&c.stats)
	c.statsMu.Unlock()
}
