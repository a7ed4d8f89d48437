// Package cache реализует in-process TTL кэш с ленивым и периодическим
// удалением просроченных записей.
//
// Ключи распределяются по шардам через xxh3, у каждого шарда свой мьютекс,
// поэтому Get/Set/Delete атомарны относительно друг друга для любого ключа.
// Clear и Cleanup берут блокировки шардов по очереди.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/zeebo/xxh3"
)

const (
	numShards = 16
	shardMask = numShards - 1

	DefaultTTL           = time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Config параметры кэша. Нулевые значения заменяются значениями по умолчанию.
type Config struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

// valid iff now - storedAt < ttl
func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]*entry[V]
}

// Cache generic key -> value хранилище с TTL
type Cache[V any] struct {
	cfg    Config
	clock  clock.Clock
	shards [numShards]*shard[V]
}

// New создаёт кэш. clk == nil означает реальные часы.
func New[V any](cfg Config, clk clock.Clock) *Cache[V] {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if clk == nil {
		clk = clock.New()
	}

	c := &Cache[V]{cfg: cfg, clock: clk}
	for i := range c.shards {
		c.shards[i] = &shard[V]{items: make(map[string]*entry[V])}
	}
	return c
}

func (c *Cache[V]) shard(key string) *shard[V] {
	return c.shards[xxh3.HashString(key)&shardMask]
}

// Set сохраняет или перезаписывает значение. ttl <= 0 означает DefaultTTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	s := c.shard(key)
	s.mu.Lock()
	s.items[key] = &entry[V]{value: value, storedAt: c.clock.Now(), ttl: ttl}
	s.mu.Unlock()
}

// Get возвращает значение, если запись есть и не просрочена.
// Просроченная запись удаляется сразу.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return zero, false
	}
	if e.expired(c.clock.Now()) {
		delete(s.items, key)
		return zero, false
	}
	return e.value, true
}

// GetOrSet возвращает живое значение по ключу, либо атомарно сохраняет create().
// Второй результат true, если значение уже было в кэше.
func (c *Cache[V]) GetOrSet(key string, create func() V, ttl time.Duration) (V, bool) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := c.clock.Now()
	if e, ok := s.items[key]; ok && !e.expired(now) {
		return e.value, true
	}

	v := create()
	s.items[key] = &entry[V]{value: v, storedAt: now, ttl: ttl}
	return v, false
}

func (c *Cache[V]) Delete(key string) {
	s := c.shard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Clear удаляет все записи. Блокирует все шарды на время очистки.
func (c *Cache[V]) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
	}
	for _, s := range c.shards {
		s.items = make(map[string]*entry[V])
	}
	for _, s := range c.shards {
		s.mu.Unlock()
	}
}

// Cleanup удаляет все просроченные записи и возвращает их количество
func (c *Cache[V]) Cleanup() int {
	now := c.clock.Now()
	removed := 0

	for _, s := range c.shards {
		s.mu.Lock()
		for key, e := range s.items {
			if e.expired(now) {
				delete(s.items, key)
				removed++
			}
		}
		s.mu.Unlock()
	}

	return removed
}

// Len количество хранимых записей, включая ещё не удалённые просроченные
func (c *Cache[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// Run периодически вызывает Cleanup, пока не отменён ctx
func (c *Cache[V]) Run(ctx context.Context) {
	ticker := c.clock.Ticker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
