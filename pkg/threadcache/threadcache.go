// Package threadcache implements the Conversation Cache (C9, spec.md
// §4.8): a bounded conversation_id → AgentThreadHandle map with idle TTL
// expiry and LRU eviction at capacity, tearing down the underlying
// provider-side thread whenever an entry leaves the cache. No teacher
// package implements an analogous in-process cache, so this is written
// fresh against `hashicorp/golang-lru/v2`'s expirable.LRU — the teacher's
// go.mod already carries `golang-lru` transitively (via its Consul
// client dependency graph); this promotes it to a direct, deliberately
// chosen dependency since TTL+LRU eviction with an eviction callback is
// exactly what expirable.LRU provides.
package threadcache

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kadirpekel/analystd/pkg/domain"
)

const (
	defaultCapacity = 1024
	defaultIdleTTL  = 30 * time.Minute
)

// Opener opens a new provider-side thread for a conversation in the
// given mode, returning its provider-assigned id.
type Opener func(ctx context.Context, conversationID string, mode domain.Mode) (string, error)

// Teardown releases a provider-side thread's server-side resources.
// Teardown failures are logged and swallowed (spec.md §4.8).
type Teardown func(providerThreadID string)

// Config wires a Cache's collaborators and limits.
type Config struct {
	Capacity int           // 0 uses defaultCapacity
	IdleTTL  time.Duration // 0 uses defaultIdleTTL
	Open     Opener
	Teardown Teardown
}

// Cache is the process-global Conversation Cache. All methods are safe
// for concurrent use; the underlying expirable.LRU holds its own lock.
type Cache struct {
	lru      *lru.LRU[string, *domain.AgentThreadHandle]
	open     Opener
	teardown Teardown
}

// New builds a Cache. Eviction — by capacity or by idle TTL — fires
// cfg.Teardown on the evicted handle's ProviderThreadID as a background
// goroutine, matching spec.md §4.8's "fire-and-forget" teardown
// requirement.
func New(cfg Config) *Cache {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}

	c := &Cache{open: cfg.Open, teardown: cfg.Teardown}
	c.lru = lru.NewLRU[string, *domain.AgentThreadHandle](capacity, c.onEvict, idleTTL)
	return c
}

func (c *Cache) onEvict(conversationID string, handle *domain.AgentThreadHandle) {
	if c.teardown == nil || handle == nil || handle.ProviderThreadID == "" {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Default().Error("thread teardown panicked", "conversation_id", conversationID, "panic", r)
			}
		}()
		c.teardown(handle.ProviderThreadID)
	}()
}

// Acquire returns the cached handle for conversationID, opening a new
// provider-side thread when none is cached or the cached one was opened
// for a different topology mode (a mode switch needs a fresh thread,
// since system instruction and tool catalog differ per mode).
func (c *Cache) Acquire(ctx context.Context, conversationID string, mode domain.Mode) (*domain.AgentThreadHandle, error) {
	now := time.Now()

	existing, ok := c.lru.Get(conversationID)
	if ok && existing.Mode == mode {
		existing.LastUsedAt = now
		c.lru.Add(conversationID, existing) // refresh idle TTL
		return existing, nil
	}

	var providerThreadID string
	if c.open != nil {
		id, err := c.open(ctx, conversationID, mode)
		if err != nil {
			return nil, err
		}
		providerThreadID = id
	}

	handle := &domain.AgentThreadHandle{
		ConversationID:   conversationID,
		ProviderThreadID: providerThreadID,
		CreatedAt:        now,
		LastUsedAt:       now,
		Mode:             mode,
	}
	if ok {
		// A mode switch: existing was cached under a different mode and is
		// being replaced outright, not just TTL-refreshed. expirable.LRU.Add
		// on an already-present key updates in place without invoking the
		// eviction callback, so the old provider-side thread must be torn
		// down explicitly here.
		c.onEvict(conversationID, existing)
	}
	c.lru.Add(conversationID, handle)
	return handle, nil
}

// Evict removes conversationID's cached handle, e.g. on a "new
// conversation" request. Per spec.md §4.8, manual removal tears down
// synchronously from the caller's perspective — the entry is gone from
// the cache before Evict returns — but the underlying provider-side
// teardown still runs asynchronously via the same onEvict path.
func (c *Cache) Evict(conversationID string) {
	c.lru.Remove(conversationID)
}

// Len reports the number of cached thread handles.
func (c *Cache) Len() int {
	return c.lru.Len()
}
