// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stacklok/toolhub/pkg/apitools"
	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/logger"
)

// CachedExecutor memoizes API tool executions.
//
// The decorator is transparent: a cache hit returns the stored result
// without invoking the wrapped executor; any cache failure (read or write)
// degrades to calling the wrapped executor directly. Tool-level cache
// config always wins — a tool with caching disabled is never cached even
// when the decorator itself is enabled.
type CachedExecutor struct {
	inner   apitools.Executor
	store   Store
	keys    *KeyBuilder
	enabled bool

	mu           sync.Mutex
	totalCalls   int64
	hits         int64
	execTime     time.Duration
	execCount    int64
	cacheTime    time.Duration
	cacheL0Count int64
}

// Stats is a read-only snapshot of decorator behavior. All values are
// derived and advisory; nothing gates on them.
type Stats struct {
	// TotalCalls is the number of Execute invocations.
	TotalCalls int64

	// Hits is the number of calls served from cache.
	Hits int64

	// AvgExecutorLatency is the mean latency of wrapped executor calls.
	AvgExecutorLatency time.Duration

	// AvgCacheLatency is the mean latency of successful cache reads.
	AvgCacheLatency time.Duration

	// EstimatedTimeSaved is Hits × (AvgExecutorLatency − AvgCacheLatency).
	EstimatedTimeSaved time.Duration
}

// NewCachedExecutor wraps inner with the given store.
// enabled is the hub-wide switch; per-tool config can only narrow it.
func NewCachedExecutor(inner apitools.Executor, store Store, keys *KeyBuilder, enabled bool) *CachedExecutor {
	if keys == nil {
		keys = &KeyBuilder{}
	}
	return &CachedExecutor{
		inner:   inner,
		store:   store,
		keys:    keys,
		enabled: enabled,
	}
}

// Execute implements apitools.Executor.
func (c *CachedExecutor) Execute(ctx context.Context, tool *config.APIToolConfig, args map[string]any) (*apitools.Result, error) {
	c.mu.Lock()
	c.totalCalls++
	c.mu.Unlock()

	if !c.enabled || !tool.Cache.Enabled {
		return c.inner.Execute(ctx, tool, args)
	}

	key := c.keys.BuildKey(tool.ID, args)

	readStart := time.Now()
	cached, found, err := c.store.Get(ctx, key)
	if err != nil {
		// Cache trouble must never break the call.
		logger.Warnw("cache read failed, executing directly", "tool", tool.ID, "error", err)
	} else if found {
		result, decodeErr := decodeResult(cached)
		if decodeErr == nil {
			c.mu.Lock()
			c.hits++
			c.cacheTime += time.Since(readStart)
			c.cacheL0Count++
			c.mu.Unlock()
			return result, nil
		}
		logger.Warnw("discarding undecodable cache entry", "tool", tool.ID, "error", decodeErr)
		_ = c.store.Delete(ctx, key)
	}

	execStart := time.Now()
	result, err := c.inner.Execute(ctx, tool, args)
	elapsed := time.Since(execStart)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.execTime += elapsed
	c.execCount++
	c.mu.Unlock()

	ttl := tool.Cache.TTL.Std()
	if result.IsError {
		if !tool.Cache.CacheErrors {
			return result, nil
		}
		ttl = tool.Cache.ErrorTTL.Std()
	}
	if setErr := c.store.Set(ctx, key, result, ttl); setErr != nil {
		logger.Warnw("cache write failed", "tool", tool.ID, "error", setErr)
	}
	return result, nil
}

// Invalidate drops the cached entry for one (tool, arguments) pair.
func (c *CachedExecutor) Invalidate(ctx context.Context, toolID string, args map[string]any) error {
	return c.store.Delete(ctx, c.keys.BuildKey(toolID, args))
}

// Clear drops every cached entry.
func (c *CachedExecutor) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Stats returns a derived snapshot of decorator behavior.
func (c *CachedExecutor) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		TotalCalls: c.totalCalls,
		Hits:       c.hits,
	}
	if c.execCount > 0 {
		s.AvgExecutorLatency = c.execTime / time.Duration(c.execCount)
	}
	if c.cacheL0Count > 0 {
		s.AvgCacheLatency = c.cacheTime / time.Duration(c.cacheL0Count)
	}
	if saved := s.AvgExecutorLatency - s.AvgCacheLatency; saved > 0 {
		s.EstimatedTimeSaved = time.Duration(s.Hits) * saved
	}
	return s
}

// WarmUp executes the tool once per argument set so subsequent calls hit
// the cache. One failing entry never aborts the rest.
func (c *CachedExecutor) WarmUp(ctx context.Context, tool *config.APIToolConfig, argsList []map[string]any) (succeeded, failed int) {
	for _, args := range argsList {
		if _, err := c.Execute(ctx, tool, args); err != nil {
			logger.Warnw("cache warm-up entry failed", "tool", tool.ID, "error", err)
			failed++
			continue
		}
		succeeded++
	}
	logger.Infow("cache warm-up complete", "tool", tool.ID, "succeeded", succeeded, "failed", failed)
	return succeeded, failed
}

// decodeResult recovers a Result from a cached value. The memory store
// returns the original pointer; Redis round-trips through JSON and comes
// back as a map.
func decodeResult(v any) (*apitools.Result, error) {
	if r, ok := v.(*apitools.Result); ok {
		return r, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result apitools.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
