// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhub/pkg/apitools"
	"github.com/stacklok/toolhub/pkg/config"
)

// countingExecutor returns a canned result and counts invocations.
type countingExecutor struct {
	calls  atomic.Int32
	result *apitools.Result
	err    error
}

func (c *countingExecutor) Execute(_ context.Context, _ *config.APIToolConfig, _ map[string]any) (*apitools.Result, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

// failingStore errors on every operation to exercise degradation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (any, bool, error) {
	return nil, false, errors.New("store down")
}
func (failingStore) Set(context.Context, string, any, time.Duration) error {
	return errors.New("store down")
}
func (failingStore) Delete(context.Context, string) error  { return errors.New("store down") }
func (failingStore) Clear(context.Context) error           { return errors.New("store down") }
func (failingStore) Cleanup(context.Context) error         { return nil }
func (failingStore) Len(context.Context) (int, error)      { return 0, errors.New("store down") }
func (failingStore) Close() error                          { return nil }

func cachedTool(enabled bool) *config.APIToolConfig {
	return &config.APIToolConfig{
		ID: "weather",
		Cache: config.CacheConfig{
			Enabled:  enabled,
			TTL:      config.Duration(time.Minute),
			ErrorTTL: config.Duration(time.Second),
		},
	}
}

func okResult() *apitools.Result {
	return &apitools.Result{Data: map[string]any{"temp": 21.5}}
}

func TestCachedExecutorHitSkipsInner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: okResult()}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(true)
	args := map[string]any{"city": "berlin"}

	first, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)
	second, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, inner.calls.Load(),
		"two identical calls within TTL invoke the wrapped executor exactly once")
}

func TestCachedExecutorDistinctArgsMiss(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: okResult()}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(true)
	_, err := exec.Execute(ctx, tool, map[string]any{"city": "berlin"})
	require.NoError(t, err)
	_, err = exec.Execute(ctx, tool, map[string]any{"city": "paris"})
	require.NoError(t, err)

	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestCachedExecutorToolDisabledNeverCaches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: okResult()}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(false)
	args := map[string]any{"city": "berlin"}

	_, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)
	_, err = exec.Execute(ctx, tool, args)
	require.NoError(t, err)

	assert.EqualValues(t, 2, inner.calls.Load())

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a tool with caching disabled never writes to the store")
}

func TestCachedExecutorGloballyDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: okResult()}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, false)

	tool := cachedTool(true)
	args := map[string]any{"city": "berlin"}

	_, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)
	_, err = exec.Execute(ctx, tool, args)
	require.NoError(t, err)

	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestCachedExecutorErrorResultsNotCachedByDefault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: &apitools.Result{
		IsError:      true,
		ErrorCode:    "api_server_error",
		ErrorMessage: "upstream exploded",
	}}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(true)
	args := map[string]any{"city": "berlin"}

	_, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)
	_, err = exec.Execute(ctx, tool, args)
	require.NoError(t, err)

	assert.EqualValues(t, 2, inner.calls.Load(),
		"error results are not cached unless the tool opts in")
}

func TestCachedExecutorErrorResultsCachedWhenOptedIn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: &apitools.Result{
		IsError:      true,
		ErrorCode:    "api_rate_limited",
		ErrorMessage: "slow down",
	}}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(true)
	tool.Cache.CacheErrors = true
	args := map[string]any{"city": "berlin"}

	first, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)
	second, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)

	assert.EqualValues(t, 1, inner.calls.Load())
	assert.True(t, second.IsError)
	assert.Equal(t, first.ErrorMessage, second.ErrorMessage)
}

func TestCachedExecutorGoErrorsNeverCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{err: errors.New("connection refused")}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(true)
	tool.Cache.CacheErrors = true

	_, err := exec.Execute(ctx, tool, nil)
	require.Error(t, err)

	n, lenErr := store.Len(ctx)
	require.NoError(t, lenErr)
	assert.Zero(t, n, "transport failures are returned, never stored")
}

func TestCachedExecutorDegradesOnStoreFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: okResult()}
	exec := NewCachedExecutor(inner, failingStore{}, &KeyBuilder{}, true)

	result, err := exec.Execute(ctx, cachedTool(true), map[string]any{"city": "berlin"})
	require.NoError(t, err, "cache failure must never break the call")
	assert.Equal(t, okResult(), result)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachedExecutorRedisRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: okResult()}
	store, _ := newRedisStore(t)
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(true)
	args := map[string]any{"city": "berlin"}

	first, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)
	second, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)

	assert.EqualValues(t, 1, inner.calls.Load())
	assert.False(t, second.IsError)
	assert.Equal(t, first.Data, second.Data, "results survive the Redis JSON round trip")
}

func TestCachedExecutorInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: okResult()}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(true)
	args := map[string]any{"city": "berlin"}

	_, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)
	require.NoError(t, exec.Invalidate(ctx, tool.ID, args))
	_, err = exec.Execute(ctx, tool, args)
	require.NoError(t, err)

	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestCachedExecutorStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: okResult()}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(true)
	args := map[string]any{"city": "berlin"}

	_, err := exec.Execute(ctx, tool, args)
	require.NoError(t, err)
	_, err = exec.Execute(ctx, tool, args)
	require.NoError(t, err)
	_, err = exec.Execute(ctx, tool, map[string]any{"city": "paris"})
	require.NoError(t, err)

	stats := exec.Stats()
	assert.EqualValues(t, 3, stats.TotalCalls)
	assert.EqualValues(t, 1, stats.Hits)
}

func TestCachedExecutorWarmUp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{result: okResult()}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	tool := cachedTool(true)
	argsList := []map[string]any{
		{"city": "berlin"},
		{"city": "paris"},
	}

	succeeded, failed := exec.WarmUp(ctx, tool, argsList)
	assert.Equal(t, 2, succeeded)
	assert.Zero(t, failed)

	// Warmed entries now serve without touching the executor.
	before := inner.calls.Load()
	for _, args := range argsList {
		_, err := exec.Execute(ctx, tool, args)
		require.NoError(t, err)
	}
	assert.Equal(t, before, inner.calls.Load())
}

func TestCachedExecutorWarmUpPartialFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &countingExecutor{err: errors.New("connection refused")}
	store := NewMemoryStore(0)
	defer store.Close()
	exec := NewCachedExecutor(inner, store, &KeyBuilder{}, true)

	succeeded, failed := exec.WarmUp(ctx, cachedTool(true), []map[string]any{
		{"city": "berlin"},
		{"city": "paris"},
	})
	assert.Zero(t, succeeded)
	assert.Equal(t, 2, failed, "one failing entry never aborts the rest")
}
