// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemoryStore(0)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k1", "v1", time.Minute))

	got, found, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", got)

	_, found, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemoryStore(0)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k1", "v1", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, found, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found, "expired entries read as absent")

	// The lazy eviction on Get also removed the entry.
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStoreCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemoryStore(0)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "short", 1, 10*time.Millisecond))
	require.NoError(t, s.Set(ctx, "long", 2, time.Minute))
	time.Sleep(25 * time.Millisecond)

	require.NoError(t, s.Cleanup(ctx))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, found, err := s.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMemoryStoreBoundedEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemoryStore(3)
	defer s.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), i, time.Minute))
		time.Sleep(time.Millisecond) // distinct insertion times
	}
	require.NoError(t, s.Set(ctx, "k3", 3, time.Minute))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "store never exceeds its bound")

	_, found, err := s.Get(ctx, "k0")
	require.NoError(t, err)
	assert.False(t, found, "the oldest entry is the one evicted")

	_, found, err = s.Get(ctx, "k3")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMemoryStoreOverwriteDoesNotEvict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemoryStore(2)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, s.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, s.Set(ctx, "a", 10, time.Minute))

	got, found, err := s.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, found, "overwriting an existing key must not evict others")
	assert.Equal(t, 2, got)

	got, _, _ = s.Get(ctx, "a")
	assert.Equal(t, 10, got)
}

func TestMemoryStoreClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewMemoryStore(0)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, s.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, s.Clear(ctx))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(0)
	s.StartCleanup(time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
