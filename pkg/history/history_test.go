// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsIDs(t *testing.T) {
	t.Parallel()

	l := NewLog(10)
	id1 := l.Append(Record{ToolName: "echo"})
	id2 := l.Append(Record{ToolName: "echo"})

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, l.Len())

	recent := l.Recent(0)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].Timestamp.IsZero())
}

func TestRecentNewestFirst(t *testing.T) {
	t.Parallel()

	l := NewLog(10)
	for i := 0; i < 3; i++ {
		l.Append(Record{ToolName: fmt.Sprintf("tool-%d", i)})
	}

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "tool-2", recent[0].ToolName)
	assert.Equal(t, "tool-1", recent[1].ToolName)
}

func TestRingEvictsOldest(t *testing.T) {
	t.Parallel()

	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Append(Record{ToolName: fmt.Sprintf("tool-%d", i)})
	}

	assert.Equal(t, 3, l.Len())
	recent := l.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "tool-4", recent[0].ToolName)
	assert.Equal(t, "tool-2", recent[2].ToolName, "the oldest records are gone")
}

func TestClear(t *testing.T) {
	t.Parallel()

	l := NewLog(3)
	l.Append(Record{ToolName: "echo"})
	l.Clear()

	assert.Zero(t, l.Len())
	assert.Empty(t, l.Recent(0))
	assert.Equal(t, 3, l.Capacity())
}

func TestZeroCapacityFallsBack(t *testing.T) {
	t.Parallel()

	l := NewLog(0)
	assert.Equal(t, 1, l.Capacity())
	l.Append(Record{ToolName: "a"})
	l.Append(Record{ToolName: "b"})
	recent := l.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].ToolName)
}
