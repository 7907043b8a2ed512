// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package history keeps a bounded in-memory log of tool executions.
//
// The log is a ring: once full, each new record evicts the oldest one.
// It exists for diagnostics and is intentionally not durable.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one completed tool execution.
type Record struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"toolName"`
	ServerID  string         `json:"serverId,omitempty"`
	GroupID   string         `json:"groupId,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	IsError   bool           `json:"isError"`
	Duration  time.Duration  `json:"duration"`
	Timestamp time.Time      `json:"timestamp"`
}

// Log is a fixed-capacity ring of execution records.
type Log struct {
	mu      sync.RWMutex
	records []Record
	next    int
	full    bool
}

// NewLog creates a log holding at most capacity records.
// capacity <= 0 falls back to 1.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{records: make([]Record, capacity)}
}

// Append stores a record, assigning it a fresh id, and returns that id.
// When the log is full the oldest record is overwritten.
func (l *Log) Append(record Record) string {
	record.ID = uuid.NewString()
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[l.next] = record
	l.next++
	if l.next == len(l.records) {
		l.next = 0
		l.full = true
	}
	return record.ID
}

// Recent returns up to n records, newest first. n <= 0 returns everything.
func (l *Log) Recent(n int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.sizeLocked()
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.next - 1 - i + len(l.records)) % len(l.records)
		out = append(out, l.records[idx])
	}
	return out
}

// Len reports the number of stored records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sizeLocked()
}

// Capacity reports the maximum number of records the log holds.
func (l *Log) Capacity() int {
	return len(l.records)
}

// Clear drops all records.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = 0
	l.full = false
	for i := range l.records {
		l.records[i] = Record{}
	}
}

func (l *Log) sizeLocked() int {
	if l.full {
		return len(l.records)
	}
	return l.next
}
