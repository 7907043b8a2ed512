// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// KeyBuilder builds deterministic cache keys for tool executions.
// Semantically equal argument objects always produce the same key,
// regardless of map iteration or insertion order.
type KeyBuilder struct {
	// Namespace is an optional prefix that isolates keys, e.g. per hub
	// instance when several share one Redis.
	Namespace string
}

// BuildKey creates a cache key for a (tool, arguments) pair.
func (b *KeyBuilder) BuildKey(toolID string, args map[string]any) string {
	sum := sha256.Sum256([]byte(canonicalJSON(args)))
	digest := hex.EncodeToString(sum[:])
	if b.Namespace != "" {
		return fmt.Sprintf("%s:%s:%s", b.Namespace, toolID, digest)
	}
	return fmt.Sprintf("%s:%s", toolID, digest)
}

// canonicalJSON renders a value as JSON with all object keys sorted,
// recursively, so that key order never leaks into the digest.
func canonicalJSON(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			writeCanonical(sb, val[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		// Scalars (and anything exotic) go through encoding/json, which is
		// deterministic for a single value.
		out, err := json.Marshal(val)
		if err != nil {
			sb.WriteString(fmt.Sprintf("%q", fmt.Sprintf("%v", val)))
			return
		}
		sb.Write(out)
	}
}
