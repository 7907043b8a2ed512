// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apitools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEvaluator lets the chain be exercised independent of gjson.
type stubEvaluator struct {
	results map[string]any
	errs    map[string]error
}

func (s *stubEvaluator) Evaluate(expr string, _ any) (any, error) {
	if err, ok := s.errs[expr]; ok {
		return nil, err
	}
	if v, ok := s.results[expr]; ok {
		return v, nil
	}
	return nil, errors.New("no such expression")
}

func TestTransformPrimaryWins(t *testing.T) {
	t.Parallel()

	eval := &stubEvaluator{results: map[string]any{"primary": "ok"}}
	out := Transform(eval, "t1", "primary", "fallback", map[string]any{"raw": true})
	assert.Equal(t, "ok", out)
}

func TestTransformFallsBack(t *testing.T) {
	t.Parallel()

	eval := &stubEvaluator{
		errs:    map[string]error{"primary": errors.New("boom")},
		results: map[string]any{"fallback": "rescued"},
	}
	out := Transform(eval, "t1", "primary", "fallback", nil)
	assert.Equal(t, "rescued", out)
}

func TestTransformTaggedFallbackObject(t *testing.T) {
	t.Parallel()

	eval := &stubEvaluator{errs: map[string]error{
		"primary":  errors.New("primary boom"),
		"fallback": errors.New("fallback boom"),
	}}
	data := map[string]any{"raw": "payload"}

	out := Transform(eval, "t1", "primary", "fallback", data)
	m, ok := out.(map[string]any)
	require.True(t, ok, "both expressions failing must not panic or throw")
	assert.Equal(t, true, m["_fallback"])
	assert.Equal(t, "primary boom", m["_originalError"])
	assert.Equal(t, data, m["_data"])
}

func TestTransformEmptyExpressionPassesThrough(t *testing.T) {
	t.Parallel()

	data := map[string]any{"untouched": true}
	out := Transform(&stubEvaluator{}, "t1", "", "unused", data)
	assert.Equal(t, data, out)
}

func TestGJSONEvaluator(t *testing.T) {
	t.Parallel()

	eval := &GJSONEvaluator{}
	data := map[string]any{
		"weather": map[string]any{"temp": 21.5},
		"tags":    []any{"a", "b"},
	}

	out, err := eval.Evaluate("weather.temp", data)
	require.NoError(t, err)
	assert.Equal(t, 21.5, out)

	out, err = eval.Evaluate("tags.1", data)
	require.NoError(t, err)
	assert.Equal(t, "b", out)

	_, err = eval.Evaluate("no.such.path", data)
	require.Error(t, err, "a non-matching expression must error so the chain can fall back")
}
