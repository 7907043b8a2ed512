// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apitools

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/stacklok/toolhub/pkg/logger"
)

// Evaluator evaluates a declarative extraction expression against a
// normalized response value. It is an injected capability so the transform
// chain (primary → fallback → tagged raw fallback) stays testable
// independent of the expression language.
type Evaluator interface {
	// Evaluate applies expr to data. An expression that matches nothing
	// must return an error, not a nil result.
	Evaluate(expr string, data any) (any, error)
}

// GJSONEvaluator evaluates gjson path expressions.
type GJSONEvaluator struct{}

// Evaluate applies a gjson path to the JSON form of data.
func (*GJSONEvaluator) Evaluate(expr string, data any) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding data for expression %q: %w", expr, err)
	}
	result := gjson.GetBytes(raw, expr)
	if !result.Exists() {
		return nil, fmt.Errorf("expression %q matched nothing", expr)
	}
	return result.Value(), nil
}

// Transform runs the configured transform chain over a normalized response.
//
// The primary expression is tried first, then the fallback expression. If
// both fail the raw data is returned wrapped in a tagged fallback object,
// so one consumer's bad expression cannot take down the call:
//
//	{"_fallback": true, "_originalError": "...", "_data": <normalized>}
func Transform(eval Evaluator, toolID, primary, fallback string, data any) any {
	if primary == "" {
		return data
	}

	result, err := eval.Evaluate(primary, data)
	if err == nil {
		return result
	}
	primaryErr := err
	logger.Debugw("primary transform failed", "tool", toolID, "expr", primary, "error", err)

	if fallback != "" {
		result, err = eval.Evaluate(fallback, data)
		if err == nil {
			return result
		}
		logger.Debugw("fallback transform failed", "tool", toolID, "expr", fallback, "error", err)
	}

	logger.Warnw("all transforms failed, returning raw data", "tool", toolID, "error", primaryErr)
	return map[string]any{
		"_fallback":      true,
		"_originalError": primaryErr.Error(),
		"_data":          data,
	}
}
