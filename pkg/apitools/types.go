// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package apitools turns arbitrary HTTP APIs into tools.
//
// Each call runs a fixed pipeline: build request → apply auth → send with
// retry → normalize response → transform. Failures map to the typed error
// taxonomy; a broken transform expression degrades to a tagged fallback
// object instead of failing the call.
package apitools

import (
	"context"

	"github.com/stacklok/toolhub/pkg/config"
)

// Result is the outcome of one API tool execution.
type Result struct {
	// Data is the transformed response payload.
	Data any `json:"data"`

	// IsError marks results that represent an upstream failure which was
	// mapped to a typed error but still produced a caller-visible result.
	IsError bool `json:"isError,omitempty"`

	// ErrorCode is the stable taxonomy code when IsError is set.
	ErrorCode string `json:"errorCode,omitempty"`

	// ErrorMessage is the human message when IsError is set.
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Executor executes an API tool with the given arguments.
// The cache decorator wraps this interface; Pipeline is the real
// implementation.
type Executor interface {
	Execute(ctx context.Context, tool *config.APIToolConfig, args map[string]any) (*Result, error)
}
