// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"github.com/stacklok/toolhub/pkg/cache"
	"github.com/stacklok/toolhub/pkg/groups"
	"github.com/stacklok/toolhub/pkg/upstream"
)

// APIServerID is the pseudo server id under which HTTP-backed tools are
// listed. It never collides with configured servers because it is not a
// valid server config id.
const APIServerID = "api"

// ToolDescriptor is the caller-facing view of one tool, native or
// HTTP-backed.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	ServerID    string         `json:"serverId"`
}

// CallResult is the uniform outcome of a tool invocation.
type CallResult struct {
	Content []upstream.Content `json:"content"`
	IsError bool               `json:"isError,omitempty"`
}

// Diagnostics aggregates the health of every subsystem.
type Diagnostics struct {
	Servers     map[string]upstream.Health `json:"servers"`
	Groups      []*groups.GroupHealth      `json:"groups"`
	Cache       cache.Stats                `json:"cache"`
	HistorySize int                        `json:"historySize"`
	APITools    int                        `json:"apiTools"`
}
