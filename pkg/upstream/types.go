// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package upstream manages connections to upstream MCP servers.
//
// Each configured server gets one Connection owned by the Manager. All
// status transitions go through the Manager; servers connect and reconnect
// independently, so one unreachable server never blocks the others.
package upstream

import (
	"time"
)

// Status is the lifecycle state of a server connection.
type Status string

const (
	// StatusDisconnected means no connection attempt is active.
	StatusDisconnected Status = "disconnected"

	// StatusConnecting means a connect or reconnect is in flight.
	StatusConnecting Status = "connecting"

	// StatusConnected means the MCP handshake and tool discovery succeeded.
	StatusConnected Status = "connected"

	// StatusError means the last connect attempt failed.
	StatusError Status = "error"
)

// Tool is one tool advertised by an upstream server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	ServerID    string         `json:"serverId"`
}

// Content is one content item of a tool result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the outcome of a tool call on an upstream server.
// IsError is a protocol-level error reported by the tool itself, not a
// transport failure.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Health is a point-in-time snapshot of one connection.
type Health struct {
	ServerID          string    `json:"serverId"`
	Status            Status    `json:"status"`
	ToolCount         int       `json:"toolCount"`
	LastConnectedAt   time.Time `json:"lastConnectedAt,omitzero"`
	LastError         string    `json:"lastError,omitempty"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
}
