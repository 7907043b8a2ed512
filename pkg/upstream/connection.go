// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"sync"
	"time"

	"github.com/stacklok/toolhub/pkg/config"
)

// Connection tracks the state of one upstream server. All fields are
// guarded by mu; mutation happens only through the transition methods so
// that status, tools and error bookkeeping stay consistent.
type Connection struct {
	mu sync.RWMutex

	cfg    *config.ServerConfig
	client MCPClient

	status            Status
	tools             []Tool
	lastConnectedAt   time.Time
	lastError         error
	reconnectAttempts int
}

func newConnection(cfg *config.ServerConfig) *Connection {
	return &Connection{
		cfg:    cfg,
		status: StatusDisconnected,
	}
}

// Config returns the server configuration.
func (c *Connection) Config() *config.ServerConfig {
	return c.cfg
}

// Status returns the current lifecycle state.
func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Tools returns a copy of the discovered tool list.
func (c *Connection) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Client returns the active client, or nil unless connected.
func (c *Connection) Client() MCPClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status != StatusConnected {
		return nil
	}
	return c.client
}

// Health returns a point-in-time snapshot.
func (c *Connection) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := Health{
		ServerID:          c.cfg.ID,
		Status:            c.status,
		ToolCount:         len(c.tools),
		LastConnectedAt:   c.lastConnectedAt,
		ReconnectAttempts: c.reconnectAttempts,
	}
	if c.lastError != nil {
		h.LastError = c.lastError.Error()
	}
	return h
}

// markConnecting transitions to connecting. Returns false if a connect is
// already in flight, so concurrent triggers collapse into one attempt.
func (c *Connection) markConnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusConnecting {
		return false
	}
	c.status = StatusConnecting
	return true
}

// markConnected installs the client and its discovered tools.
func (c *Connection) markConnected(client MCPClient, tools []Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = client
	c.tools = tools
	c.status = StatusConnected
	c.lastConnectedAt = time.Now()
	c.lastError = nil
	c.reconnectAttempts = 0
}

// markError records a failed attempt. The tool list from a previous
// successful connect is cleared; stale tools must not be served.
func (c *Connection) markError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = nil
	c.tools = nil
	c.status = StatusError
	c.lastError = err
	c.reconnectAttempts++
}

// markCallFailed transitions a live connection to error after a transport
// failure. It applies only while client is still the active client, so a
// stale failure report never clobbers a newer connection.
func (c *Connection) markCallFailed(client MCPClient, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusConnected || c.client != client {
		return false
	}
	c.client = nil
	c.tools = nil
	c.status = StatusError
	c.lastError = err
	c.reconnectAttempts++
	return true
}

// markDisconnected detaches the client and returns it for closing.
func (c *Connection) markDisconnected() MCPClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	client := c.client
	c.client = nil
	c.tools = nil
	c.status = StatusDisconnected
	return client
}

// findTool reports whether the server currently advertises toolName.
func (c *Connection) findTool(toolName string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tools {
		if t.Name == toolName {
			return t, true
		}
	}
	return Tool{}, false
}
