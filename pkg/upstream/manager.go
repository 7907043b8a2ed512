// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/errors"
	"github.com/stacklok/toolhub/pkg/logger"
)

// Manager owns every upstream connection. Servers connect independently,
// each on its own goroutine; failed connections reconnect with bounded
// exponential backoff until the per-server attempt budget is spent or the
// manager shuts down.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	factory         ClientFactory
	reconnectBase   time.Duration
	reconnectCap    time.Duration
	reconnectNotify func(serverID string, next time.Duration)

	// lifecycle governs all background reconnect loops.
	lifecycle context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClientFactory substitutes the MCP client factory, mainly for tests.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *Manager) { m.factory = f }
}

// WithReconnectPolicy overrides the reconnect backoff bounds.
func WithReconnectPolicy(base, cap time.Duration) ManagerOption {
	return func(m *Manager) {
		m.reconnectBase = base
		m.reconnectCap = cap
	}
}

// WithReconnectNotify registers a callback invoked after each failed
// reconnect attempt with the delay before the next one, mainly for tests.
func WithReconnectNotify(f func(serverID string, next time.Duration)) ManagerOption {
	return func(m *Manager) { m.reconnectNotify = f }
}

// NewManager creates a Manager for the given server configurations.
// No connections are attempted until Initialize.
func NewManager(servers []config.ServerConfig, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		conns:         make(map[string]*Connection, len(servers)),
		factory:       DefaultClientFactory,
		reconnectBase: config.DefaultReconnectBase,
		reconnectCap:  config.DefaultReconnectCap,
		lifecycle:     ctx,
		cancel:        cancel,
	}
	for i := range servers {
		cfg := servers[i]
		config.ApplyServerDefaults(&cfg)
		m.conns[cfg.ID] = newConnection(&cfg)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize starts one connect attempt per configured server and returns
// immediately. Partial availability is normal; callers observe progress
// through ServerHealth.
func (m *Manager) Initialize(_ context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logger.Infow("connecting to upstream servers", "count", len(m.conns))
	for id := range m.conns {
		serverID := id
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.Connect(m.lifecycle, serverID); err != nil {
				m.scheduleReconnect(serverID)
			}
		}()
	}
}

// Connect attempts a single connection to serverID: create the transport,
// run the MCP handshake, discover tools. The whole sequence races the
// server's connect timeout; on timeout the slow branch is abandoned and the
// connection reports unavailable.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	conn, err := m.connection(serverID)
	if err != nil {
		return err
	}
	if !conn.markConnecting() {
		// Another connect is already in flight.
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, conn.Config().ConnectTimeout.Std())
	defer cancel()

	client, tools, err := m.establish(connectCtx, conn.Config())
	if err != nil {
		conn.markError(err)
		logger.Warnw("upstream connection failed",
			"server", serverID,
			"attempts", conn.Health().ReconnectAttempts,
			"error", err)
		return errors.NewServerUnavailableError(
			fmt.Sprintf("failed to connect to server %s", serverID), err)
	}

	conn.markConnected(client, tools)
	logger.Infow("upstream server connected", "server", serverID, "tools", len(tools))
	return nil
}

// establish runs factory → handshake → discovery under ctx. If ctx expires
// mid-flight, the client created by the slow branch is closed and the
// deadline error wins.
func (m *Manager) establish(ctx context.Context, cfg *config.ServerConfig) (MCPClient, []Tool, error) {
	type outcome struct {
		client MCPClient
		tools  []Tool
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		client, err := m.factory(ctx, cfg)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		if err := client.Initialize(ctx); err != nil {
			_ = client.Close()
			done <- outcome{err: fmt.Errorf("initialize handshake: %w", err)}
			return
		}
		tools, err := client.ListTools(ctx)
		if err != nil {
			_ = client.Close()
			done <- outcome{err: fmt.Errorf("tool discovery: %w", err)}
			return
		}
		done <- outcome{client: client, tools: tools}
	}()

	select {
	case out := <-done:
		return out.client, out.tools, out.err
	case <-ctx.Done():
		// Abandon the slow branch; close its client if it ever finishes.
		go func() {
			if out := <-done; out.client != nil {
				_ = out.client.Close()
			}
		}()
		return nil, nil, fmt.Errorf("connect timed out after %s: %w", cfg.ConnectTimeout.Std(), ctx.Err())
	}
}

// scheduleReconnect runs the bounded exponential reconnect loop for one
// server in the background.
func (m *Manager) scheduleReconnect(serverID string) {
	conn, err := m.connection(serverID)
	if err != nil {
		return
	}
	maxAttempts := conn.Config().MaxReconnects
	if maxAttempts <= 0 {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		expBackoff := backoff.NewExponentialBackOff()
		expBackoff.InitialInterval = m.reconnectBase
		expBackoff.MaxInterval = m.reconnectCap
		// No jitter: each delay is at least the previous one, up to the cap.
		expBackoff.RandomizationFactor = 0

		operation := func() (struct{}, error) {
			if err := m.Connect(m.lifecycle, serverID); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, nil
		}

		_, err := backoff.Retry(m.lifecycle, operation,
			backoff.WithBackOff(expBackoff),
			backoff.WithMaxTries(uint(maxAttempts)),
			backoff.WithNotify(func(err error, next time.Duration) {
				logger.Debugw("reconnect attempt failed",
					"server", serverID, "retry_in", next, "error", err)
				if m.reconnectNotify != nil {
					m.reconnectNotify(serverID, next)
				}
			}),
		)
		if err != nil {
			logger.Warnw("giving up on upstream server",
				"server", serverID, "max_attempts", maxAttempts, "error", err)
		}
	}()
}

// connection looks up a connection by server id.
func (m *Manager) connection(serverID string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[serverID]
	if !ok {
		return nil, errors.NewServerNotFoundError(
			fmt.Sprintf("server %s is not configured", serverID), nil)
	}
	return conn, nil
}

// Connection exposes a connection for read-only inspection.
func (m *Manager) Connection(serverID string) (*Connection, error) {
	return m.connection(serverID)
}

// ServerIDs returns every configured server id.
func (m *Manager) ServerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids
}

// ServerTools returns the tools currently advertised by serverID.
// A server that is not connected contributes an empty list, not an error.
func (m *Manager) ServerTools(serverID string) ([]Tool, error) {
	conn, err := m.connection(serverID)
	if err != nil {
		return nil, err
	}
	if conn.Status() != StatusConnected {
		return nil, nil
	}
	return conn.Tools(), nil
}

// IsAvailable reports whether serverID is currently connected.
func (m *Manager) IsAvailable(serverID string) bool {
	conn, err := m.connection(serverID)
	if err != nil {
		return false
	}
	return conn.Status() == StatusConnected
}

// ServerHealth returns a consistent snapshot of every connection. The
// snapshot has no side effects and stays accurate during in-flight
// reconnects.
func (m *Manager) ServerHealth() map[string]Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := make(map[string]Health, len(m.conns))
	for id, conn := range m.conns {
		health[id] = conn.Health()
	}
	return health
}

// ExecuteTool invokes toolName on serverID.
//
// The server must be connected and must advertise the tool; downstream
// failures are wrapped as tool execution errors, never swallowed. A
// transport failure on a live connection also demotes the server to error
// and hands it back to the reconnect loop.
func (m *Manager) ExecuteTool(ctx context.Context, serverID, toolName string, args map[string]any) (*ToolResult, error) {
	conn, err := m.connection(serverID)
	if err != nil {
		return nil, err
	}

	client := conn.Client()
	if client == nil {
		return nil, errors.NewServerUnavailableError(
			fmt.Sprintf("server %s is not connected (status: %s)", serverID, conn.Status()), nil)
	}
	if _, ok := conn.findTool(toolName); !ok {
		return nil, errors.NewToolServerMismatchError(
			fmt.Sprintf("tool %s is not provided by server %s", toolName, serverID), nil)
	}

	result, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		// A transport failure on a live connection means the server is gone,
		// not just this call. A canceled caller context is not the server's
		// fault and leaves the connection alone.
		if ctx.Err() == nil && conn.markCallFailed(client, err) {
			_ = client.Close()
			logger.Warnw("upstream server lost, scheduling reconnect",
				"server", serverID, "error", err)
			m.scheduleReconnect(serverID)
		}
		return nil, errors.NewToolExecutionError(
			fmt.Sprintf("tool %s failed on server %s", toolName, serverID), err)
	}
	return result, nil
}

// Disconnect closes one server's connection and stops serving its tools.
func (m *Manager) Disconnect(serverID string) error {
	conn, err := m.connection(serverID)
	if err != nil {
		return err
	}
	if client := conn.markDisconnected(); client != nil {
		if err := client.Close(); err != nil {
			logger.Warnw("error closing upstream client", "server", serverID, "error", err)
		}
	}
	return nil
}

// Shutdown stops reconnect loops and closes all connections concurrently.
// Individual close failures are logged, not propagated; shutdown is
// best-effort and always succeeds.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	g, _ := errgroup.WithContext(ctx)
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if client := conn.markDisconnected(); client != nil {
				if err := client.Close(); err != nil {
					logger.Warnw("error closing upstream client",
						"server", conn.Config().ID, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	m.wg.Wait()

	logger.Info("upstream manager shut down")
	return nil
}
