// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package hub wires the upstream, group, API-tool and cache layers into one
// facade.
//
// HubContext replaces any notion of a global hub singleton: it is built once
// at process start and handed to whoever serves requests. Lifecycle is
// explicit through Initialize and Shutdown, and the context can be
// re-initialized from a fresh configuration snapshot.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stacklok/toolhub/pkg/apitools"
	"github.com/stacklok/toolhub/pkg/cache"
	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/errors"
	"github.com/stacklok/toolhub/pkg/groups"
	"github.com/stacklok/toolhub/pkg/history"
	"github.com/stacklok/toolhub/pkg/logger"
	"github.com/stacklok/toolhub/pkg/upstream"
)

// HubContext owns every subsystem of the hub.
type HubContext struct {
	mu sync.RWMutex

	servers  *upstream.Manager
	groups   *groups.Manager
	executor *cache.CachedExecutor
	apiTools map[string]*config.APIToolConfig
	log      *history.Log

	// construction-time knobs
	clientFactory   upstream.ClientFactory
	reconnectBase   time.Duration
	reconnectCap    time.Duration
	store           cache.Store
	pipeline        apitools.Executor
	cacheEnabled    bool
	cacheNamespace  string
	healthyRatio    float64
	historyCapacity int

	initialized bool
}

// Option customizes a HubContext.
type Option func(*HubContext)

// WithClientFactory substitutes the upstream MCP client factory.
func WithClientFactory(f upstream.ClientFactory) Option {
	return func(h *HubContext) { h.clientFactory = f }
}

// WithReconnectPolicy overrides the upstream reconnect backoff bounds.
func WithReconnectPolicy(base, cap time.Duration) Option {
	return func(h *HubContext) {
		h.reconnectBase = base
		h.reconnectCap = cap
	}
}

// WithCacheStore substitutes the cache backend (e.g. Redis).
func WithCacheStore(s cache.Store) Option {
	return func(h *HubContext) { h.store = s }
}

// WithCacheEnabled toggles the hub-wide cache switch.
func WithCacheEnabled(enabled bool) Option {
	return func(h *HubContext) { h.cacheEnabled = enabled }
}

// WithCacheNamespace prefixes all cache keys, isolating hub instances that
// share one backend.
func WithCacheNamespace(ns string) Option {
	return func(h *HubContext) { h.cacheNamespace = ns }
}

// WithPipeline substitutes the HTTP execution pipeline, mainly for tests.
func WithPipeline(e apitools.Executor) Option {
	return func(h *HubContext) { h.pipeline = e }
}

// WithHealthyRatio overrides the group health warning threshold.
func WithHealthyRatio(ratio float64) Option {
	return func(h *HubContext) { h.healthyRatio = ratio }
}

// WithHistoryCapacity bounds the execution history ring.
func WithHistoryCapacity(n int) Option {
	return func(h *HubContext) { h.historyCapacity = n }
}

// New creates an uninitialized HubContext.
func New(opts ...Option) *HubContext {
	h := &HubContext{
		clientFactory:   upstream.DefaultClientFactory,
		reconnectBase:   config.DefaultReconnectBase,
		reconnectCap:    config.DefaultReconnectCap,
		cacheEnabled:    true,
		healthyRatio:    config.DefaultHealthyRatio,
		historyCapacity: config.DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Initialize builds every subsystem from a configuration snapshot. Calling
// it on an initialized context tears the old subsystems down first, so a
// fresh snapshot can be applied at runtime.
func (h *HubContext) Initialize(ctx context.Context, snapshot *config.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.initialized {
		if err := h.shutdownLocked(ctx); err != nil {
			return err
		}
	}

	h.servers = upstream.NewManager(snapshot.Servers,
		upstream.WithClientFactory(h.clientFactory),
		upstream.WithReconnectPolicy(h.reconnectBase, h.reconnectCap))
	h.servers.Initialize(ctx)

	h.groups = groups.NewManager(h.servers, groups.WithHealthyRatio(h.healthyRatio))
	h.groups.Initialize(snapshot.Groups)

	h.apiTools = make(map[string]*config.APIToolConfig, len(snapshot.APITools))
	for i := range snapshot.APITools {
		tool := snapshot.APITools[i]
		config.ApplyAPIToolDefaults(&tool)
		if missing := apitools.ValidateEnvironmentVariables(&tool); len(missing) > 0 {
			logger.Warnw("api tool references unset environment variables",
				"tool", tool.ID, "missing", missing)
		}
		h.apiTools[tool.Name] = &tool
	}

	store := h.store
	if store == nil {
		store = cache.NewMemoryStore(config.DefaultCacheMaxEntries)
	}
	pipeline := h.pipeline
	if pipeline == nil {
		pipeline = apitools.NewPipeline()
	}
	h.executor = cache.NewCachedExecutor(pipeline, store,
		&cache.KeyBuilder{Namespace: h.cacheNamespace}, h.cacheEnabled)

	h.log = history.NewLog(h.historyCapacity)
	h.initialized = true

	logger.Infow("hub initialized",
		"servers", len(snapshot.Servers),
		"groups", len(snapshot.Groups),
		"api_tools", len(h.apiTools))
	return nil
}

// Shutdown stops all subsystems. Safe to call more than once.
func (h *HubContext) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shutdownLocked(ctx)
}

func (h *HubContext) shutdownLocked(ctx context.Context) error {
	if !h.initialized {
		return nil
	}
	if err := h.servers.Shutdown(ctx); err != nil {
		logger.Warnw("upstream shutdown reported error", "error", err)
	}
	h.initialized = false
	logger.Info("hub shut down")
	return nil
}

// Groups exposes the group manager for CRUD surfaces.
func (h *HubContext) Groups() *groups.Manager {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.groups
}

// History exposes the execution log.
func (h *HubContext) History() *history.Log {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.log
}

// ready returns the subsystems under a read lock, or an error before
// Initialize.
func (h *HubContext) ready() error {
	if !h.initialized {
		return errors.NewConfigValidationError("hub is not initialized", nil)
	}
	return nil
}

// ListTools returns the tools visible through groupID: the group's native
// tools plus HTTP-backed tools, both narrowed by the group's filter. A
// non-empty serverID restricts the listing to that server; HTTP-backed
// tools are listed under the pseudo server id "api".
func (h *HubContext) ListTools(ctx context.Context, groupID, serverID string) ([]ToolDescriptor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.ready(); err != nil {
		return nil, err
	}

	group, err := h.groups.GetGroup(groupID)
	if err != nil {
		return nil, err
	}

	native, err := h.groups.GetGroupTools(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var out []ToolDescriptor
	for _, t := range native {
		if serverID != "" && t.ServerID != serverID {
			continue
		}
		out = append(out, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ServerID:    t.ServerID,
		})
	}

	if serverID == "" || serverID == APIServerID {
		filter := make(map[string]bool, len(group.ToolFilter))
		for _, name := range group.ToolFilter {
			filter[name] = true
		}
		for name, tool := range h.apiTools {
			if len(filter) > 0 && !filter[name] {
				continue
			}
			out = append(out, ToolDescriptor{
				Name:        name,
				Description: tool.Description,
				InputSchema: tool.HTTP.ParamSchema,
				ServerID:    APIServerID,
			})
		}
	}
	return out, nil
}

// CallTool executes toolName through groupID. HTTP-backed tools route
// through the cached executor pipeline; native tools go to their upstream
// server. Arguments are validated against the tool's input schema before
// dispatch, and every execution is recorded in the history log.
func (h *HubContext) CallTool(ctx context.Context, toolName string, args map[string]any, groupID string) (*CallResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.ready(); err != nil {
		return nil, err
	}

	if _, err := h.groups.GetGroup(groupID); err != nil {
		return nil, err
	}

	start := time.Now()

	if tool, ok := h.apiTools[toolName]; ok {
		if !h.apiToolAllowed(groupID, toolName) {
			return nil, errors.NewToolNotFoundError(
				fmt.Sprintf("tool %s is not available in group %s", toolName, groupID), nil)
		}
		if err := validateArgs(tool.HTTP.ParamSchema, args); err != nil {
			return nil, err
		}

		result, err := h.executor.Execute(ctx, tool, args)
		h.record(history.Record{
			ToolName:  toolName,
			ServerID:  APIServerID,
			GroupID:   groupID,
			Arguments: args,
			Result:    result,
			IsError:   err != nil || (result != nil && result.IsError),
			Duration:  time.Since(start),
		})
		if err != nil {
			return nil, err
		}
		return apiCallResult(result), nil
	}

	if !h.groups.ValidateToolAccess(groupID, toolName) {
		return nil, errors.NewToolNotFoundError(
			fmt.Sprintf("tool %s is not available in group %s", toolName, groupID), nil)
	}
	match, ok := h.groups.FindToolInGroup(ctx, groupID, toolName)
	if !ok {
		return nil, errors.NewToolNotFoundError(
			fmt.Sprintf("tool %s was not found in group %s", toolName, groupID), nil)
	}
	if err := validateArgs(match.Tool.InputSchema, args); err != nil {
		return nil, err
	}

	result, err := h.servers.ExecuteTool(ctx, match.ServerID, toolName, args)
	h.record(history.Record{
		ToolName:  toolName,
		ServerID:  match.ServerID,
		GroupID:   groupID,
		Arguments: args,
		Result:    result,
		IsError:   err != nil || (result != nil && result.IsError),
		Duration:  time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return &CallResult{Content: result.Content, IsError: result.IsError}, nil
}

// apiToolAllowed applies the group's tool filter to an HTTP-backed tool.
func (h *HubContext) apiToolAllowed(groupID, toolName string) bool {
	group, err := h.groups.GetGroup(groupID)
	if err != nil {
		return false
	}
	if len(group.ToolFilter) == 0 {
		return true
	}
	for _, name := range group.ToolFilter {
		if name == toolName {
			return true
		}
	}
	return false
}

// record appends to the history log; history is advisory and never fails a
// call.
func (h *HubContext) record(r history.Record) {
	if h.log != nil {
		h.log.Append(r)
	}
}

// apiCallResult converts a pipeline result into the uniform wire shape.
func apiCallResult(result *apitools.Result) *CallResult {
	if result.IsError {
		return &CallResult{
			Content: []upstream.Content{{Type: "text", Text: result.ErrorMessage}},
			IsError: true,
		}
	}
	text, err := json.Marshal(result.Data)
	if err != nil {
		text = []byte(fmt.Sprintf("%v", result.Data))
	}
	return &CallResult{Content: []upstream.Content{{Type: "text", Text: string(text)}}}
}

// validateArgs checks call arguments against a JSON schema. A missing or
// uncompilable schema skips validation; a failing document is an
// invalid-params error carrying the validator's messages.
func validateArgs(schema map[string]any, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(args))
	if err != nil {
		logger.Warnw("skipping argument validation, schema does not compile", "error", err)
		return nil
	}
	if result.Valid() {
		return nil
	}

	msg := "invalid arguments"
	if errs := result.Errors(); len(errs) > 0 {
		msg = fmt.Sprintf("invalid arguments: %s", errs[0].String())
	}
	return errors.NewInvalidParamsError(msg, nil)
}

// ServerHealth returns the upstream health snapshot.
func (h *HubContext) ServerHealth() (map[string]upstream.Health, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.ready(); err != nil {
		return nil, err
	}
	return h.servers.ServerHealth(), nil
}

// ValidateGroupHealth reports one group's availability.
func (h *HubContext) ValidateGroupHealth(groupID string) (*groups.GroupHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.ready(); err != nil {
		return nil, err
	}
	return h.groups.ValidateGroupHealth(groupID)
}

// Diagnostics aggregates health across every subsystem.
func (h *HubContext) Diagnostics() (*Diagnostics, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.ready(); err != nil {
		return nil, err
	}

	diag := &Diagnostics{
		Servers:     h.servers.ServerHealth(),
		Cache:       h.executor.Stats(),
		HistorySize: h.log.Len(),
		APITools:    len(h.apiTools),
	}
	for _, g := range h.groups.GetAllGroups() {
		if gh, err := h.groups.ValidateGroupHealth(g.ID); err == nil {
			diag.Groups = append(diag.Groups, gh)
		}
	}
	return diag, nil
}
