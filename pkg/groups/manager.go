// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package groups organizes upstream servers into named groups and routes
// tool lookups through them.
//
// A group is a view over servers: its tool list is the union of whatever its
// member servers currently advertise, optionally narrowed by a tool filter.
// Groups never fail closed on partial outages; a failing server simply
// contributes no tools.
package groups

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/errors"
	"github.com/stacklok/toolhub/pkg/logger"
	"github.com/stacklok/toolhub/pkg/upstream"
)

// FallbackDescription annotates groups rebuilt from invalid configuration.
const FallbackDescription = "Fallback group created due to configuration errors"

// ServerSource is the view of the upstream layer a group manager needs.
// *upstream.Manager satisfies it.
type ServerSource interface {
	// ServerIDs returns every configured server id.
	ServerIDs() []string

	// IsAvailable reports whether a server is currently connected.
	IsAvailable(serverID string) bool

	// ServerTools returns the tools a server currently advertises.
	// Unavailable servers return an empty list.
	ServerTools(serverID string) ([]upstream.Tool, error)
}

// Group is one configured server group.
type Group struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	ServerIDs   []string                 `json:"servers"`
	ToolFilter  []string                 `json:"tools,omitempty"`
	IsFallback  bool                     `json:"isFallback,omitempty"`
	Validation  *config.ValidationConfig `json:"validation,omitempty"`
}

// ToolMatch is the outcome of resolving a tool inside a group.
type ToolMatch struct {
	Tool     upstream.Tool
	ServerID string
}

// GroupHealth summarizes server availability inside one group.
type GroupHealth struct {
	GroupID          string   `json:"groupId"`
	Healthy          bool     `json:"healthy"`
	TotalServers     int      `json:"totalServers"`
	AvailableServers int      `json:"availableServers"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Manager owns the group table. It is re-initializable: Initialize replaces
// the whole table from a fresh configuration snapshot.
type Manager struct {
	mu     sync.RWMutex
	groups map[string]*Group

	source       ServerSource
	healthyRatio float64
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithHealthyRatio overrides the availability ratio below which group
// health warns. Values outside (0, 1] fall back to the default.
func WithHealthyRatio(ratio float64) ManagerOption {
	return func(m *Manager) {
		if ratio > 0 && ratio <= 1 {
			m.healthyRatio = ratio
		}
	}
}

// NewManager creates a group manager backed by the given server source.
func NewManager(source ServerSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		groups:       make(map[string]*Group),
		source:       source,
		healthyRatio: config.DefaultHealthyRatio,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize builds the group table from configuration. Invalid group
// configs never abort startup: each produces a best-effort fallback group
// under the same id, and unknown server references inside otherwise valid
// groups are filtered with a warning.
func (m *Manager) Initialize(groupConfigs []config.GroupConfig) {
	known := make(map[string]bool)
	for _, id := range m.source.ServerIDs() {
		known[id] = true
	}

	table := make(map[string]*Group, len(groupConfigs))
	for i := range groupConfigs {
		cfg := groupConfigs[i]
		if cfg.ID == "" {
			logger.Warnw("skipping group with empty id", "name", cfg.Name)
			continue
		}
		if _, dup := table[cfg.ID]; dup {
			logger.Warnw("skipping duplicate group id", "group", cfg.ID)
			continue
		}

		group, problems := buildGroup(&cfg, known)
		for _, p := range problems {
			logger.Warnw("group configuration problem", "group", cfg.ID, "problem", p)
		}
		table[cfg.ID] = group
	}

	m.mu.Lock()
	m.groups = table
	m.mu.Unlock()
	logger.Infow("groups initialized", "count", len(table))
}

// buildGroup validates one group config. A config with structural problems
// (missing name, duplicate entries) yields a fallback group that keeps
// whatever is salvageable.
func buildGroup(cfg *config.GroupConfig, knownServers map[string]bool) (*Group, []string) {
	var problems []string

	name := cfg.Name
	if name == "" {
		problems = append(problems, "group name is empty")
		name = cfg.ID
	}
	if dups := duplicates(cfg.Servers); len(dups) > 0 {
		problems = append(problems, fmt.Sprintf("duplicate server entries: %v", dups))
	}
	if dups := duplicates(cfg.Tools); len(dups) > 0 {
		problems = append(problems, fmt.Sprintf("duplicate tool entries: %v", dups))
	}

	var servers []string
	seen := make(map[string]bool)
	for _, id := range cfg.Servers {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !knownServers[id] {
			problems = append(problems, fmt.Sprintf("unknown server reference %q", id))
			continue
		}
		servers = append(servers, id)
	}

	group := &Group{
		ID:          cfg.ID,
		Name:        name,
		Description: cfg.Description,
		ServerIDs:   servers,
		ToolFilter:  dedup(cfg.Tools),
		Validation:  cfg.Validation,
	}

	// Unknown server refs alone do not demote a group; structural problems do.
	structural := cfg.Name == "" || len(duplicates(cfg.Servers)) > 0 || len(duplicates(cfg.Tools)) > 0
	if structural {
		group.IsFallback = true
		group.Description = FallbackDescription
	}
	return group, problems
}

func duplicates(items []string) []string {
	seen := make(map[string]int)
	for _, item := range items {
		seen[item]++
	}
	var dups []string
	for item, n := range seen {
		if n > 1 {
			dups = append(dups, item)
		}
	}
	sort.Strings(dups)
	return dups
}

func dedup(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

// group looks up a group by id.
func (m *Manager) group(groupID string) (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, errors.NewGroupNotFoundError(fmt.Sprintf("group %s does not exist", groupID), nil)
	}
	return g, nil
}

// GetGroup returns one group.
func (m *Manager) GetGroup(groupID string) (*Group, error) {
	return m.group(groupID)
}

// GetAllGroups returns every configured group, fallbacks included.
func (m *Manager) GetAllGroups() []*Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetGroupTools returns the union of tools over the group's servers,
// narrowed by the group's tool filter when one is set. A failing or
// unavailable server contributes zero tools.
func (m *Manager) GetGroupTools(_ context.Context, groupID string) ([]upstream.Tool, error) {
	g, err := m.group(groupID)
	if err != nil {
		return nil, err
	}

	filter := make(map[string]bool, len(g.ToolFilter))
	for _, name := range g.ToolFilter {
		filter[name] = true
	}

	var tools []upstream.Tool
	for _, serverID := range g.ServerIDs {
		serverTools, err := m.source.ServerTools(serverID)
		if err != nil {
			logger.Warnw("failed to list tools for group member", "group", groupID, "server", serverID, "error", err)
			continue
		}
		for _, t := range serverTools {
			if len(filter) > 0 && !filter[t.Name] {
				continue
			}
			tools = append(tools, t)
		}
	}
	return tools, nil
}

// ValidateToolAccess reports whether toolName may be called through
// groupID: the group must exist, have at least one available server, and
// the filter (when set) must contain the tool.
func (m *Manager) ValidateToolAccess(groupID, toolName string) bool {
	g, err := m.group(groupID)
	if err != nil {
		return false
	}

	if len(g.ToolFilter) > 0 {
		allowed := false
		for _, name := range g.ToolFilter {
			if name == toolName {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	for _, serverID := range g.ServerIDs {
		if m.source.IsAvailable(serverID) {
			return true
		}
	}
	return false
}

// FindToolInGroup resolves toolName to the server that provides it.
// Absent or filtered tools return (nil, false); lookup carries no policy
// and never errors.
func (m *Manager) FindToolInGroup(ctx context.Context, groupID, toolName string) (*ToolMatch, bool) {
	tools, err := m.GetGroupTools(ctx, groupID)
	if err != nil {
		return nil, false
	}
	for _, t := range tools {
		if t.Name == toolName {
			return &ToolMatch{Tool: t, ServerID: t.ServerID}, true
		}
	}
	return nil, false
}

// GroupServers returns all server ids configured for a group.
func (m *Manager) GroupServers(groupID string) ([]string, error) {
	g, err := m.group(groupID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(g.ServerIDs))
	copy(out, g.ServerIDs)
	return out, nil
}

// AvailableGroupServers returns the subset of a group's servers that are
// currently connected.
func (m *Manager) AvailableGroupServers(groupID string) ([]string, error) {
	g, err := m.group(groupID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, serverID := range g.ServerIDs {
		if m.source.IsAvailable(serverID) {
			out = append(out, serverID)
		}
	}
	return out, nil
}

// ValidateGroupHealth reports whether a group can serve at all. A group is
// healthy with at least one available server; partial outages produce
// warnings, and availability below the healthy ratio is called out
// explicitly.
func (m *Manager) ValidateGroupHealth(groupID string) (*GroupHealth, error) {
	g, err := m.group(groupID)
	if err != nil {
		return nil, err
	}

	health := &GroupHealth{
		GroupID:      groupID,
		TotalServers: len(g.ServerIDs),
	}
	for _, serverID := range g.ServerIDs {
		if m.source.IsAvailable(serverID) {
			health.AvailableServers++
		} else {
			health.Warnings = append(health.Warnings, fmt.Sprintf("server %s is unavailable", serverID))
		}
	}

	health.Healthy = health.AvailableServers > 0
	if health.TotalServers > 0 {
		ratio := float64(health.AvailableServers) / float64(health.TotalServers)
		if health.Healthy && ratio < m.healthyRatio {
			health.Warnings = append(health.Warnings,
				fmt.Sprintf("only %d of %d servers available", health.AvailableServers, health.TotalServers))
		}
	}

	if !health.Healthy {
		logger.Warnw("group has no available servers", "group", groupID)
	} else if len(health.Warnings) > 0 {
		logger.Warnw("group is degraded", "group", groupID, "warnings", health.Warnings)
	}
	return health, nil
}

// CreateGroup adds a new group. Validation mirrors Initialize; persistence
// is the caller's concern.
func (m *Manager) CreateGroup(cfg *config.GroupConfig) (*Group, error) {
	if cfg.ID == "" {
		return nil, errors.NewConfigValidationError("group id is required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.groups[cfg.ID]; exists {
		return nil, errors.NewConfigValidationError(fmt.Sprintf("group %s already exists", cfg.ID), nil)
	}

	group, problems := buildGroup(cfg, m.knownServers())
	if group.IsFallback {
		return nil, errors.NewConfigValidationError(
			fmt.Sprintf("invalid group configuration: %v", problems), nil)
	}
	m.groups[cfg.ID] = group
	return group, nil
}

// UpdateGroup replaces an existing group's definition.
func (m *Manager) UpdateGroup(cfg *config.GroupConfig) (*Group, error) {
	if cfg.ID == "" {
		return nil, errors.NewConfigValidationError("group id is required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, exists := m.groups[cfg.ID]
	if !exists {
		return nil, errors.NewGroupNotFoundError(fmt.Sprintf("group %s does not exist", cfg.ID), nil)
	}

	group, problems := buildGroup(cfg, m.knownServers())
	if group.IsFallback {
		return nil, errors.NewConfigValidationError(
			fmt.Sprintf("invalid group configuration: %v", problems), nil)
	}
	// Validation settings survive an update that does not touch them.
	if group.Validation == nil {
		group.Validation = existing.Validation
	}
	m.groups[cfg.ID] = group
	return group, nil
}

// DeleteGroup removes a group.
func (m *Manager) DeleteGroup(groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.groups[groupID]; !exists {
		return errors.NewGroupNotFoundError(fmt.Sprintf("group %s does not exist", groupID), nil)
	}
	delete(m.groups, groupID)
	return nil
}

// SetToolFilter replaces a group's tool filter. An empty filter allows
// every tool the group's servers advertise.
func (m *Manager) SetToolFilter(groupID string, tools []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, exists := m.groups[groupID]
	if !exists {
		return errors.NewGroupNotFoundError(fmt.Sprintf("group %s does not exist", groupID), nil)
	}
	g.ToolFilter = dedup(tools)
	return nil
}

// SetValidationKey generates, encrypts and installs a validation key for a
// group, returning the plaintext exactly once. The plaintext is never
// stored or logged.
func (m *Manager) SetValidationKey(groupID, systemSecret string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, exists := m.groups[groupID]
	if !exists {
		return "", errors.NewGroupNotFoundError(fmt.Sprintf("group %s does not exist", groupID), nil)
	}

	plaintext, err := GenerateKey(DefaultKeyLength)
	if err != nil {
		return "", err
	}
	encrypted, err := EncryptKey(plaintext, systemSecret)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if g.Validation == nil {
		g.Validation = &config.ValidationConfig{CreatedAt: now}
	}
	g.Validation.Enabled = true
	g.Validation.EncryptedKey = encrypted
	g.Validation.UpdatedAt = now
	return plaintext, nil
}

// VerifyValidationKey checks a presented key against the group's stored
// one. Groups without validation enabled accept any key.
func (m *Manager) VerifyValidationKey(groupID, presented, systemSecret string) (bool, error) {
	g, err := m.group(groupID)
	if err != nil {
		return false, err
	}
	if g.Validation == nil || !g.Validation.Enabled {
		return true, nil
	}
	return VerifyKey(presented, g.Validation.EncryptedKey, systemSecret)
}

// knownServers builds the known-server set for validation.
func (m *Manager) knownServers() map[string]bool {
	known := make(map[string]bool)
	for _, id := range m.source.ServerIDs() {
		known[id] = true
	}
	return known
}
