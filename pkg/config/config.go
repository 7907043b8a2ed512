// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config defines the configuration model for toolhub.
//
// Raw configuration from disk is parsed at this boundary into a small closed
// set of typed variants (ServerConfig, GroupConfig, APIToolConfig). The core
// never inspects untyped objects; persistence of the underlying file is a
// collaborator's responsibility and the hub is re-initializable from a fresh
// Snapshot at any time.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Transport type constants for downstream protocol servers.
const (
	// TransportStdio runs the server as a local subprocess speaking MCP over stdio.
	TransportStdio = "stdio"
	// TransportSSE connects to a remote server over Server-Sent Events.
	TransportSSE = "sse"
	// TransportStreamableHTTP connects to a remote server over streamable HTTP.
	TransportStreamableHTTP = "streamable-http"
)

// AllowedTransports lists every transport type a ServerConfig may declare.
var AllowedTransports = []string{TransportStdio, TransportSSE, TransportStreamableHTTP}

// Duration is a wrapper around time.Duration that marshals/unmarshals as a
// duration string ("30s", "1m") instead of a nanosecond integer.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig describes one downstream protocol server.
type ServerConfig struct {
	// ID is the unique server identifier.
	ID string `json:"id" yaml:"id"`

	// Transport selects the connection mechanism: stdio, sse or streamable-http.
	Transport string `json:"transport" yaml:"transport"`

	// Command, Args and Env configure a stdio subprocess server.
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// URL and Headers configure an sse or streamable-http server.
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// ConnectTimeout bounds a single connect+handshake attempt.
	ConnectTimeout Duration `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty"`

	// MaxReconnects caps automatic reconnect attempts. Zero means the default.
	MaxReconnects int `json:"maxReconnects,omitempty" yaml:"maxReconnects,omitempty"`
}

// GroupConfig describes one logical group of servers.
type GroupConfig struct {
	// ID is the unique group identifier.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable group name.
	Name string `json:"name" yaml:"name"`

	// Description describes the group.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Servers lists the server ids this group exposes.
	Servers []string `json:"servers" yaml:"servers"`

	// Tools restricts the visible tool names. Empty means unrestricted.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`

	// Validation configures the group validation key.
	Validation *ValidationConfig `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// ValidationConfig holds the at-rest state of a group's validation key.
// Only the encrypted form is ever persisted or logged.
type ValidationConfig struct {
	Enabled      bool      `json:"enabled" yaml:"enabled"`
	EncryptedKey string    `json:"encryptedKey,omitempty" yaml:"encryptedKey,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// APIToolConfig describes one HTTP API wrapped as a tool.
// The object is immutable once loaded; reload replaces it atomically.
type APIToolConfig struct {
	// ID is the unique tool identifier.
	ID string `json:"id" yaml:"id"`

	// Name is the tool name exposed to callers. Defaults to ID.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description describes what the tool does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// HTTP configures the request template.
	HTTP HTTPSpec `json:"http" yaml:"http"`

	// Auth configures outbound request signing. Nil means unauthenticated.
	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`

	// Response configures result transformation.
	Response ResponseSpec `json:"response,omitempty" yaml:"response,omitempty"`

	// Cache configures per-tool result memoization.
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// HTTPSpec is the request template for an API tool.
type HTTPSpec struct {
	// URL is the endpoint, with optional {param} path placeholders and
	// {{env.NAME}} environment placeholders.
	URL string `json:"url" yaml:"url"`

	// Method is the HTTP method. Defaults to GET.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// Headers are sent verbatim after environment resolution.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is a JSON body template with {param} placeholders.
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// ParamSchema is the JSON-Schema for the tool's arguments.
	ParamSchema map[string]any `json:"paramSchema,omitempty" yaml:"paramSchema,omitempty"`

	// Timeout bounds a single request attempt.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Retries is the number of retry attempts after the first failure.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty"`
}

// AuthConfig selects and parameterizes an authentication strategy.
type AuthConfig struct {
	// Type is the strategy name: bearer, apikey or basic.
	Type string `json:"type" yaml:"type"`

	// Token is the bearer token (bearer strategy).
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	// Key and HeaderName configure the apikey strategy.
	Key        string `json:"key,omitempty" yaml:"key,omitempty"`
	HeaderName string `json:"headerName,omitempty" yaml:"headerName,omitempty"`

	// Username and Password configure the basic strategy.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// ResponseSpec configures how raw HTTP payloads become tool results.
type ResponseSpec struct {
	// Transform is the primary extraction expression.
	Transform string `json:"transform,omitempty" yaml:"transform,omitempty"`

	// FallbackTransform is tried when the primary expression fails.
	FallbackTransform string `json:"fallbackTransform,omitempty" yaml:"fallbackTransform,omitempty"`

	// ErrorMessagePath extracts a human message from error bodies.
	ErrorMessagePath string `json:"errorMessagePath,omitempty" yaml:"errorMessagePath,omitempty"`
}

// CacheConfig configures per-tool result caching.
type CacheConfig struct {
	// Enabled opts the tool into caching. A disabled tool is never cached,
	// even when the hub-wide cache decorator is on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TTL is the entry lifetime for successful results.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`

	// CacheErrors opts error results into caching.
	CacheErrors bool `json:"cacheErrors,omitempty" yaml:"cacheErrors,omitempty"`

	// ErrorTTL is the (typically shorter) lifetime for cached error results.
	ErrorTTL Duration `json:"errorTtl,omitempty" yaml:"errorTtl,omitempty"`
}

// Snapshot is a complete parsed configuration, ready to initialize the hub.
type Snapshot struct {
	Servers  []ServerConfig  `json:"servers" yaml:"servers"`
	Groups   []GroupConfig   `json:"groups" yaml:"groups"`
	APITools []APIToolConfig `json:"apiTools" yaml:"apiTools"`
}
