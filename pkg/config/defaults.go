// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import "time"

// Default tunables. Anything a deployment might reasonably disagree with
// lives here rather than as a constant buried in a component.
const (
	// DefaultConnectTimeout bounds a single connect+handshake attempt
	// against a downstream server.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultMaxReconnects caps automatic reconnect attempts per server.
	DefaultMaxReconnects = 10

	// DefaultReconnectBase is the initial reconnect backoff interval.
	DefaultReconnectBase = time.Second

	// DefaultReconnectCap is the maximum reconnect backoff interval.
	DefaultReconnectCap = 60 * time.Second

	// DefaultHTTPTimeout bounds a single API tool request attempt.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultHTTPRetries is the number of retries after the first failed
	// API tool request.
	DefaultHTTPRetries = 2

	// DefaultRetryBase is the initial retry backoff interval for API tools.
	DefaultRetryBase = 500 * time.Millisecond

	// DefaultRetryCap is the maximum retry backoff interval for API tools.
	DefaultRetryCap = 10 * time.Second

	// DefaultCacheTTL is the entry lifetime for cached tool results.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultErrorCacheTTL is the shorter lifetime for cached error results.
	DefaultErrorCacheTTL = 30 * time.Second

	// DefaultCacheMaxEntries bounds the in-memory cache store.
	DefaultCacheMaxEntries = 10000

	// DefaultHistorySize bounds the execution record ring buffer.
	DefaultHistorySize = 1000

	// DefaultHealthyRatio is the fraction of a group's servers that must be
	// available before the group stops emitting degradation warnings.
	DefaultHealthyRatio = 0.8
)

// ApplyServerDefaults fills zero values on a ServerConfig.
func ApplyServerDefaults(c *ServerConfig) {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = Duration(DefaultConnectTimeout)
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = DefaultMaxReconnects
	}
}

// ApplyAPIToolDefaults fills zero values on an APIToolConfig.
func ApplyAPIToolDefaults(c *APIToolConfig) {
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.HTTP.Method == "" {
		c.HTTP.Method = "GET"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = Duration(DefaultHTTPTimeout)
	}
	if c.HTTP.Retries == 0 {
		c.HTTP.Retries = DefaultHTTPRetries
	} else if c.HTTP.Retries < 0 {
		// Negative disables retries; the initial attempt still runs.
		c.HTTP.Retries = 0
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if c.Cache.ErrorTTL == 0 {
		c.Cache.ErrorTTL = Duration(DefaultErrorCacheTTL)
	}
}
