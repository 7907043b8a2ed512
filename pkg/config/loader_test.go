// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stacklok/toolhub/pkg/errors"
	"github.com/stacklok/toolhub/pkg/logger"
)

const sampleConfig = `
servers:
  - id: s1
    transport: stdio
    command: uvx
    args: ["mcp-server-fetch"]
    env:
      API_KEY: secret
  - id: s2
    transport: sse
    url: http://localhost:3001/sse
    connectTimeout: 5s
groups:
  - id: g1
    name: default
    servers: [s1, s2]
  - id: g2
    name: filtered
    servers: [s1]
    tools: [fetch]
apiTools:
  - id: weather
    http:
      url: https://api.example.com/weather/{city}
      timeout: 15s
    cache:
      enabled: true
      ttl: 1m
`

func TestParse(t *testing.T) {
	t.Parallel()

	snap, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	require.Len(t, snap.Servers, 2)
	assert.Equal(t, TransportStdio, snap.Servers[0].Transport)
	assert.Equal(t, "secret", snap.Servers[0].Env["API_KEY"])
	assert.Equal(t, 5*time.Second, snap.Servers[1].ConnectTimeout.Std())

	require.Len(t, snap.Groups, 2)
	assert.Equal(t, []string{"fetch"}, snap.Groups[1].Tools)

	require.Len(t, snap.APITools, 1)
	assert.Equal(t, "weather", snap.APITools[0].Name, "name defaults to id")
	assert.Equal(t, "GET", snap.APITools[0].HTTP.Method, "method defaults to GET")
	assert.Equal(t, time.Minute, snap.APITools[0].Cache.TTL.Std())
	assert.Equal(t, DefaultErrorCacheTTL, snap.APITools[0].Cache.ErrorTTL.Std())
}

func TestParseAppliesServerDefaults(t *testing.T) {
	t.Parallel()

	snap, err := Parse([]byte(`
servers:
  - id: s1
    transport: stdio
    command: echo
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultConnectTimeout, snap.Servers[0].ConnectTimeout.Std())
	assert.Equal(t, DefaultMaxReconnects, snap.Servers[0].MaxReconnects)
}

func TestParseRejectsStructuralErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"unknown transport", "servers:\n  - id: s1\n    transport: carrier-pigeon\n"},
		{"stdio without command", "servers:\n  - id: s1\n    transport: stdio\n"},
		{"sse without url", "servers:\n  - id: s1\n    transport: sse\n"},
		{"duplicate server id", "servers:\n  - id: s1\n    transport: stdio\n    command: a\n  - id: s1\n    transport: stdio\n    command: b\n"},
		{"server without id", "servers:\n  - transport: stdio\n    command: a\n"},
		{"api tool without url", "apiTools:\n  - id: t1\n"},
		{"duplicate api tool id", "apiTools:\n  - id: t1\n    http: {url: http://a}\n  - id: t1\n    http: {url: http://b}\n"},
		{"not yaml", ":::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.IsConfigValidation(err))
		})
	}
}

func TestBrokenGroupsDoNotFailValidation(t *testing.T) {
	t.Parallel()

	// A group with no id is skipped by the group manager, never a startup
	// failure.
	snap, err := Parse([]byte("groups:\n  - name: nameless\n    servers: [s1]\n"))
	require.NoError(t, err)
	require.Len(t, snap.Groups, 1)
}

func TestIdlessGroupWarnsItWillBeSkipped(t *testing.T) {
	// Swaps the global logger; must not run in parallel.
	core, logs := observer.New(zapcore.WarnLevel)
	prev := logger.Get()
	logger.Set(zap.New(core).Sugar())
	t.Cleanup(func() { logger.Set(prev) })

	_, err := Parse([]byte("groups:\n  - name: nameless\n"))
	require.NoError(t, err)

	entries := logs.FilterMessageSnippet("will be skipped").All()
	require.NotEmpty(t, entries, "the warning matches what the group manager actually does")
	assert.Contains(t, entries[0].Message, "has no id")
}

func TestAPIToolDefaultsClampNegativeRetries(t *testing.T) {
	t.Parallel()

	tool := &APIToolConfig{ID: "t", HTTP: HTTPSpec{URL: "http://a", Retries: -3}}
	ApplyAPIToolDefaults(tool)
	assert.Equal(t, 0, tool.HTTP.Retries, "negative retry counts clamp to zero retries")

	tool = &APIToolConfig{ID: "t", HTTP: HTTPSpec{URL: "http://a"}}
	ApplyAPIToolDefaults(tool)
	assert.Equal(t, DefaultHTTPRetries, tool.HTTP.Retries)
}

func TestDurationRoundTrip(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"90s"`)))
	assert.Equal(t, 90*time.Second, d.Std())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	require.Error(t, d.UnmarshalJSON([]byte(`"not-a-duration"`)))
}
