// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apitools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/errors"
)

func fastPipeline() *Pipeline {
	return NewPipeline(WithRetryPolicy(time.Millisecond, 5*time.Millisecond))
}

func pipelineTool(url string) *config.APIToolConfig {
	tool := &config.APIToolConfig{
		ID:   "weather",
		HTTP: config.HTTPSpec{URL: url, Retries: 2},
	}
	config.ApplyAPIToolDefaults(tool)
	return tool
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"temp": 21.5}}`))
	}))
	defer srv.Close()

	tool := pipelineTool(srv.URL)
	tool.Response.Transform = "data.temp"

	result, err := fastPipeline().Execute(context.Background(), tool, nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 21.5, result.Data)
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	result, err := fastPipeline().Execute(context.Background(), pipelineTool(srv.URL), nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.EqualValues(t, 3, calls.Load())
}

func TestExecuteExhaustedRetriesSurfaceLastError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message": "backend melting"}`))
	}))
	defer srv.Close()

	_, err := fastPipeline().Execute(context.Background(), pipelineTool(srv.URL), nil)
	require.Error(t, err)
	assert.True(t, errors.IsAPIServerError(err))
	assert.Contains(t, err.Error(), "backend melting", "the last underlying error surfaces, not a generic wrapper")
	assert.EqualValues(t, 3, calls.Load(), "retries = 2 means 3 attempts total")
}

func TestExecuteNegativeRetriesMeansSingleAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool := pipelineTool(srv.URL)
	tool.HTTP.Retries = -1

	_, err := fastPipeline().Execute(context.Background(), tool, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "negative retries disable retrying, not bound it at infinity")
}

func TestExecuteNotFoundScenario(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}))
	defer srv.Close()

	result, err := fastPipeline().Execute(context.Background(), pipelineTool(srv.URL), nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, errors.ErrToolNotFound, result.ErrorCode)
	assert.Equal(t, "not found", result.ErrorMessage)
	assert.EqualValues(t, 1, calls.Load(), "4xx responses are not retried")
}

func TestExecuteAuthFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad credentials"}`))
	}))
	defer srv.Close()

	result, err := fastPipeline().Execute(context.Background(), pipelineTool(srv.URL), nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, errors.ErrAPIAuthFailed, result.ErrorCode)
	assert.Equal(t, "bad credentials", result.ErrorMessage)
}

func TestExecuteAppliesAuthStrategy(t *testing.T) {
	t.Parallel()

	var gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tool := pipelineTool(srv.URL)
	tool.Auth = &config.AuthConfig{Type: StrategyTypeAPIKey, Key: "sekret", HeaderName: "X-API-Key"}

	_, err := fastPipeline().Execute(context.Background(), tool, nil)
	require.NoError(t, err)
	assert.Equal(t, "sekret", gotHeader.Load())
}

func TestExecuteUnknownAuthStrategy(t *testing.T) {
	t.Parallel()

	tool := pipelineTool("http://localhost:0")
	tool.Auth = &config.AuthConfig{Type: "kerberos"}

	_, err := fastPipeline().Execute(context.Background(), tool, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigValidation(err))
}

func TestExecuteErrorMessagePath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"problem":{"description":"city is required"}}`))
	}))
	defer srv.Close()

	tool := pipelineTool(srv.URL)
	tool.Response.ErrorMessagePath = "problem.description"

	result, err := fastPipeline().Execute(context.Background(), tool, nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, errors.ErrInvalidParams, result.ErrorCode)
	assert.Equal(t, "city is required", result.ErrorMessage)
}

func TestExecuteNonJSONBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("temp=21\ncity=berlin"))
	}))
	defer srv.Close()

	result, err := fastPipeline().Execute(context.Background(), pipelineTool(srv.URL), nil)
	require.NoError(t, err)

	m, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "keyvalue", m["_type"])
}
