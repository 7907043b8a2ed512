// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apitools

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/errors"
	"github.com/stacklok/toolhub/pkg/logger"
)

// maxResponseSize bounds response bodies read from upstream APIs.
// Oversized responses are truncated at the transport layer before decoding.
const maxResponseSize = 50 * 1024 * 1024 // 50 MB

// Pipeline executes API tools: build request → apply auth → send with
// retry → normalize → transform. It implements Executor and is safe for
// concurrent use.
type Pipeline struct {
	client    *http.Client
	registry  *StrategyRegistry
	evaluator Evaluator

	// retryBase and retryCap bound the exponential retry delay; delays
	// grow geometrically from retryBase and saturate at retryCap.
	retryBase time.Duration
	retryCap  time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithHTTPClient replaces the HTTP client, primarily for tests.
func WithHTTPClient(c *http.Client) PipelineOption {
	return func(p *Pipeline) { p.client = c }
}

// WithEvaluator replaces the transform expression evaluator.
func WithEvaluator(e Evaluator) PipelineOption {
	return func(p *Pipeline) { p.evaluator = e }
}

// WithRetryPolicy overrides the retry backoff base and cap.
func WithRetryPolicy(base, cap time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.retryBase = base
		p.retryCap = cap
	}
}

// NewPipeline creates an execution pipeline with the built-in auth
// strategies and the gjson transform evaluator.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		client:    &http.Client{},
		registry:  NewStrategyRegistry(),
		evaluator: &GJSONEvaluator{},
		retryBase: config.DefaultRetryBase,
		retryCap:  config.DefaultRetryCap,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry exposes the strategy registry so deployments can register
// custom authentication strategies.
func (p *Pipeline) Registry() *StrategyRegistry {
	return p.registry
}

// Execute runs one API tool call.
//
// Transport-level failures and retryable statuses (429, 5xx) are retried
// with exponential backoff up to the tool's configured retry count; the
// final attempt's error propagates unwrapped. Non-retryable HTTP statuses
// come back as typed error results so callers (and the cache decorator)
// can distinguish them from transport failures.
func (p *Pipeline) Execute(ctx context.Context, tool *config.APIToolConfig, args map[string]any) (*Result, error) {
	var strategy Strategy
	if tool.Auth != nil {
		var err error
		strategy, err = p.registry.Get(tool.Auth.Type)
		if err != nil {
			return nil, err
		}
		if err := strategy.Validate(tool.Auth); err != nil {
			return nil, err
		}
	}

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		body, err := p.sendOnce(ctx, tool, args, strategy)
		if err != nil {
			logger.Warnw("api tool request failed",
				"tool", tool.ID, "attempt", attempt, "error", err)
		}
		return body, err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = p.retryBase
	expBackoff.MaxInterval = p.retryCap
	// No jitter: each delay is at least the previous one, up to the cap.
	expBackoff.RandomizationFactor = 0

	// Negative retry counts mean no retries; a negative value must never
	// reach WithMaxTries, where the uint conversion would wrap around.
	retries := tool.HTTP.Retries
	if retries < 0 {
		retries = 0
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(retries+1)), // includes the initial attempt
		backoff.WithNotify(func(_ error, delay time.Duration) {
			logger.Debugw("retrying api tool request",
				"tool", tool.ID, "attempt", attempt, "delay", delay)
		}),
	)
	if err != nil {
		// Non-retryable HTTP statuses become error results rather than
		// call failures; the tool "answered", just not happily.
		if code := errors.TypeOf(err); code != "" && code != errors.ErrAPIServerError {
			return &Result{
				IsError:      true,
				ErrorCode:    code,
				ErrorMessage: errorMessage(err),
			}, nil
		}
		return nil, err
	}

	normalized := NormalizeResponse(body)
	data := Transform(p.evaluator, tool.ID, tool.Response.Transform, tool.Response.FallbackTransform, normalized)
	return &Result{Data: data}, nil
}

// sendOnce performs a single request attempt.
// Retryable failures return plain errors; anything the retry loop must not
// repeat is wrapped with backoff.Permanent.
func (p *Pipeline) sendOnce(
	ctx context.Context,
	tool *config.APIToolConfig,
	args map[string]any,
	strategy Strategy,
) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, tool.HTTP.Timeout.Std())
	defer cancel()

	// The request is rebuilt per attempt; its body reader is consumed by
	// each send.
	req, err := BuildRequest(attemptCtx, tool, args)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	if strategy != nil {
		if err := strategy.Apply(req, tool.Auth); err != nil {
			return nil, backoff.Permanent(err)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request for tool %s: %w", tool.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response for tool %s: %w", tool.ID, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	mapped := mapStatusError(tool.ID, resp.StatusCode, body, tool.Response.ErrorMessagePath)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		// Worth retrying; the mapped error propagates if retries exhaust.
		return nil, mapped
	}
	return nil, backoff.Permanent(mapped)
}

// errorMessage strips the taxonomy prefix for caller-facing messages.
func errorMessage(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
