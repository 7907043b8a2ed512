// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apitools

import (
	"fmt"
	"net/http"

	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/errors"
)

// Strategy type constants.
const (
	// StrategyTypeBearer sends an Authorization: Bearer header.
	StrategyTypeBearer = "bearer"

	// StrategyTypeAPIKey sends the key in a configurable header.
	StrategyTypeAPIKey = "apikey"

	// StrategyTypeBasic sends HTTP basic credentials.
	StrategyTypeBasic = "basic"
)

// Strategy applies one authentication scheme to outgoing requests.
// Implementations validate their own configuration before touching headers.
type Strategy interface {
	// Name returns the strategy identifier used in configuration.
	Name() string

	// Validate checks that the configuration carries everything the
	// strategy needs. Called at config load time to fail fast.
	Validate(cfg *config.AuthConfig) error

	// Apply mutates the request with authentication material.
	// {{env.NAME}} placeholders in credentials are resolved here, at the
	// last moment before the request is sent.
	Apply(req *http.Request, cfg *config.AuthConfig) error
}

// StrategyRegistry resolves strategy names to implementations.
type StrategyRegistry struct {
	strategies map[string]Strategy
}

// NewStrategyRegistry creates a registry with the built-in strategies
// (bearer, apikey, basic) pre-registered.
func NewStrategyRegistry() *StrategyRegistry {
	r := &StrategyRegistry{strategies: make(map[string]Strategy)}
	r.Register(&BearerStrategy{})
	r.Register(&APIKeyStrategy{})
	r.Register(&BasicStrategy{})
	return r
}

// Register adds or replaces a strategy by its name.
func (r *StrategyRegistry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get resolves a strategy by type name. Unknown names are a typed
// configuration error, never a silent no-op.
func (r *StrategyRegistry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, errors.NewConfigValidationError(
			fmt.Sprintf("unknown authentication strategy %q", name), nil)
	}
	return s, nil
}

// BearerStrategy sends a static bearer token.
type BearerStrategy struct{}

// Name returns the strategy identifier.
func (*BearerStrategy) Name() string { return StrategyTypeBearer }

// Validate requires a non-empty token.
func (*BearerStrategy) Validate(cfg *config.AuthConfig) error {
	if cfg == nil || cfg.Token == "" {
		return errors.NewConfigValidationError("bearer auth requires a non-empty token", nil)
	}
	return nil
}

// Apply sets the Authorization header.
func (s *BearerStrategy) Apply(req *http.Request, cfg *config.AuthConfig) error {
	if err := s.Validate(cfg); err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+resolveEnv(cfg.Token))
	return nil
}

// APIKeyStrategy sends an API key in a configurable header.
type APIKeyStrategy struct{}

// Name returns the strategy identifier.
func (*APIKeyStrategy) Name() string { return StrategyTypeAPIKey }

// Validate requires a non-empty key and header name.
func (*APIKeyStrategy) Validate(cfg *config.AuthConfig) error {
	if cfg == nil || cfg.Key == "" {
		return errors.NewConfigValidationError("apikey auth requires a non-empty key", nil)
	}
	if cfg.HeaderName == "" {
		return errors.NewConfigValidationError("apikey auth requires a non-empty header name", nil)
	}
	return nil
}

// Apply sets the configured header.
func (s *APIKeyStrategy) Apply(req *http.Request, cfg *config.AuthConfig) error {
	if err := s.Validate(cfg); err != nil {
		return err
	}
	req.Header.Set(cfg.HeaderName, resolveEnv(cfg.Key))
	return nil
}

// BasicStrategy sends HTTP basic credentials.
type BasicStrategy struct{}

// Name returns the strategy identifier.
func (*BasicStrategy) Name() string { return StrategyTypeBasic }

// Validate requires non-empty username and password.
func (*BasicStrategy) Validate(cfg *config.AuthConfig) error {
	if cfg == nil || cfg.Username == "" {
		return errors.NewConfigValidationError("basic auth requires a non-empty username", nil)
	}
	if cfg.Password == "" {
		return errors.NewConfigValidationError("basic auth requires a non-empty password", nil)
	}
	return nil
}

// Apply sets basic auth on the request.
func (s *BasicStrategy) Apply(req *http.Request, cfg *config.AuthConfig) error {
	if err := s.Validate(cfg); err != nil {
		return err
	}
	req.SetBasicAuth(resolveEnv(cfg.Username), resolveEnv(cfg.Password))
	return nil
}
