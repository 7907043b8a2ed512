// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhub/pkg/errors"
	"github.com/stacklok/toolhub/pkg/logger"
)

// Load reads and parses a YAML configuration file into a Snapshot.
// Structural problems (unknown transports, missing ids, duplicate ids) are
// config validation errors; the hub itself degrades gracefully on semantic
// problems such as dangling server references, which are left to the group
// manager to filter.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigValidationError(fmt.Sprintf("reading config file %s", path), err)
	}
	return Parse(data)
}

// Parse parses a YAML document into a validated Snapshot.
func Parse(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewConfigValidationError("parsing config", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Validate checks structural invariants and applies defaults in place.
func (s *Snapshot) Validate() error {
	seenServers := make(map[string]bool, len(s.Servers))
	for i := range s.Servers {
		sc := &s.Servers[i]
		if sc.ID == "" {
			return errors.NewConfigValidationError(fmt.Sprintf("server at index %d has no id", i), nil)
		}
		if seenServers[sc.ID] {
			return errors.NewConfigValidationError(fmt.Sprintf("duplicate server id %q", sc.ID), nil)
		}
		seenServers[sc.ID] = true

		if err := validateServer(sc); err != nil {
			return err
		}
		ApplyServerDefaults(sc)
	}

	seenTools := make(map[string]bool, len(s.APITools))
	for i := range s.APITools {
		tc := &s.APITools[i]
		if tc.ID == "" {
			return errors.NewConfigValidationError(fmt.Sprintf("api tool at index %d has no id", i), nil)
		}
		if seenTools[tc.ID] {
			return errors.NewConfigValidationError(fmt.Sprintf("duplicate api tool id %q", tc.ID), nil)
		}
		seenTools[tc.ID] = true

		if tc.HTTP.URL == "" {
			return errors.NewConfigValidationError(fmt.Sprintf("api tool %q has no url", tc.ID), nil)
		}
		ApplyAPIToolDefaults(tc)
	}

	// Group problems never fail validation; the group manager skips groups
	// it cannot key (missing or duplicate id) and degrades the rest to
	// fallback groups, so the hub stays queryable.
	for i := range s.Groups {
		if s.Groups[i].ID == "" {
			logger.Warnf("group at index %d has no id and will be skipped", i)
		}
	}

	return nil
}

func validateServer(sc *ServerConfig) error {
	if !slices.Contains(AllowedTransports, sc.Transport) {
		return errors.NewConfigValidationError(
			fmt.Sprintf("server %q has unknown transport %q", sc.ID, sc.Transport), nil)
	}
	switch sc.Transport {
	case TransportStdio:
		if sc.Command == "" {
			return errors.NewConfigValidationError(
				fmt.Sprintf("stdio server %q has no command", sc.ID), nil)
		}
	case TransportSSE, TransportStreamableHTTP:
		if sc.URL == "" {
			return errors.NewConfigValidationError(
				fmt.Sprintf("%s server %q has no url", sc.Transport, sc.ID), nil)
		}
	}
	return nil
}
