// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apitools

import (
	"os"
	"regexp"

	"github.com/stacklok/toolhub/pkg/config"
)

// envPlaceholder matches {{env.NAME}} references in configured strings.
var envPlaceholder = regexp.MustCompile(`\{\{env\.([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// resolveEnv replaces {{env.NAME}} placeholders with values from the process
// environment. Unresolved placeholders are left verbatim so that a missing
// variable is visible downstream instead of silently becoming empty.
func resolveEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		name := envPlaceholder.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// collectEnvNames returns the environment variable names referenced by s.
func collectEnvNames(s string, into map[string]bool) {
	for _, m := range envPlaceholder.FindAllStringSubmatch(s, -1) {
		into[m[1]] = true
	}
}

// ValidateEnvironmentVariables reports the environment variable names a tool
// references that are not set in the process environment. It never returns
// an error; an empty slice means the tool is fully resolvable.
func ValidateEnvironmentVariables(tool *config.APIToolConfig) []string {
	referenced := make(map[string]bool)
	collectEnvNames(tool.HTTP.URL, referenced)
	collectEnvNames(tool.HTTP.Body, referenced)
	for _, v := range tool.HTTP.Headers {
		collectEnvNames(v, referenced)
	}
	if tool.Auth != nil {
		collectEnvNames(tool.Auth.Token, referenced)
		collectEnvNames(tool.Auth.Key, referenced)
		collectEnvNames(tool.Auth.Username, referenced)
		collectEnvNames(tool.Auth.Password, referenced)
	}

	var missing []string
	for name := range referenced {
		if _, ok := os.LookupEnv(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
