// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apitools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/stacklok/toolhub/pkg/config"
	"github.com/stacklok/toolhub/pkg/errors"
)

// BuildRequest merges tool arguments into the configured request template.
//
// {param} placeholders in the URL consume matching arguments; leftover
// arguments become query parameters for body-less methods, or the JSON body
// for methods that carry one. {{env.NAME}} placeholders are resolved against
// the process environment first.
func BuildRequest(ctx context.Context, tool *config.APIToolConfig, args map[string]any) (*http.Request, error) {
	rawURL := resolveEnv(tool.HTTP.URL)

	used := make(map[string]bool, len(args))
	expandedURL, err := expandPathParams(rawURL, args, used)
	if err != nil {
		return nil, err
	}

	remaining := make(map[string]any, len(args))
	for k, v := range args {
		if !used[k] {
			remaining[k] = v
		}
	}

	method := strings.ToUpper(tool.HTTP.Method)
	var body []byte
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		expandedURL, err = appendQueryParams(expandedURL, remaining)
		if err != nil {
			return nil, err
		}
	default:
		body, err = buildBody(tool, remaining)
		if err != nil {
			return nil, err
		}
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, expandedURL, reader)
	if err != nil {
		return nil, errors.NewInvalidParamsError(
			fmt.Sprintf("building request for tool %s", tool.ID), err)
	}

	for name, value := range tool.HTTP.Headers {
		req.Header.Set(name, resolveEnv(value))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// expandPathParams substitutes {param} placeholders in the URL template.
// A placeholder with no matching argument is an invalid-params error;
// the caller cannot produce a meaningful request without it.
func expandPathParams(rawURL string, args map[string]any, used map[string]bool) (string, error) {
	result := rawURL
	for {
		start := strings.Index(result, "{")
		if start < 0 {
			return result, nil
		}
		end := strings.Index(result[start:], "}")
		if end < 0 {
			return "", errors.NewInvalidParamsError(
				fmt.Sprintf("unterminated placeholder in url %q", rawURL), nil)
		}
		name := result[start+1 : start+end]
		value, ok := args[name]
		if !ok {
			return "", errors.NewInvalidParamsError(
				fmt.Sprintf("missing argument %q for url placeholder", name), nil)
		}
		used[name] = true
		result = result[:start] + url.PathEscape(stringify(value)) + result[start+end+1:]
	}
}

// appendQueryParams adds the remaining arguments as query parameters,
// in sorted order so the request is deterministic.
func appendQueryParams(rawURL string, args map[string]any) (string, error) {
	if len(args) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.NewInvalidParamsError(fmt.Sprintf("invalid url %q", rawURL), err)
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := u.Query()
	for _, k := range keys {
		q.Set(k, stringify(args[k]))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// buildBody renders the JSON body: either the configured template with
// {param} placeholders substituted, or the remaining arguments marshaled
// as an object.
func buildBody(tool *config.APIToolConfig, args map[string]any) ([]byte, error) {
	if tool.HTTP.Body == "" {
		if len(args) == 0 {
			return nil, nil
		}
		body, err := json.Marshal(args)
		if err != nil {
			return nil, errors.NewInvalidParamsError("encoding request body", err)
		}
		return body, nil
	}

	body := resolveEnv(tool.HTTP.Body)
	for name, value := range args {
		placeholder := "{" + name + "}"
		if !strings.Contains(body, placeholder) {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, errors.NewInvalidParamsError(
				fmt.Sprintf("encoding argument %q", name), err)
		}
		// String values substitute raw so templates can embed them inside
		// larger JSON strings; everything else substitutes as JSON.
		if s, ok := value.(string); ok {
			body = strings.ReplaceAll(body, placeholder, s)
		} else {
			body = strings.ReplaceAll(body, placeholder, string(encoded))
		}
	}
	return []byte(body), nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(out)
	}
}
