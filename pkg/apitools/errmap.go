// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apitools

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/stacklok/toolhub/pkg/errors"
)

// commonMessageFields are tried in order when no explicit error message
// path is configured.
var commonMessageFields = []string{"error", "message", "detail", "error_description", "title"}

// mapStatusError maps a non-2xx response to a typed error, extracting the
// best available human message from the body.
func mapStatusError(toolID string, status int, body []byte, messagePath string) error {
	msg := extractErrorMessage(body, messagePath)
	if msg == "" {
		msg = fmt.Sprintf("%s returned status %d", toolID, status)
	}

	switch {
	case status == http.StatusBadRequest:
		return errors.NewInvalidParamsError(msg, nil)
	case status == http.StatusUnauthorized:
		return errors.NewAPIAuthFailedError(msg, nil)
	case status == http.StatusForbidden:
		return errors.NewAPIForbiddenError(msg, nil)
	case status == http.StatusNotFound:
		return errors.NewToolNotFoundError(msg, nil)
	case status == http.StatusTooManyRequests:
		return errors.NewAPIRateLimitedError(msg, nil)
	case status >= 500:
		return errors.NewAPIServerError(msg, nil)
	default:
		return errors.NewAPIServerError(
			fmt.Sprintf("%s: unexpected status %d", msg, status), nil)
	}
}

// extractErrorMessage pulls a human-readable message from an error body.
// A configured path wins; otherwise common field names are tried.
func extractErrorMessage(body []byte, messagePath string) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}

	if messagePath != "" {
		if result := gjson.GetBytes(body, messagePath); result.Exists() {
			return result.String()
		}
	}

	for _, field := range commonMessageFields {
		result := gjson.GetBytes(body, field)
		if result.Exists() && result.Type == gjson.String {
			return result.String()
		}
	}
	return ""
}
