// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package apitools

import (
	"encoding/json"
	"strings"
)

// NormalizeResponse converts a raw response body into a structured value.
//
// JSON parses to its natural representation. Anything else is classified
// heuristically and wrapped with a _type tag rather than discarded, so
// transform expressions always receive something addressable:
//
//	{"_type": "xml" | "csv" | "keyvalue" | "text", "content": <raw>}
func NormalizeResponse(body []byte) any {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return map[string]any{"_type": "text", "content": ""}
	}

	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		return parsed
	}

	return map[string]any{
		"_type":   classifyText(trimmed),
		"content": trimmed,
	}
}

// classifyText guesses the shape of a non-JSON payload.
func classifyText(s string) string {
	if looksLikeXML(s) {
		return "xml"
	}
	if looksLikeCSV(s) {
		return "csv"
	}
	if looksLikeKeyValue(s) {
		return "keyvalue"
	}
	return "text"
}

func looksLikeXML(s string) bool {
	return strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") && strings.Contains(s, "</")
}

// looksLikeCSV requires at least two lines with the same nonzero comma count.
func looksLikeCSV(s string) bool {
	lines := nonEmptyLines(s)
	if len(lines) < 2 {
		return false
	}
	commas := strings.Count(lines[0], ",")
	if commas == 0 {
		return false
	}
	for _, line := range lines[1:] {
		if strings.Count(line, ",") != commas {
			return false
		}
	}
	return true
}

// looksLikeKeyValue requires most lines to contain a = or : separator.
func looksLikeKeyValue(s string) bool {
	lines := nonEmptyLines(s)
	if len(lines) == 0 {
		return false
	}
	separated := 0
	for _, line := range lines {
		if strings.Contains(line, "=") || strings.Contains(line, ":") {
			separated++
		}
	}
	return separated*2 > len(lines)
}

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
