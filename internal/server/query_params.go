package server

import (
	"strconv"
	"strings"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseLimit reads a list limit, falling back to def and capping at
// maxListLimit.
func parseLimit(value string, def int) (int, error) {
	parsed, err := parseOptionalInt(value)
	if err != nil {
		return 0, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	if parsed == nil || *parsed <= 0 {
		return def, nil
	}
	return min(*parsed, maxListLimit), nil
}

// splitList accepts both repeated and comma separated query values.
func splitList(values []string) []string {
	var out []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
