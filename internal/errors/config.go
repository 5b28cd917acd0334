// Package errors provides error types for npx-scripts.
// This file contains configuration-related errors.
package errors

import (
	"fmt"
	"strings"
)

// ConfigParseError creates an error for config file parsing failures.
func ConfigParseError(configPath string, parseErr error) *Error {
	return &Error{
		Kind:    ErrConfig,
		Message: fmt.Sprintf("failed to parse configuration: %s", configPath),
		Cause:   parseErr,
		Details: map[string]string{
			"path": configPath,
		},
		Suggestion: `Check the config file for YAML syntax errors:
  1. Use spaces, not tabs, for indentation
  2. Quote values containing ':' or '#'
  3. Durations use Go syntax: 500ms, 2m, 1h`,
	}
}

// ConfigValidationError creates an error for an invalid configuration value.
func ConfigValidationError(field, message string, validOptions []string) *Error {
	suggestion := fmt.Sprintf("Fix the %q field in the config file", field)
	if len(validOptions) > 0 {
		suggestion += fmt.Sprintf("\n  Valid options: %s", strings.Join(validOptions, ", "))
	}

	return &Error{
		Kind:    ErrConfig,
		Message: fmt.Sprintf("invalid configuration: %s", message),
		Details: map[string]string{
			"field": field,
		},
		Suggestion: suggestion,
	}
}
