// Package errors provides error types for npx-scripts.
// This file contains installation and filesystem errors.
package errors

import (
	"fmt"
	"strconv"
	"time"
)

// InstallFailed creates an error for a failed package install. The message
// is expected to be already reduced to a single relevant line.
func InstallFailed(module, message string, exitCode int) *Error {
	if message == "" {
		message = fmt.Sprintf("failed to install %s", module)
	}
	return &Error{
		Kind:    ErrInstall,
		Message: message,
		Details: map[string]string{
			"module":    module,
			"exit_code": strconv.Itoa(exitCode),
		},
		Suggestion: `Check that the package name and version in the shebang exist:
  npm view <name>@<version> version

Then retry with:
  npx-scripts reinstall <file>`,
	}
}

// InstallTimeout creates an error for an install that exceeded its deadline.
func InstallTimeout(module string, limit time.Duration) *Error {
	return &Error{
		Kind:    ErrTimeout,
		Message: fmt.Sprintf("install of %s timed out after %v", module, limit),
		Details: map[string]string{
			"module": module,
			"limit":  limit.String(),
		},
		Suggestion: `Increase the limit in the config file:
  install:
    timeout: 5m

or disable it with timeout: 0s.`,
	}
}

// IOFailure wraps a filesystem error for the given operation and path.
func IOFailure(op, path string, cause error) *Error {
	return &Error{
		Kind:    ErrIO,
		Message: fmt.Sprintf("%s %s failed", op, path),
		Cause:   cause,
		Details: map[string]string{
			"operation": op,
			"path":      path,
		},
	}
}

// NoDirective creates an error for a file that declares no module.
func NoDirective(path string) *Error {
	return &Error{
		Kind:    ErrParse,
		Message: fmt.Sprintf("no module declared in %s", path),
		Details: map[string]string{
			"path": path,
		},
		Suggestion: `Declare the package on the first line of the script:
  #!/usr/bin/env npx <package>[@<version>]`,
	}
}

// ValidationMismatch creates an error for an installed package whose
// manifest does not satisfy the declared reference.
func ValidationMismatch(module, dir, found string) *Error {
	return &Error{
		Kind:    ErrValidation,
		Message: fmt.Sprintf("%s in %s does not satisfy %s", found, dir, module),
		Details: map[string]string{
			"module": module,
			"dir":    dir,
			"found":  found,
		},
		Suggestion: "Reinstall the script's package to fetch the declared version.",
	}
}

// OutsideCache creates an error for a path that is not owned by the cache.
func OutsideCache(path, root string) *Error {
	return &Error{
		Kind:    ErrIO,
		Message: fmt.Sprintf("refusing to modify %s outside the managed cache", path),
		Details: map[string]string{
			"path": path,
			"root": root,
		},
	}
}
