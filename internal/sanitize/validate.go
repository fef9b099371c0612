package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidProjectName indicates the project name format is invalid.
var ErrInvalidProjectName = errors.New("invalid project name")

// projectNamePattern matches repository-style project names: alphanumeric
// with hyphens, underscores, and dots, 1-100 chars.
var projectNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,99}$`)

// ValidateProjectName checks that a user-provided project name is safe to
// embed in collection names, export file paths, and commit paths.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidProjectName)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: contains path characters", ErrInvalidProjectName)
	}
	if !projectNamePattern.MatchString(name) {
		return fmt.Errorf("%w: must be alphanumeric with '.', '_', '-' (1-100 chars)", ErrInvalidProjectName)
	}
	return nil
}
