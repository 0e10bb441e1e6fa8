package stats

import (
	"fmt"
	"strings"
)

// ValidatePath checks that a stat path has exactly two non-empty segments
// separated by a single dot, e.g. "Combat.Health".
func ValidatePath(path string) error {
	category, name, ok := strings.Cut(path, ".")
	if !ok || category == "" || name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

// SplitPath returns the category and name segments of a valid stat path.
func SplitPath(path string) (category, name string, err error) {
	if err := ValidatePath(path); err != nil {
		return "", "", err
	}
	category, name, _ = strings.Cut(path, ".")
	return category, name, nil
}
