package stats

import (
	"errors"
	"testing"
)

func TestValidatePath(t *testing.T) {
	valid := []string{"Combat.Health", "Movement.Speed", "a.b"}
	for _, path := range valid {
		if err := ValidatePath(path); err != nil {
			t.Fatalf("expected %q to be valid, got %v", path, err)
		}
	}

	invalid := []string{"", "Health", "Combat.", ".Health", "Combat.Health.Max", "Combat..Health"}
	for _, path := range invalid {
		if err := ValidatePath(path); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("expected %q to fail with ErrInvalidPath, got %v", path, err)
		}
	}
}

func TestSplitPath(t *testing.T) {
	category, name, err := SplitPath("Combat.Health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if category != "Combat" || name != "Health" {
		t.Fatalf("expected Combat/Health, got %s/%s", category, name)
	}

	if _, _, err := SplitPath("bad"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}
