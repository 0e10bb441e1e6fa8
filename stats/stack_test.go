package stats

import (
	"errors"
	"testing"
	"time"
)

func buildModifier(t *testing.T, cfg ModifierConfig, id string) Modifier {
	t.Helper()
	mod, err := NewModifier(cfg, id, time.Now())
	if err != nil {
		t.Fatalf("failed to build modifier %s: %v", id, err)
	}
	return mod
}

func TestStackLazyRecompute(t *testing.T) {
	stack := NewStack()
	stack.SetBase(100)
	if got := stack.Value(); got != 100 {
		t.Fatalf("expected base value 100, got %.3f", got)
	}

	res := stack.Add(buildModifier(t, ModifierConfig{Value: 50, Kind: KindAdditive, Source: "Potion"}, "m1"))
	if !res.Inserted {
		t.Fatalf("expected insert to land")
	}
	if got := stack.Value(); got != 150 {
		t.Fatalf("expected 150 after additive +50, got %.3f", got)
	}
	if got := stack.Base(); got != 100 {
		t.Fatalf("expected raw base 100 regardless of modifiers, got %.3f", got)
	}
}

func TestStackingReplace(t *testing.T) {
	stack := NewStack()
	stack.SetBase(10)
	stack.Add(buildModifier(t, ModifierConfig{Value: 5, Kind: KindAdditive, Source: "X"}, "m1"))
	stack.Add(buildModifier(t, ModifierConfig{Value: 7, Kind: KindAdditive, Source: "X"}, "m2"))

	res := stack.Add(buildModifier(t, ModifierConfig{Value: 3, Kind: KindAdditive, Source: "X", Rule: RuleReplace}, "m3"))
	if !res.Inserted || len(res.Removed) != 2 {
		t.Fatalf("expected replace to remove 2 and insert, got %+v", res)
	}
	if got := stack.Len(); got != 1 {
		t.Fatalf("expected a single survivor, got %d", got)
	}
	if got := stack.Value(); got != 13 {
		t.Fatalf("expected 13 after replace, got %.3f", got)
	}
}

func TestStackingHighestKeepsLarger(t *testing.T) {
	build := func(order []float64) *Stack {
		stack := NewStack()
		stack.SetBase(0)
		for i, v := range order {
			id := "m1"
			if i == 1 {
				id = "m2"
			}
			stack.Add(buildModifier(t, ModifierConfig{Value: v, Kind: KindAdditive, Source: "X", Rule: RuleHighest}, id))
		}
		return stack
	}

	for _, order := range [][]float64{{10, 5}, {5, 10}} {
		stack := build(order)
		if got := stack.Len(); got != 1 {
			t.Fatalf("order %v: expected one survivor, got %d", order, got)
		}
		if got := stack.Value(); got != 10 {
			t.Fatalf("order %v: expected value 10 to survive, got %.3f", order, got)
		}
	}
}

func TestStackingHighestDiscardsEqual(t *testing.T) {
	stack := NewStack()
	stack.SetBase(0)
	stack.Add(buildModifier(t, ModifierConfig{Value: 10, Kind: KindAdditive, Source: "X", Rule: RuleHighest}, "m1"))
	res := stack.Add(buildModifier(t, ModifierConfig{Value: 10, Kind: KindAdditive, Source: "X", Rule: RuleHighest}, "m2"))
	if res.Changed() {
		t.Fatalf("expected equal-value highest insert to be a no-op, got %+v", res)
	}
	if _, ok := stack.Modifier("m1"); !ok {
		t.Fatalf("expected original modifier to survive")
	}
}

func TestStackingRefreshPreservesIdentity(t *testing.T) {
	stack := NewStack()
	stack.SetBase(0)
	first := buildModifier(t, ModifierConfig{Value: 5, Kind: KindAdditive, Source: "Aura", Rule: RuleRefresh, Duration: time.Minute}, "m1")
	stack.Add(first)

	later := time.Now().Add(time.Hour)
	second := Modifier{ID: "m2", Value: 9, Kind: KindAdditive, Source: "Aura", Priority: DefaultPriority, Rule: RuleRefresh, ExpiresAt: later}
	res := stack.Add(second)
	if res.Inserted {
		t.Fatalf("expected refresh to update in place, not insert")
	}
	if res.Refreshed != "m1" {
		t.Fatalf("expected refresh to preserve id m1, got %q", res.Refreshed)
	}
	if got := stack.Len(); got != 1 {
		t.Fatalf("expected exactly one modifier, got %d", got)
	}
	mod, ok := stack.Modifier("m1")
	if !ok {
		t.Fatalf("expected modifier m1 to remain")
	}
	if mod.Value != 9 || !mod.ExpiresAt.Equal(later) {
		t.Fatalf("expected refreshed value/expiry, got value=%.3f expiresAt=%v", mod.Value, mod.ExpiresAt)
	}
}

func TestStackingRefreshWithoutExistingInserts(t *testing.T) {
	stack := NewStack()
	stack.SetBase(0)
	res := stack.Add(buildModifier(t, ModifierConfig{Value: 5, Kind: KindAdditive, Source: "Aura", Rule: RuleRefresh}, "m1"))
	if !res.Inserted {
		t.Fatalf("expected refresh with no same-source modifier to behave like stack")
	}
}

func TestSetClampsRequiresBase(t *testing.T) {
	stack := NewStack()
	min := 0.0
	if err := stack.SetClamps(&min, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before SetBase, got %v", err)
	}
	if err := stack.SetDecimalPlaces(nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before SetBase, got %v", err)
	}

	stack.SetBase(50)
	max := 40.0
	if err := stack.SetClamps(nil, &max); err != nil {
		t.Fatalf("unexpected clamp error after SetBase: %v", err)
	}
	if got := stack.Value(); got != 40 {
		t.Fatalf("expected clamped value 40, got %.3f", got)
	}
}

func TestSetDecimalPlacesRejectsNegative(t *testing.T) {
	stack := NewStack()
	stack.SetBase(1)
	places := -1
	if err := stack.SetDecimalPlaces(&places); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for negative places, got %v", err)
	}
}

func TestRemoveBySourceAndTag(t *testing.T) {
	stack := NewStack()
	stack.SetBase(0)
	stack.Add(buildModifier(t, ModifierConfig{Value: 1, Kind: KindAdditive, Source: "A", Tags: []string{"buff"}}, "m1"))
	stack.Add(buildModifier(t, ModifierConfig{Value: 2, Kind: KindAdditive, Source: "A", Tags: []string{"debuff"}}, "m2"))
	stack.Add(buildModifier(t, ModifierConfig{Value: 4, Kind: KindAdditive, Source: "B", Tags: []string{"buff"}}, "m3"))

	if got := stack.RemoveBySource("A"); len(got) != 2 {
		t.Fatalf("expected 2 removed by source, got %d", len(got))
	}
	if got := stack.RemoveByTag("buff"); len(got) != 1 {
		t.Fatalf("expected 1 removed by tag, got %d", len(got))
	}
	if _, ok := stack.Remove("missing"); ok {
		t.Fatalf("expected removal of unknown id to report false")
	}
	if got := stack.Value(); got != 0 {
		t.Fatalf("expected empty stack to settle at base 0, got %.3f", got)
	}
}

func TestModifierValueBoundsAtInsert(t *testing.T) {
	min, max := 0.0, 25.0
	mod := buildModifier(t, ModifierConfig{Value: 100, Kind: KindAdditive, Source: "X", ValueMin: &min, ValueMax: &max}, "m1")
	if mod.Value != 25 {
		t.Fatalf("expected value clamped to 25 at insert, got %.3f", mod.Value)
	}
}

func TestNewModifierValidation(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		cfg  ModifierConfig
	}{
		{"missing source", ModifierConfig{Value: 1, Kind: KindAdditive}},
		{"missing kind", ModifierConfig{Value: 1, Source: "X"}},
		{"unknown kind", ModifierConfig{Value: 1, Kind: "exponential", Source: "X"}},
		{"unknown rule", ModifierConfig{Value: 1, Kind: KindAdditive, Source: "X", Rule: "merge"}},
	}
	for _, tc := range cases {
		if _, err := NewModifier(tc.cfg, "id", now); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}

	if _, err := NewModifier(ModifierConfig{Value: 1, Kind: KindAdditive, Source: "X"}, "", now); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty id, got %v", err)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	producer := NewStack()
	producer.SetBase(100)
	min, max := 0.0, 500.0
	if err := producer.SetClamps(&min, &max); err != nil {
		t.Fatalf("unexpected clamp error: %v", err)
	}
	places := 1
	if err := producer.SetDecimalPlaces(&places); err != nil {
		t.Fatalf("unexpected decimal error: %v", err)
	}
	producer.Add(buildModifier(t, ModifierConfig{Value: 20, Kind: KindAdditive, Source: "gear"}, "m1"))
	producer.Add(buildModifier(t, ModifierConfig{Value: 1.2, Kind: KindMultiplicative, Source: "aura"}, "m2"))

	mirror := NewStack()
	mirror.Restore(producer.Snapshot())
	if got, want := mirror.Value(), producer.Value(); got != want {
		t.Fatalf("mirror diverged after restore: %.6f vs %.6f", got, want)
	}

	snapshot := producer.Snapshot()
	if got, want := snapshot.Value(), producer.Value(); got != want {
		t.Fatalf("snapshot value diverged: %.6f vs %.6f", got, want)
	}
}
