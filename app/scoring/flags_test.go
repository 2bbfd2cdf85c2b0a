package scoring

import (
	"testing"
)

func newDefaultCatalog(t *testing.T) *FlagCatalog {
	t.Helper()
	catalog, err := DefaultFlagCatalog()
	if err != nil {
		t.Fatalf("Failed to load default flag catalog: %v", err)
	}
	return catalog
}

func TestFlagCatalog_Default(t *testing.T) {
	catalog := newDefaultCatalog(t)

	if len(catalog.All()) != 11 {
		t.Errorf("Expected 11 flags, got %d", len(catalog.All()))
	}

	flag, ok := catalog.Get("feminism_forced")
	if !ok {
		t.Fatal("Expected feminism_forced to be in the catalog")
	}
	if flag.Weight != 2 || flag.Category != CategoryPrincipal {
		t.Errorf("Unexpected flag definition: %+v", flag)
	}

	if _, ok := catalog.Get("unknown"); ok {
		t.Error("Expected unknown flag lookup to fail")
	}
}

func TestFlagCatalog_WeightedScore(t *testing.T) {
	catalog := newDefaultCatalog(t)

	tests := []struct {
		name     string
		ids      []string
		expected float64
	}{
		{"none", nil, 0},
		{"two principal", []string{"sexual_content_unanticipated", "political_agenda"}, 4},
		{"unknown ignored", []string{"political_agenda", "does_not_exist"}, 2},
		{"repeated ignored", []string{"political_agenda", "political_agenda"}, 2},
		{"negative clamps at zero", []string{"ambiguous_social_theme"}, 0},
		{"mixed", []string{"moral_imbalance", "ambiguous_social_theme", "forced_inclusion"}, 2},
		{"saturates at ten", []string{
			"sexual_content_unanticipated", "lgbt_explicit", "forced_inclusion",
			"political_agenda", "message_over_story", "feminism_forced",
		}, 10},
	}

	for _, test := range tests {
		result := catalog.WeightedScore(test.ids)
		if result != test.expected {
			t.Errorf("%s: expected %v, got %v", test.name, test.expected, result)
		}
	}
}

func TestFlagCatalog_WeightedScoreRoundsToInteger(t *testing.T) {
	catalog, err := NewFlagCatalog([]Flag{
		{ID: "a", Label: "A", Weight: 1.4, Category: CategoryPrincipal},
		{ID: "b", Label: "B", Weight: 1.2, Category: CategorySecondary},
	})
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}

	if score := catalog.WeightedScore([]string{"a", "b"}); score != 3 {
		t.Errorf("Expected 3, got %v", score)
	}
	if score := catalog.WeightedScore([]string{"a"}); score != 1 {
		t.Errorf("Expected 1, got %v", score)
	}
}

func TestFlagCatalog_Grouped(t *testing.T) {
	catalog := newDefaultCatalog(t)

	groups := catalog.Grouped()
	if len(groups) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(groups))
	}

	expected := map[Category]int{
		CategoryPrincipal: 6,
		CategorySecondary: 3,
		CategoryInfo:      2,
	}
	for i, group := range groups {
		if group.Category != Categories[i] {
			t.Errorf("Group %d: expected category %s, got %s", i, Categories[i], group.Category)
		}
		if len(group.Flags) != expected[group.Category] {
			t.Errorf("Category %s: expected %d flags, got %d", group.Category, expected[group.Category], len(group.Flags))
		}
	}

	if groups[0].Flags[0].ID != "sexual_content_unanticipated" {
		t.Errorf("Expected catalog order to be preserved, got %s first", groups[0].Flags[0].ID)
	}
}

func TestFlagCatalog_Validation(t *testing.T) {
	tests := []struct {
		name  string
		flags []Flag
	}{
		{"empty", nil},
		{"missing id", []Flag{{Label: "A", Category: CategoryInfo}}},
		{"duplicate id", []Flag{
			{ID: "a", Label: "A", Category: CategoryInfo},
			{ID: "a", Label: "B", Category: CategoryInfo},
		}},
		{"missing label", []Flag{{ID: "a", Category: CategoryInfo}}},
		{"bad category", []Flag{{ID: "a", Label: "A", Category: "other"}}},
	}

	for _, test := range tests {
		if _, err := NewFlagCatalog(test.flags); err == nil {
			t.Errorf("%s: expected validation error", test.name)
		}
	}
}

func TestParseFlagCatalog_RejectsUnknownShape(t *testing.T) {
	// Alternative field names are not accepted; label is required.
	data := []byte(`
flags:
  - id: a
    name: "Alt name"
    category: info
`)
	if _, err := ParseFlagCatalog(data); err == nil {
		t.Error("Expected error for flag without label")
	}
}

func TestManualScore(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{7.3, 7.5},
		{7.2, 7},
		{0.24, 0},
		{-3, 0},
		{12, 10},
		{4.75, 5},
		{9.5, 9.5},
	}

	for _, test := range tests {
		if result := ManualScore(test.input); result != test.expected {
			t.Errorf("ManualScore(%v): expected %v, got %v", test.input, test.expected, result)
		}
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		score    float64
		expected string
	}{
		{0, "Bajo"},
		{2.9, "Bajo"},
		{3, "Mixto"},
		{5.9, "Mixto"},
		{6, "Alto"},
		{10, "Alto"},
	}

	for _, test := range tests {
		if result := BucketFor(test.score); result.Label != test.expected {
			t.Errorf("BucketFor(%v): expected %s, got %s", test.score, test.expected, result.Label)
		}
	}
}
