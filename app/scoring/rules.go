package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yml
var defaultRulesYAML []byte

// TextRule adds Weight and emits Label when Pattern matches the normalized synopsis.
type TextRule struct {
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
	Label   string  `yaml:"label"`

	re *regexp.Regexp
}

// GenreSignal fires once when any of Genres is present in the genre set.
type GenreSignal struct {
	Genres []string `yaml:"genres"`
	Weight float64  `yaml:"weight"`
	Label  string   `yaml:"label"`
}

// KeywordGroup fires once when any of Keywords is present in the keyword set.
type KeywordGroup struct {
	Keywords []string `yaml:"keywords"`
	Weight   float64  `yaml:"weight"`
	Label    string   `yaml:"label"`
}

type RuleSet struct {
	Version       string         `yaml:"version"`
	ScaleFactor   float64        `yaml:"scale_factor"`
	Floor         float64        `yaml:"floor"`
	TextRules     []TextRule     `yaml:"text_rules"`
	GenreSignals  []GenreSignal  `yaml:"genre_signals"`
	KeywordGroups []KeywordGroup `yaml:"keyword_groups"`
}

// DefaultRuleSet returns the embedded canonical rule set.
func DefaultRuleSet() (*RuleSet, error) {
	rs, err := ParseRuleSet(defaultRulesYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded rule set: %w", err)
	}
	return rs, nil
}

// LoadRuleSet reads a rule set from path, or returns the embedded one when path is empty.
func LoadRuleSet(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRuleSet()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	rs, err := ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("invalid rule set %s: %w", path, err)
	}
	return rs, nil
}

// ParseRuleSet decodes, validates and compiles a YAML rule set.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := rs.compile(); err != nil {
		return nil, err
	}

	return &rs, nil
}

func (rs *RuleSet) compile() error {
	if strings.TrimSpace(rs.Version) == "" {
		return fmt.Errorf("version is required")
	}
	if rs.ScaleFactor <= 0 {
		return fmt.Errorf("scale factor must be positive")
	}
	if rs.Floor < 0 || rs.Floor > MaxScore {
		return fmt.Errorf("floor must be within [0, %d]", MaxScore)
	}

	for i := range rs.TextRules {
		rule := &rs.TextRules[i]
		if rule.Pattern == "" {
			return fmt.Errorf("text rule at index %d has no pattern", i)
		}
		if err := checkWeightAndLabel("text rule", i, rule.Weight, rule.Label); err != nil {
			return err
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("text rule at index %d: invalid pattern: %w", i, err)
		}
		rule.re = re
	}

	for i := range rs.GenreSignals {
		signal := &rs.GenreSignals[i]
		if err := checkWeightAndLabel("genre signal", i, signal.Weight, signal.Label); err != nil {
			return err
		}
		members, err := normalizeMembers(signal.Genres)
		if err != nil {
			return fmt.Errorf("genre signal at index %d: %w", i, err)
		}
		signal.Genres = members
	}

	for i := range rs.KeywordGroups {
		group := &rs.KeywordGroups[i]
		if err := checkWeightAndLabel("keyword group", i, group.Weight, group.Label); err != nil {
			return err
		}
		members, err := normalizeMembers(group.Keywords)
		if err != nil {
			return fmt.Errorf("keyword group at index %d: %w", i, err)
		}
		group.Keywords = members
	}

	return nil
}

func checkWeightAndLabel(kind string, index int, weight float64, label string) error {
	if weight <= 0 {
		return fmt.Errorf("%s at index %d must have a positive weight", kind, index)
	}
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("%s at index %d has no label", kind, index)
	}
	return nil
}

func normalizeMembers(values []string) ([]string, error) {
	members := make([]string, 0, len(values))
	for _, v := range values {
		if n := Normalize(v); n != "" {
			members = append(members, n)
		}
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("at least one member is required")
	}
	return members, nil
}

// Matches reports whether the rule fires on already normalized text.
func (r TextRule) Matches(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

func (s GenreSignal) Matches(genres map[string]struct{}) bool {
	return containsAny(genres, s.Genres)
}

func (g KeywordGroup) Matches(keywords map[string]struct{}) bool {
	return containsAny(keywords, g.Keywords)
}

// containsAny stops at the first member found.
func containsAny(set map[string]struct{}, members []string) bool {
	for _, m := range members {
		if _, ok := set[m]; ok {
			return true
		}
	}
	return false
}
