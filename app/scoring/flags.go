package scoring

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed flags.yml
var defaultFlagsYAML []byte

type Category string

const (
	CategoryPrincipal Category = "principal"
	CategorySecondary Category = "secondary"
	CategoryInfo      Category = "info"
)

// Categories lists the display groups in presentation order.
var Categories = []Category{CategoryPrincipal, CategorySecondary, CategoryInfo}

// Flag is an editor-selectable content flag. Category only groups flags for
// display; it never takes part in score arithmetic.
type Flag struct {
	ID          string   `yaml:"id" json:"id"`
	Label       string   `yaml:"label" json:"label"`
	Description string   `yaml:"description" json:"description"`
	Weight      float64  `yaml:"weight" json:"weight"`
	Category    Category `yaml:"category" json:"category"`
}

type FlagGroup struct {
	Category Category `json:"category"`
	Flags    []Flag   `json:"flags"`
}

// FlagCatalog is read-only after load.
type FlagCatalog struct {
	flags []Flag
	byID  map[string]Flag
}

type flagDocument struct {
	Flags []Flag `yaml:"flags"`
}

func DefaultFlagCatalog() (*FlagCatalog, error) {
	catalog, err := ParseFlagCatalog(defaultFlagsYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded flag catalog: %w", err)
	}
	return catalog, nil
}

// LoadFlagCatalog reads a catalog from path, or returns the embedded one when path is empty.
func LoadFlagCatalog(path string) (*FlagCatalog, error) {
	if path == "" {
		return DefaultFlagCatalog()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	catalog, err := ParseFlagCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("invalid flag catalog %s: %w", path, err)
	}
	return catalog, nil
}

func ParseFlagCatalog(data []byte) (*FlagCatalog, error) {
	var doc flagDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return NewFlagCatalog(doc.Flags)
}

// NewFlagCatalog validates flags and builds the lookup index.
func NewFlagCatalog(flags []Flag) (*FlagCatalog, error) {
	if len(flags) == 0 {
		return nil, fmt.Errorf("catalog has no flags")
	}

	validCategories := map[Category]bool{
		CategoryPrincipal: true,
		CategorySecondary: true,
		CategoryInfo:      true,
	}

	catalog := &FlagCatalog{
		flags: make([]Flag, 0, len(flags)),
		byID:  make(map[string]Flag, len(flags)),
	}

	for i, flag := range flags {
		flag.ID = strings.TrimSpace(flag.ID)
		if flag.ID == "" {
			return nil, fmt.Errorf("flag at index %d has no id", i)
		}
		if _, dup := catalog.byID[flag.ID]; dup {
			return nil, fmt.Errorf("duplicate flag id at index %d: %s", i, flag.ID)
		}
		if strings.TrimSpace(flag.Label) == "" {
			return nil, fmt.Errorf("flag %s has no label", flag.ID)
		}
		if !validCategories[flag.Category] {
			return nil, fmt.Errorf("invalid category for flag %s: %s", flag.ID, flag.Category)
		}
		if math.IsNaN(flag.Weight) || math.IsInf(flag.Weight, 0) {
			return nil, fmt.Errorf("flag %s has a non-finite weight", flag.ID)
		}

		catalog.flags = append(catalog.flags, flag)
		catalog.byID[flag.ID] = flag
	}

	return catalog, nil
}

func (c *FlagCatalog) All() []Flag {
	out := make([]Flag, len(c.flags))
	copy(out, c.flags)
	return out
}

func (c *FlagCatalog) Get(id string) (Flag, bool) {
	flag, ok := c.byID[id]
	return flag, ok
}

// Grouped returns the flags of each category in catalog order. Empty
// categories are omitted.
func (c *FlagCatalog) Grouped() []FlagGroup {
	groups := make([]FlagGroup, 0, len(Categories))
	for _, category := range Categories {
		var members []Flag
		for _, flag := range c.flags {
			if flag.Category == category {
				members = append(members, flag)
			}
		}
		if len(members) > 0 {
			groups = append(groups, FlagGroup{Category: category, Flags: members})
		}
	}
	return groups
}

// WeightedScore sums the weights of the selected flags, clamps the total to
// [0, 10] and rounds it to an integer. Unknown and repeated ids are ignored.
func (c *FlagCatalog) WeightedScore(ids []string) float64 {
	var total float64
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		flag, ok := c.byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		total += flag.Weight
	}
	return math.Round(Clamp(total))
}

// ManualScore is the free-form entry mode: clamp to [0, 10] at 0.5 granularity.
func ManualScore(value float64) float64 {
	return roundPer(Clamp(value), 2)
}

type Bucket struct {
	Label string `json:"label"`
	Hint  string `json:"hint"`
}

func BucketFor(score float64) Bucket {
	switch {
	case score >= 6:
		return Bucket{Label: "Alto", Hint: "Carga ideológica explícita"}
	case score >= 3:
		return Bucket{Label: "Mixto", Hint: "Presencia moderada o contextual"}
	default:
		return Bucket{Label: "Bajo", Hint: "Baja carga ideológica"}
	}
}
