package scoring

import (
	"math"
)

const (
	MinScore = 0
	MaxScore = 10

	// MaxFlags bounds the stored flag list.
	MaxFlags = 30
)

type Source string

const (
	SourceAuto   Source = "auto"
	SourceManual Source = "manual"
)

// Input is the scoring-relevant part of a work record.
type Input struct {
	SynopsisPrimary   string
	SynopsisSecondary string
	Genres            []string
	Keywords          []string
}

type Result struct {
	Score  float64
	Flags  []string
	Source Source
	Raw    float64
}

type Scorer struct {
	rules *RuleSet
}

func NewScorer(rules *RuleSet) *Scorer {
	return &Scorer{rules: rules}
}

func (s *Scorer) Rules() *RuleSet {
	return s.rules
}

// Run applies the rule set and returns a bounded score with the matched labels
// in first-matched order. A zero scaled score is lifted to the floor so a scored
// record never reads as "nothing detected".
func (s *Scorer) Run(in Input) Result {
	text := Normalize(in.SynopsisPrimary + "\n" + in.SynopsisSecondary)
	genres := NormalizeSet(in.Genres)
	keywords := NormalizeSet(in.Keywords)

	var raw float64
	labels := newLabelSet()

	for _, rule := range s.rules.TextRules {
		if rule.Matches(text) {
			raw += rule.Weight
			labels.add(rule.Label)
		}
	}

	for _, signal := range s.rules.GenreSignals {
		if signal.Matches(genres) {
			raw += signal.Weight
			labels.add(signal.Label)
		}
	}

	for _, group := range s.rules.KeywordGroups {
		if group.Matches(keywords) {
			raw += group.Weight
			labels.add(group.Label)
		}
	}

	scaled := roundPer(Clamp(raw*s.rules.ScaleFactor), 10)
	if scaled == 0 {
		scaled = s.rules.Floor
	}

	return Result{
		Score:  scaled,
		Flags:  labels.list(),
		Source: SourceAuto,
		Raw:    raw,
	}
}

// Clamp bounds a score to [MinScore, MaxScore].
func Clamp(v float64) float64 {
	return math.Min(MaxScore, math.Max(MinScore, v))
}

// roundPer rounds v to the nearest 1/units, e.g. units=10 keeps one decimal.
func roundPer(v, units float64) float64 {
	return math.Round(v*units) / units
}

type labelSet struct {
	seen  map[string]struct{}
	order []string
}

func newLabelSet() *labelSet {
	return &labelSet{seen: make(map[string]struct{}), order: []string{}}
}

func (l *labelSet) add(label string) {
	if _, ok := l.seen[label]; ok {
		return
	}
	l.seen[label] = struct{}{}
	l.order = append(l.order, label)
}

func (l *labelSet) list() []string {
	return l.order
}
