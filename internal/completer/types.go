// Package completer implements spec.md §4.2 (C2): two-phase repair of
// truncated JSON into valid JSON, with a typed repair trace, confidence
// scoring, and adaptive strategy selection.
package completer

import "github.com/deltastream/core/internal/strategy"

// Severity classifies how invasive a completion was, per spec.md §3.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// penalty implements the multiplier table of spec.md §4.2.3
// item 4.
func (s Severity) penalty() float64 {
	switch s {
	case SeverityMinor:
		return 1.0
	case SeverityModerate:
		return 0.85
	case SeverityMajor:
		return 0.6
	case SeverityCritical:
		return 0.3
	default:
		return 1.0
	}
}

// Phase tags which half of the two-phase algorithm produced a RepairStep.
type Phase string

const (
	PhaseLexical   Phase = "lexical"
	PhaseSyntactic Phase = "syntactic"
)

// Span is a byte offset range in the text a RepairStep affected.
type Span struct {
	Start int
	End   int
}

// RepairStep records one proposed (and possibly rolled back) repair
// operation, per spec.md §3. Applied is true iff the step's effect is
// present in the final repaired text, and per spec.md §9's resolved open
// question, the repaired text corresponds exactly to the Applied-true
// steps applied in order.
type RepairStep struct {
	Phase       Phase
	Operation   string
	Description string
	Span        Span
	Confidence  float64
	Applied     bool
}

// RepairTrace is the ordered record of one completion attempt.
type RepairTrace struct {
	OriginalText string
	RepairedText string
	Steps        []RepairStep
	Confidence   float64
	Severity     Severity
	Strategy     strategy.Kind
}

// AppliedSteps returns the steps that ended up in the final text, in
// order.
func (t RepairTrace) AppliedSteps() []RepairStep {
	var out []RepairStep
	for _, s := range t.Steps {
		if s.Applied {
			out = append(out, s)
		}
	}
	return out
}

// LexicalRatio is the fraction of applied steps that were Phase L,
// feeding spec.md §4.2.3 item 2.
func (t RepairTrace) LexicalRatio() float64 {
	applied := t.AppliedSteps()
	if len(applied) == 0 {
		return 0
	}
	lexical := 0
	for _, s := range applied {
		if s.Phase == PhaseLexical {
			lexical++
		}
	}
	return float64(lexical) / float64(len(applied))
}

// MeanStepConfidence is the arithmetic mean of applied steps' confidence,
// feeding spec.md §4.2.3 item 3.
func (t RepairTrace) MeanStepConfidence() float64 {
	applied := t.AppliedSteps()
	if len(applied) == 0 {
		return 1.0
	}
	sum := 0.0
	for _, s := range applied {
		sum += s.Confidence
	}
	return sum / float64(len(applied))
}

// Suggestion is what a registered schema hook returns for one path, per
// spec.md §6.
type Suggestion struct {
	Path            string
	SuggestedValue  any
	Confidence      float64
}

// SchemaHook is the external validator callback spec.md §6 describes:
// "(tree, path) -> list[Suggestion]". The core invokes it after each
// completion call and never implements schema validation itself.
type SchemaHook func(treeJSON string, path string) []Suggestion

// CompletionResult is what Complete returns, per spec.md §3.
type CompletionResult struct {
	RepairedJSON           string
	IsValid                bool
	Confidence             float64
	Strategy               strategy.Kind
	Trace                  RepairTrace
	SchemaSuggestionsApplied int
	HistoricalSuccessRate  float64
}
