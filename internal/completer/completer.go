package completer

import (
	"encoding/json"
	"sync"

	"github.com/deltastream/core/internal/jsontree"
	"github.com/deltastream/core/internal/pathutil"
	"github.com/deltastream/core/internal/strategy"
)

// Completer owns one Selector (C7) and a single registered schema hook,
// per spec.md §4.2 and §6.
type Completer struct {
	selector   *strategy.Selector
	schemaHook SchemaHook

	mu    sync.Mutex
	stats Stats
}

// Stats is a read-only snapshot of aggregate completion counters,
// supplementing the Python source's completer.completion_stats
// introspection (see SPEC_FULL.md §4.2). It carries no mutating
// operation and touches no invariant of spec.md §8.
type Stats struct {
	TotalCalls     int
	ValidResults   int
	InvalidResults int
	AlreadyValid   int
}

// New builds a Completer with the given initial strategy and selector
// tuning. schemaHook may be nil.
func New(cfg strategy.Config, initial strategy.Kind, schemaHook SchemaHook) *Completer {
	return &Completer{
		selector:   strategy.New(cfg, initial),
		schemaHook: schemaHook,
	}
}

// Stats returns a snapshot of this Completer's aggregate counters.
func (c *Completer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// SelectorStats exposes the owned Adaptive Strategy Selector's
// per-strategy history, so callers introspecting a Completer don't need
// to hold their own reference to its Selector.
func (c *Completer) SelectorStats() map[strategy.Kind]strategy.History {
	return c.selector.Stats()
}

func (c *Completer) recordStats(result CompletionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TotalCalls++
	if result.IsValid {
		c.stats.ValidResults++
	} else {
		c.stats.InvalidResults++
	}
	if len(result.Trace.Steps) == 1 && result.Trace.Steps[0].Operation == "already-valid" {
		c.stats.AlreadyValid++
	}
}

// Complete implements spec.md §4.2.1: repair text into valid JSON, never
// raising on malformed input. hint overrides adaptive strategy selection
// for this single call when non-nil.
func (c *Completer) Complete(text string, hint *strategy.Kind) CompletionResult {
	if text == "" {
		result := c.emptyInputResult(hint)
		c.recordStats(result)
		return result
	}

	if isStrictlyValid(text) {
		result := c.alreadyValidResult(text, hint)
		c.recordStats(result)
		return result
	}

	strat := c.selector.Select(hint)
	result := c.attempt(text, strat)
	c.selector.RecordResult(strat, result.IsValid, result.Confidence, failureType(result))

	for !result.IsValid {
		next, ok := strat.Next()
		if !ok {
			break
		}
		strat = next
		result = c.attempt(text, strat)
		c.selector.RecordResult(strat, result.IsValid, result.Confidence, failureType(result))
	}

	result.HistoricalSuccessRate = c.selector.SuccessRate(strat)
	c.recordStats(result)
	return result
}

// attempt runs the two-phase algorithm once at a fixed strategy and
// verifies the result with a strict round trip, per spec.md §4.2.2's
// closing paragraph.
func (c *Completer) attempt(original string, strat strategy.Kind) CompletionResult {
	lexed, lexSteps := runLexical(original)
	repaired, synSteps := runSyntactic(lexed, strat)

	steps := append(append([]RepairStep{}, lexSteps...), synSteps...)
	trace := RepairTrace{
		OriginalText: original,
		RepairedText: repaired,
		Steps:        steps,
		Strategy:     strat,
	}

	tree, err := jsontree.Decode([]byte(repaired))
	broken := err != nil
	trace.Severity = classifySeverity(trace, broken)

	if broken {
		trace.Confidence = 0
		return CompletionResult{
			RepairedJSON: repaired,
			IsValid:      false,
			Confidence:   0,
			Strategy:     strat,
			Trace:        trace,
		}
	}

	appliedCount, repaired, tree := c.applySchemaSuggestions(tree, repaired, strat)

	conf := score(original, repaired, trace, trace.Severity, c.schemaHook != nil, appliedCount, c.selector.HasHistory(strat), c.selector.SuccessRate(strat))
	trace.Confidence = conf

	return CompletionResult{
		RepairedJSON:             repaired,
		IsValid:                  true,
		Confidence:               conf,
		Strategy:                 strat,
		Trace:                    trace,
		SchemaSuggestionsApplied: appliedCount,
	}
}

// applySchemaSuggestions implements spec.md §4.6/§6: the registered hook
// is invoked once per repair attempt whose result passes the strict round
// trip; the empty-input and already-valid short circuits, and attempts
// that fail the round trip, do not invoke it. Suggestions for a path that
// already exists in the tree are only written back in Aggressive
// strategy, since overwriting an already-observed value is itself a
// repair decision.
func (c *Completer) applySchemaSuggestions(tree *jsontree.Value, repaired string, strat strategy.Kind) (int, string, *jsontree.Value) {
	if c.schemaHook == nil {
		return 0, repaired, tree
	}
	suggestions := c.schemaHook(jsontree.Encode(tree), "")
	applied := 0
	for _, s := range suggestions {
		p, err := pathutil.Parse(s.Path, pathutil.StyleDot)
		if err != nil {
			continue
		}
		_, exists := pathutil.Traverse(tree, p)
		if exists && strat != strategy.Aggressive {
			continue
		}
		val, ok := suggestedValueToTree(s.SuggestedValue)
		if !ok {
			continue
		}
		if writeAtPath(tree, p, val) {
			applied++
		}
	}
	if applied == 0 {
		return 0, repaired, tree
	}
	return applied, jsontree.Encode(tree), tree
}

// writeAtPath sets the value at p inside tree without creating any
// intermediate container: the parent must already exist. An array parent
// accepts only an index already in range; an object parent gains the key
// if it is absent.
func writeAtPath(tree *jsontree.Value, p pathutil.Path, val *jsontree.Value) bool {
	if len(p) == 0 {
		return false
	}
	parent, ok := pathutil.Traverse(tree, p[:len(p)-1])
	if !ok || parent == nil {
		return false
	}
	last := p[len(p)-1]
	switch {
	case last.IsIndex && parent.Kind == jsontree.KindArray:
		if last.Index < 0 || last.Index >= len(parent.Array) {
			return false
		}
		parent.Array[last.Index] = val
		return true
	case !last.IsIndex && parent.Kind == jsontree.KindObject:
		parent.Set(last.Key, val)
		return true
	default:
		return false
	}
}

func suggestedValueToTree(v any) (*jsontree.Value, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	val, err := jsontree.Decode(raw)
	if err != nil {
		return nil, false
	}
	return val, true
}

func isStrictlyValid(text string) bool {
	_, err := jsontree.Decode([]byte(text))
	return err == nil
}

// emptyInputResult implements spec.md §4.2.4: empty input is a valid
// result of "null", since "" is a syntactic prefix of every JSON
// document and must satisfy the Smart-completion totality property of
// spec.md §8 property 3. Confidence stays 0.0 outside Aggressive, since
// the value was synthesized from nothing rather than recovered.
func (c *Completer) emptyInputResult(hint *strategy.Kind) CompletionResult {
	strat := c.selector.Select(hint)
	confidence := 0.0
	if strat == strategy.Aggressive {
		confidence = 1.0
	}
	trace := RepairTrace{
		OriginalText: "",
		RepairedText: "null",
		Steps: []RepairStep{{
			Phase:       PhaseSyntactic,
			Operation:   "synthesize-value",
			Description: "synthesized null for empty input",
			Confidence:  confidence,
			Applied:     true,
		}},
		Confidence: confidence,
		Severity:   SeverityMajor,
		Strategy:   strat,
	}
	return CompletionResult{
		RepairedJSON: "null",
		IsValid:      true,
		Confidence:   confidence,
		Strategy:     strat,
		Trace:        trace,
	}
}

// alreadyValidResult implements spec.md §4.2.4's short circuit.
func (c *Completer) alreadyValidResult(text string, hint *strategy.Kind) CompletionResult {
	strat := c.selector.Select(hint)
	trace := RepairTrace{
		OriginalText: text,
		RepairedText: text,
		Steps: []RepairStep{{
			Phase:       PhaseSyntactic,
			Operation:   "already-valid",
			Description: "input was already valid JSON",
			Span:        Span{Start: 0, End: len(text)},
			Confidence:  1.0,
			Applied:     true,
		}},
		Confidence: 1.0,
		Severity:   SeverityMinor,
		Strategy:   strat,
	}
	c.selector.RecordResult(strat, true, 1.0, "")
	return CompletionResult{
		RepairedJSON:          text,
		IsValid:               true,
		Confidence:            1.0,
		Strategy:              strat,
		Trace:                 trace,
		HistoricalSuccessRate: c.selector.SuccessRate(strat),
	}
}

func failureType(r CompletionResult) string {
	if r.IsValid {
		return ""
	}
	if r.Trace.Severity == SeverityCritical {
		return "irrecoverable"
	}
	return "unrecoverable"
}
