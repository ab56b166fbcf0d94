package completer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltastream/core/internal/strategy"
)

func TestCompleteSmartClosesTruncatedObject(t *testing.T) {
	c := New(strategy.DefaultConfig(), strategy.Smart, nil)
	smart := strategy.Smart

	result := c.Complete(`{"name": "Alice", "age": 25`, &smart)

	require.True(t, result.IsValid)
	assert.Equal(t, `{"name": "Alice", "age": 25}`, result.RepairedJSON)
	assert.GreaterOrEqual(t, result.Confidence, 0.7)
	assert.Equal(t, strategy.Smart, result.Strategy)

	applied := result.Trace.AppliedSteps()
	require.Len(t, applied, 1)
	assert.Equal(t, "close-object", applied[0].Operation)
	assert.Equal(t, PhaseSyntactic, applied[0].Phase)
}

func TestCompleteMidKeyObjectPerStrategy(t *testing.T) {
	input := `{"name": "Alice", "ag`

	aggressive := strategy.Aggressive
	cAgg := New(strategy.DefaultConfig(), strategy.Aggressive, nil)
	aggResult := cAgg.Complete(input, &aggressive)
	require.True(t, aggResult.IsValid)
	assert.Equal(t, `{"name": "Alice", "ag": null}`, aggResult.RepairedJSON)

	conservative := strategy.Conservative
	cCons := New(strategy.DefaultConfig(), strategy.Conservative, nil)
	consResult := cCons.Complete(input, &conservative)
	require.True(t, consResult.IsValid)
	assert.Equal(t, `{"name": "Alice"}`, consResult.RepairedJSON)

	smart := strategy.Smart
	cSmart := New(strategy.DefaultConfig(), strategy.Smart, nil)
	smartResult := cSmart.Complete(input, &smart)
	require.True(t, smartResult.IsValid)
	assert.Equal(t, consResult.RepairedJSON, smartResult.RepairedJSON)
}

func TestCompleteAlreadyValidShortCircuits(t *testing.T) {
	c := New(strategy.DefaultConfig(), strategy.Smart, nil)
	result := c.Complete(`{"a":1}`, nil)

	require.True(t, result.IsValid)
	assert.Equal(t, `{"a":1}`, result.RepairedJSON)
	assert.Equal(t, 1.0, result.Confidence)
	applied := result.Trace.AppliedSteps()
	require.Len(t, applied, 1)
	assert.Equal(t, "already-valid", applied[0].Operation)
}

func TestCompleteEmptyInput(t *testing.T) {
	aggressive := strategy.Aggressive
	cAgg := New(strategy.DefaultConfig(), strategy.Aggressive, nil)
	aggResult := cAgg.Complete("", &aggressive)
	assert.True(t, aggResult.IsValid)
	assert.Equal(t, 1.0, aggResult.Confidence)
	assert.Equal(t, "null", aggResult.RepairedJSON)

	smart := strategy.Smart
	cSmart := New(strategy.DefaultConfig(), strategy.Smart, nil)
	smartResult := cSmart.Complete("", &smart)
	assert.True(t, smartResult.IsValid)
	assert.Equal(t, 0.0, smartResult.Confidence)
	assert.Equal(t, "null", smartResult.RepairedJSON)
}

func TestCompleteIrrecoverableInputIsInvalid(t *testing.T) {
	c := New(strategy.DefaultConfig(), strategy.Smart, nil)
	result := c.Complete(`}}}`, nil)

	assert.False(t, result.IsValid)
	assert.Equal(t, SeverityCritical, result.Trace.Severity)
}

func TestStrategyAdaptationAfterConsecutiveFailures(t *testing.T) {
	cfg := strategy.DefaultConfig()
	cfg.MinSwitchInterval = 0
	c := New(cfg, strategy.Smart, nil)

	// Give Conservative a success on record so it is eligible to be chosen.
	consHint := strategy.Conservative
	c.Complete(`{"a":1}`, &consHint)

	irrecoverable := `]]]`
	for i := 0; i < cfg.ConsecutiveFailureThreshold; i++ {
		result := c.Complete(irrecoverable, nil)
		assert.False(t, result.IsValid)
	}

	result := c.Complete(`{"b":2`, nil)
	assert.Equal(t, strategy.Conservative, result.Strategy)
	assert.Less(t, c.selector.SuccessRate(strategy.Smart), 0.5)
}

func TestSchemaHookSuggestionOnlyAppliedInAggressive(t *testing.T) {
	hookCalls := 0
	hook := func(treeJSON string, path string) []Suggestion {
		hookCalls++
		return []Suggestion{{Path: "age", SuggestedValue: 99, Confidence: 0.5}}
	}

	smart := strategy.Smart
	cSmart := New(strategy.DefaultConfig(), strategy.Smart, hook)
	smartResult := cSmart.Complete(`{"name": "Alice", "age": 25`, &smart)
	require.True(t, smartResult.IsValid)
	assert.Equal(t, `{"name": "Alice", "age": 25}`, smartResult.RepairedJSON, "existing path must not be overwritten outside Aggressive")

	aggressive := strategy.Aggressive
	cAgg := New(strategy.DefaultConfig(), strategy.Aggressive, hook)
	aggResult := cAgg.Complete(`{"name": "Alice", "age": 25`, &aggressive)
	require.True(t, aggResult.IsValid)
	assert.Contains(t, aggResult.RepairedJSON, `"age":99`)
	assert.Equal(t, 1, aggResult.SchemaSuggestionsApplied)
	assert.True(t, hookCalls >= 2)
}
