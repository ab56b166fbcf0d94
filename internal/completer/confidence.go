package completer

// score implements spec.md §4.2.3: final confidence is the arithmetic
// mean of whichever contributing factors are available for this attempt
// (the schema-hook factor only applies when a hook is registered).
func score(original, repaired string, trace RepairTrace, severity Severity, schemaHookRegistered bool, schemaSuggestionsApplied int, historyAvailable bool, historicalSuccessRate float64) float64 {
	factors := []float64{
		baseFactor(original, repaired),
		lexicalRatioFactor(trace),
		trace.MeanStepConfidence(),
		severity.penalty(),
	}
	if schemaHookRegistered {
		factors = append(factors, schemaHookFactor(schemaSuggestionsApplied))
	}
	if historyAvailable {
		factors = append(factors, historicalSuccessRate)
	}

	sum := 0.0
	for _, f := range factors {
		sum += clamp01(f)
	}
	return sum / float64(len(factors))
}

// baseFactor implements item 1: max(0.1, 1.0 - min(added/original, 0.9)).
func baseFactor(original, repaired string) float64 {
	if len(original) == 0 {
		return 0.1
	}
	added := len(repaired) - len(original)
	if added < 0 {
		added = 0
	}
	ratio := float64(added) / float64(len(original))
	if ratio > 0.9 {
		ratio = 0.9
	}
	f := 1.0 - ratio
	if f < 0.1 {
		f = 0.1
	}
	return f
}

// lexicalRatioFactor implements item 2: 0.7 + 0.3 * (lexical/total).
func lexicalRatioFactor(trace RepairTrace) float64 {
	applied := trace.AppliedSteps()
	if len(applied) == 0 {
		return 1.0
	}
	return 0.7 + 0.3*trace.LexicalRatio()
}

// schemaHookFactor implements item 5: min(1.0, 0.8 + 0.04*s).
func schemaHookFactor(suggestionsApplied int) float64 {
	f := 0.8 + 0.04*float64(suggestionsApplied)
	if f > 1.0 {
		return 1.0
	}
	return f
}

// classifySeverity implements spec.md §4.2.3 item 4's severity
// classification from the applied step mix: any synthesized value or
// dropped member is at least Moderate; a critical (irrecoverable) parse
// is Critical regardless of what else happened.
func classifySeverity(trace RepairTrace, broken bool) Severity {
	if broken {
		return SeverityCritical
	}
	applied := trace.AppliedSteps()
	if len(applied) == 0 {
		return SeverityMinor
	}

	major, moderate := false, false
	for _, s := range applied {
		switch s.Operation {
		case "synthesize-value", "synthesize-numeric-extension", "drop-dangling-key", "drop-dangling-separator":
			major = true
		case "close-object", "close-array", "trim-numeric-fragment", "replace-unknown-token", "complete-literal":
			moderate = true
		}
	}
	switch {
	case major:
		return SeverityMajor
	case moderate:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}
