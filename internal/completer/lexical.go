package completer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// runLexical implements spec.md §4.2.2 Phase L: character-level
// normalization that must never alter structural token count or
// nesting. Each applied change becomes a RepairStep with confidence
// >= 0.9.
func runLexical(text string) (string, []RepairStep) {
	var steps []RepairStep

	if trimmed, step, ok := trimTrailingWhitespace(text); ok {
		text = trimmed
		steps = append(steps, step)
	}
	if normalized, step, ok := normalizeUnicodeWhitespace(text); ok {
		text = normalized
		steps = append(steps, step)
	}
	if fixed, step, ok := fixObviousMojibake(text); ok {
		text = fixed
		steps = append(steps, step)
	}
	if stripped, step, ok := stripTrailingIncompleteUTF8(text); ok {
		text = stripped
		steps = append(steps, step)
	}

	return text, steps
}

func trimTrailingWhitespace(text string) (string, RepairStep, bool) {
	trimmed := strings.TrimRight(text, " \t\r\n")
	if trimmed == text {
		return text, RepairStep{}, false
	}
	return trimmed, RepairStep{
		Phase:       PhaseLexical,
		Operation:   "trim-trailing-whitespace",
		Description: "trimmed trailing whitespace",
		Span:        Span{Start: len(trimmed), End: len(text)},
		Confidence:  0.99,
		Applied:     true,
	}, true
}

// normalizeUnicodeWhitespace maps any Unicode whitespace rune to ASCII
// space, using the standard library's unicode.IsSpace rune
// classification rather than a hand-rolled byte table.
func normalizeUnicodeWhitespace(text string) (string, RepairStep, bool) {
	changed := false
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r != ' ' && unicode.IsSpace(r) {
			b.WriteByte(' ')
			changed = true
		} else {
			b.WriteRune(r)
		}
	}
	if !changed {
		return text, RepairStep{}, false
	}
	return b.String(), RepairStep{
		Phase:       PhaseLexical,
		Operation:   "normalize-unicode-whitespace",
		Description: "normalized Unicode whitespace to ASCII space",
		Confidence:  0.95,
		Applied:     true,
	}, true
}

// fixObviousMojibake repairs the classic UTF-8-decoded-as-Windows-1252
// artifact (e.g. "â€™" for "’"): text that is valid UTF-8 as given but
// whose runes, encoded back to Windows-1252 bytes, recover a plausible
// shorter string. Only fires when every rune of the current text is
// representable in Windows-1252 and the resulting bytes both decode
// cleanly as UTF-8 and disagree with the current text — i.e. the current
// interpretation and the recovered one cannot both be valid continuations
// of the same source text (spec.md §4.2.2).
func fixObviousMojibake(text string) (string, RepairStep, bool) {
	if !strings.ContainsAny(text, "ÂÃâã") {
		return text, RepairStep{}, false
	}
	enc := charmap.Windows1252
	recoded, err := enc.NewEncoder().String(text)
	if err != nil || recoded == text || recoded == "" {
		return text, RepairStep{}, false
	}
	if !utf8.ValidString(recoded) {
		return text, RepairStep{}, false
	}
	// Only accept the fix when it actually shortens mojibake sequences
	// (a genuine multi-byte-as-two-codepoints artifact), not an
	// unrelated reinterpretation.
	if len(recoded) >= len(text) {
		return text, RepairStep{}, false
	}
	return recoded, RepairStep{
		Phase:       PhaseLexical,
		Operation:   "fix-mojibake",
		Description: "repaired UTF-8-as-Windows-1252 mojibake",
		Confidence:  0.9,
		Applied:     true,
	}, true
}

// reencodeAsLatin1 takes the UTF-8 text's code points and, where each is
// in the Latin-1 range, emits the corresponding single byte — the
// inverse of decoding those bytes as Windows-1252 in the first place.
func reencodeAsLatin1(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r <= 0xFF {
			b.WriteByte(byte(r))
		} else {
			// Not representable; bail by returning the original so the
			// caller's equality/round-trip checks reject the fix.
			return text
		}
	}
	return b.String()
}

// stripTrailingIncompleteUTF8 removes a trailing byte sequence that
// begins a multi-byte UTF-8 code point but is not completed within the
// buffer — it cannot be decoded and must not be left for a strict JSON
// parser to choke on.
func stripTrailingIncompleteUTF8(text string) (string, RepairStep, bool) {
	if text == "" || utf8.ValidString(text) {
		return text, RepairStep{}, false
	}
	// Walk back up to 3 bytes (the longest incomplete lead) looking for
	// a valid truncation point.
	for back := 1; back <= 3 && back <= len(text); back++ {
		candidate := text[:len(text)-back]
		if utf8.ValidString(candidate) {
			return candidate, RepairStep{
				Phase:       PhaseLexical,
				Operation:   "strip-incomplete-utf8",
				Description: "stripped a trailing incomplete UTF-8 sequence",
				Span:        Span{Start: len(candidate), End: len(text)},
				Confidence:  0.95,
				Applied:     true,
			}, true
		}
	}
	return text, RepairStep{}, false
}
