package completer

import (
	"strings"

	"github.com/deltastream/core/internal/strategy"
)

// frameKind tags a container frame on the Phase S stack.
type frameKind int

const (
	frameObject frameKind = iota
	frameArray
)

// state tracks what token the scanner expects next inside an
// open container — this stands in for the bare "{", "[", """ stack
// spec.md §4.2.2 describes, refined enough to drive the repair rules.
type state int

const (
	stateExpectKeyOrClose state = iota // object: just opened or just saw ','
	stateExpectColon                   // object: key string just closed
	stateExpectValue                   // object/array: value is due
	stateExpectCommaOrClose            // object/array: a value was just consumed
)

type frame struct {
	kind      frameKind
	state     state
	hasMember bool // object/array already has at least one complete member
	// boundaryPos is the byte offset of the start of whatever
	// key/value attempt is currently pending in this frame — the safe
	// rollback point a Conservative/Smart repair trims back to when it
	// discards a dangling key or value instead of synthesizing one.
	boundaryPos int
}

// runSyntactic implements spec.md §4.2.2 Phase S: scan the Phase-L output
// left to right with a stack of open-container frames, closing whatever
// is unterminated in decreasing order of locality (string, then dangling
// primitive/separator, then open containers).
func runSyntactic(text string, strat strategy.Kind) (string, []RepairStep) {
	sc := &scanner{text: text, strat: strat}
	sc.run()
	return sc.resolve()
}

// pendingKind tags what the scanner was in the middle of when it ran off
// the end of the text.
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingString
	pendingScalar
)

type scanner struct {
	text  string
	strat strategy.Kind
	pos   int
	stack []frame
	steps []RepairStep

	broken       bool // irrecoverable: closing punctuation with no opener
	pending      pendingKind
	pendingStart int
}

func (sc *scanner) top() *frame {
	if len(sc.stack) == 0 {
		return nil
	}
	return &sc.stack[len(sc.stack)-1]
}

func (sc *scanner) run() {
	n := len(sc.text)
	for sc.pos < n {
		ch := sc.text[sc.pos]
		if isJSONSpace(ch) {
			sc.pos++
			continue
		}
		switch ch {
		case '{':
			sc.pos++
			sc.stack = append(sc.stack, frame{kind: frameObject, state: stateExpectKeyOrClose, boundaryPos: sc.pos})
		case '[':
			sc.pos++
			sc.stack = append(sc.stack, frame{kind: frameArray, state: stateExpectValue, boundaryPos: sc.pos})
		case '}':
			if !sc.popContainer(frameObject) {
				sc.broken = true
				return
			}
			sc.pos++
		case ']':
			if !sc.popContainer(frameArray) {
				sc.broken = true
				return
			}
			sc.pos++
		case '"':
			if !sc.consumeString() {
				return // ran off the end mid-string; handled by caller
			}
		case ':':
			f := sc.top()
			if f == nil || f.kind != frameObject || f.state != stateExpectColon {
				sc.broken = true
				return
			}
			sc.pos++
			f.state = stateExpectValue
		case ',':
			f := sc.top()
			if f == nil || f.state != stateExpectCommaOrClose {
				sc.broken = true
				return
			}
			commaPos := sc.pos
			sc.pos++
			if f.kind == frameObject {
				f.state = stateExpectKeyOrClose
			} else {
				f.state = stateExpectValue
			}
			// boundaryPos sits before the comma so a rollback that
			// discards the member this comma introduced also discards
			// the now-dangling separator itself.
			f.boundaryPos = commaPos
		default:
			if !sc.consumeScalar() {
				return // ran off the end mid-literal; handled by caller
			}
		}
	}
}

func (sc *scanner) popContainer(kind frameKind) bool {
	f := sc.top()
	if f == nil || f.kind != kind {
		return false
	}
	if f.state == stateExpectColon || f.state == stateExpectValue && f.kind == frameObject {
		// dangling key/value right before the closer; not reachable from
		// a well-formed document but tolerated defensively.
		return false
	}
	sc.stack = sc.stack[:len(sc.stack)-1]
	sc.afterValue()
	return true
}

// afterValue updates the now-current top frame after a nested value was
// fully consumed (string, scalar, or a closed container).
func (sc *scanner) afterValue() {
	f := sc.top()
	if f == nil {
		return
	}
	f.hasMember = true
	f.state = stateExpectCommaOrClose
}

// consumeString scans a double-quoted string literal starting at sc.pos
// (which must be '"'). Returns false if it runs off the end of the text
// without a closing quote — the caller is responsible for handling that
// as the "unterminated string" repair case.
func (sc *scanner) consumeString() bool {
	start := sc.pos
	i := sc.pos + 1
	for i < len(sc.text) {
		switch sc.text[i] {
		case '\\':
			i += 2
			continue
		case '"':
			sc.pos = i + 1
			sc.onStringClosed(start)
			return true
		}
		i++
	}
	sc.pending = pendingString
	sc.pendingStart = start
	return false
}

func (sc *scanner) onStringClosed(start int) {
	f := sc.top()
	if f == nil {
		return
	}
	if f.kind == frameObject && f.state == stateExpectKeyOrClose {
		f.state = stateExpectColon
		return
	}
	sc.afterValue()
}

// consumeScalar scans a number literal or a true/false/null keyword.
// Returns false if the text ends while the token is still ambiguous
// (could extend with more bytes) — handled by the caller as a "trailing
// primitive-in-progress" repair case.
func (sc *scanner) consumeScalar() bool {
	start := sc.pos
	ch := sc.text[start]
	if ch == '-' || (ch >= '0' && ch <= '9') {
		return sc.consumeNumber(start)
	}
	for _, kw := range []string{"true", "false", "null"} {
		if strings.HasPrefix(sc.text[start:], kw) {
			sc.pos = start + len(kw)
			sc.afterValue()
			return true
		}
		if len(sc.text)-start < len(kw) && strings.HasPrefix(kw, sc.text[start:]) {
			sc.pending = pendingScalar
			sc.pendingStart = start
			return false
		}
	}
	sc.broken = true
	return true
}

func (sc *scanner) consumeNumber(start int) bool {
	i := start
	n := len(sc.text)
	ambiguous := func() bool {
		sc.pending = pendingScalar
		sc.pendingStart = start
		return false
	}
	if i < n && sc.text[i] == '-' {
		i++
	}
	digitsBefore := i
	for i < n && isDigit(sc.text[i]) {
		i++
	}
	hasIntDigits := i > digitsBefore
	if i < n && sc.text[i] == '.' {
		i++
		fracStart := i
		for i < n && isDigit(sc.text[i]) {
			i++
		}
		if i == fracStart && i == n {
			// ends mid-fraction ("12.")
			return ambiguous()
		}
	}
	if i < n && (sc.text[i] == 'e' || sc.text[i] == 'E') {
		i++
		if i < n && (sc.text[i] == '+' || sc.text[i] == '-') {
			i++
		}
		expStart := i
		for i < n && isDigit(sc.text[i]) {
			i++
		}
		if i == expStart && i == n {
			return ambiguous()
		}
	}
	if !hasIntDigits && i == n {
		// just "-" with nothing after, and nothing more can arrive
		return ambiguous()
	}
	sc.pos = i
	sc.afterValue()
	return true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// resolve turns the scanner's end-of-input state into repaired text and
// the RepairSteps that produced it, applying the four Phase S rules of
// spec.md §4.2.2 in decreasing order of locality: unterminated string,
// trailing primitive-in-progress, dangling separator, open containers.
func (sc *scanner) resolve() (string, []RepairStep) {
	if sc.broken {
		return sc.text, nil
	}

	base := sc.text
	var steps []RepairStep

	switch sc.pending {
	case pendingString:
		base, steps = sc.resolveUnterminatedString()
	case pendingScalar:
		base, steps = sc.resolveTrailingPrimitive()
	default:
		base, steps = sc.resolveDanglingSeparator()
	}

	closing, closeSteps := sc.closeOpenContainers(len(base))
	base += closing
	steps = append(steps, closeSteps...)
	return base, steps
}

// resolveUnterminatedString implements rule 1: close the string, then —
// if it was serving as an object key with no colon yet — fall through to
// the dangling-key handling of rule 3.
func (sc *scanner) resolveUnterminatedString() (string, []RepairStep) {
	start := sc.pendingStart
	closed := sc.text + `"`
	distance := len(sc.text) - start
	confidence := 0.85 - 0.15*clamp01(float64(distance)/64.0)

	step := RepairStep{
		Phase:       PhaseSyntactic,
		Operation:   "close-string",
		Description: "closed an unterminated string literal",
		Span:        Span{Start: len(sc.text), End: len(closed)},
		Confidence:  confidence,
		Applied:     true,
	}

	f := sc.top()
	if f == nil {
		// a bare top-level string with no closing quote
		return closed, []RepairStep{step}
	}

	if f.kind == frameObject && f.state == stateExpectKeyOrClose {
		// This string was a pending object key; no colon ever arrived.
		return sc.resolveDanglingKey(closed, f, step)
	}

	f.hasMember = true
	f.state = stateExpectCommaOrClose
	return closed, []RepairStep{step}
}

// resolveDanglingKey implements the no-colon-yet half of rule 3: Smart and
// Conservative discard the incomplete member; Aggressive keeps the key
// and assigns it null (this is the behavior spec.md's worked example 2
// pins down exactly).
func (sc *scanner) resolveDanglingKey(closedKeyText string, f *frame, closeStep RepairStep) (string, []RepairStep) {
	if sc.strat == strategy.Aggressive {
		f.hasMember = true
		f.state = stateExpectCommaOrClose
		withValue := closedKeyText + ": null"
		return withValue, []RepairStep{closeStep, {
			Phase:       PhaseSyntactic,
			Operation:   "synthesize-value",
			Description: "assigned null to a key with no value",
			Span:        Span{Start: len(closedKeyText), End: len(withValue)},
			Confidence:  0.5,
			Applied:     true,
		}}
	}

	truncated := sc.text[:f.boundaryPos]
	f.state = stateExpectKeyOrClose
	return truncated, []RepairStep{{
		Phase:       PhaseSyntactic,
		Operation:   "drop-dangling-key",
		Description: "discarded an incomplete trailing object key",
		Span:        Span{Start: f.boundaryPos, End: len(sc.text)},
		Confidence:  0.8,
		Applied:     true,
	}}
}

// resolveTrailingPrimitive implements rule 2.
func (sc *scanner) resolveTrailingPrimitive() (string, []RepairStep) {
	start := sc.pendingStart
	fragment := sc.text[start:]

	replacement, confidence, op, desc := completePrimitiveFragment(fragment, sc.strat)
	result := sc.text[:start] + replacement

	sc.afterValue()

	return result, []RepairStep{{
		Phase:       PhaseSyntactic,
		Operation:   op,
		Description: desc,
		Span:        Span{Start: start, End: len(result)},
		Confidence:  confidence,
		Applied:     true,
	}}
}

// resolveDanglingSeparator implements the remaining half of rule 3: a
// trailing comma or colon with literally nothing following.
func (sc *scanner) resolveDanglingSeparator() (string, []RepairStep) {
	f := sc.top()
	if f == nil {
		return sc.text, nil
	}

	switch f.state {
	case stateExpectValue:
		return sc.resolveMissingValue(f)
	case stateExpectKeyOrClose:
		if f.kind != frameObject || !f.hasMember {
			return sc.text, nil
		}
		// object: a trailing comma after the last complete member;
		// boundaryPos sits on that comma.
		truncated := sc.text[:f.boundaryPos]
		f.state = stateExpectCommaOrClose
		return truncated, []RepairStep{{
			Phase: PhaseSyntactic, Operation: "drop-dangling-separator",
			Description: "discarded a trailing comma with no following member",
			Span:        Span{Start: f.boundaryPos, End: len(sc.text)},
			Confidence:  0.85, Applied: true,
		}}
	default:
		return sc.text, nil
	}
}

func (sc *scanner) resolveMissingValue(f *frame) (string, []RepairStep) {
	if f.kind == frameObject {
		switch sc.strat {
		case strategy.Aggressive:
			f.hasMember = true
			f.state = stateExpectCommaOrClose
			result := sc.text + `""`
			return result, []RepairStep{{
				Phase: PhaseSyntactic, Operation: "synthesize-value",
				Description: "synthesized an empty-string default for a missing value",
				Span:        Span{Start: len(sc.text), End: len(result)},
				Confidence:  0.5, Applied: true,
			}}
		default:
			truncated := sc.text[:f.boundaryPos]
			f.state = stateExpectKeyOrClose
			return truncated, []RepairStep{{
				Phase: PhaseSyntactic, Operation: "drop-dangling-key",
				Description: "discarded a key whose value never arrived",
				Span:        Span{Start: f.boundaryPos, End: len(sc.text)},
				Confidence:  0.8, Applied: true,
			}}
		}
	}

	// array: a trailing comma (or an empty array start) awaiting a value.
	switch sc.strat {
	case strategy.Conservative:
		truncated := sc.text[:f.boundaryPos]
		return truncated, []RepairStep{{
			Phase: PhaseSyntactic, Operation: "drop-dangling-separator",
			Description: "discarded a trailing comma with no following element",
			Span:        Span{Start: f.boundaryPos, End: len(sc.text)},
			Confidence:  0.85, Applied: true,
		}}
	default:
		f.hasMember = true
		f.state = stateExpectCommaOrClose
		result := sc.text + "null"
		return result, []RepairStep{{
			Phase: PhaseSyntactic, Operation: "synthesize-value",
			Description: "synthesized a null array element for a dangling comma",
			Span:        Span{Start: len(sc.text), End: len(result)},
			Confidence:  0.6, Applied: true,
		}}
	}
}

// closeOpenContainers implements rule 4: close any still-open frames in
// stack order, each as its own 0.9-confidence step.
func (sc *scanner) closeOpenContainers(baseLen int) (string, []RepairStep) {
	var b strings.Builder
	var steps []RepairStep
	pos := baseLen
	for i := len(sc.stack) - 1; i >= 0; i-- {
		f := sc.stack[i]
		var closer byte
		var op, desc string
		if f.kind == frameObject {
			closer, op, desc = '}', "close-object", "closed an unterminated object"
		} else {
			closer, op, desc = ']', "close-array", "closed an unterminated array"
		}
		b.WriteByte(closer)
		steps = append(steps, RepairStep{
			Phase:       PhaseSyntactic,
			Operation:   op,
			Description: desc,
			Span:        Span{Start: pos, End: pos + 1},
			Confidence:  0.9,
			Applied:     true,
		})
		pos++
	}
	return b.String(), steps
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// completePrimitiveFragment implements the per-strategy table of rule 2
// for a trailing bare keyword prefix or numeric fragment.
func completePrimitiveFragment(fragment string, strat strategy.Kind) (replacement string, confidence float64, op, desc string) {
	for _, kw := range []string{"true", "false", "null"} {
		if strings.HasPrefix(kw, fragment) && fragment != "" {
			if strat == strategy.Conservative {
				return "null", 0.6, "replace-unknown-token", "replaced an ambiguous trailing token with null"
			}
			return kw, 0.85, "complete-literal", "completed a truncated literal token (" + fragment + " -> " + kw + ")"
		}
	}

	// numeric fragment
	switch strat {
	case strategy.Conservative:
		return "null", 0.6, "replace-unknown-token", "replaced an incomplete numeric fragment with null"
	case strategy.Aggressive:
		return extendNumber(fragment), 0.55, "synthesize-numeric-extension", "extended an incomplete numeric literal (" + fragment + ")"
	default:
		trimmed := trimIncompleteNumberSuffix(fragment)
		if trimmed == "" || trimmed == "-" {
			return "null", 0.5, "replace-unknown-token", "could not salvage an incomplete numeric fragment"
		}
		return trimmed, 0.75, "trim-numeric-fragment", "trimmed an incomplete numeric literal to its last valid prefix"
	}
}

func extendNumber(fragment string) string {
	switch fragment[len(fragment)-1] {
	case '.':
		return fragment + "0"
	case 'e', 'E', '+', '-':
		return fragment + "0"
	default:
		return fragment
	}
}

func trimIncompleteNumberSuffix(fragment string) string {
	for len(fragment) > 0 {
		last := fragment[len(fragment)-1]
		if last == '.' || last == 'e' || last == 'E' || last == '+' || last == '-' {
			fragment = fragment[:len(fragment)-1]
			continue
		}
		break
	}
	return fragment
}
