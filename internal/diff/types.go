// Package diff implements spec.md §4.4 (C4): a JSON-aware structural
// differ with Conservative and Smart modes, and per-path idempotent
// emission backed by a 64-bit content hash.
package diff

import "github.com/deltastream/core/internal/pathutil"

// OpKind tags a ChangeOp variant.
type OpKind int

const (
	Add OpKind = iota
	Remove
	Replace
)

func (k OpKind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// ChangeOp is one structural change between an old and new tree, per
// spec.md §4.4.1.
type ChangeOp struct {
	Kind         OpKind
	Path         pathutil.Path
	Value        string // canonical JSON for Add/Replace's new value
	OldValueSketch string // bounded human-readable stand-in, for Remove/Replace
}

// Mode selects the diff algorithm, per spec.md §4.4.2.
type Mode int

const (
	Smart Mode = iota
	Conservative
)

func ParseMode(s string) (Mode, bool) {
	switch s {
	case "smart", "":
		return Smart, true
	case "conservative":
		return Conservative, true
	default:
		return 0, false
	}
}
