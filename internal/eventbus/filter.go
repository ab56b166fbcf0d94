package eventbus

import (
	"path/filepath"

	"github.com/deltastream/core/internal/pathutil"
)

// Filter implements spec.md §4.6's kind-set + path-prefix subscription
// filter, plus the include/exclude glob filter supplemented from
// original_source/agently_format's FieldFilter (see SPEC_FULL.md §4).
// Grounded on the pack's own glob matcher
// (jinterlante1206-AleutianLocal/services/trace/manifest.GlobMatcher),
// simplified to single-level patterns since dot-style paths have no
// "**"-worthy recursive structure the way filesystem trees do.
type Filter struct {
	Kinds      []Kind
	PathPrefix pathutil.Path
	Include    []string
	Exclude    []string
}

func (f Filter) Matches(e DeltaEvent) bool {
	if !f.matchesKind(e.Kind) {
		return false
	}
	if len(f.PathPrefix) > 0 && !f.PathPrefix.IsPrefixOf(e.Path) {
		return false
	}
	dotPath := pathutil.Render(e.Path, pathutil.StyleDot)
	for _, pattern := range f.Exclude {
		if matched, _ := filepath.Match(pattern, dotPath); matched {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pattern := range f.Include {
		if matched, _ := filepath.Match(pattern, dotPath); matched {
			return true
		}
	}
	return false
}

func (f Filter) matchesKind(k Kind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, want := range f.Kinds {
		if want == k {
			return true
		}
	}
	return false
}
