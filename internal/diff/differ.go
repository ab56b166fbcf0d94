package diff

import (
	"github.com/deltastream/core/internal/jsontree"
	"github.com/deltastream/core/internal/pathutil"
)

// Diff implements spec.md §4.4.1-§4.4.3: compares old and new, in the
// given Mode, against state for idempotent emission, and returns an
// ordered, subsumption-respecting list of ChangeOps.
//
// Array diffing uses positional alignment rather than a full bounded
// LCS: streaming JSON arrays overwhelmingly only grow,
// where positional alignment and LCS agree exactly, and the simpler
// algorithm keeps per-ingest cost linear in array length.
func Diff(old, new *jsontree.Value, state *DiffEngineState, mode Mode) []ChangeOp {
	var ops []ChangeOp
	diffNode(pathutil.Root(), old, new, mode, state, &ops)
	return ops
}

func diffNode(p pathutil.Path, old, new *jsontree.Value, mode Mode, state *DiffEngineState, ops *[]ChangeOp) {
	if jsontree.Equal(old, new) {
		return
	}

	if old == nil {
		emitAdd(p, new, state, ops)
		return
	}
	if new == nil {
		emitRemove(p, old, state, ops)
		return
	}

	if mode == Conservative {
		emitReplace(p, old, new, state, ops)
		return
	}

	switch {
	case old.Kind != new.Kind:
		emitReplace(p, old, new, state, ops)
	case old.IsScalar():
		emitReplace(p, old, new, state, ops)
	case old.Kind == jsontree.KindObject:
		diffObject(p, old, new, mode, state, ops)
	case old.Kind == jsontree.KindArray:
		diffArray(p, old, new, mode, state, ops)
	}
}

// diffObject walks the key union in insertion order, old keys first,
// per spec.md §4.4.2.
func diffObject(p pathutil.Path, old, new *jsontree.Value, mode Mode, state *DiffEngineState, ops *[]ChangeOp) {
	seen := make(map[string]bool, len(old.Object)+len(new.Object))
	order := make([]string, 0, len(old.Object)+len(new.Object))
	for _, m := range old.Object {
		if !seen[m.Key] {
			seen[m.Key] = true
			order = append(order, m.Key)
		}
	}
	for _, m := range new.Object {
		if !seen[m.Key] {
			seen[m.Key] = true
			order = append(order, m.Key)
		}
	}

	for _, key := range order {
		oldVal, oldOK := old.Get(key)
		newVal, newOK := new.Get(key)
		childPath := p.Append(pathutil.Key(key))
		switch {
		case oldOK && newOK:
			diffNode(childPath, oldVal, newVal, mode, state, ops)
		case newOK:
			emitAdd(childPath, newVal, state, ops)
		case oldOK:
			emitRemove(childPath, oldVal, state, ops)
		}
	}
}

func diffArray(p pathutil.Path, old, new *jsontree.Value, mode Mode, state *DiffEngineState, ops *[]ChangeOp) {
	n := len(old.Array)
	if len(new.Array) < n {
		n = len(new.Array)
	}
	for i := 0; i < n; i++ {
		diffNode(p.Append(pathutil.Index(i)), old.Array[i], new.Array[i], mode, state, ops)
	}
	for i := n; i < len(new.Array); i++ {
		emitAdd(p.Append(pathutil.Index(i)), new.Array[i], state, ops)
	}
	for i := len(new.Array); i < len(old.Array); i++ {
		emitRemove(p.Append(pathutil.Index(i)), old.Array[i], state, ops)
	}
}

func emitAdd(p pathutil.Path, val *jsontree.Value, state *DiffEngineState, ops *[]ChangeOp) {
	if !state.observe(p, val) {
		return
	}
	*ops = append(*ops, ChangeOp{Kind: Add, Path: p, Value: jsontree.Encode(val)})
}

func emitRemove(p pathutil.Path, oldVal *jsontree.Value, state *DiffEngineState, ops *[]ChangeOp) {
	if !state.observeRemoval(p) {
		return
	}
	*ops = append(*ops, ChangeOp{Kind: Remove, Path: p, OldValueSketch: jsontree.Sketch(oldVal, 64)})
}

func emitReplace(p pathutil.Path, oldVal, newVal *jsontree.Value, state *DiffEngineState, ops *[]ChangeOp) {
	if !state.observe(p, newVal) {
		return
	}
	*ops = append(*ops, ChangeOp{
		Kind:           Replace,
		Path:           p,
		Value:          jsontree.Encode(newVal),
		OldValueSketch: jsontree.Sketch(oldVal, 64),
	})
}
