package parser

import "github.com/deltastream/core/internal/jsontree"

// mergeTrees implements spec.md §4.3.3's merge rule: the new parse wins
// wherever it has a richer or different value, but a path present in
// old and absent from new is retained until finalize — LLMs stream
// structure forward only, so absence means "not there yet", not
// "removed".
func mergeTrees(old, new *jsontree.Value) *jsontree.Value {
	if old == nil {
		return new
	}
	if new == nil {
		return old
	}
	if old.Kind != new.Kind {
		return new
	}
	switch old.Kind {
	case jsontree.KindObject:
		merged := jsontree.Object()
		for _, m := range old.Object {
			merged.Set(m.Key, m.Value)
		}
		for _, m := range new.Object {
			if existing, ok := merged.Get(m.Key); ok {
				merged.Set(m.Key, mergeTrees(existing, m.Value))
			} else {
				merged.Set(m.Key, m.Value)
			}
		}
		merged.Complete = new.Complete
		return merged
	case jsontree.KindArray:
		n := len(new.Array)
		if len(old.Array) > n {
			n = len(old.Array)
		}
		out := make([]*jsontree.Value, 0, n)
		for i := 0; i < n; i++ {
			var ov, nv *jsontree.Value
			if i < len(old.Array) {
				ov = old.Array[i]
			}
			if i < len(new.Array) {
				nv = new.Array[i]
			}
			out = append(out, mergeTrees(ov, nv))
		}
		return &jsontree.Value{Kind: jsontree.KindArray, Array: out, Complete: new.Complete}
	default:
		// scalars: the new parse always reflects at least as much of the
		// stream as the old one did, so it wins outright.
		return new
	}
}
