package jsontree

// Merge applies spec.md §4.3.3's merge rule: the committed tree and a
// newly parsed tree must agree on their shared prefix structure; where
// the new value is richer (a string extended, an array gained elements,
// an object gained keys) the new value wins; where a path that
// previously existed is absent from the new parse, the old value is
// retained ("LLMs never un-emit structure mid-stream; absence implies
// more to come").
//
// Merge never mutates its arguments; it returns a new tree.
func Merge(old, next *Value) *Value {
	if old == nil {
		return next
	}
	if next == nil {
		return old
	}
	if old.Kind != next.Kind {
		// A richer parse reinterpreted the node's kind (e.g. a bare
		// numeric fragment that resolved into a string once quoted
		// text arrived) — the new parse wins outright.
		return next
	}
	switch next.Kind {
	case KindArray:
		out := &Value{Kind: KindArray, Complete: next.Complete}
		n := len(next.Array)
		if len(old.Array) > n {
			n = len(old.Array)
		}
		out.Array = make([]*Value, 0, n)
		for i := 0; i < n; i++ {
			var o, nx *Value
			if i < len(old.Array) {
				o = old.Array[i]
			}
			if i < len(next.Array) {
				nx = next.Array[i]
			}
			switch {
			case nx != nil && o != nil:
				out.Array = append(out.Array, Merge(o, nx))
			case nx != nil:
				out.Array = append(out.Array, nx)
			default:
				out.Array = append(out.Array, o)
			}
		}
		return out
	case KindObject:
		out := &Value{Kind: KindObject, Complete: next.Complete}
		seen := make(map[string]bool, len(old.Object)+len(next.Object))
		for _, m := range old.Object {
			if nv, ok := next.Get(m.Key); ok {
				out.Set(m.Key, Merge(m.Value, nv))
			} else {
				out.Set(m.Key, m.Value)
			}
			seen[m.Key] = true
		}
		for _, m := range next.Object {
			if !seen[m.Key] {
				out.Set(m.Key, m.Value)
			}
		}
		return out
	case KindString:
		// The new string wins whether it is longer or shorter than
		// old: a committed strict parse is always at least as
		// informed as the probe that produced old.
		return next
	default:
		return next
	}
}
