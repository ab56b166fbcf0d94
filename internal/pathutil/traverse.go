package pathutil

import "github.com/deltastream/core/internal/jsontree"

// Traverse walks tree by path, returning (value, true) or (nil, false) if
// any intermediate segment is missing or of the wrong kind. It never
// raises on absence, per spec.md §4.1.
func Traverse(tree *jsontree.Value, p Path) (*jsontree.Value, bool) {
	cur := tree
	for _, seg := range p {
		if cur == nil {
			return nil, false
		}
		if seg.IsIndex {
			v, ok := cur.At(seg.Index)
			if !ok {
				return nil, false
			}
			cur = v
		} else {
			v, ok := cur.Get(seg.Key)
			if !ok {
				return nil, false
			}
			cur = v
		}
	}
	return cur, true
}

// LeafPath pairs an enumerated leaf with its canonical path.
type LeafPath struct {
	Path  Path
	Value *jsontree.Value
}

// Enumerate lists every leaf (scalar, or empty array/object) of tree in
// the canonical scan order: depth-first, object keys in insertion order,
// array indices ascending. This order is used everywhere a deterministic
// walk is required (spec.md §4.1).
func Enumerate(tree *jsontree.Value) []LeafPath {
	var out []LeafPath
	enumerate(tree, Root(), &out)
	return out
}

func enumerate(v *jsontree.Value, prefix Path, out *[]LeafPath) {
	if v == nil {
		*out = append(*out, LeafPath{Path: prefix.Clone(), Value: v})
		return
	}
	switch v.Kind {
	case jsontree.KindObject:
		if len(v.Object) == 0 {
			*out = append(*out, LeafPath{Path: prefix.Clone(), Value: v})
			return
		}
		for _, m := range v.Object {
			enumerate(m.Value, prefix.Append(Key(m.Key)), out)
		}
	case jsontree.KindArray:
		if len(v.Array) == 0 {
			*out = append(*out, LeafPath{Path: prefix.Clone(), Value: v})
			return
		}
		for i, item := range v.Array {
			enumerate(item, prefix.Append(Index(i)), out)
		}
	default:
		*out = append(*out, LeafPath{Path: prefix.Clone(), Value: v})
	}
}
