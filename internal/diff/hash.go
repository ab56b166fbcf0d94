package diff

import (
	"sync"

	"github.com/minio/highwayhash"

	"github.com/deltastream/core/internal/jsontree"
	"github.com/deltastream/core/internal/pathutil"
)

// hashKey is a fixed 32-byte key: the content hash only needs to be
// stable across calls within one process, not resistant to a chosen-key
// attacker, so a constant key is appropriate here (contrast with
// HighwayHash's usual MAC use case).
var hashKey = [32]byte{
	0x64, 0x65, 0x6c, 0x74, 0x61, 0x73, 0x74, 0x72,
	0x65, 0x61, 0x6d, 0x2f, 0x63, 0x6f, 0x72, 0x65,
	0x2f, 0x64, 0x69, 0x66, 0x66, 0x2f, 0x63, 0x6f,
	0x6e, 0x74, 0x65, 0x6e, 0x74, 0x68, 0x61, 0x73,
}

// contentHash implements spec.md §4.4.3: a 64-bit hash over the
// canonical (insertion-order) serialization of a value.
func contentHash(v *jsontree.Value) uint64 {
	return highwayhash.Sum64([]byte(jsontree.Encode(v)), hashKey[:])
}

// DiffEngineState tracks the last-emitted content hash per path, and
// which paths have already been emitted as removed, so repeated diff()
// calls over the same (old, new) pair produce no duplicate events, per
// spec.md §4.4.3's idempotence invariant.
type DiffEngineState struct {
	mu      sync.Mutex
	hashes  map[string]uint64
	removed map[string]bool
}

func NewDiffEngineState() *DiffEngineState {
	return &DiffEngineState{
		hashes:  make(map[string]uint64),
		removed: make(map[string]bool),
	}
}

// seenKey is p's canonical segment-list key, never its rendered string
// form (spec.md §3: rendering collides, e.g. object key "0" and array
// index 0 both render "/0" in slash style).
func seenKey(p pathutil.Path) string {
	return p.CanonicalKey()
}

// observe reports whether v's content hash at path p is new (should be
// emitted) and, if so, records it as the latest seen hash for p. A path
// reappearing after having been removed always counts as new.
func (s *DiffEngineState) observe(p pathutil.Path, v *jsontree.Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seenKey(p)
	delete(s.removed, key)

	h := contentHash(v)
	if prev, ok := s.hashes[key]; ok && prev == h {
		return false
	}
	s.hashes[key] = h
	return true
}

// observeRemoval reports whether p's removal is new information (should
// be emitted) and, if so, records p as removed and drops its remembered
// hash, so a value reappearing later at the same path is treated as new
// by observe, and so a diff() call replayed over the exact same (old,
// new) pair does not re-emit the same Remove a second time.
func (s *DiffEngineState) observeRemoval(p pathutil.Path) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seenKey(p)
	if s.removed[key] {
		return false
	}
	s.removed[key] = true
	delete(s.hashes, key)
	return true
}
