// Package coalesce implements spec.md §4.5 (C5): time-windowed event
// coalescing so a burst of changes to the same path collapses into one
// emission. Grounded on the teacher's internal/storage.BatchWriter
// (ticker + channel + batch flush), generalized from "batch of DB
// writes" to "latest-value-wins per path" instead of FIFO batches.
package coalesce

import (
	"sync"
	"time"

	"github.com/deltastream/core/internal/diff"
	"github.com/deltastream/core/internal/pathutil"
)

// Config holds the flush-condition tunables of spec.md §4.5.2.
type Config struct {
	Enabled     bool
	Window      time.Duration
	Stability   int
	MaxBuffered int
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Window:      100 * time.Millisecond,
		Stability:   3,
		MaxBuffered: 10,
	}
}

type group struct {
	path            pathutil.Path
	first           time.Time
	latest          diff.ChangeOp
	count           int
	stableTicks     int
	touchedThisTick bool
}

// Coalescer groups ChangeOps by path and holds each group until a flush
// condition fires, per spec.md §4.5.
type Coalescer struct {
	mu     sync.Mutex
	cfg    Config
	groups map[string]*group
	order  []string
	now    func() time.Time
}

func New(cfg Config) *Coalescer {
	return &Coalescer{
		cfg:    cfg,
		groups: make(map[string]*group),
		now:    time.Now,
	}
}

// key is p's canonical segment-list key, never its rendered string form
// (spec.md §3: rendering collides, e.g. object key "0" and array index 0
// both render "/0" in slash style).
func key(p pathutil.Path) string {
	return p.CanonicalKey()
}

// Offer implements the `offer(event) -> maybe_flush_list` contract. When
// coalescing is disabled, every offered op flushes immediately.
func (c *Coalescer) Offer(op diff.ChangeOp) []diff.ChangeOp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return []diff.ChangeOp{op}
	}

	k := key(op.Path)
	g, ok := c.groups[k]
	if !ok {
		g = &group{path: op.Path, first: c.now()}
		c.groups[k] = g
		c.order = append(c.order, k)
	}
	g.latest = op
	g.count++
	g.stableTicks = 0
	g.touchedThisTick = true

	if g.count >= c.cfg.MaxBuffered {
		return c.flushKeys([]string{k})
	}
	return nil
}

// Tick advances the stability counters of every pending group that was
// not offered a new event since the last Tick, and flushes any group
// whose time window has elapsed or whose stability threshold was
// reached. Callers invoke Tick once per ingest cycle, whether or not
// that cycle produced any diff events.
func (c *Coalescer) Tick() []diff.ChangeOp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		return nil
	}

	now := c.now()
	var due []string
	for _, k := range c.order {
		g := c.groups[k]
		if g == nil {
			continue
		}
		if !g.touchedThisTick {
			g.stableTicks++
		}
		g.touchedThisTick = false
		if now.Sub(g.first) >= c.cfg.Window || g.stableTicks >= c.cfg.Stability {
			due = append(due, k)
		}
	}
	return c.flushKeys(due)
}

// Flush implements the explicit `flush(path?)` operation: with a nil
// path every pending group flushes (used for session-terminal flush
// too); with a path only that group flushes.
func (c *Coalescer) Flush(path *pathutil.Path) []diff.ChangeOp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path == nil {
		return c.flushKeys(append([]string{}, c.order...))
	}
	return c.flushKeys([]string{key(*path)})
}

// flushKeys emits the latest event for each key in ks, in the order
// paths first became pending (c.order), not the order ks was given —
// this is what keeps cross-path ordering stable regardless of which
// condition triggered each flush.
func (c *Coalescer) flushKeys(ks []string) []diff.ChangeOp {
	due := make(map[string]bool, len(ks))
	for _, k := range ks {
		due[k] = true
	}

	var flushed []diff.ChangeOp
	remaining := c.order[:0:0]
	for _, k := range c.order {
		g := c.groups[k]
		if g == nil {
			continue
		}
		if due[k] {
			flushed = append(flushed, g.latest)
			delete(c.groups, k)
			continue
		}
		remaining = append(remaining, k)
	}
	c.order = remaining
	return flushed
}

// Pending reports how many paths currently have a buffered, unflushed
// group, for diagnostics and tests.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
