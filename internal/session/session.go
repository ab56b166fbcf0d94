// Package session implements the Session type of spec.md §3: the
// top-level long-lived context for one logical stream, owning one
// parse state, one differ state, and one coalescer buffer. Grounded on
// the teacher's internal/proxy request lifecycle (one struct per
// in-flight request holding the pieces a single logical stream needs),
// generalized from "one HTTP request" to "one long-lived session keyed
// by an opaque id".
package session

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deltastream/core/internal/coalesce"
	"github.com/deltastream/core/internal/completer"
	"github.com/deltastream/core/internal/diff"
	"github.com/deltastream/core/internal/errs"
	"github.com/deltastream/core/internal/eventbus"
	"github.com/deltastream/core/internal/jsontree"
	"github.com/deltastream/core/internal/parser"
	"github.com/deltastream/core/internal/pathutil"
)

// Config holds the per-session tunables a Manager derives from
// spec.md §6's configuration surface at session-creation time. Per
// spec.md §5, "configuration overrides are immutable per session once
// the session is created" — a Session never reads a Manager-wide
// Config after New returns.
type Config struct {
	TTL          time.Duration
	ParserConfig parser.Config
	DiffMode     diff.Mode
	Coalesce     coalesce.Config
	PathStyle    pathutil.Style
}

// Counters are the per-session counters spec.md §3 names on Session.
type Counters struct {
	ChunksReceived int
	BytesReceived  int
	EventsEmitted  int
}

// Session is spec.md §3's Session: created explicitly, destroyed on
// explicit close, TTL expiry, or process shutdown. Ingest, Finalize,
// and Close are mutually exclusive on one Session (spec.md §4.3.5's
// single-writer rule); CurrentTree and RawBuffer take a shared lock and
// observe a consistent pre- or post-ingest snapshot, never a torn one.
type Session struct {
	id        string
	createdAt time.Time
	cfg       Config

	bus  *eventbus.Bus
	comp *completer.Completer

	mu sync.Mutex

	parser    *parser.Parser
	diffState *diff.DiffEngineState
	coalescer *coalesce.Coalescer
	lastTree  *jsontree.Value

	counters Counters

	lastActivity atomic.Int64 // unix nanos
	seq          atomic.Uint64
	closed       atomic.Bool
}

func newSession(id string, cfg Config, bus *eventbus.Bus, comp *completer.Completer) *Session {
	s := &Session{
		id:        id,
		createdAt: time.Now(),
		cfg:       cfg,
		bus:       bus,
		comp:      comp,
		parser:    parser.New(id, cfg.ParserConfig, comp),
		diffState: diff.NewDiffEngineState(),
		coalescer: coalesce.New(cfg.Coalesce),
		lastTree:  jsontree.Object(),
	}
	s.lastActivity.Store(s.createdAt.UnixNano())
	return s
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session's creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActivity returns the time of the most recent Ingest or Finalize.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Counters returns a snapshot of this session's counters.
func (s *Session) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Closed reports whether the session has reached Terminal.
func (s *Session) Closed() bool { return s.closed.Load() }

// CompletionStats exposes the shared Completer's aggregate counters,
// supplementing the Python source's completer.completion_stats (see
// SPEC_FULL.md §4). The Completer is shared across every session in a
// Manager, so this reflects activity across all of them, not just s.
func (s *Session) CompletionStats() completer.Stats {
	return s.comp.Stats()
}

// CurrentTree implements spec.md §4.3.1's `current_tree()`.
func (s *Session) CurrentTree() *jsontree.Value {
	return s.parser.CurrentTree()
}

// RawBuffer implements spec.md §4.3.1's `raw_buffer()`.
func (s *Session) RawBuffer() []byte {
	return s.parser.RawBuffer()
}

// Ingest implements spec.md §4.3.1's `ingest`, driving the parser, then
// diffing and coalescing the resulting tree change into delta events
// published on the bus.
func (s *Session) Ingest(chunk []byte, isFinal bool) (parser.ProgressReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return parser.ProgressReport{}, errs.SessionClosed(s.id)
	}

	report, err := s.parser.Ingest(chunk, isFinal)
	if err != nil {
		return report, err
	}

	s.lastActivity.Store(time.Now().UnixNano())
	s.counters.ChunksReceived++
	s.counters.BytesReceived += len(chunk)

	if report.BytesDropped > 0 {
		s.publish(eventbus.DeltaEvent{Kind: eventbus.Progress, Value: strconv.Itoa(report.BytesDropped)})
	}

	s.diffAndCoalesce()
	s.flushTick()

	if isFinal {
		s.closeLocked(report.Valid)
	}
	return report, nil
}

// Finalize implements spec.md §4.3.1's `finalize`: complete the residual
// buffer, commit the final tree, flush every pending coalesced path, and
// emit the terminal event.
func (s *Session) Finalize() (completer.CompletionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return completer.CompletionResult{}, errs.SessionClosed(s.id)
	}

	result := s.parser.Finalize()
	s.lastActivity.Store(time.Now().UnixNano())
	s.diffAndCoalesce()
	s.closeLocked(result.IsValid)
	return result, nil
}

// Close implements explicit session close: flushes the coalescer and
// emits a terminal event, same as reaching Terminal via finalize or TTL
// expiry (spec.md §4.3.4's "any -> Terminal" row).
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	result := s.parser.Finalize()
	s.diffAndCoalesce()
	s.closeLocked(result.IsValid)
}

// Subscribe registers a callback for this session's events, implementing
// spec.md §4.6's per-session subscription surface.
func (s *Session) Subscribe(filter eventbus.Filter, handler func(eventbus.DeltaEvent)) (*eventbus.Subscription, error) {
	return s.bus.Subscribe(s.id, filter, handler)
}

func (s *Session) closeLocked(valid bool) {
	if s.closed.Load() {
		return
	}
	for _, op := range s.coalescer.Flush(nil) {
		s.publishOp(op)
	}
	kind := eventbus.Complete
	var errInfo *eventbus.ErrInfo
	if !valid {
		kind = eventbus.Error
		errInfo = &eventbus.ErrInfo{Code: "ParseUnrecoverable", Message: "residual text could not be completed into valid JSON"}
	}
	s.publish(eventbus.DeltaEvent{Kind: kind, Err: errInfo})
	s.closed.Store(true)
}

// diffAndCoalesce compares the parser's current tree against the last
// tree this session diffed, offers each resulting op to the coalescer,
// and publishes whatever the coalescer flushes immediately (the
// max-buffered condition of spec.md §4.5.2).
func (s *Session) diffAndCoalesce() {
	tree := s.parser.CurrentTree()
	ops := diff.Diff(s.lastTree, tree, s.diffState, s.cfg.DiffMode)
	s.lastTree = tree
	for _, op := range ops {
		for _, flushed := range s.coalescer.Offer(op) {
			s.publishOp(flushed)
		}
	}
}

// flushTick drives the coalescer's time-window and stability-counter
// flush conditions once per ingest cycle, per spec.md §4.5.2's Tick
// contract, independent of whether this cycle produced any diff ops.
func (s *Session) flushTick() {
	for _, op := range s.coalescer.Tick() {
		s.publishOp(op)
	}
}

func (s *Session) publishOp(op diff.ChangeOp) {
	ev := eventbus.DeltaEvent{
		Path:         op.Path,
		RenderedPath: pathutil.Render(op.Path, s.cfg.PathStyle),
		Value:        op.Value,
		OldValue:     op.OldValueSketch,
	}
	switch op.Kind {
	case diff.Add:
		ev.Kind = eventbus.PathAdded
	case diff.Remove:
		ev.Kind = eventbus.PathRemoved
	case diff.Replace:
		ev.Kind = eventbus.ValueChanged
	}
	s.publish(ev)
}

func (s *Session) publish(ev eventbus.DeltaEvent) {
	ev.SessionID = s.id
	ev.Seq = s.seq.Add(1)
	ev.TimestampMs = time.Now().UnixMilli()
	s.counters.EventsEmitted++
	_ = s.bus.Publish(ev)
}

