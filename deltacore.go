// Package deltacore is the facade of spec.md §6 ("External Interfaces"):
// it wires the Path & Key Utilities (C1), Completer (C2), Streaming
// Parser (C3), Structural Differ (C4), Coalescer (C5), Event Bus (C6),
// and Adaptive Strategy Selector (C7) components, plus the session
// manager, into one Engine a host process embeds. Everything the spec
// excludes — HTTP/WebSocket transport, CLI entry points, third-party LLM
// clients, persistence, schema validation itself — lives outside this
// package; Engine only exposes the chunk-ingress / event-egress /
// schema-hook / configuration surface spec.md §6 describes.
//
// Grounded on the teacher's cmd/sidekick/main.go wiring order (config ->
// logging -> embedded NATS -> consumer -> handler), generalized from "one
// process wiring one proxy" to "one constructor wiring one embeddable
// core".
package deltacore

import (
	"context"
	"fmt"
	"time"

	"github.com/deltastream/core/internal/coalesce"
	"github.com/deltastream/core/internal/completer"
	"github.com/deltastream/core/internal/config"
	"github.com/deltastream/core/internal/diff"
	"github.com/deltastream/core/internal/errs"
	"github.com/deltastream/core/internal/eventbus"
	"github.com/deltastream/core/internal/parser"
	"github.com/deltastream/core/internal/pathutil"
	"github.com/deltastream/core/internal/session"
	"github.com/deltastream/core/internal/strategy"
)

// Re-exported so callers embedding this package as a library don't need
// to import internal/eventbus, internal/session, or internal/errs
// directly for the types that appear in Engine's public surface.
type (
	DeltaEvent = eventbus.DeltaEvent
	EventKind  = eventbus.Kind
	Filter     = eventbus.Filter
	Subscription = eventbus.Subscription
	Session    = session.Session
	SchemaHook = completer.SchemaHook
	Suggestion = completer.Suggestion
)

const (
	PathAdded    = eventbus.PathAdded
	PathRemoved  = eventbus.PathRemoved
	ValueChanged = eventbus.ValueChanged
	Progress     = eventbus.Progress
	ErrorEvent   = eventbus.Error
	Complete     = eventbus.Complete
)

// Engine is the single long-lived object a host process constructs: one
// embedded event bus, one shared Completer (and therefore one shared
// Adaptive Strategy Selector history, per spec.md §9), and one Session
// Manager.
type Engine struct {
	bus     *eventbus.Bus
	comp    *completer.Completer
	manager *session.Manager
}

// New builds an Engine from a parsed Config (see config.Load /
// config.Default). schemaHook may be nil; when non-nil it is shared by
// every session and invoked after each repair attempt that yields valid
// JSON (not for empty or already-valid input).
func New(cfg *config.Config, schemaHook SchemaHook) (*Engine, error) {
	pathStyle, ok := pathutil.ParseStyle(cfg.PathStyle)
	if !ok {
		return nil, fmt.Errorf("deltacore: invalid path_style %q", cfg.PathStyle)
	}
	diffMode, ok := diff.ParseMode(cfg.DiffMode)
	if !ok {
		return nil, fmt.Errorf("deltacore: invalid diff_mode %q", cfg.DiffMode)
	}
	defaultStrategy, ok := strategy.ParseKind(cfg.DefaultStrategy)
	if !ok {
		return nil, fmt.Errorf("deltacore: invalid default_strategy %q", cfg.DefaultStrategy)
	}

	bus, err := eventbus.New(eventbus.Config{
		SubscriberQueueCap: cfg.SubscriberQueueCap,
		CallbackBudget:     50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("deltacore: start event bus: %w", err)
	}

	selectorCfg := strategy.Config{
		AdaptiveEnabled:             cfg.AdaptiveEnabled,
		ConsecutiveFailureThreshold: cfg.ConsecutiveFailureThreshold,
		MinSwitchInterval:           time.Duration(cfg.MinSwitchIntervalSeconds) * time.Second,
	}
	comp := completer.New(selectorCfg, defaultStrategy, schemaHook)

	sessionCfg := session.Config{
		TTL:          time.Duration(cfg.SessionTTLSeconds) * time.Second,
		ParserConfig: parser.Config{MaxBufferBytes: cfg.MaxBufferBytes},
		DiffMode:     diffMode,
		Coalesce: coalesce.Config{
			Enabled:     cfg.CoalesceEnabled,
			Window:      time.Duration(cfg.CoalesceWindowMs) * time.Millisecond,
			Stability:   cfg.CoalesceStability,
			MaxBuffered: cfg.CoalesceMaxBuffered,
		},
		PathStyle: pathStyle,
	}

	manager := session.NewManager(session.ManagerConfig{
		MaxSessions:    cfg.MaxSessions,
		CleanupPeriod:  time.Duration(cfg.CleanupPeriodSeconds) * time.Second,
		DefaultSession: sessionCfg,
	}, bus, comp)
	manager.Start(context.Background())

	return &Engine{bus: bus, comp: comp, manager: manager}, nil
}

// CreateSession implements spec.md §3's explicit session creation. An
// empty id generates a fresh uuid.
func (e *Engine) CreateSession(id string) (*Session, error) {
	return e.manager.Create(id)
}

// Session looks up a live session by id, failing with errs.NotFound if
// none exists.
func (e *Engine) Session(id string) (*Session, error) {
	return e.manager.Get(id)
}

// CloseSession implements explicit session close.
func (e *Engine) CloseSession(id string) error {
	return e.manager.CloseSession(id)
}

// Ingest is the chunk-ingress convenience method of spec.md §6: look up
// id and ingest chunk in one call, rather than making every caller
// Session() first.
func (e *Engine) Ingest(id string, chunk []byte, isFinal bool) (parser.ProgressReport, error) {
	s, err := e.manager.Get(id)
	if err != nil {
		return parser.ProgressReport{}, err
	}
	return s.Ingest(chunk, isFinal)
}

// Subscribe implements spec.md §4.6's event-egress surface: register a
// callback against one session's events, or every session's when
// sessionID is "".
func (e *Engine) Subscribe(sessionID string, filter Filter, handler func(DeltaEvent)) (*Subscription, error) {
	return e.bus.Subscribe(sessionID, filter, handler)
}

// CompletionStats returns the shared Completer's aggregate counters,
// supplementing the Python source's completer.completion_stats (see
// SPEC_FULL.md §4).
func (e *Engine) CompletionStats() completer.Stats {
	return e.comp.Stats()
}

// StrategyStats returns the shared Adaptive Strategy Selector's
// per-strategy history, supplementing the Python source's
// completer.strategy_history (see SPEC_FULL.md §4).
func (e *Engine) StrategyStats() map[strategy.Kind]strategy.History {
	return e.comp.SelectorStats()
}

// SessionCount reports the number of live sessions.
func (e *Engine) SessionCount() int {
	return e.manager.Count()
}

// Close shuts down every session, the background sweep/ticker
// goroutines, and the embedded event bus, per spec.md §5's "process
// shutdown" session-destruction trigger.
func (e *Engine) Close() {
	e.manager.Close()
	e.bus.Close()
}

// ErrKindNotFound etc. re-export the error Kind values of the taxonomy
// spec.md §7 defines, so callers embedding this package can name those
// kinds without importing internal/errs.
var (
	ErrKindNotFound      = errs.KindNotFound
	ErrKindSessionClosed = errs.KindSessionClosed
	ErrKindCapacity      = errs.KindCapacityExceeded
)
