package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/deltastream/core/internal/completer"
	"github.com/deltastream/core/internal/errs"
	"github.com/deltastream/core/internal/eventbus"
)

// ManagerConfig holds the Manager-wide tunables of spec.md §6 that are
// not per-session (MaxSessions, the TTL sweep period) plus the default
// per-session Config new sessions are created with.
type ManagerConfig struct {
	MaxSessions    int
	CleanupPeriod  time.Duration
	DefaultSession Config
	TickerInterval time.Duration
}

// Manager owns the concurrent sessions map of spec.md §5: created and
// removed under its own mutex, with TTL-sweep iteration taking a shared
// read lock and single-writer removal. Grounded on the teacher's
// internal/jetstream.Server lifecycle (NewServer/Connect/Shutdown) for
// the start/stop shape, generalized from one embedded NATS server to a
// whole map of sessions plus the background goroutines that tend it.
type Manager struct {
	cfg  ManagerConfig
	bus  *eventbus.Bus
	comp *completer.Completer

	mu       sync.RWMutex
	sessions map[string]*Session

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewManager builds a Manager backed by bus for event delivery and comp
// as the single shared Adaptive Strategy Selector owner (spec.md §9:
// "re-architect as a per-core-instance record", i.e. one history table
// for the whole Manager, not one per session).
func NewManager(cfg ManagerConfig, bus *eventbus.Bus, comp *completer.Completer) *Manager {
	if cfg.TickerInterval <= 0 {
		cfg.TickerInterval = 20 * time.Millisecond
	}
	return &Manager{
		cfg:      cfg,
		bus:      bus,
		comp:     comp,
		sessions: make(map[string]*Session),
	}
}

// Start launches the TTL sweep and coalescer flush-ticker goroutines,
// both supervised by an errgroup.Group per SPEC_FULL.md's domain stack
// (following jinterlante1206-AleutianLocal and theRebelliousNerd-codenerd's
// errgroup.WithContext pattern rather than bare `go func(){}`). Call
// Close to stop them.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	m.cancel = cancel
	m.group = g

	g.Go(func() error {
		m.ttlSweepLoop(gctx)
		return nil
	})
	g.Go(func() error {
		m.coalesceTickerLoop(gctx)
		return nil
	})
}

// Close stops the background goroutines and closes every remaining
// session, flushing its coalescer and emitting a terminal event for
// each, per spec.md §5's "process shutdown" destruction trigger.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.group != nil {
		_ = m.group.Wait()
	}

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Create implements spec.md §3's explicit session creation. An empty id
// generates a fresh one via google/uuid (SPEC_FULL.md §3's domain-stack
// wiring for uuid). Creation beyond MaxSessions fails CapacityExceeded.
func (m *Manager) Create(id string, overrides ...func(*Config)) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, errs.New(errs.KindCapacityExceeded, "duplicate_session", "a session with this id already exists")
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return nil, errs.CapacityExceeded("max_sessions reached")
	}

	cfg := m.cfg.DefaultSession
	for _, o := range overrides {
		o(&cfg)
	}

	s := newSession(id, cfg, m.bus, m.comp)
	m.sessions[id] = s
	return s, nil
}

// Get implements spec.md §3's session lookup, used by every operation
// that targets an existing session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.NotFound("session " + id + " not found")
	}
	return s, nil
}

// CloseSession closes and removes one session by id, implementing spec.md §3's
// explicit-close destruction trigger.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return errs.NotFound("session " + id + " not found")
	}
	s.Close()
	return nil
}

// Count reports the number of live sessions, for CapacityExceeded checks
// and diagnostics.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ttlSweepLoop implements spec.md §5's TTL cleanup: scan the sessions
// map every CleanupPeriod, removing sessions whose last_activity + ttl
// has elapsed. Iteration takes the shared read lock; each removal is a
// single-writer delete under the full mutex.
func (m *Manager) ttlSweepLoop(ctx context.Context) {
	period := m.cfg.CleanupPeriod
	if period <= 0 {
		period = 60 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

func (m *Manager) sweepExpired() {
	now := time.Now()

	m.mu.RLock()
	var expired []*Session
	for _, s := range m.sessions {
		ttl := s.cfg.TTL
		if ttl <= 0 {
			continue
		}
		if now.Sub(s.LastActivity()) >= ttl {
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range expired {
		m.mu.Lock()
		delete(m.sessions, s.id)
		m.mu.Unlock()
		log.Info().Str("session_id", s.id).Msg("session: ttl expired, closing")
		s.Close()
	}
}

// coalesceTickerLoop drives every live session's coalescer Tick once per
// TickerInterval, so the time-window flush condition of spec.md §4.5.2
// fires even for a session that has gone idle between ingests.
func (m *Manager) coalesceTickerLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tickAll()
		}
	}
}

func (m *Manager) tickAll() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.mu.Lock()
		if !s.closed.Load() {
			s.flushTick()
		}
		s.mu.Unlock()
	}
}
