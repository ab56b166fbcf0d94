package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltastream/core/internal/completer"
	"github.com/deltastream/core/internal/errs"
	"github.com/deltastream/core/internal/eventbus"
	"github.com/deltastream/core/internal/strategy"
)

func newTestManager(t *testing.T, maxSessions int, ttl time.Duration) *Manager {
	t.Helper()
	bus := newTestBus(t)
	comp := completer.New(strategy.DefaultConfig(), strategy.Smart, nil)
	cfg := newTestConfig()
	cfg.TTL = ttl
	m := NewManager(ManagerConfig{
		MaxSessions:    maxSessions,
		CleanupPeriod:  10 * time.Millisecond,
		DefaultSession: cfg,
		TickerInterval: 5 * time.Millisecond,
	}, bus, comp)
	m.Start(context.Background())
	t.Cleanup(m.Close)
	return m
}

func TestCreateGeneratesIDWhenEmpty(t *testing.T) {
	m := newTestManager(t, 10, time.Hour)
	s, err := m.Create("")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	m := newTestManager(t, 10, time.Hour)
	_, err := m.Create("dup")
	require.NoError(t, err)

	_, err = m.Create("dup")
	require.Error(t, err)
}

func TestCreateFailsWithCapacityExceededBeyondMax(t *testing.T) {
	m := newTestManager(t, 1, time.Hour)
	_, err := m.Create("one")
	require.NoError(t, err)

	_, err = m.Create("two")
	require.Error(t, err)
	var coreErr *errs.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, errs.KindCapacityExceeded, coreErr.Kind)
}

func TestGetUnknownSessionFailsWithNotFound(t *testing.T) {
	m := newTestManager(t, 10, time.Hour)
	_, err := m.Get("missing")
	require.Error(t, err)
	var coreErr *errs.Error
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, errs.KindNotFound, coreErr.Kind)
}

func TestCloseSessionRemovesItFromTheManager(t *testing.T) {
	m := newTestManager(t, 10, time.Hour)
	s, err := m.Create("closeme")
	require.NoError(t, err)

	require.NoError(t, m.CloseSession("closeme"))
	assert.True(t, s.Closed())

	_, err = m.Get("closeme")
	require.Error(t, err)
}

func TestTTLSweepClosesExpiredSessions(t *testing.T) {
	m := newTestManager(t, 10, 20*time.Millisecond)
	s, err := m.Create("expiring")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Closed()
	}, time.Second, 5*time.Millisecond, "ttl sweep should close an idle session past its ttl")

	_, err = m.Get("expiring")
	require.Error(t, err)
}

func TestCoalesceTickerFlushesPendingPathsOnTimeWindow(t *testing.T) {
	bus := newTestBus(t)
	comp := completer.New(strategy.DefaultConfig(), strategy.Smart, nil)
	cfg := newTestConfig()
	cfg.Coalesce.Enabled = true
	cfg.Coalesce.Window = 20 * time.Millisecond
	cfg.Coalesce.Stability = 1000 // force the time-window condition, not stability

	m := NewManager(ManagerConfig{
		MaxSessions:    10,
		CleanupPeriod:  time.Hour,
		DefaultSession: cfg,
		TickerInterval: 5 * time.Millisecond,
	}, bus, comp)
	m.Start(context.Background())
	t.Cleanup(m.Close)

	s, err := m.Create("coalesced")
	require.NoError(t, err)

	received := make(chan eventbus.DeltaEvent, 8)
	sub, err := s.Subscribe(eventbus.Filter{}, func(ev eventbus.DeltaEvent) { received <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = s.Ingest([]byte(`{"a":1}`), false)
	require.NoError(t, err)

	select {
	case ev := <-received:
		t.Fatalf("event should not flush before the coalesce window elapses: %+v", ev)
	case <-time.After(5 * time.Millisecond):
	}

	ev := waitFor(t, received, time.Second)
	assert.Equal(t, eventbus.PathAdded, ev.Kind)
	assert.Equal(t, "a", ev.RenderedPath)
}
