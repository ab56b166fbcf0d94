package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deltastream/core/internal/coalesce"
	"github.com/deltastream/core/internal/completer"
	"github.com/deltastream/core/internal/diff"
	"github.com/deltastream/core/internal/eventbus"
	"github.com/deltastream/core/internal/parser"
	"github.com/deltastream/core/internal/pathutil"
	"github.com/deltastream/core/internal/strategy"
)

func newTestBus(t *testing.T) *eventbus.Bus {
	t.Helper()
	b, err := eventbus.New(eventbus.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func newTestConfig() Config {
	return Config{
		TTL:          time.Hour,
		ParserConfig: parser.DefaultConfig(),
		DiffMode:     diff.Smart,
		Coalesce:     coalesce.Config{Enabled: false},
		PathStyle:    pathutil.StyleDot,
	}
}

func newTestSession(t *testing.T, bus *eventbus.Bus) *Session {
	t.Helper()
	comp := completer.New(strategy.DefaultConfig(), strategy.Smart, nil)
	return newSession("sess-1", newTestConfig(), bus, comp)
}

func waitFor(t *testing.T, ch <-chan eventbus.DeltaEvent, timeout time.Duration) eventbus.DeltaEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return eventbus.DeltaEvent{}
	}
}

func TestIngestEmitsAddedEventForNewPath(t *testing.T) {
	bus := newTestBus(t)
	s := newTestSession(t, bus)
	received := make(chan eventbus.DeltaEvent, 8)

	sub, err := s.Subscribe(eventbus.Filter{}, func(ev eventbus.DeltaEvent) { received <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = s.Ingest([]byte(`{"name":"Alice"}`), false)
	require.NoError(t, err)

	ev := waitFor(t, received, time.Second)
	require.Equal(t, eventbus.PathAdded, ev.Kind)
	require.Equal(t, "name", ev.RenderedPath)
	require.Equal(t, "sess-1", ev.SessionID)
}

func TestFinalizeEmitsCompleteEventAndClosesSession(t *testing.T) {
	bus := newTestBus(t)
	s := newTestSession(t, bus)
	received := make(chan eventbus.DeltaEvent, 8)

	sub, err := s.Subscribe(eventbus.Filter{}, func(ev eventbus.DeltaEvent) { received <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = s.Ingest([]byte(`{"a":1}`), false)
	require.NoError(t, err)
	<-received // added event for "a"

	_, err = s.Finalize()
	require.NoError(t, err)

	terminal := waitFor(t, received, time.Second)
	require.Equal(t, eventbus.Complete, terminal.Kind)
	require.True(t, s.Closed())
}

func TestIngestAfterCloseFailsWithSessionClosed(t *testing.T) {
	bus := newTestBus(t)
	s := newTestSession(t, bus)
	s.Close()

	_, err := s.Ingest([]byte(`{}`), false)
	require.Error(t, err)
}

func TestSequenceNumbersAreMonotonicPerSession(t *testing.T) {
	bus := newTestBus(t)
	s := newTestSession(t, bus)
	received := make(chan eventbus.DeltaEvent, 8)

	sub, err := s.Subscribe(eventbus.Filter{}, func(ev eventbus.DeltaEvent) { received <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = s.Ingest([]byte(`{"a":1,"b":2}`), true)
	require.NoError(t, err)

	var last uint64
	for i := 0; i < 3; i++ {
		ev := waitFor(t, received, time.Second)
		require.Greater(t, ev.Seq, last, "sequence numbers must be strictly ascending")
		last = ev.Seq
	}
}

func TestRepeatedIngestOfSameTreeEmitsNoFurtherEvents(t *testing.T) {
	bus := newTestBus(t)
	s := newTestSession(t, bus)
	received := make(chan eventbus.DeltaEvent, 8)

	sub, err := s.Subscribe(eventbus.Filter{}, func(ev eventbus.DeltaEvent) { received <- ev })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = s.Ingest([]byte(`{"a":1}`), false)
	require.NoError(t, err)
	<-received

	// An empty chunk leaves the tree unchanged; re-diffing the same tree
	// must not produce a second "a" event, per spec.md §8's idempotence
	// invariant.
	_, err = s.Ingest([]byte(``), false)
	require.NoError(t, err)

	select {
	case ev := <-received:
		t.Fatalf("unexpected event from a no-op ingest: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
