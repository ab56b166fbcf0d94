package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	server "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Config holds the bus tunables of spec.md §6 and §4.6.
type Config struct {
	SubscriberQueueCap int
	CallbackBudget     time.Duration
}

func DefaultConfig() Config {
	return Config{SubscriberQueueCap: 1024, CallbackBudget: 50 * time.Millisecond}
}

// Bus is the embedded-NATS-backed carrier for spec.md §4.6's typed
// pub/sub surface. One Bus serves every session in a deltacore.Engine.
type Bus struct {
	cfg Config
	ns  *server.Server
	pub *nats.Conn

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func New(cfg Config) (*Bus, error) {
	ns, err := server.NewServer(&server.Options{DontListen: true})
	if err != nil {
		return nil, fmt.Errorf("eventbus: start embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("eventbus: embedded NATS server not ready")
	}
	pub, err := nats.Connect(ns.ClientURL(), nats.InProcessServer(ns))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("eventbus: connect publisher: %w", err)
	}
	return &Bus{cfg: cfg, ns: ns, pub: pub, subs: make(map[*Subscription]struct{})}, nil
}

func subject(sessionID string) string {
	return "delta." + sessionID
}

// Publish implements spec.md §4.6's delivery side: events for session
// sessionID fan out to every matching subscription, each on its own
// NATS subscription goroutine, preserving per-session order.
func (b *Bus) Publish(ev DeltaEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	return b.pub.Publish(subject(ev.SessionID), data)
}

// Subscription is an opaque handle a caller holds to later Unsubscribe,
// per the DESIGN NOTES §9 "event emitter is a cycle risk" guidance: the
// bus owns the NATS connection and subscription, the caller only holds
// this handle, so nothing references the caller's objects back.
type Subscription struct {
	bus     *Bus
	conn    *nats.Conn
	nsub    *nats.Subscription
	handler func(DeltaEvent)
	filter  Filter
}

// Subscribe implements spec.md §4.6: register a callback for a kind-set
// and optional path-prefix/glob filter against one session's events (or
// every session's, when sessionID is "").
func (b *Bus) Subscribe(sessionID string, filter Filter, handler func(DeltaEvent)) (*Subscription, error) {
	sub := &Subscription{bus: b, handler: handler, filter: filter}

	conn, err := nats.Connect(b.ns.ClientURL(), nats.InProcessServer(b.ns), nats.ErrorHandler(sub.onAsyncError))
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscriber connect: %w", err)
	}
	sub.conn = conn

	subj := "delta.*"
	if sessionID != "" {
		subj = subject(sessionID)
	}
	nsub, err := conn.Subscribe(subj, sub.onMessage)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventbus: subscribe: %w", err)
	}
	if err := nsub.SetPendingLimits(b.cfg.SubscriberQueueCap, -1); err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventbus: set pending limits: %w", err)
	}
	sub.nsub = nsub

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

func (s *Subscription) onMessage(msg *nats.Msg) {
	var ev DeltaEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Error().Err(err).Msg("eventbus: failed to decode delivered event")
		return
	}
	if !s.filter.Matches(ev) {
		return
	}
	s.dispatch(ev)
}

// onAsyncError implements spec.md §4.6's overflow path: NATS reports a
// dropped message on this subscription's pending queue as
// nats.ErrSlowConsumer; translate it into a SubscriberOverflow DeltaEvent
// delivered to this subscriber only.
func (s *Subscription) onAsyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != s.nsub {
		return
	}
	if err != nats.ErrSlowConsumer {
		log.Warn().Err(err).Msg("eventbus: subscription error")
		return
	}
	s.dispatch(DeltaEvent{
		Kind: Error,
		Err:  &ErrInfo{Code: "SubscriberOverflow", Message: "subscriber queue overflowed; oldest events were dropped"},
	})
}

// dispatch calls the handler and logs a warning if it exceeds the
// configured callback budget, without attempting to cancel it.
func (s *Subscription) dispatch(ev DeltaEvent) {
	start := time.Now()
	s.handler(ev)
	if elapsed := time.Since(start); elapsed > s.bus.cfg.CallbackBudget {
		log.Warn().
			Dur("elapsed", elapsed).
			Dur("budget", s.bus.cfg.CallbackBudget).
			Str("session_id", ev.SessionID).
			Msg("eventbus: subscriber callback exceeded budget")
	}
}

// Unsubscribe tears down this subscription's connection. Other
// subscribers are unaffected.
func (s *Subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	if s.nsub != nil {
		_ = s.nsub.Unsubscribe()
	}
	s.conn.Close()
	return nil
}

// Close shuts down the bus and every remaining subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	b.pub.Close()
	b.ns.Shutdown()
	b.ns.WaitForShutdown()
}
