// Package strategy implements spec.md §4.7 (C7): per-strategy success
// history and adaptive selection. The source this spec was distilled
// from kept this as module-level mutable state; here it is owned by one
// Selector instance per Completer, so tests can construct a fresh
// Selector and get deterministic behavior (spec.md §9).
package strategy

import (
	"sync"
	"time"
)

// Kind enumerates the three completion strategies of spec.md §4.2.2.
type Kind string

const (
	Conservative Kind = "conservative"
	Smart        Kind = "smart"
	Aggressive   Kind = "aggressive"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case Conservative, Smart, Aggressive:
		return Kind(s), true
	default:
		return "", false
	}
}

// Next returns the next more-conservative strategy in the retry chain
// spec.md §4.2.2 describes ("If all three fail..."), or ("", false) once
// Conservative itself has failed.
func (k Kind) Next() (Kind, bool) {
	switch k {
	case Aggressive:
		return Smart, true
	case Smart:
		return Conservative, true
	default:
		return "", false
	}
}

// History is the per-strategy record spec.md §4.7 describes.
type History struct {
	Attempts            int
	Successes           int
	Failures            int
	MeanConfidence      float64
	LastUsed            time.Time
	RecentFailureTypes  []string
}

// SuccessRate is Successes/Attempts, or 0 with no attempts yet.
func (h History) SuccessRate() float64 {
	if h.Attempts == 0 {
		return 0
	}
	return float64(h.Successes) / float64(h.Attempts)
}

// Score is the weighted switch score of spec.md §4.7:
// 0.6·success_rate + 0.4·mean_confidence.
func (h History) Score() float64 {
	return 0.6*h.SuccessRate() + 0.4*h.MeanConfidence
}

// Config holds the tunables of spec.md §6 that govern C7.
type Config struct {
	AdaptiveEnabled             bool
	ConsecutiveFailureThreshold int
	MinSwitchInterval           time.Duration
}

func DefaultConfig() Config {
	return Config{
		AdaptiveEnabled:             true,
		ConsecutiveFailureThreshold: 3,
		MinSwitchInterval:           60 * time.Second,
	}
}

// Selector owns the per-instance history table and decides the next
// strategy to try, per spec.md §4.7's selection policy.
type Selector struct {
	mu sync.Mutex

	cfg     Config
	current Kind
	history map[Kind]*History

	consecutiveFailures int
	lastSwitch          time.Time
	now                 func() time.Time
}

func New(cfg Config, initial Kind) *Selector {
	return &Selector{
		cfg:     cfg,
		current: initial,
		history: map[Kind]*History{
			Conservative: {},
			Smart:        {},
			Aggressive:   {},
		},
		// lastSwitch starts at construction time, not the zero value, so
		// min_switch_interval also guards the very first switch.
		lastSwitch: time.Now(),
		now:        time.Now,
	}
}

// Select applies spec.md §4.7's policy: honor an explicit hint; else
// switch away from a strategy that has failed consecutively past the
// threshold, subject to a minimum switch interval; else keep the current
// strategy.
func (s *Selector) Select(explicit *Kind) Kind {
	s.mu.Lock()
	defer s.mu.Unlock()

	if explicit != nil {
		return *explicit
	}
	if !s.cfg.AdaptiveEnabled {
		return s.current
	}
	if s.consecutiveFailures < s.cfg.ConsecutiveFailureThreshold {
		return s.current
	}
	if s.now().Sub(s.lastSwitch) < s.cfg.MinSwitchInterval {
		return s.current
	}

	best := s.current
	bestScore := -1.0
	for _, k := range []Kind{Conservative, Smart, Aggressive} {
		h := s.history[k]
		if h.Attempts == 0 {
			continue
		}
		if sc := h.Score(); sc > bestScore {
			bestScore = sc
			best = k
		}
	}
	if best != s.current {
		s.current = best
		s.lastSwitch = s.now()
		s.consecutiveFailures = 0
	}
	return s.current
}

// RecordResult feeds one completion attempt's outcome back into the
// history table used by both selection and the historical-success-rate
// confidence factor (spec.md §4.2.3 item 6).
func (s *Selector) RecordResult(used Kind, success bool, confidence float64, failureType string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[used]
	if h == nil {
		h = &History{}
		s.history[used] = h
	}
	h.Attempts++
	if success {
		h.Successes++
		if used == s.current {
			s.consecutiveFailures = 0
		}
	} else {
		h.Failures++
		if failureType != "" {
			h.RecentFailureTypes = append(h.RecentFailureTypes, failureType)
			if len(h.RecentFailureTypes) > 10 {
				h.RecentFailureTypes = h.RecentFailureTypes[len(h.RecentFailureTypes)-10:]
			}
		}
		if used == s.current {
			s.consecutiveFailures++
		}
	}
	// running mean
	h.MeanConfidence = h.MeanConfidence + (confidence-h.MeanConfidence)/float64(h.Attempts)
	h.LastUsed = s.now()
}

// SuccessRate returns the historical success rate of k at this moment,
// for use as the confidence factor in spec.md §4.2.3 item 6.
func (s *Selector) SuccessRate(k Kind) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[k]
	if h == nil {
		return 0
	}
	return h.SuccessRate()
}

// HasHistory reports whether k has at least one recorded attempt, so
// callers can tell "no track record yet" apart from "a 0% track record"
// when deciding whether the historical-success-rate confidence factor is
// available (spec.md §4.2.3 item 6).
func (s *Selector) HasHistory(k Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history[k]
	return h != nil && h.Attempts > 0
}

// Stats returns a read-only snapshot of every strategy's history,
// supplementing the Python source's completer.strategy_history
// introspection (see SPEC_FULL.md §4.2).
func (s *Selector) Stats() map[Kind]History {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Kind]History, len(s.history))
	for k, h := range s.history {
		out[k] = *h
	}
	return out
}

// Current returns the strategy the selector would currently choose
// absent an explicit hint, without recording anything.
func (s *Selector) Current() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
