package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectHonorsExplicitHint(t *testing.T) {
	s := New(DefaultConfig(), Smart)
	hint := Conservative
	assert.Equal(t, Conservative, s.Select(&hint))
}

func TestSelectSwitchesAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSwitchInterval = 0
	s := New(cfg, Smart)

	// Give Conservative a track record so it can be selected.
	s.RecordResult(Conservative, true, 0.9, "")

	for i := 0; i < cfg.ConsecutiveFailureThreshold; i++ {
		assert.Equal(t, Smart, s.Select(nil))
		s.RecordResult(Smart, false, 0.1, "irrecoverable")
	}

	next := s.Select(nil)
	assert.Equal(t, Conservative, next, "should switch to the highest-scoring strategy after exceeding the threshold")
}

func TestSelectRespectsMinSwitchInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSwitchInterval = time.Hour
	s := New(cfg, Smart)
	s.RecordResult(Conservative, true, 0.9, "")

	for i := 0; i <= cfg.ConsecutiveFailureThreshold; i++ {
		s.RecordResult(Smart, false, 0.1, "x")
	}

	assert.Equal(t, Smart, s.Select(nil), "must not switch before the cooldown elapses")
}

func TestSuccessRate(t *testing.T) {
	s := New(DefaultConfig(), Smart)
	assert.Equal(t, 0.0, s.SuccessRate(Smart))

	s.RecordResult(Smart, true, 0.8, "")
	s.RecordResult(Smart, false, 0.2, "bad")
	require.InDelta(t, 0.5, s.SuccessRate(Smart), 0.0001)
}
