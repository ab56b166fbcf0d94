package coalesce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltastream/core/internal/diff"
	"github.com/deltastream/core/internal/pathutil"
)

func opAt(seg string) diff.ChangeOp {
	return diff.ChangeOp{Kind: diff.Replace, Path: pathutil.Path{pathutil.Key(seg)}, Value: "1"}
}

func TestOfferBelowMaxBufferedDoesNotFlush(t *testing.T) {
	c := New(Config{Enabled: true, Window: time.Hour, Stability: 100, MaxBuffered: 10})
	flushed := c.Offer(opAt("a"))
	assert.Empty(t, flushed)
	assert.Equal(t, 1, c.Pending())
}

func TestOfferAtMaxBufferedFlushesLatestOnly(t *testing.T) {
	c := New(Config{Enabled: true, Window: time.Hour, Stability: 100, MaxBuffered: 3})
	c.Offer(diff.ChangeOp{Kind: diff.Replace, Path: pathutil.Path{pathutil.Key("a")}, Value: "1"})
	c.Offer(diff.ChangeOp{Kind: diff.Replace, Path: pathutil.Path{pathutil.Key("a")}, Value: "2"})
	flushed := c.Offer(diff.ChangeOp{Kind: diff.Replace, Path: pathutil.Path{pathutil.Key("a")}, Value: "3"})

	require.Len(t, flushed, 1)
	assert.Equal(t, "3", flushed[0].Value, "only the most recent value should be emitted")
	assert.Equal(t, 0, c.Pending())
}

func TestTickFlushesAfterStabilityThreshold(t *testing.T) {
	c := New(Config{Enabled: true, Window: time.Hour, Stability: 1, MaxBuffered: 100})
	c.Offer(opAt("a"))

	first := c.Tick()
	assert.Empty(t, first, "first tick after offer should not flush yet: the offer's own cycle is not a quiet tick")

	second := c.Tick()
	require.Len(t, second, 1, "stability threshold reached, group should flush")
	assert.Equal(t, 0, c.Pending())
}

func TestTickFlushesAfterWindowElapses(t *testing.T) {
	fakeNow := time.Now()
	c := New(Config{Enabled: true, Window: 10 * time.Millisecond, Stability: 1000, MaxBuffered: 1000})
	c.now = func() time.Time { return fakeNow }
	c.Offer(opAt("a"))

	fakeNow = fakeNow.Add(20 * time.Millisecond)
	flushed := c.Tick()
	require.Len(t, flushed, 1)
}

func TestExplicitFlushAllPreservesPendingOrder(t *testing.T) {
	c := New(Config{Enabled: true, Window: time.Hour, Stability: 1000, MaxBuffered: 1000})
	c.Offer(opAt("b"))
	c.Offer(opAt("a"))
	c.Offer(opAt("c"))

	flushed := c.Flush(nil)
	require.Len(t, flushed, 3)
	assert.Equal(t, "b", flushed[0].Path[0].Key)
	assert.Equal(t, "a", flushed[1].Path[0].Key)
	assert.Equal(t, "c", flushed[2].Path[0].Key)
}

func TestDisabledCoalescerFlushesImmediately(t *testing.T) {
	c := New(Config{Enabled: false})
	flushed := c.Offer(opAt("a"))
	require.Len(t, flushed, 1)
	assert.Equal(t, 0, c.Pending())
}

func TestNewEventForUnrelatedPathResetsStabilityOnlyForItself(t *testing.T) {
	c := New(Config{Enabled: true, Window: time.Hour, Stability: 1, MaxBuffered: 1000})
	c.Offer(opAt("a"))
	c.Tick() // a was offered this tick: a.stableTicks stays 0
	c.Offer(opAt("b"))
	flushed := c.Tick() // a.stableTicks = 1 -> flush; b was offered this tick, stableTicks = 0
	require.Len(t, flushed, 1)
	assert.Equal(t, "a", flushed[0].Path[0].Key)
	assert.Equal(t, 1, c.Pending())
}
