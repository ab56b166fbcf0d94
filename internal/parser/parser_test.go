package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltastream/core/internal/completer"
	"github.com/deltastream/core/internal/jsontree"
	"github.com/deltastream/core/internal/strategy"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	comp := completer.New(strategy.DefaultConfig(), strategy.Smart, nil)
	return New("sess-test", DefaultConfig(), comp)
}

func TestIngestTransitionsIdleToActiveToTerminal(t *testing.T) {
	p := newTestParser(t)
	require.Equal(t, Idle, p.State())

	_, err := p.Ingest([]byte(`{"a":1`), false)
	require.NoError(t, err)
	require.Equal(t, Active, p.State())

	report, err := p.Ingest([]byte(`}`), true)
	require.NoError(t, err)
	require.Equal(t, Terminal, report.State)
	require.Equal(t, Terminal, p.State())
}

func TestIngestAfterTerminalFailsWithSessionClosed(t *testing.T) {
	p := newTestParser(t)
	_, err := p.Ingest([]byte(`{}`), true)
	require.NoError(t, err)

	_, err = p.Ingest([]byte(`{}`), false)
	require.Error(t, err)
}

func TestSingleByteChunksMatchWholeDocument(t *testing.T) {
	doc := `{"users":[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}],"done":true}`

	whole := newTestParser(t)
	_, err := whole.Ingest([]byte(doc), true)
	require.NoError(t, err)

	byByte := newTestParser(t)
	for i := 0; i < len(doc); i++ {
		_, err := byByte.Ingest([]byte{doc[i]}, false)
		require.NoError(t, err)
	}
	byByte.Finalize()

	assert.True(t, jsontree.Equal(whole.CurrentTree(), byByte.CurrentTree()),
		"single-byte ingestion must converge to the same tree as one whole-document ingest")
}

func TestChunkSplittingMultiByteUTF8NeverProducesReplacementChar(t *testing.T) {
	doc := []byte(`{"name":"caf` + "\xc3\xa9" + `"}`) // "café"; é is the 2-byte sequence 0xC3 0xA9
	leadByteOffset := len(doc) - 4                     // index of the 0xC3 lead byte

	p := newTestParser(t)
	_, err := p.Ingest(doc[:leadByteOffset+1], false) // include 0xC3, withhold 0xA9 and the closing `"}`
	require.NoError(t, err)

	tree := p.CurrentTree()
	if tree != nil {
		if name, ok := tree.Get("name"); ok && name.Kind == jsontree.KindString {
			assert.NotContains(t, name.Str, "�")
		}
	}

	_, err = p.Ingest(doc[leadByteOffset+1:], true)
	require.NoError(t, err)
	final := p.CurrentTree()
	require.NotNil(t, final)
	name, ok := final.Get("name")
	require.True(t, ok)
	assert.Equal(t, "café", name.Str)
}

func TestEmptyChunkIsNoOp(t *testing.T) {
	p := newTestParser(t)
	report, err := p.Ingest(nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.BytesAppended)
	assert.Nil(t, p.CurrentTree())
}

func TestStrictCommitOnCleanClose(t *testing.T) {
	p := newTestParser(t)
	report, err := p.Ingest([]byte(`{"a":1,"b":2}`), false)
	require.NoError(t, err)
	assert.False(t, report.Probed, "a self-contained value should commit strictly, not via probe")

	tree := p.CurrentTree()
	require.NotNil(t, tree)
	a, ok := tree.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", a.Num)
}

func TestProbeModeFillsInPartialTreeMidStream(t *testing.T) {
	p := newTestParser(t)
	report, err := p.Ingest([]byte(`{"name":"Alice","age":25`), false)
	require.NoError(t, err)
	assert.True(t, report.Probed)
	assert.True(t, report.Valid)

	tree := p.CurrentTree()
	require.NotNil(t, tree)
	name, ok := tree.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Alice", name.Str)
}

func TestFinalizeOnIdleSessionProducesNull(t *testing.T) {
	p := newTestParser(t)
	result := p.Finalize()
	assert.True(t, result.IsValid)
	assert.Equal(t, Terminal, p.State())
}

func TestFinalizeIsIdempotentAfterTerminal(t *testing.T) {
	p := newTestParser(t)
	_, err := p.Ingest([]byte(`{"a":1}`), true)
	require.NoError(t, err)

	first := p.Finalize()
	second := p.Finalize()
	assert.Equal(t, first.RepairedJSON, second.RepairedJSON)
}

func TestGrowingArrayAcrossChunksNeverUnEmitsEarlierElements(t *testing.T) {
	p := newTestParser(t)
	_, err := p.Ingest([]byte(`{"users":[`), false)
	require.NoError(t, err)
	_, err = p.Ingest([]byte(`{"id":1},`), false)
	require.NoError(t, err)

	tree := p.CurrentTree()
	require.NotNil(t, tree)
	users, ok := tree.Get("users")
	require.True(t, ok)
	require.GreaterOrEqual(t, len(users.Array), 1)

	_, err = p.Ingest([]byte(`{"id":2}]}`), true)
	require.NoError(t, err)

	final := p.CurrentTree()
	users, ok = final.Get("users")
	require.True(t, ok)
	require.Len(t, users.Array, 2)
	first, _ := users.At(0)
	id, _ := first.Get("id")
	assert.Equal(t, "1", id.Num)
}

func TestRingBufferOverflowDropsOnlyUpToASafeSplitPoint(t *testing.T) {
	comp := completer.New(strategy.DefaultConfig(), strategy.Smart, nil)
	p := New("sess-overflow", Config{MaxBufferBytes: 32}, comp)

	_, err := p.Ingest([]byte(`{"a":1},{"b":2},`), false)
	require.NoError(t, err)
	preOverflowLen := p.ring.Len()

	report, err := p.Ingest([]byte(`{"c":3},{"d":4},{"e":5},{"f":6}`), false)
	require.NoError(t, err)

	assert.Greater(t, preOverflowLen, 0)
	assert.Equal(t, preOverflowLen, report.BytesDropped,
		"overflow must drop exactly the first chunk, which ends at a safe split point")
}
