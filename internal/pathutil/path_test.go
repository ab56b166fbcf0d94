package pathutil

import (
	"testing"

	"github.com/deltastream/core/internal/jsontree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRenderRoundTripAllStyles(t *testing.T) {
	p := Path{Key("api"), Key("users"), Index(1), Key("name")}

	for _, style := range []Style{StyleDot, StyleSlash, StyleBracket} {
		rendered := Render(p, style)
		parsed, err := Parse(rendered, style)
		require.NoErrorf(t, err, "style=%v rendered=%q", style, rendered)
		assert.Truef(t, p.Equal(parsed), "style=%v rendered=%q parsed=%v", style, rendered, parsed)
	}
}

func TestRenderStyles(t *testing.T) {
	p := Path{Key("api"), Key("users"), Index(1), Key("name")}
	assert.Equal(t, "api.users[1].name", Render(p, StyleDot))
	assert.Equal(t, "/api/users/1/name", Render(p, StyleSlash))
	assert.Equal(t, "api[users][1][name]", Render(p, StyleBracket))
}

func TestParseDotRejectsMalformed(t *testing.T) {
	_, err := Parse(".a", StyleDot)
	assert.Error(t, err)

	_, err = Parse("a]", StyleDot)
	assert.Error(t, err)

	_, err = Parse("a[x", StyleDot)
	assert.Error(t, err)
}

func TestTraverseArrayIndex(t *testing.T) {
	tree, err := jsontree.Decode([]byte(`{"api":{"users":[{"name":"Alice"},{"name":"Bob"}]}}`))
	require.NoError(t, err)

	p, err := Parse("api.users[1].name", StyleDot)
	require.NoError(t, err)

	v, found := Traverse(tree, p)
	require.True(t, found)
	assert.Equal(t, "Bob", v.Str)

	p2, err := Parse("api.users[5].name", StyleDot)
	require.NoError(t, err)
	_, found2 := Traverse(tree, p2)
	assert.False(t, found2)
}

func TestEnumerateOrder(t *testing.T) {
	tree, err := jsontree.Decode([]byte(`{"b":1,"a":[10,20]}`))
	require.NoError(t, err)

	leaves := Enumerate(tree)
	require.Len(t, leaves, 3)
	assert.Equal(t, "b", Render(leaves[0].Path, StyleDot))
	assert.Equal(t, "a[0]", Render(leaves[1].Path, StyleDot))
	assert.Equal(t, "a[1]", Render(leaves[2].Path, StyleDot))
}

func TestIsStrictPrefixOf(t *testing.T) {
	a := Path{Key("a")}
	b := Path{Key("a"), Key("b")}
	assert.True(t, a.IsStrictPrefixOf(b))
	assert.False(t, b.IsStrictPrefixOf(a))
	assert.False(t, a.IsStrictPrefixOf(a))
}
