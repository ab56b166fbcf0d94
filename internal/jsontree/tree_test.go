package jsontree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoundTrip(t *testing.T) {
	v, err := Decode([]byte(`{"name":"Alice","age":25,"tags":["a","b"],"active":true,"meta":null}`))
	require.NoError(t, err)

	name, ok := v.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Alice", name.Str)

	age, ok := v.Get("age")
	require.True(t, ok)
	assert.Equal(t, "25", age.Num)

	tags, ok := v.Get("tags")
	require.True(t, ok)
	first, ok := tags.At(0)
	require.True(t, ok)
	assert.Equal(t, "a", first.Str)
}

func TestDecodePreservesKeyOrder(t *testing.T) {
	v, err := Decode([]byte(`{"z":1,"a":2,"m":3}`))
	require.NoError(t, err)
	require.Len(t, v.Object, 3)
	assert.Equal(t, "z", v.Object[0].Key)
	assert.Equal(t, "a", v.Object[1].Key)
	assert.Equal(t, "m", v.Object[2].Key)
}

func TestDecodeRejectsTrailingGarbage(t *testing.T) {
	_, err := Decode([]byte(`{"a":1} garbage`))
	assert.Error(t, err)
}

func TestEncodeCanonicalIsInsertionOrder(t *testing.T) {
	v := Object()
	v.Set("z", Number("1"))
	v.Set("a", Number("2"))
	assert.Equal(t, `{"z":1,"a":2}`, Encode(v))
}

func TestMergeObjectRicherValueWins(t *testing.T) {
	old, err := Decode([]byte(`{"name":"Al"}`))
	require.NoError(t, err)
	next, err := Decode([]byte(`{"name":"Alice","age":25}`))
	require.NoError(t, err)

	merged := Merge(old, next)
	name, _ := merged.Get("name")
	assert.Equal(t, "Alice", name.Str)
	age, ok := merged.Get("age")
	require.True(t, ok)
	assert.Equal(t, "25", age.Num)
}

func TestMergeRetainsAbsentPathUntilFinalize(t *testing.T) {
	old, err := Decode([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	next, err := Decode([]byte(`{"a":1}`))
	require.NoError(t, err)

	merged := Merge(old, next)
	b, ok := merged.Get("b")
	require.True(t, ok, "b must be retained: LLMs never un-emit structure mid-stream")
	assert.Equal(t, "2", b.Num)
}

func TestEqual(t *testing.T) {
	a, _ := Decode([]byte(`{"a":1,"b":[1,2]}`))
	b, _ := Decode([]byte(`{"a":1,"b":[1,2]}`))
	c, _ := Decode([]byte(`{"b":1,"a":[1,2]}`))
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}
