package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataSetGet(t *testing.T) {
	t.Parallel()

	var d Data
	assert.True(t, d.IsEmpty())
	assert.Equal(t, "{}", d.Raw())

	d2, err := d.Set("source.model", "local")
	require.NoError(t, err)
	d3, err := d2.Set("score", 7)
	require.NoError(t, err)

	assert.True(t, d.IsEmpty(), "original store must not change")
	assert.Equal(t, "local", d3.Get("source.model").String())
	assert.Equal(t, int64(7), d3.Get("score").Int())
	assert.False(t, d2.Has("score"))

	d4, err := d3.Delete("score")
	require.NoError(t, err)
	assert.False(t, d4.Has("score"))
	assert.True(t, d3.Has("score"))
}

func TestNewData(t *testing.T) {
	t.Parallel()

	d, err := NewData(`{"a":{"b":1}}`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Get("a.b").Int())

	_, err = NewData(`{"a":`)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestSnapshotCarriesData(t *testing.T) {
	t.Parallel()

	d, err := Data{}.Set("id", "x")
	require.NoError(t, err)

	s := New(3).WithData(d).Append(Insertable("a"))
	assert.Equal(t, "x", s.Data().Get("id").String())
	assert.Equal(t, ID(3), s.ID())
}
