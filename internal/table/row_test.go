package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_SetGet_Declared(t *testing.T) {
	r := NewRow([]string{"a", "b"}, false)

	require.NoError(t, r.Set("a", 1))

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Get("b")
	assert.False(t, ok, "declared but unset column reports unset")
}

func TestRow_Strict_RejectsUndeclared(t *testing.T) {
	r := NewRow([]string{"a"}, false)

	err := r.Set("rogue", 1)
	require.Error(t, err)
	assert.True(t, IsSchemaViolation(err))
}

func TestRow_AdHoc_AcceptsUndeclared(t *testing.T) {
	r := NewRow([]string{"a"}, true)

	require.NoError(t, r.Set("rogue", 1))
	require.NoError(t, r.Set("a", 2))

	assert.Equal(t, []string{"a", "rogue"}, r.Columns(),
		"ad-hoc columns append in first-use order")
}

func TestRow_DuplicateDeclarationsCollapse(t *testing.T) {
	r := NewRow([]string{"a", "b", "a"}, false)

	assert.Equal(t, []string{"a", "b"}, r.Columns())
	assert.Equal(t, 2, r.Len())
}

func TestRow_Overwrite(t *testing.T) {
	r := NewRow([]string{"a"}, false)

	require.NoError(t, r.Set("a", 1))
	require.NoError(t, r.Set("a", 2))

	v, _ := r.Get("a")
	assert.Equal(t, 2, v)
}
