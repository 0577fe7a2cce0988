package fieldline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueContainerNullVersusAbsent(t *testing.T) {
	c := NewValueContainer(map[string]any{"a": nil})

	v, ok := c.Lookup("a")
	assert.True(t, ok)
	assert.Nil(t, v)

	v, ok = c.Lookup("b")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestValueContainerNilMapping(t *testing.T) {
	c := NewValueContainer(nil)
	assert.Equal(t, 0, c.Len())

	c.Set("a", 1)
	assert.Equal(t, 1, c.Get("a"))
}

func TestValueContainerPop(t *testing.T) {
	c := NewValueContainer(map[string]any{"a": "x"})

	assert.Equal(t, "x", c.Pop("a"))
	_, ok := c.Lookup("a")
	assert.False(t, ok)

	// Popping an absent key is a nil no-op.
	assert.Nil(t, c.Pop("a"))
}

func TestValueContainerKeysSorted(t *testing.T) {
	c := NewValueContainer(map[string]any{"c": 1, "a": 2, "b": 3})
	assert.Equal(t, []string{"a", "b", "c"}, c.Keys())
}

func TestValueContainerSharesBackingMap(t *testing.T) {
	data := map[string]any{"a": 1}
	c := NewValueContainer(data)

	c.Set("b", 2)
	assert.Equal(t, 2, data["b"])
	assert.Equal(t, data, c.Raw())
}

func TestValueContainerCloneIsIndependent(t *testing.T) {
	c := NewValueContainer(map[string]any{"a": 1})
	clone := c.Clone()

	c.Set("a", 2)
	assert.Equal(t, 1, clone["a"])
}

func TestObjectRecordCFInitializesBlob(t *testing.T) {
	obj := &ObjectRecord{}
	obj.CF().Set("serial", "abc")

	require.NotNil(t, obj.CustomFieldData)
	assert.Equal(t, "abc", obj.CustomFieldData["serial"])
}
