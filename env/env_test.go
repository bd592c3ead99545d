package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naab-lang/naab/value"
)

func TestDefineShadowsOuterBinding(t *testing.T) {
	root := New()
	root.Define("x", value.NewInt(1))
	child := Child(root)
	child.Define("x", value.NewInt(2))

	v, ok := child.Get("x")
	require.True(t, ok)
	assert.EqualValues(t, 2, v.I)

	v, ok = root.Get("x")
	require.True(t, ok)
	assert.EqualValues(t, 1, v.I)
}

func TestGetWalksToParent(t *testing.T) {
	root := New()
	root.Define("shared", value.NewString("outer"))
	child := Child(root)
	v, ok := child.Get("shared")
	require.True(t, ok)
	assert.Equal(t, "outer", v.S)
}

func TestAssignMutatesDefiningFrameNotInnermost(t *testing.T) {
	root := New()
	root.Define("counter", value.NewInt(0))
	child := Child(root)

	require.NoError(t, child.Assign("counter", value.NewInt(5)))
	v, _ := root.Get("counter")
	assert.EqualValues(t, 5, v.I, "assigning through a child must mutate the frame that defines the name")

	_, inChild := child.vars["counter"]
	assert.False(t, inChild, "assign must not create a new binding in the inner frame")
}

func TestAssignUndefinedNameErrors(t *testing.T) {
	e := New()
	err := e.Assign("nope", value.NewInt(1))
	assert.Error(t, err)
}

func TestNamesOnlyReturnsDirectFrameBindings(t *testing.T) {
	root := New()
	root.Define("outer", value.NewInt(1))
	child := Child(root)
	child.Define("inner", value.NewInt(2))

	assert.ElementsMatch(t, []string{"inner"}, child.Names())
	assert.ElementsMatch(t, []string{"inner", "outer"}, child.AllNames())
}

func TestRootsCollectsEveryBindingInChain(t *testing.T) {
	root := New()
	root.Define("a", value.NewInt(1))
	child := Child(root)
	child.Define("b", value.NewInt(2))

	roots := child.Roots()
	assert.Len(t, roots, 2)
}
