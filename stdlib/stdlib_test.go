package stdlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naab-lang/naab/value"
)

func TestRegistryDispatchesToRegisteredModule(t *testing.T) {
	r := NewRegistry()
	v, err := r.Call("math", "sqrt", []*value.Value{value.NewFloat(9)})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v.F, 1e-9)
}

func TestRegistryCallUnknownModule(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call("nope", "fn", nil)
	assert.Error(t, err)
}

func TestRegistryCallUnknownFunction(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call("math", "nope", nil)
	assert.Error(t, err)
}

func TestMathAbsPreservesIntType(t *testing.T) {
	r := NewRegistry()
	v, err := r.Call("math", "abs", []*value.Value{value.NewInt(-5)})
	require.NoError(t, err)
	assert.Equal(t, value.Int, v.Tag)
	assert.EqualValues(t, 5, v.I)
}

func TestStringSplitAndJoinRoundTrip(t *testing.T) {
	r := NewRegistry()
	split, err := r.Call("string", "split", []*value.Value{value.NewString("a,b,c"), value.NewString(",")})
	require.NoError(t, err)
	require.Len(t, split.Elems, 3)

	joined, err := r.Call("string", "join", []*value.Value{split, value.NewString("-")})
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", joined.S)
}

func TestArraySortUsesValueLess(t *testing.T) {
	r := NewRegistry()
	list := value.NewList([]*value.Value{value.NewInt(3), value.NewInt(1), value.NewInt(2)})
	sorted, err := r.Call("array", "sort", []*value.Value{list})
	require.NoError(t, err)
	assert.EqualValues(t, 1, sorted.Elems[0].I)
	assert.EqualValues(t, 3, sorted.Elems[2].I)
}

func TestArrayContains(t *testing.T) {
	r := NewRegistry()
	list := value.NewList([]*value.Value{value.NewString("a"), value.NewString("b")})
	found, err := r.Call("array", "contains", []*value.Value{list, value.NewString("b")})
	require.NoError(t, err)
	assert.True(t, found.B)
}

func TestJSONRoundTripPreservesStructureAndOrder(t *testing.T) {
	r := NewRegistry()
	orig := value.NewDict()
	orig.DictSet("name", value.NewString("ada"))
	orig.DictSet("scores", value.NewList([]*value.Value{value.NewInt(1), value.NewFloat(2.5)}))
	orig.DictSet("ok", value.NewBool(true))

	encoded, err := r.Call("json", "stringify", []*value.Value{orig})
	require.NoError(t, err)
	decoded, err := r.Call("json", "parse", []*value.Value{encoded})
	require.NoError(t, err)

	require.Equal(t, value.Dict, decoded.Tag)
	assert.Equal(t, "ada", decoded.Dict["name"].S)
	require.Len(t, decoded.Dict["scores"].Elems, 2)
	assert.Equal(t, value.Int, decoded.Dict["scores"].Elems[0].Tag)
	assert.Equal(t, value.Float, decoded.Dict["scores"].Elems[1].Tag)
	assert.True(t, decoded.Dict["ok"].B)
}

func TestJSONStringifyEncodesStructAsFieldDict(t *testing.T) {
	r := NewRegistry()
	def := &value.StructDef{Name: "Point", Fields: []value.FieldDef{{Name: "x"}, {Name: "y"}}}
	s := &value.Value{Tag: value.Struct, StructDef: def, Fields: []*value.Value{value.NewInt(1), value.NewInt(2)}}
	encoded, err := r.Call("json", "stringify", []*value.Value{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x": 1, "y": 2}`, encoded.S)
}

func TestJSONParseRejectsMalformedInput(t *testing.T) {
	r := NewRegistry()
	_, err := r.Call("json", "parse", []*value.Value{value.NewString("{nope")})
	assert.Error(t, err)
}

type fakeGCStats struct{ live, collections, lastFreed int }

func (f fakeGCStats) Live() int        { return f.live }
func (f fakeGCStats) Collections() int { return f.collections }
func (f fakeGCStats) LastFreed() int   { return f.lastFreed }

func TestDebugGCStatsReportsSourceValues(t *testing.T) {
	r := NewRegistry()
	r.RegisterDebug(fakeGCStats{live: 4, collections: 2, lastFreed: 1})
	v, err := r.Call("debug", "gc_stats", nil)
	require.NoError(t, err)
	require.Equal(t, value.Dict, v.Tag)
	assert.EqualValues(t, 4, v.Dict["live"].I)
	assert.EqualValues(t, 2, v.Dict["collections"].I)
	assert.EqualValues(t, 1, v.Dict["last_freed"].I)
}
