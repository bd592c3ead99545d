package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthyTable(t *testing.T) {
	assert.False(t, NewNull().Truthy())
	assert.False(t, NewBool(false).Truthy())
	assert.False(t, NewInt(0).Truthy())
	assert.False(t, NewFloat(0).Truthy())
	assert.False(t, NewString("").Truthy())
	assert.False(t, NewList(nil).Truthy())
	assert.False(t, NewDict().Truthy())

	assert.True(t, NewBool(true).Truthy())
	assert.True(t, NewInt(1).Truthy())
	assert.True(t, NewList([]*Value{NewInt(1)}).Truthy())
}

func TestEqualCoercesIntAndFloatButNotStruct(t *testing.T) {
	assert.True(t, Equal(NewInt(1), NewFloat(1.0)))
	assert.False(t, Equal(NewInt(1), NewInt(2)))

	def := &StructDef{Name: "Point"}
	a := &Value{Tag: Struct, StructDef: def, Fields: []*Value{NewInt(1)}}
	b := &Value{Tag: Struct, StructDef: def, Fields: []*Value{NewInt(1)}}
	assert.False(t, Equal(a, b), "structs compare by identity, not field equality")
	assert.True(t, Equal(a, a))
}

func TestLessOrdersSameTagOnly(t *testing.T) {
	less, err := Less(NewInt(1), NewInt(2))
	require.NoError(t, err)
	assert.True(t, less)

	_, err = Less(NewInt(1), NewFloat(2))
	assert.Error(t, err, "mixed int/float ordering is not coerced, unlike equality")
}

func TestLessOrdersListsLexicographically(t *testing.T) {
	a := NewList([]*Value{NewInt(1), NewInt(2)})
	b := NewList([]*Value{NewInt(1), NewInt(3)})
	less, err := Less(a, b)
	require.NoError(t, err)
	assert.True(t, less)
}

func TestCloneDeepCopiesListsAndDicts(t *testing.T) {
	orig := NewList([]*Value{NewInt(1), NewInt(2)})
	cp := Clone(orig)
	cp.Elems[0].I = 99
	assert.EqualValues(t, 1, orig.Elems[0].I)

	d := NewDict()
	d.DictSet("a", NewInt(1))
	dcp := Clone(d)
	dcp.Dict["a"].I = 42
	assert.EqualValues(t, 1, d.Dict["a"].I)
}

func TestCloneSharesStructReference(t *testing.T) {
	def := &StructDef{Name: "Counter"}
	s := &Value{Tag: Struct, StructDef: def, Fields: []*Value{NewInt(1)}}
	cp := Clone(s)
	assert.Same(t, s, cp, "structs are reference types: Clone must not copy them")
}

func TestDictSetPreservesInsertionOrder(t *testing.T) {
	d := NewDict()
	d.DictSet("z", NewInt(1))
	d.DictSet("a", NewInt(2))
	d.DictSet("z", NewInt(3))
	assert.Equal(t, []string{"z", "a"}, d.DictKeys, "re-setting an existing key must not move it")
}

func TestDictDeleteRemovesFromKeysAndMap(t *testing.T) {
	d := NewDict()
	d.DictSet("a", NewInt(1))
	d.DictSet("b", NewInt(2))
	d.DictDelete("a")
	assert.Equal(t, []string{"b"}, d.DictKeys)
	_, ok := d.Dict["a"]
	assert.False(t, ok)
}

func TestTraverseVisitsDirectChildrenOnly(t *testing.T) {
	inner := NewInt(1)
	outer := NewList([]*Value{NewList([]*Value{inner})})
	var seen []*Value
	Traverse(outer, func(v *Value) { seen = append(seen, v) })
	require.Len(t, seen, 1)
	assert.NotSame(t, inner, seen[0], "Traverse must not recurse past one level")
}

func TestMatchesTypeNullableAndUnion(t *testing.T) {
	intType := Primitive("int")
	nullableInt := &Type{Kind: TPrimitive, Name: "int", Nullable: true}
	assert.False(t, MatchesType(NewNull(), intType))
	assert.True(t, MatchesType(NewNull(), nullableInt))
	assert.True(t, MatchesType(NewInt(1), nullableInt))

	union := &Type{Kind: TUnion, Alts: []*Type{Primitive("int"), Primitive("string")}}
	assert.True(t, MatchesType(NewString("x"), union))
	assert.False(t, MatchesType(NewBool(true), union))
}

func TestMatchesTypeListElementsChecked(t *testing.T) {
	listOfInt := &Type{Kind: TList, Elem: Primitive("int")}
	assert.True(t, MatchesType(NewList([]*Value{NewInt(1), NewInt(2)}), listOfInt))
	assert.False(t, MatchesType(NewList([]*Value{NewString("x")}), listOfInt))
}

func TestStringFormatsQuotedListElements(t *testing.T) {
	l := NewList([]*Value{NewString("a"), NewInt(1)})
	assert.Equal(t, `["a", 1]`, l.String())
}
