package polyglot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/value"
)

func TestExecuteUnknownLanguageRaisesPolyglotError(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Execute(context.Background(), "cobol", Request{})
	require.Error(t, err)
	ne, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.Polyglot, ne.Kind)
}

func TestToJSONableRoundTripsThroughFromJSONable(t *testing.T) {
	orig := value.NewDict()
	orig.DictSet("name", value.NewString("ada"))
	orig.DictSet("count", value.NewInt(3))
	orig.DictSet("items", value.NewList([]*value.Value{value.NewInt(1), value.NewInt(2)}))

	j := toJSONable(orig)
	back := fromJSONable(j)

	require.Equal(t, value.Dict, back.Tag)
	assert.Equal(t, "ada", back.Dict["name"].S)
	assert.EqualValues(t, 3, back.Dict["count"].I)
	require.Len(t, back.Dict["items"].Elems, 2)
}

func TestFromJSONableDistinguishesIntFromFloat(t *testing.T) {
	assert.Equal(t, value.Int, fromJSONable(float64(3)).Tag)
	assert.Equal(t, value.Float, fromJSONable(float64(3.5)).Tag)
}

func TestMarshalJSONProducesValidBindingObject(t *testing.T) {
	bindings := map[string]*value.Value{"x": value.NewInt(1)}
	out, err := marshalJSON(bindings)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x": 1}`, string(out))
}

func TestToJSONableMarshalsStructsAsFieldMaps(t *testing.T) {
	def := &value.StructDef{Name: "Point", Fields: []value.FieldDef{{Name: "x"}, {Name: "y"}}}
	s := &value.Value{Tag: value.Struct, StructDef: def, Fields: []*value.Value{value.NewInt(3), value.NewInt(4)}}

	j, ok := toJSONable(s).(map[string]interface{})
	require.True(t, ok, "struct must cross the boundary as a map of fields by name")
	assert.EqualValues(t, 3, j["x"])
	assert.EqualValues(t, 4, j["y"])
}

func TestToJSONableConvertsOversizedIntsToString(t *testing.T) {
	big := value.NewInt(maxExactJSONInt + 1)
	assert.Equal(t, "9007199254740993", toJSONable(big))
	small := value.NewInt(maxExactJSONInt)
	assert.EqualValues(t, maxExactJSONInt, toJSONable(small))
}

func TestClassifyForeignErrorExtractsPythonClassAndLine(t *testing.T) {
	stderr := "Traceback (most recent call last):\n" +
		"  File \"<string>\", line 4, in <module>\n" +
		"ZeroDivisionError: division by zero"
	class, line := classifyForeignError("python", stderr)
	assert.Equal(t, "ZeroDivisionError", class)
	assert.Equal(t, 4, line)
}

func TestClassifyForeignErrorExtractsJavaScriptClass(t *testing.T) {
	class, _ := classifyForeignError("javascript", "ReferenceError: x is not defined")
	assert.Equal(t, "ReferenceError", class)
}

func TestExecuteTimeoutMapsToTimeoutKind(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Execute(context.Background(), "shell", Request{
		Body:    "sleep 5",
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	var ne *errs.Error
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, errs.Polyglot, ne.Kind)
	assert.Equal(t, "Timeout", ne.ForeignType)
	assert.Equal(t, "shell", ne.Language)
}
