package interp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naab-lang/naab/audit"
	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/value"
)

func newInterp(t *testing.T) *Interpreter {
	t.Helper()
	return New(Options{})
}

func TestArithmeticAndVariables(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
let a = 1 + 2 * 3
return a
`)
	require.NoError(t, err)
	assert.Equal(t, value.Int, res.Tag)
	assert.EqualValues(t, 7, res.I)
}

func TestClosureCapturesByReference(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
let counter = 0
fn bump() {
	counter = counter + 1
	return counter
}
bump()
bump()
return bump()
`)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.I)
}

func TestDefaultParamsEvaluatedLeftToRight(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
fn f(a, b = a + 1, c = b + 1) {
	return c
}
return f(1)
`)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.I)
}

func TestPipelineRightHandIsLazyLambda(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
fn side_effect_if_called() {
	throw "ouch"
}
let r = 10 |> (fn(x) { return x * 2 })
return r
`)
	require.NoError(t, err)
	assert.EqualValues(t, 20, res.I)
}

func TestGenericStructMonomorphization(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
struct Box<T> { value: T }
let b: Box<int> = new Box<int> { value: 42 }
return b.value
`)
	require.NoError(t, err)
	assert.EqualValues(t, 42, res.I)

	def, ok := in.Registry.LookupStruct("", "Box")
	require.True(t, ok)
	mono1, err := in.Registry.Monomorphize(def, []*value.Type{{Kind: value.TPrimitive, Name: "int"}})
	require.NoError(t, err)
	mono2, err := in.Registry.Monomorphize(def, []*value.Type{{Kind: value.TPrimitive, Name: "int"}})
	require.NoError(t, err)
	assert.Same(t, mono1, mono2, "same type arguments must reuse the cached monomorphization")
}

func TestStructCycleCollectedAfterGCCollect(t *testing.T) {
	in := newInterp(t)
	_, err := in.Run("t.naab", `
struct Node { next: Node? }

fn build() {
	let a = new Node { next: null }
	let b = new Node { next: a }
	a.next = b
}
build()
gc_collect()
`)
	require.NoError(t, err)
	// build()'s locals are gone once the call returns; the cycle they formed
	// is unreachable from any root, so a collect sweeps both nodes (§8
	// scenario ii). The only value left live is the function value build
	// itself, still bound in the global scope.
	assert.Equal(t, 1, in.GC.Live())
}

func TestTryCatchFinallyOrdering(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
let order = []
fn run() {
	try {
		order = [1]
		throw "boom"
	} catch (e) {
		order = [1, 2]
	} finally {
		order = [1, 2, 3]
	}
	return order
}
return run()
`)
	require.NoError(t, err)
	require.Equal(t, value.List, res.Tag)
	require.Len(t, res.Elems, 3)
	assert.EqualValues(t, 3, res.Elems[2].I)
}

func TestUncaughtThrowIsCatchableError(t *testing.T) {
	in := newInterp(t)
	_, err := in.Run("t.naab", `throw "boom"`)
	require.Error(t, err)
}

func TestFinallyThrowReplacesOriginal(t *testing.T) {
	in := newInterp(t)
	_, err := in.Run("t.naab", `
try {
	throw "first"
} finally {
	throw "second"
}
`)
	require.Error(t, err)
	var ne *errs.Error
	require.True(t, errors.As(err, &ne))
	assert.Contains(t, ne.Message, "second")
}

func TestIntegerOverflowRaisesArithmeticError(t *testing.T) {
	in := newInterp(t)
	_, err := in.Run("t.naab", `
let a = 9223372036854775807
let b = 1
return a + b
`)
	require.Error(t, err)
	ne, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.Arithmetic, ne.Kind)
}

func TestDivisionByZeroRaisesArithmeticError(t *testing.T) {
	in := newInterp(t)
	_, err := in.Run("t.naab", `
let a = 1
let b = 0
return a / b
`)
	require.Error(t, err)
	ne, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.Arithmetic, ne.Kind)
}

func TestUndefinedNameRaisesNameError(t *testing.T) {
	in := newInterp(t)
	_, err := in.Run("t.naab", `return doesNotExist`)
	require.Error(t, err)
	ne, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.Name, ne.Kind)
}

func TestListIndexOutOfRange(t *testing.T) {
	in := newInterp(t)
	_, err := in.Run("t.naab", `
let xs = [1, 2, 3]
return xs[10]
`)
	require.Error(t, err)
	ne, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.Index, ne.Kind)
}

func TestDictMemberAccessIsIndexShorthand(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
let d = {"name": "ada"}
return d.name
`)
	require.NoError(t, err)
	assert.Equal(t, "ada", res.S)
}

func TestCopyOnAssignmentForLists(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
let a = [1, 2, 3]
let b = a
b[0] = 99
return a[0]
`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.I, "assigning a list to a new name must deep-copy it")
}

func TestStructsAreReferenceTyped(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
struct Counter { n: int }
let a = new Counter { n: 0 }
let b = a
b.n = 5
return a.n
`)
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.I, "structs are reference types: mutation through an alias is visible")
}

func TestEqualityCoercesNumericTypesButOrderingDoesNot(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `return 1 == 1.0`)
	require.NoError(t, err)
	assert.Equal(t, true, res.B)

	_, err = in.Run("t.naab", `return 1 < 2.0`)
	assert.Error(t, err, "ordering across int and float must not coerce")
}

func TestGCCollectBuiltinCallable(t *testing.T) {
	in := newInterp(t)
	_, err := in.Run("t.naab", `gc_collect()`)
	assert.NoError(t, err)
}

func TestDebugGCStatsModule(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
struct Thing { n: int }
let t = new Thing { n: 1 }
return debug.gc_stats()
`)
	require.NoError(t, err)
	assert.Equal(t, value.Dict, res.Tag)
	_, ok := res.Dict["live"]
	assert.True(t, ok)
}

func TestImportCycleNamesEveryModule(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.naab"), []byte("use b\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.naab"), []byte("use a\n"), 0o644))

	in := New(Options{SourceDir: dir})
	_, err := in.Run(filepath.Join(dir, "a.naab"), "use b\n")
	require.Error(t, err)
	ne, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.Import, ne.Kind)
	assert.Contains(t, ne.Message, "a")
	assert.Contains(t, ne.Message, "b")
}

func TestParallelPolyglotBlocksBindInSourceOrder(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
let x = <<shell[]
echo one
>>
let y = <<shell[]
echo two
>>
return [x, y]
`)
	require.NoError(t, err)
	require.Equal(t, value.List, res.Tag)
	require.Len(t, res.Elems, 2)
	assert.Equal(t, "one", res.Elems[0].S)
	assert.Equal(t, "two", res.Elems[1].S)
}

func TestDependentPolyglotBlockSeesEarlierResults(t *testing.T) {
	in := newInterp(t)
	res, err := in.Run("t.naab", `
let x = <<shell[]
echo 3
>>
let y = <<shell[]
echo 4
>>
let z = <<shell[x, y] -> JSON
cat
>>
return z
`)
	require.NoError(t, err)
	// z's snapshot is taken after x and y commit: cat echoes the JSON binding
	// payload it received on stdin, which must mention both values.
	require.Equal(t, value.Dict, res.Tag)
	assert.Equal(t, "3", res.Dict["x"].S)
	assert.Equal(t, "4", res.Dict["y"].S)
}

func TestBodyIdentsScanIsConservative(t *testing.T) {
	idents := bodyIdents("result = x1 + _tmp * 2")
	assert.Contains(t, idents, "result")
	assert.Contains(t, idents, "x1")
	assert.Contains(t, idents, "_tmp")
	assert.NotContains(t, idents, "2")
}

func TestBodyReferenceWithoutExplicitBindingSerializesBlocks(t *testing.T) {
	in := newInterp(t)
	// The second block's body mentions x without listing it in bindings; the
	// analyzer must still treat it as a dependency and serialize (§4.10
	// conservative rule), so the commit of x happens-before y launches.
	res, err := in.Run("t.naab", `
let x = <<shell[]
echo alpha
>>
let y = <<shell[]
echo x
>>
return [x, y]
`)
	require.NoError(t, err)
	require.Len(t, res.Elems, 2)
	assert.Equal(t, "alpha", res.Elems[0].S)
	assert.Equal(t, "x", res.Elems[1].S)
}

func TestAuditLogRecordsBlockExecuteAndModuleLoad(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.log")
	log, err := audit.Open(logPath, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.naab"), []byte("let ready = 1\n"), 0o644))

	in := New(Options{SourceDir: dir, Audit: log})
	_, err = in.Run(filepath.Join(dir, "main.naab"), `
use helper
let out = <<shell[]
echo done
>>
return out
`)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	discrepancies, err := audit.Verify(logPath, nil)
	require.NoError(t, err)
	assert.Empty(t, discrepancies, "an uninterrupted append sequence must verify clean")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"module_load"`)
	assert.Contains(t, string(data), `"block_execute"`)
}

func TestModuleLoadsExactlyOnceAcrossMultipleImports(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shared.naab"), []byte("let loads = 1\n"), 0o644))

	in := New(Options{SourceDir: dir})
	_, err := in.Run(filepath.Join(dir, "main.naab"), `
use shared
use shared as again
return 1
`)
	require.NoError(t, err)
	in.mu.Lock()
	mod := in.modules["shared"]
	in.mu.Unlock()
	require.NotNil(t, mod)
	assert.Equal(t, Loaded, mod.State)
}
