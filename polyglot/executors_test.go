package polyglot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naab-lang/naab/value"
)

func TestContainsAnyDetectsShellMetacharacters(t *testing.T) {
	assert.True(t, containsAny("echo hi | grep h", shellMetaChars))
	assert.True(t, containsAny("a && b", shellMetaChars))
	assert.False(t, containsAny("echo hello world", shellMetaChars))
}

func TestShellExecutorRunsDirectArgvWithoutMetacharacters(t *testing.T) {
	e := newShellExecutor()
	res, err := e.Execute(context.Background(), Request{Body: "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.S)
}

func TestShellExecutorUsesShForCompoundCommands(t *testing.T) {
	e := newShellExecutor()
	res, err := e.Execute(context.Background(), Request{Body: "echo a && echo b"})
	require.NoError(t, err)
	assert.Equal(t, "a\nb", res.S)
}

func TestShellExecutorEmptyBodyReturnsEmptyString(t *testing.T) {
	e := newShellExecutor()
	res, err := e.Execute(context.Background(), Request{Body: "   "})
	require.NoError(t, err)
	assert.Equal(t, "", res.S)
}

func TestShellExecutorNonzeroExitSurfacesStderr(t *testing.T) {
	e := newShellExecutor()
	_, err := e.Execute(context.Background(), Request{Body: "sh -c 'echo boom >&2; exit 3'"})
	require.Error(t, err)
	var ff *foreignFailure
	require.ErrorAs(t, err, &ff)
	assert.Contains(t, ff.Error(), "boom")
}

func TestGenericExecutorCapturesRawStdout(t *testing.T) {
	e := newGenericExecutor()
	res, err := e.Execute(context.Background(), Request{Body: "echo 42"})
	require.NoError(t, err)
	assert.Equal(t, "42", res.S)
}

func TestCompiledExecutorContentHashIsStableAndContentAddressed(t *testing.T) {
	e := newCompiledExecutor("cpp", ".cpp", []string{"g++", "-O2", "-o"}, nil)
	h1, err := e.contentHash("int main(){}")
	require.NoError(t, err)
	h2, err := e.contentHash("int main(){}")
	require.NoError(t, err)
	h3, err := e.contentHash("int main(){return 1;}")
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "identical source must hash to the same cache key")
	assert.NotEqual(t, h1, h3)
}

func TestWrapCompiledSourceInjectsSTLHeadersForBareCppBodies(t *testing.T) {
	wrapped := wrapCompiledSource("cpp", `std::cout << "hi";`)
	assert.Contains(t, wrapped, "#include <iostream>")
	assert.Contains(t, wrapped, "int main()")

	full := "int main() { return 0; }"
	assert.Equal(t, full, wrapCompiledSource("cpp", full))
}

func TestWrapCompiledSourceWrapsGoAndRustEntryPoints(t *testing.T) {
	g := wrapCompiledSource("go", `fmt.Println("hi")`)
	assert.True(t, strings.HasPrefix(g, "package main"))

	r := wrapCompiledSource("rust", `println!("hi");`)
	assert.Contains(t, r, "fn main()")
	already := "fn main() {}"
	assert.Equal(t, already, wrapCompiledSource("rust", already))
}

func TestWrapJSBodyReturnsSimpleExpressionsDirectly(t *testing.T) {
	assert.Equal(t, "return (1 + 2);", wrapJSBody("1 + 2"))
	multi := "const a = 1;\nreturn a;"
	assert.Equal(t, multi, wrapJSBody(multi))
}

func TestWrapPythonJSONExposesBindingsAsLocals(t *testing.T) {
	script := wrapPythonJSON("result = x + 1", map[string]*value.Value{"x": value.NewInt(1)})
	assert.Contains(t, script, `x=_b["x"]`)
	assert.Contains(t, script, "result = x + 1")
}
