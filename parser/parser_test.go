package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/config"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse("test.naab", src)
	require.NoError(t, err)
	return prog
}

func TestParseVarDecl(t *testing.T) {
	prog := mustParse(t, "let x: int = 1\n")
	require.Len(t, prog.Stmts, 1)
	decl, ok := prog.Stmts[0].(*ast.VarDecl)
	require.True(t, ok)
	assert.Equal(t, "x", decl.Name)
	require.NotNil(t, decl.Type)
	assert.Equal(t, "int", decl.Type.Name)
}

func TestParseQualifiedNullableGenericType(t *testing.T) {
	prog := mustParse(t, "let x: mod.Box<int>? = null\n")
	decl := prog.Stmts[0].(*ast.VarDecl)
	assert.Equal(t, "mod", decl.Type.Module)
	assert.Equal(t, "Box", decl.Type.Name)
	assert.True(t, decl.Type.Nullable)
	require.Len(t, decl.Type.Params, 1)
	assert.Equal(t, "int", decl.Type.Params[0].Name)
}

func TestParseStructLiteral(t *testing.T) {
	prog := mustParse(t, "let b = new mod.Box { value: 42 }\n")
	decl := prog.Stmts[0].(*ast.VarDecl)
	lit, ok := decl.Value.(*ast.StructLit)
	require.True(t, ok)
	assert.Equal(t, "mod", lit.Module)
	assert.Equal(t, "Box", lit.Name)
	require.Len(t, lit.Fields, 1)
	assert.Equal(t, "value", lit.Fields[0].Name)
}

func TestParsePipelineLeftOperand(t *testing.T) {
	prog := mustParse(t, "let r = 10 |> double\n")
	decl := prog.Stmts[0].(*ast.VarDecl)
	pipe, ok := decl.Value.(*ast.Pipeline)
	require.True(t, ok)
	lit, ok := pipe.Left.(*ast.IntLit)
	require.True(t, ok)
	assert.EqualValues(t, 10, lit.Value)
	_, ok = pipe.Right.(*ast.Identifier)
	assert.True(t, ok)
}

func TestParsePrecedenceClimbing(t *testing.T) {
	// 1 + 2 * 3 should parse as 1 + (2 * 3): the multiplication binds tighter.
	prog := mustParse(t, "let x = 1 + 2 * 3\n")
	decl := prog.Stmts[0].(*ast.VarDecl)
	bin, ok := decl.Value.(*ast.BinaryExpr)
	require.True(t, ok)
	left, ok := bin.Left.(*ast.IntLit)
	require.True(t, ok)
	assert.EqualValues(t, 1, left.Value)
	rightMul, ok := bin.Right.(*ast.BinaryExpr)
	require.True(t, ok)
	rl, ok := rightMul.Left.(*ast.IntLit)
	require.True(t, ok)
	assert.EqualValues(t, 2, rl.Value)
}

func TestParseMatchExpr(t *testing.T) {
	prog := mustParse(t, `
let r = match x {
	Some(v) -> v,
	_ -> 0,
}
`)
	decl := prog.Stmts[0].(*ast.VarDecl)
	m, ok := decl.Value.(*ast.MatchExpr)
	require.True(t, ok)
	require.Len(t, m.Arms, 2)
	assert.Equal(t, "Some", m.Arms[0].Pattern.Variant)
	assert.Equal(t, "v", m.Arms[0].Pattern.Binding)
	assert.True(t, m.Arms[1].Pattern.Wildcard)
}

func TestParsePolyglotExpr(t *testing.T) {
	src := "let z = <<python[x, y]\nx + y\n>>\n"
	prog := mustParse(t, src)
	decl := prog.Stmts[0].(*ast.VarDecl)
	pg, ok := decl.Value.(*ast.PolyglotExpr)
	require.True(t, ok)
	assert.Equal(t, "python", pg.Language)
	assert.Equal(t, []string{"x", "y"}, pg.Bindings)
}

func TestParseTryCatchFinally(t *testing.T) {
	prog := mustParse(t, `
try {
	throw "boom"
} catch (e) {
	let x = e
} finally {
	let y = 1
}
`)
	ts, ok := prog.Stmts[0].(*ast.TryStmt)
	require.True(t, ok)
	require.NotNil(t, ts.Catch)
	require.NotNil(t, ts.Finally)
	assert.Equal(t, "e", ts.Catch.Name)
}

func TestParseRecursionDepthCapRejectsDeepNesting(t *testing.T) {
	caps := config.DefaultCaps()
	caps.ParserRecursion = 5
	src := "let x = " + strings.Repeat("(", 20) + "1" + strings.Repeat(")", 20) + "\n"
	_, err := ParseWithCaps("test.naab", src, caps)
	assert.Error(t, err)
}

func TestParseRecursionDepthWithinCapAccepted(t *testing.T) {
	caps := config.DefaultCaps()
	src := "let x = " + strings.Repeat("(", 3) + "1" + strings.Repeat(")", 3) + "\n"
	_, err := ParseWithCaps("test.naab", src, caps)
	assert.NoError(t, err)
}

func TestParseUnexpectedTokenFails(t *testing.T) {
	_, err := Parse("test.naab", "let let = 1\n")
	assert.Error(t, err)
}
