package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/naab-lang/naab/token"
)

func TestPosReturnsEmbeddedPosition(t *testing.T) {
	pos := token.Pos{Line: 3, Column: 7}
	n := &IntLit{base: base{P: pos}, Value: 42}
	assert.Equal(t, pos, n.Pos())
}

func TestStmtNodesSatisfyStmtInterface(t *testing.T) {
	var stmts = []Stmt{
		&VarDecl{},
		&FuncDecl{},
		&StructDecl{},
		&EnumDecl{},
		&ModuleDecl{},
		&Import{},
		&Block{},
		&If{},
		&For{},
		&While{},
		&Return{},
		&Throw{},
		&Break{},
		&Continue{},
		&TryStmt{},
		&ExprStmt{},
		&Assign{},
	}
	for _, s := range stmts {
		assert.NotNil(t, s)
	}
}

func TestExprNodesSatisfyExprInterface(t *testing.T) {
	var exprs = []Expr{
		&NullLit{},
		&BoolLit{},
		&IntLit{},
		&FloatLit{},
		&StringLit{},
		&Identifier{},
		&BinaryExpr{},
		&UnaryExpr{},
		&CallExpr{},
		&Member{},
		&Index{},
		&StructLit{},
		&ListLit{},
		&DictLit{},
		&Lambda{},
		&Pipeline{},
		&RangeExpr{},
		&IfExpr{},
		&MatchExpr{},
		&PolyglotExpr{},
		&AwaitExpr{},
	}
	for _, e := range exprs {
		assert.NotNil(t, e)
	}
}

func TestElseChainHoldsEitherBlockOrIf(t *testing.T) {
	inner := &If{Cond: &BoolLit{Value: false}, Then: &Block{}}
	outer := &If{Cond: &BoolLit{Value: true}, Then: &Block{}, Else: inner}

	elseIf, ok := outer.Else.(*If)
	assert.True(t, ok, "an else-if chain must store its link as *If")
	assert.Same(t, inner, elseIf)
}

func TestCatchClauseBindsNameWithinBody(t *testing.T) {
	try := &TryStmt{
		Try:   &Block{},
		Catch: &CatchClause{Name: "e", Body: &Block{Stmts: []Stmt{&Break{}}}},
	}
	assert.Equal(t, "e", try.Catch.Name)
	assert.Len(t, try.Catch.Body.Stmts, 1)
	assert.Nil(t, try.Finally)
}

func TestPatternDistinguishesWildcardLiteralAndVariant(t *testing.T) {
	wildcard := Pattern{Wildcard: true}
	literal := Pattern{Literal: &IntLit{Value: 1}}
	variant := Pattern{Variant: "Some", Binding: "x"}

	assert.True(t, wildcard.Wildcard)
	assert.NotNil(t, literal.Literal)
	assert.Equal(t, "Some", variant.Variant)
	assert.Equal(t, "x", variant.Binding)
}

func TestTypeAnnotationNullableAndModuleQualified(t *testing.T) {
	ann := &TypeAnnotation{
		Module:   "collections",
		Name:     "Box",
		Params:   []*TypeAnnotation{{Name: "int"}},
		Nullable: true,
	}
	assert.Equal(t, "collections", ann.Module)
	assert.True(t, ann.Nullable)
	require := assert.New(t)
	require.Len(ann.Params, 1)
	require.Equal("int", ann.Params[0].Name)
}
