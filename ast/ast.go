// Package ast defines the NAAb abstract syntax tree (§3): two disjoint
// variant families, statements and expressions, each node owning its
// children exclusively, every node carrying a source location.
package ast

import "github.com/naab-lang/naab/token"

// Node is implemented by every statement and expression node.
type Node interface {
	Pos() token.Pos
	node()
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmt()
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	expr()
}

type base struct{ P token.Pos }

func (b base) Pos() token.Pos { return b.P }
func (base) node()            {}

// TypeAnnotation records a type reference: base name, optional module
// prefix, optional type parameters, nullable flag (§3, §4.3).
type TypeAnnotation struct {
	base
	Module   string // optional module prefix ("" if unqualified)
	Name     string
	Params   []*TypeAnnotation // generic type arguments, e.g. Box<int>
	Nullable bool
}

// ---------------------------------------------------------------- Statements

type (
	// VarDecl is `let name [: Type] = expr`.
	VarDecl struct {
		base
		Name  string
		Type  *TypeAnnotation // nil if not annotated
		Value Expr            // nil for an uninitialized declaration
	}

	// Param is a function parameter with an optional default-value expression
	// (§4.6: evaluated in the callee's definition scope at call time).
	Param struct {
		Name    string
		Type    *TypeAnnotation
		Default Expr
	}

	// FuncDecl declares a named function.
	FuncDecl struct {
		base
		Name       string
		TypeParams []string
		Params     []Param
		Ret        *TypeAnnotation
		Body       *Block
		Async      bool
	}

	// FieldDecl is a struct field declaration.
	FieldDecl struct {
		Name string
		Type *TypeAnnotation
	}

	// StructDecl declares a struct type, optionally generic.
	StructDecl struct {
		base
		Name       string
		TypeParams []string
		Fields     []FieldDecl
	}

	// EnumVariant is one constructor of an enum, with an optional payload
	// type list (`Some(T)`).
	EnumVariant struct {
		Name    string
		Payload []*TypeAnnotation
	}

	// EnumDecl declares an enum type.
	EnumDecl struct {
		base
		Name       string
		TypeParams []string
		Variants   []EnumVariant
	}

	// ModuleDecl declares an inline module block (distinct from `use`
	// imports, which load an external file).
	ModuleDecl struct {
		base
		Name string
		Body []Stmt
	}

	// Import is a `use modname[.submod] [as alias]` statement (§4.6).
	Import struct {
		base
		Path  string // dotted module path, e.g. "pkg.sub"
		Alias string // "" if not aliased
	}

	// Block is a compound `{ ... }` statement sequence; also used as a
	// function/if/loop body.
	Block struct {
		base
		Stmts []Stmt
	}

	If struct {
		base
		Cond Expr
		Then *Block
		Else Stmt // *Block or *If (else-if chain) or nil
	}

	For struct {
		base
		Var   string
		Iter  Expr
		Body  *Block
	}

	While struct {
		base
		Cond Expr
		Body *Block
	}

	Return struct {
		base
		Value Expr // nil for bare return
	}

	Throw struct {
		base
		Value Expr
	}

	Break struct{ base }

	Continue struct{ base }

	// CatchClause binds a thrown value to Name within Body.
	CatchClause struct {
		Name string
		Body *Block
	}

	TryStmt struct {
		base
		Try     *Block
		Catch   *CatchClause // nil if no catch
		Finally *Block       // nil if no finally
	}

	ExprStmt struct {
		base
		X Expr
	}

	// Assign covers plain assignment, member-field assignment, and
	// index-element assignment; Target distinguishes the three via its
	// dynamic type (*Identifier, *Member, *Index).
	Assign struct {
		base
		Target Expr
		Value  Expr
	}
)

func (*VarDecl) stmt()    {}
func (*FuncDecl) stmt()   {}
func (*StructDecl) stmt() {}
func (*EnumDecl) stmt()   {}
func (*ModuleDecl) stmt() {}
func (*Import) stmt()     {}
func (*Block) stmt()      {}
func (*If) stmt()         {}
func (*For) stmt()        {}
func (*While) stmt()      {}
func (*Return) stmt()     {}
func (*Throw) stmt()      {}
func (*Break) stmt()      {}
func (*Continue) stmt()   {}
func (*TryStmt) stmt()    {}
func (*ExprStmt) stmt()   {}
func (*Assign) stmt()     {}

// --------------------------------------------------------------- Expressions

type (
	NullLit struct{ base }

	BoolLit struct {
		base
		Value bool
	}

	IntLit struct {
		base
		Value int64
	}

	FloatLit struct {
		base
		Value float64
	}

	StringLit struct {
		base
		Value string
	}

	Identifier struct {
		base
		Name string
	}

	BinaryExpr struct {
		base
		Op          token.Kind
		Left, Right Expr
	}

	UnaryExpr struct {
		base
		Op token.Kind
		X  Expr
	}

	// CallExpr is a function/method invocation; Callee may be an Identifier,
	// Member, or any expression evaluating to a callable.
	CallExpr struct {
		base
		Callee Expr
		Args   []Expr
	}

	// Member is `X.Name`: struct field, module binding, or dict shorthand
	// index-by-string-key (§4.6).
	Member struct {
		base
		X    Expr
		Name string
	}

	Index struct {
		base
		X     Expr
		Index Expr
	}

	// FieldInit is one `name: value` pair in a struct literal.
	FieldInit struct {
		Name  string
		Value Expr
	}

	// StructLit is `new [module.]Name { field: value, ... }` or, when
	// TypeArgs is set, `new [module.]Name<T,...> { ... }`.
	StructLit struct {
		base
		Module   string
		Name     string
		TypeArgs []*TypeAnnotation
		Fields   []FieldInit
	}

	ListLit struct {
		base
		Elems []Expr
	}

	DictEntry struct {
		Key   Expr // must evaluate to a string
		Value Expr
	}

	DictLit struct {
		base
		Entries []DictEntry
	}

	// Lambda is a function literal; also the shape of a named function's
	// value once bound (§3 Runtime value: function).
	Lambda struct {
		base
		Params []Param
		Body   *Block
		Async  bool
	}

	// Pipeline is `left |> right`; right must evaluate to a callable and is
	// evaluated lazily — only once control actually reaches it (§4.3, §4.6,
	// §8 scenario vi).
	Pipeline struct {
		base
		Left, Right Expr
	}

	RangeExpr struct {
		base
		Low, High Expr
	}

	// IfExpr is the expression-producing form of if/else (§3).
	IfExpr struct {
		base
		Cond       Expr
		Then, Else Expr
	}

	// Pattern is a match-arm pattern: a literal, a variant constructor
	// (`Some(x)`), or the wildcard `_`.
	Pattern struct {
		Wildcard bool
		Literal  Expr   // non-nil for a literal pattern
		Variant  string // non-"" for a variant-constructor pattern
		Binding  string // name bound by `Some(x)`, "" if none
	}

	MatchArm struct {
		Pattern Pattern
		Body    Expr
	}

	MatchExpr struct {
		base
		Subject Expr
		Arms    []MatchArm
	}

	// PolyglotExpr is a foreign-language source fragment (§4.3, §4.9).
	PolyglotExpr struct {
		base
		Language string
		Bindings []string
		JSON     bool
		Body     string
	}

	AwaitExpr struct {
		base
		X Expr
	}
)

func (*NullLit) expr()      {}
func (*BoolLit) expr()      {}
func (*IntLit) expr()       {}
func (*FloatLit) expr()     {}
func (*StringLit) expr()    {}
func (*Identifier) expr()   {}
func (*BinaryExpr) expr()   {}
func (*UnaryExpr) expr()    {}
func (*CallExpr) expr()     {}
func (*Member) expr()       {}
func (*Index) expr()        {}
func (*StructLit) expr()    {}
func (*ListLit) expr()      {}
func (*DictLit) expr()      {}
func (*Lambda) expr()       {}
func (*Pipeline) expr()     {}
func (*RangeExpr) expr()    {}
func (*IfExpr) expr()       {}
func (*MatchExpr) expr()    {}
func (*PolyglotExpr) expr() {}
func (*AwaitExpr) expr()    {}

// Program is the root of a parsed source file.
type Program struct {
	base
	Stmts []Stmt
}
