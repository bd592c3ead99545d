// Package parser implements NAAb's recursive-descent, precedence-climbing
// parser (§4.3): source text plus the lexer's token stream in, *ast.Program
// out, with a recursion-depth guard on every recursive grammar rule.
package parser

import (
	"strconv"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/config"
	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/lexer"
	"github.com/naab-lang/naab/token"
)

// Parser holds the token stream and recursion-depth state for one parse.
type Parser struct {
	lex  *lexer.Lexer
	caps config.Caps

	buf   []token.Token
	depth int

	// knownIdents collects identifiers seen so far, used by "Did you mean?"
	// suggestions over known identifiers and keywords in scope (§4.3).
	knownIdents map[string]bool
}

// Parse parses src (from the named file) into a Program using the default
// caps. Use ParseWithCaps to supply a custom configuration.
func Parse(file, src string) (*ast.Program, error) {
	return ParseWithCaps(file, src, config.DefaultCaps())
}

// ParseWithCaps parses src enforcing c's caps (§4.1).
func ParseWithCaps(file, src string, c config.Caps) (*ast.Program, error) {
	lx, err := lexer.New(file, src, c)
	if err != nil {
		return nil, err
	}
	p := &Parser{lex: lx, caps: c, knownIdents: map[string]bool{}}
	if err := p.fill(1); err != nil {
		return nil, err
	}
	return p.parseProgram()
}

// ---- token buffer -----------------------------------------------------

func (p *Parser) fill(n int) error {
	for len(p.buf) < n {
		t, err := p.lex.Next()
		if err != nil {
			return err
		}
		p.buf = append(p.buf, t)
		if t.Kind == token.EOF {
			break
		}
	}
	return nil
}

func (p *Parser) cur() token.Token {
	_ = p.fill(1)
	return p.buf[0]
}

func (p *Parser) peekAt(n int) token.Token {
	_ = p.fill(n + 1)
	if n >= len(p.buf) {
		return p.buf[len(p.buf)-1]
	}
	return p.buf[n]
}

func (p *Parser) advance() token.Token {
	_ = p.fill(1)
	t := p.buf[0]
	p.buf = p.buf[1:]
	if t.Kind == token.IDENT {
		p.knownIdents[t.Lexeme] = true
	}
	return t
}

func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) expect(k token.Kind) (token.Token, error) {
	if p.cur().Kind != k {
		return token.Token{}, p.unexpected(k)
	}
	return p.advance(), nil
}

func (p *Parser) unexpected(want token.Kind) error {
	cur := p.cur()
	msg := "expected " + want.String() + ", got " + cur.Kind.String()
	if cur.Kind == token.IDENT {
		if token.IsKeyword(cur.Lexeme) {
			msg = "reserved keyword " + cur.Lexeme + " used as identifier"
		}
	}
	e := errs.New(errs.Syntax, cur.Pos, "%s", msg)
	if s := errs.BestSuggestion(cur.Lexeme, p.knownNames(), 2); s != "" {
		e.Message += "; " + errs.Suggestion(s)
	}
	return e
}

func (p *Parser) knownNames() []string {
	names := make([]string, 0, len(p.knownIdents)+len(token.Keywords()))
	for k := range p.knownIdents {
		names = append(names, k)
	}
	names = append(names, token.Keywords()...)
	return names
}

// skipSemis consumes zero or more statement-separator tokens (newline or ';').
func (p *Parser) skipSemis() {
	for p.at(token.SEMI) {
		p.advance()
	}
}

// ---- recursion guard ---------------------------------------------------

// enter increments the recursion depth for one grammar-rule invocation and
// returns a function to decrement it on return (§4.1, §4.3, §8 boundary).
func (p *Parser) enter(pos token.Pos) (func(), error) {
	p.depth++
	if p.depth > p.caps.ParserRecursion {
		p.depth--
		return func() {}, errs.New(errs.Syntax, pos, "parser recursion limit of %d exceeded", p.caps.ParserRecursion)
	}
	return func() { p.depth-- }, nil
}

// ---- program / statements ---------------------------------------------

func (p *Parser) parseProgram() (*ast.Program, error) {
	start := p.cur().Pos
	prog := &ast.Program{}
	prog.P = start
	p.skipSemis()
	for !p.at(token.EOF) {
		st, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, st)
		p.skipSemis()
	}
	return prog, nil
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	start := p.cur().Pos
	done, err := p.enter(start)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	b := &ast.Block{}
	b.P = start
	p.skipSemis()
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		st, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, st)
		p.skipSemis()
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	start := p.cur().Pos
	done, err := p.enter(start)
	if err != nil {
		return nil, err
	}
	defer done()

	switch p.cur().Kind {
	case token.LET:
		return p.parseVarDecl()
	case token.FN:
		return p.parseFuncDecl(false)
	case token.ASYNC:
		p.advance()
		if _, err := p.expect(token.FN); err != nil {
			return nil, err
		}
		return p.parseFuncDeclBody(start, true)
	case token.STRUCT:
		return p.parseStructDecl()
	case token.ENUM:
		return p.parseEnumDecl()
	case token.MODULE:
		return p.parseModuleDecl()
	case token.USE:
		return p.parseImport()
	case token.LBRACE:
		return p.parseBlock()
	case token.IF:
		return p.parseIfStmt()
	case token.FOR:
		return p.parseForStmt()
	case token.WHILE:
		return p.parseWhileStmt()
	case token.RETURN:
		return p.parseReturn()
	case token.THROW:
		return p.parseThrow()
	case token.BREAK:
		p.advance()
		n := &ast.Break{}
		n.P = start
		return n, nil
	case token.CONTINUE:
		p.advance()
		n := &ast.Continue{}
		n.P = start
		return n, nil
	case token.TRY:
		return p.parseTry()
	default:
		return p.parseSimpleStmt()
	}
}

func (p *Parser) parseVarDecl() (ast.Stmt, error) {
	start := p.advance().Pos // consume 'let'
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	v := &ast.VarDecl{Name: name.Lexeme}
	v.P = start
	if p.at(token.COLON) {
		p.advance()
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		v.Type = typ
	}
	if p.at(token.ASSIGN) {
		p.advance()
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		v.Value = val
	}
	return v, nil
}

func (p *Parser) parseType() (*ast.TypeAnnotation, error) {
	start := p.cur().Pos
	done, err := p.enter(start)
	if err != nil {
		return nil, err
	}
	defer done()

	first, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	module := ""
	name := first.Lexeme
	if p.at(token.DOT) {
		p.advance()
		second, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		module = name
		name = second.Lexeme
	}
	t := &ast.TypeAnnotation{Module: module, Name: name}
	t.P = start
	if p.at(token.LT) {
		p.advance()
		for {
			pt, err := p.parseType()
			if err != nil {
				return nil, err
			}
			t.Params = append(t.Params, pt)
			if p.at(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(token.GT); err != nil {
			return nil, err
		}
	}
	if p.at(token.QUESTION) {
		p.advance()
		t.Nullable = true
	}
	return t, nil
}

func (p *Parser) parseParamList() ([]ast.Param, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var params []ast.Param
	for !p.at(token.RPAREN) {
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		prm := ast.Param{Name: name.Lexeme}
		if p.at(token.COLON) {
			p.advance()
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			prm.Type = t
		}
		if p.at(token.ASSIGN) {
			p.advance()
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			prm.Default = def
		}
		params = append(params, prm)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseTypeParams() ([]string, error) {
	if !p.at(token.LT) {
		return nil, nil
	}
	p.advance()
	var names []string
	for {
		id, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		names = append(names, id.Lexeme)
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.GT); err != nil {
		return nil, err
	}
	return names, nil
}

func (p *Parser) parseFuncDecl(async bool) (ast.Stmt, error) {
	start := p.advance().Pos // 'fn'
	return p.parseFuncDeclBody(start, async)
}

func (p *Parser) parseFuncDeclBody(start token.Pos, async bool) (ast.Stmt, error) {
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	tparams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	var ret *ast.TypeAnnotation
	if p.at(token.ARROW) {
		p.advance()
		ret, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	f := &ast.FuncDecl{Name: name.Lexeme, TypeParams: tparams, Params: params, Ret: ret, Body: body, Async: async}
	f.P = start
	return f, nil
}

func (p *Parser) parseStructDecl() (ast.Stmt, error) {
	start := p.advance().Pos // 'struct'
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	tparams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	var fields []ast.FieldDecl
	p.skipSemis()
	for !p.at(token.RBRACE) {
		fname, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		ftyp, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ast.FieldDecl{Name: fname.Lexeme, Type: ftyp})
		if p.at(token.COMMA) {
			p.advance()
		}
		p.skipSemis()
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	s := &ast.StructDecl{Name: name.Lexeme, TypeParams: tparams, Fields: fields}
	s.P = start
	return s, nil
}

func (p *Parser) parseEnumDecl() (ast.Stmt, error) {
	start := p.advance().Pos // 'enum'
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	tparams, err := p.parseTypeParams()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	var variants []ast.EnumVariant
	p.skipSemis()
	for !p.at(token.RBRACE) {
		vname, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		v := ast.EnumVariant{Name: vname.Lexeme}
		if p.at(token.LPAREN) {
			p.advance()
			for !p.at(token.RPAREN) {
				t, err := p.parseType()
				if err != nil {
					return nil, err
				}
				v.Payload = append(v.Payload, t)
				if p.at(token.COMMA) {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
		}
		variants = append(variants, v)
		if p.at(token.COMMA) {
			p.advance()
		}
		p.skipSemis()
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	e := &ast.EnumDecl{Name: name.Lexeme, TypeParams: tparams, Variants: variants}
	e.P = start
	return e, nil
}

func (p *Parser) parseModuleDecl() (ast.Stmt, error) {
	start := p.advance().Pos // 'module'
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	p.skipSemis()
	for !p.at(token.RBRACE) {
		st, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
		p.skipSemis()
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	m := &ast.ModuleDecl{Name: name.Lexeme, Body: stmts}
	m.P = start
	return m, nil
}

func (p *Parser) parseImport() (ast.Stmt, error) {
	start := p.advance().Pos // 'use'
	first, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	path := first.Lexeme
	for p.at(token.DOT) {
		p.advance()
		next, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		path += "." + next.Lexeme
	}
	alias := ""
	if p.at(token.AS) {
		p.advance()
		a, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		alias = a.Lexeme
	}
	im := &ast.Import{Path: path, Alias: alias}
	im.P = start
	return im, nil
}

func (p *Parser) parseIfStmt() (ast.Stmt, error) {
	start := p.advance().Pos // 'if'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	n := &ast.If{Cond: cond, Then: then}
	n.P = start
	if p.at(token.ELSE) {
		p.advance()
		if p.at(token.IF) {
			elseIf, err := p.parseIfStmt()
			if err != nil {
				return nil, err
			}
			n.Else = elseIf
		} else {
			elseBlock, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			n.Else = elseBlock
		}
	}
	return n, nil
}

func (p *Parser) parseForStmt() (ast.Stmt, error) {
	start := p.advance().Pos // 'for'
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	n := &ast.For{Var: name.Lexeme, Iter: iter, Body: body}
	n.P = start
	return n, nil
}

func (p *Parser) parseWhileStmt() (ast.Stmt, error) {
	start := p.advance().Pos // 'while'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	n := &ast.While{Cond: cond, Body: body}
	n.P = start
	return n, nil
}

func (p *Parser) parseReturn() (ast.Stmt, error) {
	start := p.advance().Pos // 'return'
	n := &ast.Return{}
	n.P = start
	if p.at(token.SEMI) || p.at(token.RBRACE) || p.at(token.EOF) {
		return n, nil
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	n.Value = v
	return n, nil
}

func (p *Parser) parseThrow() (ast.Stmt, error) {
	start := p.advance().Pos // 'throw'
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	n := &ast.Throw{Value: v}
	n.P = start
	return n, nil
}

func (p *Parser) parseTry() (ast.Stmt, error) {
	start := p.advance().Pos // 'try'
	tryBlock, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	n := &ast.TryStmt{Try: tryBlock}
	n.P = start
	if p.at(token.CATCH) {
		p.advance()
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		name, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		n.Catch = &ast.CatchClause{Name: name.Lexeme, Body: body}
	}
	if p.at(token.FINALLY) {
		p.advance()
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		n.Finally = body
	}
	return n, nil
}

// parseSimpleStmt handles expression statements and assignment, including the
// plain `name = expr` and field/index-target forms (§4.6).
func (p *Parser) parseSimpleStmt() (ast.Stmt, error) {
	start := p.cur().Pos
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.at(token.ASSIGN) {
		p.advance()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		a := &ast.Assign{Target: x, Value: v}
		a.P = start
		return a, nil
	}
	es := &ast.ExprStmt{X: x}
	es.P = start
	return es, nil
}

// -------------------------------------------------------------- Expressions

// Precedence climbing order, lowest to highest (§4.3):
// assignment (handled at statement level) -> pipeline -> or -> and ->
// equality -> comparison -> range -> additive -> multiplicative -> unary ->
// power -> call/member/index -> primary.

func (p *Parser) parseExpr() (ast.Expr, error) {
	return p.parsePipeline()
}

func (p *Parser) parsePipeline() (ast.Expr, error) {
	start := p.cur().Pos
	done, err := p.enter(start)
	if err != nil {
		return nil, err
	}
	defer done()

	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for {
		i := 0
		for p.peekAt(i).Kind == token.SEMI {
			i++
		}
		if p.peekAt(i).Kind != token.PIPE {
			break
		}
		p.skipSemis() // pipeline allows a newline before the operator
		opPos := p.advance().Pos
		p.skipSemis() // and after the operator
		right, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		n := &ast.Pipeline{Left: left, Right: right}
		n.P = opPos
		left = n
	}
	return left, nil
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(token.OR) {
		opPos := p.advance().Pos
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		n := &ast.BinaryExpr{Op: token.OR, Left: left, Right: right}
		n.P = opPos
		left = n
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(token.AND) {
		opPos := p.advance().Pos
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		n := &ast.BinaryExpr{Op: token.AND, Left: left, Right: right}
		n.P = opPos
		left = n
	}
	return left, nil
}

func (p *Parser) parseEquality() (ast.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.at(token.EQ) || p.at(token.NEQ) {
		op := p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		n := &ast.BinaryExpr{Op: op.Kind, Left: left, Right: right}
		n.P = op.Pos
		left = n
	}
	return left, nil
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseRange()
	if err != nil {
		return nil, err
	}
	for p.at(token.LT) || p.at(token.LTE) || p.at(token.GT) || p.at(token.GTE) {
		op := p.advance()
		right, err := p.parseRange()
		if err != nil {
			return nil, err
		}
		n := &ast.BinaryExpr{Op: op.Kind, Left: left, Right: right}
		n.P = op.Pos
		left = n
	}
	return left, nil
}

func (p *Parser) parseRange() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.at(token.RANGE) {
		opPos := p.advance().Pos
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		n := &ast.RangeExpr{Low: left, High: right}
		n.P = opPos
		return n, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(token.PLUS) || p.at(token.MINUS) {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		n := &ast.BinaryExpr{Op: op.Kind, Left: left, Right: right}
		n.P = op.Pos
		left = n
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(token.STAR) || p.at(token.SLASH) || p.at(token.PERCENT) {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n := &ast.BinaryExpr{Op: op.Kind, Left: left, Right: right}
		n.P = op.Pos
		left = n
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	start := p.cur().Pos
	done, err := p.enter(start)
	if err != nil {
		return nil, err
	}
	defer done()

	if p.at(token.NOT) || p.at(token.MINUS) {
		op := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n := &ast.UnaryExpr{Op: op.Kind, X: x}
		n.P = op.Pos
		return n, nil
	}
	if p.at(token.AWAIT) {
		op := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n := &ast.AwaitExpr{X: x}
		n.P = op.Pos
		return n, nil
	}
	return p.parsePower()
}

func (p *Parser) parsePower() (ast.Expr, error) {
	left, err := p.parseCallMemberIndex()
	if err != nil {
		return nil, err
	}
	if p.at(token.POW) {
		opPos := p.advance().Pos
		right, err := p.parseUnary() // right-associative
		if err != nil {
			return nil, err
		}
		n := &ast.BinaryExpr{Op: token.POW, Left: left, Right: right}
		n.P = opPos
		return n, nil
	}
	return left, nil
}

func (p *Parser) parseCallMemberIndex() (ast.Expr, error) {
	start := p.cur().Pos
	done, err := p.enter(start)
	if err != nil {
		return nil, err
	}
	defer done()

	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.at(token.DOT):
			dotPos := p.advance().Pos
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			m := &ast.Member{X: x, Name: name.Lexeme}
			m.P = dotPos
			x = m
		case p.at(token.LPAREN):
			parenPos := p.advance().Pos
			var args []ast.Expr
			for !p.at(token.RPAREN) {
				a, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.at(token.COMMA) {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
			c := &ast.CallExpr{Callee: x, Args: args}
			c.P = parenPos
			x = c
		case p.at(token.LBRACKET):
			brPos := p.advance().Pos
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}
			ix := &ast.Index{X: x, Index: idx}
			ix.P = brPos
			x = ix
		default:
			return x, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	start := p.cur().Pos
	done, err := p.enter(start)
	if err != nil {
		return nil, err
	}
	defer done()

	tok := p.cur()
	switch tok.Kind {
	case token.NULL:
		p.advance()
		n := &ast.NullLit{}
		n.P = start
		return n, nil
	case token.TRUE:
		p.advance()
		n := &ast.BoolLit{Value: true}
		n.P = start
		return n, nil
	case token.FALSE:
		p.advance()
		n := &ast.BoolLit{Value: false}
		n.P = start
		return n, nil
	case token.INT:
		p.advance()
		v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, errs.New(errs.Syntax, tok.Pos, "invalid integer literal %q", tok.Lexeme)
		}
		n := &ast.IntLit{Value: v}
		n.P = start
		return n, nil
	case token.FLOAT:
		p.advance()
		v, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, errs.New(errs.Syntax, tok.Pos, "invalid float literal %q", tok.Lexeme)
		}
		n := &ast.FloatLit{Value: v}
		n.P = start
		return n, nil
	case token.STRING:
		p.advance()
		n := &ast.StringLit{Value: tok.Lexeme}
		n.P = start
		return n, nil
	case token.IDENT:
		p.advance()
		n := &ast.Identifier{Name: tok.Lexeme}
		n.P = start
		return n, nil
	case token.LPAREN:
		p.advance()
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return x, nil
	case token.LBRACKET:
		return p.parseListLit()
	case token.LBRACE:
		return p.parseDictLit()
	case token.NEW:
		return p.parseStructLit()
	case token.FN:
		return p.parseLambda(false)
	case token.ASYNC:
		p.advance()
		if _, err := p.expect(token.FN); err != nil {
			return nil, err
		}
		return p.parseLambda(true)
	case token.IF:
		return p.parseIfExpr()
	case token.MATCH:
		return p.parseMatchExpr()
	case token.POLYGLOT_OPEN:
		return p.parsePolyglotExpr()
	}
	return nil, p.unexpected(token.IDENT)
}

func (p *Parser) parseListLit() (ast.Expr, error) {
	start := p.advance().Pos // '['
	n := &ast.ListLit{}
	n.P = start
	for !p.at(token.RBRACKET) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.Elems = append(n.Elems, e)
		if len(n.Elems) > p.caps.CollectionElements {
			return nil, errs.New(errs.ResourceLimit, start, "list literal exceeds element cap of %d", p.caps.CollectionElements)
		}
		if p.at(token.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(token.RBRACKET); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseDictLit() (ast.Expr, error) {
	start := p.advance().Pos // '{'
	n := &ast.DictLit{}
	n.P = start
	p.skipSemis()
	for !p.at(token.RBRACE) {
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.Entries = append(n.Entries, ast.DictEntry{Key: key, Value: val})
		if len(n.Entries) > p.caps.CollectionElements {
			return nil, errs.New(errs.ResourceLimit, start, "dict literal exceeds element cap of %d", p.caps.CollectionElements)
		}
		if p.at(token.COMMA) {
			p.advance()
			p.skipSemis()
			continue
		}
		break
	}
	p.skipSemis()
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return n, nil
}

// parseStructLit handles `new [module.]Name[<T,...>] { field: value, ... }`
// (§4.3). The module prefix on the type is recorded as a first-class field.
func (p *Parser) parseStructLit() (ast.Expr, error) {
	start := p.advance().Pos // 'new'
	first, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	module := ""
	name := first.Lexeme
	if p.at(token.DOT) {
		p.advance()
		second, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		module = name
		name = second.Lexeme
	}
	n := &ast.StructLit{Module: module, Name: name}
	n.P = start
	if p.at(token.LT) {
		p.advance()
		for {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			n.TypeArgs = append(n.TypeArgs, t)
			if p.at(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(token.GT); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	p.skipSemis()
	for !p.at(token.RBRACE) {
		fname, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.Fields = append(n.Fields, ast.FieldInit{Name: fname.Lexeme, Value: val})
		if p.at(token.COMMA) {
			p.advance()
			p.skipSemis()
			continue
		}
		break
	}
	p.skipSemis()
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseLambda(async bool) (ast.Expr, error) {
	start := p.advance().Pos // 'fn'
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	n := &ast.Lambda{Params: params, Body: body, Async: async}
	n.P = start
	return n, nil
}

func (p *Parser) parseIfExpr() (ast.Expr, error) {
	start := p.advance().Pos // 'if'
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSemis()
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.ELSE); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	elseExpr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSemis()
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	n := &ast.IfExpr{Cond: cond, Then: then, Else: elseExpr}
	n.P = start
	return n, nil
}

func (p *Parser) parseMatchExpr() (ast.Expr, error) {
	start := p.advance().Pos // 'match'
	subject, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBRACE); err != nil {
		return nil, err
	}
	n := &ast.MatchExpr{Subject: subject}
	n.P = start
	p.skipSemis()
	for !p.at(token.RBRACE) {
		arm, err := p.parseMatchArm()
		if err != nil {
			return nil, err
		}
		n.Arms = append(n.Arms, arm)
		if p.at(token.COMMA) {
			p.advance()
		}
		p.skipSemis()
	}
	if _, err := p.expect(token.RBRACE); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseMatchArm() (ast.MatchArm, error) {
	pat, err := p.parsePattern()
	if err != nil {
		return ast.MatchArm{}, err
	}
	if _, err := p.expect(token.ARROW); err != nil {
		return ast.MatchArm{}, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return ast.MatchArm{}, err
	}
	return ast.MatchArm{Pattern: pat, Body: body}, nil
}

// parsePattern recognizes `_`, `Ident(binding)` (variant constructor), or any
// literal/primary expression used as a literal pattern (§4.3).
func (p *Parser) parsePattern() (ast.Pattern, error) {
	if p.at(token.IDENT) && p.cur().Lexeme == "_" {
		p.advance()
		return ast.Pattern{Wildcard: true}, nil
	}
	if p.at(token.IDENT) && p.peekAt(1).Kind == token.LPAREN {
		name := p.advance().Lexeme
		p.advance() // '('
		binding := ""
		if !p.at(token.RPAREN) {
			id, err := p.expect(token.IDENT)
			if err != nil {
				return ast.Pattern{}, err
			}
			binding = id.Lexeme
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return ast.Pattern{}, err
		}
		return ast.Pattern{Variant: name, Binding: binding}, nil
	}
	lit, err := p.parsePrimary()
	if err != nil {
		return ast.Pattern{}, err
	}
	return ast.Pattern{Literal: lit}, nil
}

// parsePolyglotExpr consumes the POLYGLOT_OPEN token produced by the lexer
// and retrieves the verbatim body it captured (§4.2, §4.3).
func (p *Parser) parsePolyglotExpr() (ast.Expr, error) {
	tok := p.cur()
	// Bodies are captured by the lexer as it produces POLYGLOT_OPEN tokens
	// and queued in order; popping here stays correct under any amount of
	// parser lookahead.
	blk := p.lex.TakePolyglot()
	p.advance()
	if blk == nil {
		return nil, errs.New(errs.Syntax, tok.Pos, "internal error: missing polyglot body")
	}
	n := &ast.PolyglotExpr{Language: blk.Language, Bindings: blk.Bindings, JSON: blk.JSON, Body: blk.Body}
	n.P = blk.Pos
	return n, nil
}
