package interp

import (
	"math"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/security"
	"github.com/naab-lang/naab/token"
	"github.com/naab-lang/naab/value"
)

func (in *Interpreter) evalExpr(expr ast.Expr, e *env.Environment) (*value.Value, error) {
	switch x := expr.(type) {
	case *ast.NullLit:
		return value.NewNull(), nil
	case *ast.BoolLit:
		return value.NewBool(x.Value), nil
	case *ast.IntLit:
		return value.NewInt(x.Value), nil
	case *ast.FloatLit:
		return value.NewFloat(x.Value), nil
	case *ast.StringLit:
		return value.NewString(x.Value), nil

	case *ast.Identifier:
		if v, ok := e.Get(x.Name); ok {
			return v, nil
		}
		return nil, undefinedNameError(e, x.Name, x.Pos())

	case *ast.BinaryExpr:
		return in.evalBinary(x, e)

	case *ast.UnaryExpr:
		return in.evalUnary(x, e)

	case *ast.CallExpr:
		return in.evalCall(x, e)

	case *ast.Member:
		return in.evalMember(x, e)

	case *ast.Index:
		return in.evalIndex(x, e)

	case *ast.StructLit:
		return in.evalStructLit(x, e)

	case *ast.ListLit:
		if len(x.Elems) > in.opt.Config.Caps.CollectionElements {
			return nil, errs.New(errs.ResourceLimit, x.Pos(), "list literal exceeds %d elements", in.opt.Config.Caps.CollectionElements)
		}
		elems := make([]*value.Value, len(x.Elems))
		for i, el := range x.Elems {
			v, err := in.evalExpr(el, e)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		list := value.NewList(elems)
		in.GC.Register(list, in)
		return list, nil

	case *ast.DictLit:
		if len(x.Entries) > in.opt.Config.Caps.CollectionElements {
			return nil, errs.New(errs.ResourceLimit, x.Pos(), "dict literal exceeds %d elements", in.opt.Config.Caps.CollectionElements)
		}
		d := value.NewDict()
		for _, entry := range x.Entries {
			k, err := in.evalExpr(entry.Key, e)
			if err != nil {
				return nil, err
			}
			if k.Tag != value.String {
				return nil, errs.New(errs.Type, entry.Key.Pos(), "dict keys must be strings, got %s", k.Tag)
			}
			v, err := in.evalExpr(entry.Value, e)
			if err != nil {
				return nil, err
			}
			d.DictSet(k.S, v)
		}
		in.GC.Register(d, in)
		return d, nil

	case *ast.Lambda:
		fn := &value.Value{Tag: value.Func, Fn: &value.FuncValue{
			Params: toFuncParams(x.Params), Body: x.Body, Env: e,
			File: x.Pos().File, Line: x.Pos().Line, Async: x.Async,
		}}
		in.GC.Register(fn, in)
		return fn, nil

	case *ast.Pipeline:
		left, err := in.evalExpr(x.Left, e)
		if err != nil {
			return nil, err
		}
		// The right-hand side is evaluated lazily: only once control actually
		// reaches the pipe, never speculatively (§4.3, §4.6, §8 scenario vi).
		callee, err := in.evalExpr(x.Right, e)
		if err != nil {
			return nil, err
		}
		if callee.Tag != value.Func {
			return nil, errs.New(errs.Type, x.Right.Pos(), "right-hand side of |> must be callable, got %s", callee.Tag)
		}
		return in.callFunc(callee.Fn, []*value.Value{left}, x.Pos())

	case *ast.RangeExpr:
		lo, err := in.evalExpr(x.Low, e)
		if err != nil {
			return nil, err
		}
		hi, err := in.evalExpr(x.High, e)
		if err != nil {
			return nil, err
		}
		if lo.Tag != value.Int || hi.Tag != value.Int {
			return nil, errs.New(errs.Type, x.Pos(), "range bounds must be int")
		}
		if hi.I-lo.I > int64(in.opt.Config.Caps.CollectionElements) {
			return nil, errs.New(errs.ResourceLimit, x.Pos(), "range exceeds %d elements", in.opt.Config.Caps.CollectionElements)
		}
		var elems []*value.Value
		for i := lo.I; i < hi.I; i++ {
			elems = append(elems, value.NewInt(i))
		}
		list := value.NewList(elems)
		in.GC.Register(list, in)
		return list, nil

	case *ast.IfExpr:
		cond, err := in.evalExpr(x.Cond, e)
		if err != nil {
			return nil, err
		}
		if cond.Truthy() {
			return in.evalExpr(x.Then, e)
		}
		return in.evalExpr(x.Else, e)

	case *ast.MatchExpr:
		return in.evalMatch(x, e)

	case *ast.PolyglotExpr:
		return in.evalPolyglot(x, e)

	case *ast.AwaitExpr:
		v, err := in.evalExpr(x.X, e)
		if err != nil {
			return nil, err
		}
		// Blocks use interp code has no goroutine scheduler of its own: async
		// functions execute synchronously and await simply unwraps the already-
		// computed value (§9 open question: async runs synchronously on the
		// calling goroutine, matching the dependency dispatcher's own model).
		return v, nil
	}
	return nil, errs.New(errs.Syntax, expr.Pos(), "unhandled expression node")
}

func (in *Interpreter) evalUnary(x *ast.UnaryExpr, e *env.Environment) (*value.Value, error) {
	v, err := in.evalExpr(x.X, e)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case token.MINUS:
		switch v.Tag {
		case value.Int:
			return value.NewInt(-v.I), nil
		case value.Float:
			return value.NewFloat(-v.F), nil
		}
		return nil, errs.New(errs.Type, x.Pos(), "cannot negate %s", v.Tag)
	case token.NOT:
		return value.NewBool(!v.Truthy()), nil
	}
	return nil, errs.New(errs.Syntax, x.Pos(), "unknown unary operator %s", x.Op)
}

func (in *Interpreter) evalBinary(x *ast.BinaryExpr, e *env.Environment) (*value.Value, error) {
	// && and || short-circuit, so the right operand is evaluated conditionally.
	if x.Op == token.AND {
		l, err := in.evalExpr(x.Left, e)
		if err != nil {
			return nil, err
		}
		if !l.Truthy() {
			return value.NewBool(false), nil
		}
		r, err := in.evalExpr(x.Right, e)
		if err != nil {
			return nil, err
		}
		return value.NewBool(r.Truthy()), nil
	}
	if x.Op == token.OR {
		l, err := in.evalExpr(x.Left, e)
		if err != nil {
			return nil, err
		}
		if l.Truthy() {
			return value.NewBool(true), nil
		}
		r, err := in.evalExpr(x.Right, e)
		if err != nil {
			return nil, err
		}
		return value.NewBool(r.Truthy()), nil
	}

	l, err := in.evalExpr(x.Left, e)
	if err != nil {
		return nil, err
	}
	r, err := in.evalExpr(x.Right, e)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case token.EQ:
		return value.NewBool(value.Equal(l, r)), nil
	case token.NEQ:
		return value.NewBool(!value.Equal(l, r)), nil
	case token.LT, token.LTE, token.GT, token.GTE:
		less, err := value.Less(l, r)
		if err != nil {
			return nil, errs.New(errs.Type, x.Pos(), "%v", err)
		}
		eq := value.Equal(l, r)
		switch x.Op {
		case token.LT:
			return value.NewBool(less), nil
		case token.LTE:
			return value.NewBool(less || eq), nil
		case token.GT:
			return value.NewBool(!less && !eq), nil
		case token.GTE:
			return value.NewBool(!less), nil
		}
	case token.PLUS:
		if l.Tag == value.String && r.Tag == value.String {
			return value.NewString(l.S + r.S), nil
		}
		return in.arith(x.Pos(), l, r, func(a, b int64) (int64, bool) { return a + b, !security.AddOverflows(a, b) }, func(a, b float64) float64 { return a + b })
	case token.MINUS:
		return in.arith(x.Pos(), l, r, func(a, b int64) (int64, bool) { return a - b, !security.SubOverflows(a, b) }, func(a, b float64) float64 { return a - b })
	case token.STAR:
		return in.arith(x.Pos(), l, r, func(a, b int64) (int64, bool) { return a * b, !security.MulOverflows(a, b) }, func(a, b float64) float64 { return a * b })
	case token.SLASH:
		if isZero(r) {
			return nil, errs.New(errs.Arithmetic, x.Pos(), "division by zero")
		}
		return in.arith(x.Pos(), l, r, func(a, b int64) (int64, bool) { return a / b, true }, func(a, b float64) float64 { return a / b })
	case token.PERCENT:
		if l.Tag != value.Int || r.Tag != value.Int {
			return nil, errs.New(errs.Type, x.Pos(), "%% requires int operands")
		}
		if r.I == 0 {
			return nil, errs.New(errs.Arithmetic, x.Pos(), "division by zero")
		}
		return value.NewInt(l.I % r.I), nil
	case token.POW:
		return in.power(x.Pos(), l, r)
	}
	return nil, errs.New(errs.Syntax, x.Pos(), "unknown binary operator %s", x.Op)
}

func isZero(v *value.Value) bool {
	return (v.Tag == value.Int && v.I == 0) || (v.Tag == value.Float && v.F == 0)
}

func (in *Interpreter) arith(pos token.Pos, l, r *value.Value, iop func(a, b int64) (int64, bool), fop func(a, b float64) float64) (*value.Value, error) {
	if l.Tag == value.Int && r.Tag == value.Int {
		res, ok := iop(l.I, r.I)
		if !ok {
			return nil, errs.New(errs.Arithmetic, pos, "integer overflow")
		}
		return value.NewInt(res), nil
	}
	lf, lok := asNumber(l)
	rf, rok := asNumber(r)
	if !lok || !rok {
		return nil, errs.New(errs.Type, pos, "arithmetic requires numeric operands, got %s and %s", l.Tag, r.Tag)
	}
	return value.NewFloat(fop(lf, rf)), nil
}

func (in *Interpreter) power(pos token.Pos, l, r *value.Value) (*value.Value, error) {
	lf, lok := asNumber(l)
	rf, rok := asNumber(r)
	if !lok || !rok {
		return nil, errs.New(errs.Type, pos, "** requires numeric operands")
	}
	if l.Tag == value.Int && r.Tag == value.Int && r.I >= 0 {
		// Integer base and non-negative integer exponent stay in the int
		// domain, with the same overflow discipline as * (§4.11, §8).
		res := int64(1)
		base := l.I
		for i := int64(0); i < r.I; i++ {
			if security.MulOverflows(res, base) {
				return nil, errs.New(errs.Arithmetic, pos, "integer overflow")
			}
			res *= base
		}
		return value.NewInt(res), nil
	}
	return value.NewFloat(math.Pow(lf, rf)), nil
}

func asNumber(v *value.Value) (float64, bool) {
	switch v.Tag {
	case value.Int:
		return float64(v.I), true
	case value.Float:
		return v.F, true
	}
	return 0, false
}


func (in *Interpreter) evalMatch(x *ast.MatchExpr, e *env.Environment) (*value.Value, error) {
	subj, err := in.evalExpr(x.Subject, e)
	if err != nil {
		return nil, err
	}
	for _, arm := range x.Arms {
		child := env.Child(e)
		if matchPattern(arm.Pattern, subj, child) {
			return in.evalExpr(arm.Body, child)
		}
	}
	return nil, errs.New(errs.Type, x.Pos(), "no match arm satisfied the subject value")
}

func matchPattern(p ast.Pattern, v *value.Value, bindInto *env.Environment) bool {
	if p.Wildcard {
		return true
	}
	if p.Variant != "" {
		if v.Tag != value.Enum || v.EnumDef.Variants[v.VariantIndex].Name != p.Variant {
			return false
		}
		if p.Binding != "" && len(v.Payload) > 0 {
			bindInto.Define(p.Binding, v.Payload[0])
		}
		return true
	}
	if p.Literal != nil {
		lit, ok := literalValue(p.Literal)
		return ok && value.Equal(lit, v)
	}
	return false
}

func literalValue(expr ast.Expr) (*value.Value, bool) {
	switch x := expr.(type) {
	case *ast.NullLit:
		return value.NewNull(), true
	case *ast.BoolLit:
		return value.NewBool(x.Value), true
	case *ast.IntLit:
		return value.NewInt(x.Value), true
	case *ast.FloatLit:
		return value.NewFloat(x.Value), true
	case *ast.StringLit:
		return value.NewString(x.Value), true
	}
	return nil, false
}
