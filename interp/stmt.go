package interp

import (
	"errors"
	"fmt"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/value"
)

type signalKind int

const (
	sigNone signalKind = iota
	sigBreak
	sigContinue
	sigReturn
)

// signal is the control-flow token threaded back up through execStmt/
// execBlock (§4.6): break/continue are consumed at the nearest loop
// boundary, return at the nearest function-call boundary.
type signal struct {
	kind  signalKind
	value *value.Value
}

var none = signal{kind: sigNone}

func (in *Interpreter) execBlock(b *ast.Block, e *env.Environment) (signal, error) {
	return in.execStmts(b.Stmts, env.Child(e))
}

// execStmts runs a statement sequence, handing runs of two or more
// consecutive `let x = <<lang ...>>` declarations to the parallel dispatcher
// when control reaches them (§4.10) — dispatch happens in statement order, so
// a group's binding snapshots observe everything executed before it.
func (in *Interpreter) execStmts(stmts []ast.Stmt, e *env.Environment) (signal, error) {
	groupAt := map[int][]int{}
	for _, group := range polyglotVarDeclGroups(stmts) {
		groupAt[group[0]] = group
	}

	skip := map[int]bool{}
	for i, stmt := range stmts {
		if skip[i] {
			continue
		}
		if group, ok := groupAt[i]; ok {
			if err := in.dispatchPolyglotGroup(stmts, group, e); err != nil {
				return none, err
			}
			for _, idx := range group {
				skip[idx] = true
			}
			continue
		}
		sig, err := in.execStmt(stmt, e)
		if err != nil {
			return none, err
		}
		if sig.kind != sigNone {
			return sig, nil
		}
	}
	return none, nil
}

func (in *Interpreter) execStmt(stmt ast.Stmt, e *env.Environment) (signal, error) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		var v *value.Value
		if s.Value != nil {
			var err error
			v, err = in.evalExpr(s.Value, e)
			if err != nil {
				return none, err
			}
		} else {
			v = value.NewNull()
		}
		if s.Type != nil {
			t := in.resolveTypeAnnotation(s.Type, e)
			if !value.MatchesType(v, t) {
				return none, errs.New(errs.Type, s.Pos(), "cannot assign %s to %s", v.Tag, value.TypeString(t))
			}
		}
		v = copyOnBind(v)
		e.Define(s.Name, v)
		in.GC.Register(v, in)
		return none, nil

	case *ast.FuncDecl:
		fn := &value.Value{Tag: value.Func, Fn: &value.FuncValue{
			Name: s.Name, Params: toFuncParams(s.Params), Body: s.Body, Env: e,
			File: s.Pos().File, Line: s.Pos().Line, Async: s.Async,
		}}
		e.Define(s.Name, fn)
		in.GC.Register(fn, in)
		return none, nil

	case *ast.StructDecl:
		fields := make([]value.FieldDef, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = value.FieldDef{Name: f.Name, Type: in.resolveTypeAnnotation(f.Type, e)}
		}
		in.Registry.DefineStruct(moduleNameOf(e), s.Name, s.TypeParams, fields)
		return none, nil

	case *ast.EnumDecl:
		variants := make([]value.VariantDef, len(s.Variants))
		for i, v := range s.Variants {
			payload := make([]*value.Type, len(v.Payload))
			for j, p := range v.Payload {
				payload[j] = in.resolveTypeAnnotation(p, e)
			}
			variants[i] = value.VariantDef{Name: v.Name, Index: i, Payload: payload}
		}
		in.Registry.DefineEnum(moduleNameOf(e), s.Name, s.TypeParams, variants)
		return none, nil

	case *ast.ModuleDecl:
		modEnv := env.Child(e)
		modEnv.IsModuleRoot = true
		modEnv.ModuleName = s.Name
		for _, inner := range s.Body {
			if _, err := in.execStmt(inner, modEnv); err != nil {
				return none, err
			}
		}
		ns := namespaceValue(modEnv)
		e.Define(s.Name, ns)
		return none, nil

	case *ast.Import:
		mod, err := in.LoadModule(s.Path, s.Pos())
		if err != nil {
			return none, err
		}
		name := s.Alias
		if name == "" {
			parts := splitLast(s.Path)
			name = parts
		}
		e.Define(name, namespaceValue(mod.Env))
		return none, nil

	case *ast.Block:
		return in.execBlock(s, e)

	case *ast.If:
		cond, err := in.evalExpr(s.Cond, e)
		if err != nil {
			return none, err
		}
		if cond.Truthy() {
			return in.execBlock(s.Then, e)
		}
		switch els := s.Else.(type) {
		case nil:
			return none, nil
		case *ast.Block:
			return in.execBlock(els, e)
		case *ast.If:
			return in.execStmt(els, e)
		}
		return none, nil

	case *ast.For:
		return in.execFor(s, e)

	case *ast.While:
		for {
			cond, err := in.evalExpr(s.Cond, e)
			if err != nil {
				return none, err
			}
			if !cond.Truthy() {
				return none, nil
			}
			sig, err := in.execBlock(s.Body, e)
			if err != nil {
				return none, err
			}
			switch sig.kind {
			case sigBreak:
				return none, nil
			case sigReturn:
				return sig, nil
			}
		}

	case *ast.Return:
		if s.Value == nil {
			return signal{kind: sigReturn, value: value.NewNull()}, nil
		}
		v, err := in.evalExpr(s.Value, e)
		if err != nil {
			return none, err
		}
		return signal{kind: sigReturn, value: v}, nil

	case *ast.Throw:
		v, err := in.evalExpr(s.Value, e)
		if err != nil {
			return none, err
		}
		return none, valueToError(v, s.Pos())

	case *ast.Break:
		return signal{kind: sigBreak}, nil

	case *ast.Continue:
		return signal{kind: sigContinue}, nil

	case *ast.TryStmt:
		return in.execTry(s, e)

	case *ast.ExprStmt:
		_, err := in.evalExpr(s.X, e)
		return none, err

	case *ast.Assign:
		return none, in.execAssign(s, e)
	}
	return none, fmt.Errorf("interp: unhandled statement %T", stmt)
}

func (in *Interpreter) execFor(s *ast.For, e *env.Environment) (signal, error) {
	iter, err := in.evalExpr(s.Iter, e)
	if err != nil {
		return none, err
	}
	switch iter.Tag {
	case value.List:
		for _, item := range iter.Elems {
			child := env.Child(e)
			child.Define(s.Var, copyOnBind(item))
			sig, err := in.execBlock(s.Body, child)
			if err != nil {
				return none, err
			}
			switch sig.kind {
			case sigBreak:
				return none, nil
			case sigReturn:
				return sig, nil
			}
		}
		return none, nil
	case value.Dict:
		for _, k := range iter.DictKeys {
			child := env.Child(e)
			entry := value.NewDict()
			entry.DictSet("key", value.NewString(k))
			entry.DictSet("value", iter.Dict[k])
			child.Define(s.Var, entry)
			sig, err := in.execBlock(s.Body, child)
			if err != nil {
				return none, err
			}
			switch sig.kind {
			case sigBreak:
				return none, nil
			case sigReturn:
				return sig, nil
			}
		}
		return none, nil
	}
	return none, errs.New(errs.Type, s.Pos(), "for loop requires a list, dict, or range, got %s", iter.Tag)
}

func (in *Interpreter) execTry(s *ast.TryStmt, e *env.Environment) (sig signal, rerr error) {
	sig, err := in.execBlock(s.Try, e)
	if err != nil {
		var nerr *errs.Error
		if errors.As(err, &nerr) && s.Catch != nil && nerr.Kind.Recoverable() {
			var caught *value.Value
			var tv *thrownValue
			if errors.As(err, &tv) {
				caught = tv.v
			} else {
				caught = errorToValue(nerr)
			}
			child := env.Child(e)
			child.Define(s.Catch.Name, caught)
			csig, cerr := in.execBlock(s.Catch.Body, child)
			sig, err = csig, cerr
		}
	}
	if s.Finally != nil {
		fsig, ferr := in.execBlock(s.Finally, e)
		if ferr != nil {
			// A throw inside finally supersedes the error being unwound; the
			// original is recorded as its cause (§9 open question), however
			// ferr is wrapped (a user throw of a non-Error value surfaces as
			// *thrownValue, not *errs.Error directly).
			var nerr *errs.Error
			if errors.As(ferr, &nerr) && err != nil {
				nerr.Cause = err
			}
			return none, ferr
		}
		if fsig.kind != sigNone {
			return fsig, nil
		}
	}
	return sig, err
}

func toFuncParams(params []ast.Param) []value.FuncParam {
	out := make([]value.FuncParam, len(params))
	for i, p := range params {
		out[i] = value.FuncParam{Name: p.Name, Default: p.Default}
	}
	return out
}

func moduleNameOf(e *env.Environment) string {
	for cur := e; cur != nil; cur = cur.Parent() {
		if cur.IsModuleRoot {
			return cur.ModuleName
		}
	}
	return ""
}

func splitLast(dotted string) string {
	last := dotted
	for i := len(dotted) - 1; i >= 0; i-- {
		if dotted[i] == '.' {
			last = dotted[i+1:]
			break
		}
	}
	return last
}

// namespaceValue exposes a loaded module's root environment as a dict-like
// value so `modname.binding` resolves through Member access (§4.5, §4.6).
func namespaceValue(e *env.Environment) *value.Value {
	d := value.NewDict()
	for _, name := range e.Names() {
		v, _ := e.Get(name)
		d.DictSet(name, v)
	}
	return d
}
