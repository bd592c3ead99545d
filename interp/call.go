package interp

import (
	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/token"
	"github.com/naab-lang/naab/value"
)

// copyOnBind implements §4.6's copy-on-assignment rule: a list or dict being
// stored into a new binding (variable, field, element, parameter) is deep
// copied; structs, functions, and handles keep reference semantics.
func copyOnBind(v *value.Value) *value.Value {
	if v == nil {
		return nil
	}
	switch v.Tag {
	case value.List, value.Dict:
		return value.Clone(v)
	default:
		return v
	}
}

func (in *Interpreter) evalCall(x *ast.CallExpr, e *env.Environment) (*value.Value, error) {
	if m, ok := x.Callee.(*ast.Member); ok {
		if ident, ok := m.X.(*ast.Identifier); ok {
			if _, bound := e.Get(ident.Name); !bound {
				if _, hasMod := in.Stdlib.Lookup(ident.Name); hasMod {
					args, err := in.evalArgs(x.Args, e)
					if err != nil {
						return nil, err
					}
					v, err := in.Stdlib.Call(ident.Name, m.Name, args)
					if err != nil {
						return nil, errs.New(errs.Name, x.Pos(), "%v", err)
					}
					return v, nil
				}
			}
		}
	}

	callee, err := in.evalExpr(x.Callee, e)
	if err != nil {
		return nil, err
	}
	if callee.Tag != value.Func {
		return nil, errs.New(errs.Type, x.Pos(), "cannot call a value of type %s", callee.Tag)
	}
	args, err := in.evalArgs(x.Args, e)
	if err != nil {
		return nil, err
	}
	return in.callFunc(callee.Fn, args, x.Pos())
}

func (in *Interpreter) evalArgs(exprs []ast.Expr, e *env.Environment) ([]*value.Value, error) {
	args := make([]*value.Value, len(exprs))
	for i, a := range exprs {
		v, err := in.evalExpr(a, e)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// callFunc binds args to fn's parameters in the callee's captured scope and
// evaluates its body (§4.6): default-value expressions for omitted trailing
// arguments are evaluated left to right in that same scope, at call time.
func (in *Interpreter) callFunc(fn *value.FuncValue, args []*value.Value, pos token.Pos) (*value.Value, error) {
	if fn.Native != nil {
		return fn.Native(args)
	}
	if err := in.pushFrame(fn.Name, pos); err != nil {
		return nil, err
	}
	defer in.popFrame()

	parentEnv, _ := fn.Env.(*env.Environment)
	callEnv := env.Child(parentEnv)
	for i, p := range fn.Params {
		var v *value.Value
		switch {
		case i < len(args):
			v = args[i]
		case p.Default != nil:
			defExpr, _ := p.Default.(ast.Expr)
			var err error
			v, err = in.evalExpr(defExpr, callEnv)
			if err != nil {
				return nil, err
			}
		default:
			return nil, errs.New(errs.Type, pos, "missing argument %q to %s", p.Name, fn.Name)
		}
		callEnv.Define(p.Name, copyOnBind(v))
	}

	body, _ := fn.Body.(*ast.Block)
	sig, err := in.execBlock(body, callEnv)
	if err != nil {
		return nil, err
	}
	if sig.kind == sigReturn {
		return sig.value, nil
	}
	return value.NewNull(), nil
}

func (in *Interpreter) evalMember(x *ast.Member, e *env.Environment) (*value.Value, error) {
	v, err := in.evalExpr(x.X, e)
	if err != nil {
		return nil, err
	}
	switch v.Tag {
	case value.Struct:
		for i, f := range v.StructDef.Fields {
			if f.Name == x.Name {
				return v.Fields[i], nil
			}
		}
		suggestion := errs.BestSuggestion(x.Name, fieldNames(v.StructDef), 2)
		msg := "no such field %q on struct " + v.StructDef.Name
		if suggestion != "" {
			return nil, errs.New(errs.Name, x.Pos(), msg+", "+errs.Suggestion(suggestion), x.Name)
		}
		return nil, errs.New(errs.Name, x.Pos(), msg, x.Name)
	case value.Dict:
		val, ok := v.Dict[x.Name]
		if !ok {
			return nil, errs.New(errs.Key, x.Pos(), "no such key %q", x.Name)
		}
		return val, nil
	}
	return nil, errs.New(errs.Type, x.Pos(), "cannot access member %q on %s", x.Name, v.Tag)
}

func fieldNames(d *value.StructDef) []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

func (in *Interpreter) evalIndex(x *ast.Index, e *env.Environment) (*value.Value, error) {
	v, err := in.evalExpr(x.X, e)
	if err != nil {
		return nil, err
	}
	idx, err := in.evalExpr(x.Index, e)
	if err != nil {
		return nil, err
	}
	switch v.Tag {
	case value.List:
		if idx.Tag != value.Int {
			return nil, errs.New(errs.Type, x.Pos(), "list index must be int")
		}
		i := idx.I
		if i < 0 {
			i += int64(len(v.Elems))
		}
		if i < 0 || i >= int64(len(v.Elems)) {
			return nil, errs.New(errs.Index, x.Pos(), "list index %d out of range (len %d)", idx.I, len(v.Elems))
		}
		return v.Elems[i], nil
	case value.Dict:
		if idx.Tag != value.String {
			return nil, errs.New(errs.Type, x.Pos(), "dict index must be string")
		}
		val, ok := v.Dict[idx.S]
		if !ok {
			return nil, errs.New(errs.Key, x.Pos(), "no such key %q", idx.S)
		}
		return val, nil
	case value.String:
		if idx.Tag != value.Int {
			return nil, errs.New(errs.Type, x.Pos(), "string index must be int")
		}
		runes := []rune(v.S)
		i := idx.I
		if i < 0 || i >= int64(len(runes)) {
			return nil, errs.New(errs.Index, x.Pos(), "string index %d out of range (len %d)", idx.I, len(runes))
		}
		return value.NewString(string(runes[i])), nil
	}
	return nil, errs.New(errs.Type, x.Pos(), "cannot index %s", v.Tag)
}

func (in *Interpreter) evalStructLit(x *ast.StructLit, e *env.Environment) (*value.Value, error) {
	def, ok := in.Registry.LookupStruct(x.Module, x.Name)
	if !ok {
		return nil, errs.New(errs.Name, x.Pos(), "no such struct %q", x.Name)
	}
	if len(x.TypeArgs) > 0 {
		args := make([]*value.Type, len(x.TypeArgs))
		for i, a := range x.TypeArgs {
			args[i] = in.resolveTypeAnnotation(a, e)
		}
		mono, err := in.Registry.Monomorphize(def, args)
		if err != nil {
			return nil, errs.New(errs.Type, x.Pos(), "%v", err)
		}
		def = mono
	}

	fields := make([]*value.Value, len(def.Fields))
	for i := range fields {
		fields[i] = value.NewNull()
	}
	for _, fi := range x.Fields {
		idx := -1
		for i, f := range def.Fields {
			if f.Name == fi.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			suggestion := errs.BestSuggestion(fi.Name, fieldNames(def), 2)
			msg := "no such field %q on struct " + def.Name
			if suggestion != "" {
				return nil, errs.New(errs.Name, x.Pos(), msg+", "+errs.Suggestion(suggestion), fi.Name)
			}
			return nil, errs.New(errs.Name, x.Pos(), msg, fi.Name)
		}
		v, err := in.evalExpr(fi.Value, e)
		if err != nil {
			return nil, err
		}
		if !value.MatchesType(v, def.Fields[idx].Type) {
			return nil, errs.New(errs.Type, fi.Value.Pos(), "field %q: cannot assign %s to %s", fi.Name, v.Tag, value.TypeString(def.Fields[idx].Type))
		}
		fields[idx] = copyOnBind(v)
	}
	s := &value.Value{Tag: value.Struct, StructDef: def, Fields: fields}
	in.GC.Register(s, in)
	return s, nil
}

func (in *Interpreter) execAssign(s *ast.Assign, e *env.Environment) error {
	v, err := in.evalExpr(s.Value, e)
	if err != nil {
		return err
	}
	v = copyOnBind(v)

	switch t := s.Target.(type) {
	case *ast.Identifier:
		if err := e.Assign(t.Name, v); err != nil {
			return undefinedNameError(e, t.Name, t.Pos())
		}
		return nil

	case *ast.Member:
		obj, err := in.evalExpr(t.X, e)
		if err != nil {
			return err
		}
		switch obj.Tag {
		case value.Struct:
			for i, f := range obj.StructDef.Fields {
				if f.Name == t.Name {
					if !value.MatchesType(v, f.Type) {
						return errs.New(errs.Type, t.Pos(), "field %q: cannot assign %s to %s", t.Name, v.Tag, value.TypeString(f.Type))
					}
					obj.Fields[i] = v
					return nil
				}
			}
			return errs.New(errs.Name, t.Pos(), "no such field %q on struct %s", t.Name, obj.StructDef.Name)
		case value.Dict:
			obj.DictSet(t.Name, v)
			return nil
		}
		return errs.New(errs.Type, t.Pos(), "cannot assign member %q on %s", t.Name, obj.Tag)

	case *ast.Index:
		obj, err := in.evalExpr(t.X, e)
		if err != nil {
			return err
		}
		idx, err := in.evalExpr(t.Index, e)
		if err != nil {
			return err
		}
		switch obj.Tag {
		case value.List:
			if idx.Tag != value.Int {
				return errs.New(errs.Type, t.Pos(), "list index must be int")
			}
			i := idx.I
			if i < 0 {
				i += int64(len(obj.Elems))
			}
			if i < 0 || i >= int64(len(obj.Elems)) {
				return errs.New(errs.Index, t.Pos(), "list index %d out of range (len %d)", idx.I, len(obj.Elems))
			}
			obj.Elems[i] = v
			return nil
		case value.Dict:
			if idx.Tag != value.String {
				return errs.New(errs.Type, t.Pos(), "dict index must be string")
			}
			obj.DictSet(idx.S, v)
			return nil
		}
		return errs.New(errs.Type, t.Pos(), "cannot index-assign %s", obj.Tag)
	}
	return errs.New(errs.Syntax, s.Pos(), "invalid assignment target")
}

// resolveTypeAnnotation turns a parsed TypeAnnotation into a runtime *value.Type
// (§4.3, §4.4), resolving struct/enum references against the registry.
func (in *Interpreter) resolveTypeAnnotation(t *ast.TypeAnnotation, e *env.Environment) *value.Type {
	if t == nil {
		return value.AnyType()
	}
	switch t.Name {
	case "any":
		return &value.Type{Kind: value.TAny, Nullable: t.Nullable}
	case "int", "float", "bool", "string", "null":
		return &value.Type{Kind: value.TPrimitive, Name: t.Name, Nullable: t.Nullable}
	case "list":
		var elem *value.Type
		if len(t.Params) > 0 {
			elem = in.resolveTypeAnnotation(t.Params[0], e)
		} else {
			elem = value.AnyType()
		}
		return &value.Type{Kind: value.TList, Elem: elem, Nullable: t.Nullable}
	case "dict":
		key, val := value.Primitive("string"), value.AnyType()
		if len(t.Params) > 1 {
			key = in.resolveTypeAnnotation(t.Params[0], e)
			val = in.resolveTypeAnnotation(t.Params[1], e)
		}
		return &value.Type{Kind: value.TDict, Key: key, Value: val, Nullable: t.Nullable}
	}
	if def, ok := in.Registry.LookupStruct(t.Module, t.Name); ok {
		if len(t.Params) > 0 {
			args := make([]*value.Type, len(t.Params))
			for i, p := range t.Params {
				args[i] = in.resolveTypeAnnotation(p, e)
			}
			if mono, err := in.Registry.Monomorphize(def, args); err == nil {
				def = mono
			}
		}
		return &value.Type{Kind: value.TStruct, Def: def, Module: t.Module, Name: t.Name, Nullable: t.Nullable}
	}
	if def, ok := in.Registry.LookupEnum(t.Module, t.Name); ok {
		return &value.Type{Kind: value.TEnum, Enum: def, Module: t.Module, Name: t.Name, Nullable: t.Nullable}
	}
	// Unresolved names are treated as generic type parameters within a
	// struct/enum declaration body (§4.4 glossary: Monomorphization).
	return &value.Type{Kind: value.TGeneric, Name: t.Name, Nullable: t.Nullable}
}

// valueToError wraps a thrown value as a Go error crossing execStmt's return
// path; NAAb code may throw any value, not only error structs (§4.6, §7).
func valueToError(v *value.Value, pos token.Pos) error {
	if v.Tag == value.Struct && v.StructDef.Name == "Error" {
		msg := ""
		for i, f := range v.StructDef.Fields {
			if f.Name == "message" && v.Fields[i].Tag == value.String {
				msg = v.Fields[i].S
			}
		}
		return errs.New(errs.Type, pos, "%s", msg)
	}
	return &thrownValue{v: v, err: errs.New(errs.Type, pos, "%s", v.String())}
}

// thrownValue carries the original NAAb value across a throw/catch boundary
// so catch can bind the exact value thrown, not a reconstruction of it.
type thrownValue struct {
	v   *value.Value
	err *errs.Error
}

func (t *thrownValue) Error() string { return t.err.Error() }
func (t *thrownValue) Unwrap() error { return t.err }

// errorToValue reconstructs a dict value from a plain *errs.Error that did
// not originate from a NAAb throw (e.g. a TypeError raised by the
// interpreter itself), so catch clauses always bind something (§4.6, §7).
func errorToValue(e *errs.Error) *value.Value {
	d := value.NewDict()
	d.DictSet("type", value.NewString(string(e.Kind)))
	d.DictSet("message", value.NewString(e.Message))
	if len(e.Stack) > 0 {
		frames := make([]*value.Value, len(e.Stack))
		for i, f := range e.Stack {
			fr := value.NewDict()
			fr.DictSet("function", value.NewString(f.Function))
			fr.DictSet("file", value.NewString(f.File))
			fr.DictSet("line", value.NewInt(int64(f.Line)))
			frames[i] = fr
		}
		d.DictSet("stack", value.NewList(frames))
	}
	if e.Kind == errs.Polyglot {
		d.DictSet("language", value.NewString(e.Language))
		if e.ForeignType != "" {
			d.DictSet("foreign_type", value.NewString(e.ForeignType))
		}
		if e.ForeignLine > 0 {
			d.DictSet("foreign_line", value.NewInt(int64(e.ForeignLine)))
		}
	}
	return d
}
