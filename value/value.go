package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a tagged-union runtime value (§3). Every Value that participates
// in the object graph is reached through a *Value handle so the GC (package
// gc) can traverse and collect it; Value itself holds no GC bookkeeping.
type Value struct {
	Tag Tag

	B bool
	I int64
	F float64
	S string

	// List/Dict elements are shared handles (§3: "ordered sequence/mapping of
	// shared value handles"), enabling copy-on-assignment semantics at the
	// container level while inner handles may still be aliased until copied.
	Elems   []*Value
	DictKeys []string // insertion order, kept in sync with Dict
	Dict    map[string]*Value

	StructDef *StructDef
	Fields    []*Value // parallel to StructDef.Fields, same order

	EnumDef      *EnumDef
	VariantIndex int
	Payload      []*Value

	Fn *FuncValue

	Polyglot *PolyglotValue
	Foreign  *ForeignValue
}

// FuncValue is the function value shape from §3: parameter list, default
// expressions, body, captured environment, declaration site, async flag.
// Body/Params/Env/DefaultExprs are declared as interface{} here to avoid an
// import cycle with the ast and env packages; the interp package populates
// them with concrete *ast.FuncDecl/*ast.Block and *env.Environment values.
type FuncValue struct {
	Name       string
	Params     []FuncParam
	Body       interface{} // *ast.Block
	Env        interface{} // *env.Environment, the captured closure scope
	File       string
	Line       int
	Async      bool
	Native     func(args []*Value) (*Value, error) // builtin/bound function, nil for user-defined
}

type FuncParam struct {
	Name    string
	Type    *Type
	Default interface{} // *ast.Expr, nil if no default
}

// PolyglotValue is a polyglot-block handle: language tag, code body,
// captured bindings, and header options (§3).
type PolyglotValue struct {
	Language string
	Body     string
	Bindings map[string]*Value
	JSON     bool
}

// ForeignValue is an opaque pointer managed by a polyglot executor (§3,
// §4.11): the interpreter never dereferences it, only passes the handle id
// around.
type ForeignValue struct {
	HandleID string
	Language string
}

func NewNull() *Value   { return &Value{Tag: Null} }
func NewBool(b bool) *Value { return &Value{Tag: Bool, B: b} }
func NewInt(i int64) *Value { return &Value{Tag: Int, I: i} }
func NewFloat(f float64) *Value { return &Value{Tag: Float, F: f} }
func NewString(s string) *Value { return &Value{Tag: String, S: s} }

func NewList(elems []*Value) *Value { return &Value{Tag: List, Elems: elems} }

func NewDict() *Value {
	return &Value{Tag: Dict, Dict: map[string]*Value{}}
}

// DictSet inserts or updates key, preserving insertion order (§3: "insertion
// order preserved for iteration").
func (v *Value) DictSet(key string, val *Value) {
	if _, exists := v.Dict[key]; !exists {
		v.DictKeys = append(v.DictKeys, key)
	}
	v.Dict[key] = val
}

func (v *Value) DictDelete(key string) {
	if _, exists := v.Dict[key]; !exists {
		return
	}
	delete(v.Dict, key)
	for i, k := range v.DictKeys {
		if k == key {
			v.DictKeys = append(v.DictKeys[:i], v.DictKeys[i+1:]...)
			break
		}
	}
}

// Truthy implements §4.4's truthiness table: false is null, false, 0, 0.0,
// "", empty list/dict.
func (v *Value) Truthy() bool {
	switch v.Tag {
	case Null:
		return false
	case Bool:
		return v.B
	case Int:
		return v.I != 0
	case Float:
		return v.F != 0
	case String:
		return v.S != ""
	case List:
		return len(v.Elems) != 0
	case Dict:
		return len(v.Dict) != 0
	default:
		return true
	}
}

// Equal implements §3/§9's structural equality, with numeric coercion for
// equality only (never ordering): `1 == 1.0` is true.
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if (a.Tag == Int || a.Tag == Float) && (b.Tag == Int || b.Tag == Float) {
		return asFloat(a) == asFloat(b)
	}
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case Null:
		return true
	case Bool:
		return a.B == b.B
	case String:
		return a.S == b.S
	case List:
		if len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !Equal(a.Elems[i], b.Elems[i]) {
				return false
			}
		}
		return true
	case Dict:
		if len(a.Dict) != len(b.Dict) {
			return false
		}
		for k, av := range a.Dict {
			bv, ok := b.Dict[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case Struct:
		return a == b // reference-typed: identity equality
	case Enum:
		if a.EnumDef != b.EnumDef || a.VariantIndex != b.VariantIndex {
			return false
		}
		if len(a.Payload) != len(b.Payload) {
			return false
		}
		for i := range a.Payload {
			if !Equal(a.Payload[i], b.Payload[i]) {
				return false
			}
		}
		return true
	case Func, PolyglotHandle, ForeignHandle:
		return a == b
	}
	return false
}

func asFloat(v *Value) float64 {
	if v.Tag == Int {
		return float64(v.I)
	}
	return v.F
}

// Less implements ordering, defined only for comparable primitives and
// element-wise for lists/strings (§4.4). Mixed int/float ordering is NOT
// coerced (§9): only equality gets numeric coercion.
func Less(a, b *Value) (bool, error) {
	if a.Tag != b.Tag {
		return false, fmt.Errorf("cannot order %s and %s", a.Tag, b.Tag)
	}
	switch a.Tag {
	case Int:
		return a.I < b.I, nil
	case Float:
		return a.F < b.F, nil
	case String:
		return a.S < b.S, nil
	case List:
		n := len(a.Elems)
		if len(b.Elems) < n {
			n = len(b.Elems)
		}
		for i := 0; i < n; i++ {
			if Equal(a.Elems[i], b.Elems[i]) {
				continue
			}
			return Less(a.Elems[i], b.Elems[i])
		}
		return len(a.Elems) < len(b.Elems), nil
	}
	return false, fmt.Errorf("type %s is not ordered", a.Tag)
}

// Clone performs the copy-on-assignment semantics from §4.6: deep copy for
// lists/dicts, shared reference for structs (reference types), and a plain
// copy for everything else. Structs, functions, and handles are never deep
// copied — they are reference-typed by design (§9).
func Clone(v *Value) *Value {
	if v == nil {
		return nil
	}
	switch v.Tag {
	case List:
		elems := make([]*Value, len(v.Elems))
		for i, e := range v.Elems {
			elems[i] = Clone(e)
		}
		return &Value{Tag: List, Elems: elems}
	case Dict:
		d := NewDict()
		for _, k := range v.DictKeys {
			d.DictSet(k, Clone(v.Dict[k]))
		}
		return d
	case Struct, Func, PolyglotHandle, ForeignHandle:
		return v
	default:
		cp := *v
		return &cp
	}
}

// Traverse invokes cb on every value directly reachable from v — the GC's
// primitive (§4.4, §4.7). It does not recurse; callers drive the worklist.
func Traverse(v *Value, cb func(*Value)) {
	if v == nil {
		return
	}
	switch v.Tag {
	case List:
		for _, e := range v.Elems {
			cb(e)
		}
	case Dict:
		for _, k := range v.DictKeys {
			cb(v.Dict[k])
		}
	case Struct:
		for _, f := range v.Fields {
			cb(f)
		}
	case Enum:
		for _, p := range v.Payload {
			cb(p)
		}
	case PolyglotHandle:
		if v.Polyglot != nil {
			for _, b := range v.Polyglot.Bindings {
				cb(b)
			}
		}
	}
}

// String formats v the way NAAb source/stdlib `string` conversions would.
func (v *Value) String() string {
	if v == nil {
		return "null"
	}
	switch v.Tag {
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(v.B)
	case Int:
		return strconv.FormatInt(v.I, 10)
	case Float:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case String:
		return v.S
	case List:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = quoteIfString(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Dict:
		parts := make([]string, 0, len(v.DictKeys))
		for _, k := range v.DictKeys {
			parts = append(parts, fmt.Sprintf("%q: %s", k, quoteIfString(v.Dict[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Struct:
		name := v.StructDef.Name
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			fname := ""
			if i < len(v.StructDef.Fields) {
				fname = v.StructDef.Fields[i].Name
			}
			parts[i] = fmt.Sprintf("%s: %s", fname, quoteIfString(f))
		}
		return name + " { " + strings.Join(parts, ", ") + " }"
	case Enum:
		name := v.EnumDef.Variants[v.VariantIndex].Name
		if len(v.Payload) == 0 {
			return name
		}
		parts := make([]string, len(v.Payload))
		for i, p := range v.Payload {
			parts[i] = quoteIfString(p)
		}
		return name + "(" + strings.Join(parts, ", ") + ")"
	case Func:
		return fmt.Sprintf("<function %s>", v.Fn.Name)
	case PolyglotHandle:
		return fmt.Sprintf("<polyglot %s>", v.Polyglot.Language)
	case ForeignHandle:
		return fmt.Sprintf("<foreign %s:%s>", v.Foreign.Language, v.Foreign.HandleID)
	}
	return "?"
}

func quoteIfString(v *Value) string {
	if v != nil && v.Tag == String {
		return strconv.Quote(v.S)
	}
	return v.String()
}

// MatchesType implements valueMatchesType(v, T) from §4.4.
func MatchesType(v *Value, t *Type) bool {
	if t == nil || t.Kind == TAny {
		return true
	}
	if t.Nullable && v.Tag == Null {
		return true
	}
	switch t.Kind {
	case TPrimitive:
		return v.Tag.String() == t.Name || (t.Name == "any")
	case TList:
		if v.Tag != List {
			return false
		}
		for _, e := range v.Elems {
			if !MatchesType(e, t.Elem) {
				return false
			}
		}
		return true
	case TDict:
		if v.Tag != Dict {
			return false
		}
		if t.Key != nil && t.Key.Kind == TPrimitive && t.Key.Name != "string" {
			return false // only string keys supported (§4.4)
		}
		for _, k := range v.DictKeys {
			if !MatchesType(v.Dict[k], t.Value) {
				return false
			}
		}
		return true
	case TStruct:
		return v.Tag == Struct && v.StructDef == t.Def // identity, not structural
	case TEnum:
		return v.Tag == Enum && v.EnumDef == t.Enum
	case TUnion:
		for _, alt := range t.Alts {
			if MatchesType(v, alt) {
				return true
			}
		}
		return false
	case TGeneric:
		// Resolved only in a monomorphization context; callers substitute
		// concrete types before calling MatchesType for generic fields.
		return true
	}
	return false
}
