// Package value implements NAAb's runtime value and type model (§3, §4.4):
// the tagged-union Value, the struct/enum registry with monomorphization, and
// valueMatchesType compatibility checks.
package value

import (
	"fmt"
	"strings"
	"sync"
)

// Tag identifies the dynamic kind of a Value (§3 Runtime value).
type Tag int

const (
	Null Tag = iota
	Bool
	Int
	Float
	String
	List
	Dict
	Struct
	Enum
	Func
	PolyglotHandle
	ForeignHandle
)

func (t Tag) String() string {
	switch t {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case List:
		return "list"
	case Dict:
		return "dict"
	case Struct:
		return "struct"
	case Enum:
		return "enum"
	case Func:
		return "function"
	case PolyglotHandle:
		return "polyglot"
	case ForeignHandle:
		return "foreign"
	}
	return "unknown"
}

// TypeKind classifies a compile-time type annotation for valueMatchesType.
type TypeKind int

const (
	TAny TypeKind = iota
	TPrimitive
	TList
	TDict
	TStruct
	TEnum
	TUnion
	TGeneric // unresolved generic parameter, resolved via a monomorphization Binding
)

// Type is the runtime representation of a type annotation (§3, §4.4).
type Type struct {
	Kind     TypeKind
	Name     string // primitive name ("int","string",...), or generic param name
	Module   string
	Nullable bool

	Elem  *Type   // list element type
	Key   *Type   // dict key type (must resolve to string)
	Value *Type   // dict value type
	Alts  []*Type // union alternatives
	Def   *StructDef
	Enum  *EnumDef
}

func AnyType() *Type { return &Type{Kind: TAny} }

func Primitive(name string) *Type { return &Type{Kind: TPrimitive, Name: name} }

// StructDef describes a struct or enum type registered by fully qualified
// name (§3). Thread-safe: all mutation passes through the registry's mutex.
type StructDef struct {
	Module      string
	Name        string
	TypeParams  []string
	Fields      []FieldDef
	mono        map[string]*StructDef // monomorphization cache, keyed by joined type args
	monoArgs    []*Type
	Generic     *StructDef // the generic template this was monomorphized from, nil for templates
}

type FieldDef struct {
	Name string
	Type *Type
}

type EnumDef struct {
	Module     string
	Name       string
	TypeParams []string
	Variants   []VariantDef
	mono       map[string]*EnumDef
	Generic    *EnumDef
}

type VariantDef struct {
	Name    string
	Index   int
	Payload []*Type
}

// Registry is the process-wide struct/enum registry (§3, §5): definitions
// created at declaration time, never destroyed during a run, keyed by fully
// qualified name. All mutations are mutex-guarded (§9).
type Registry struct {
	mu      sync.Mutex
	structs map[string]*StructDef
	enums   map[string]*EnumDef
}

func NewRegistry() *Registry {
	return &Registry{structs: map[string]*StructDef{}, enums: map[string]*EnumDef{}}
}

func qualify(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

func (r *Registry) DefineStruct(module, name string, typeParams []string, fields []FieldDef) *StructDef {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &StructDef{Module: module, Name: name, TypeParams: typeParams, Fields: fields, mono: map[string]*StructDef{}}
	r.structs[qualify(module, name)] = d
	return d
}

func (r *Registry) DefineEnum(module, name string, typeParams []string, variants []VariantDef) *EnumDef {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &EnumDef{Module: module, Name: name, TypeParams: typeParams, Variants: variants, mono: map[string]*EnumDef{}}
	r.enums[qualify(module, name)] = d
	return d
}

func (r *Registry) LookupStruct(module, name string) (*StructDef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.structs[qualify(module, name)]
	return d, ok
}

func (r *Registry) LookupEnum(module, name string) (*EnumDef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.enums[qualify(module, name)]
	return d, ok
}

func typeKey(args []*Type) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = TypeString(a)
	}
	return strings.Join(parts, ",")
}

// Monomorphize specializes a generic struct definition for a concrete tuple
// of type arguments, caching and reusing the result (§4.4, §9 glossary).
func (r *Registry) Monomorphize(generic *StructDef, args []*Type) (*StructDef, error) {
	if len(generic.TypeParams) != len(args) {
		return nil, fmt.Errorf("struct %s expects %d type arguments, got %d", generic.Name, len(generic.TypeParams), len(args))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := typeKey(args)
	if cached, ok := generic.mono[key]; ok {
		return cached, nil
	}
	subst := make(map[string]*Type, len(args))
	for i, p := range generic.TypeParams {
		subst[p] = args[i]
	}
	fields := make([]FieldDef, len(generic.Fields))
	for i, f := range generic.Fields {
		fields[i] = FieldDef{Name: f.Name, Type: substitute(f.Type, subst)}
	}
	mono := &StructDef{
		Module:  generic.Module,
		Name:    generic.Name,
		Fields:  fields,
		Generic: generic,
		monoArgs: args,
		mono:    map[string]*StructDef{},
	}
	generic.mono[key] = mono
	return mono, nil
}

func substitute(t *Type, subst map[string]*Type) *Type {
	if t == nil {
		return nil
	}
	if t.Kind == TGeneric {
		if r, ok := subst[t.Name]; ok {
			return r
		}
	}
	cp := *t
	cp.Elem = substitute(t.Elem, subst)
	cp.Key = substitute(t.Key, subst)
	cp.Value = substitute(t.Value, subst)
	if t.Alts != nil {
		cp.Alts = make([]*Type, len(t.Alts))
		for i, a := range t.Alts {
			cp.Alts[i] = substitute(a, subst)
		}
	}
	return &cp
}

// TypeString renders a Type for diagnostics and monomorphization cache keys.
func TypeString(t *Type) string {
	if t == nil {
		return "any"
	}
	var s string
	switch t.Kind {
	case TAny:
		s = "any"
	case TPrimitive, TGeneric:
		s = t.Name
	case TList:
		s = "list<" + TypeString(t.Elem) + ">"
	case TDict:
		s = "dict<" + TypeString(t.Key) + "," + TypeString(t.Value) + ">"
	case TStruct:
		if t.Def != nil {
			s = qualify(t.Def.Module, t.Def.Name)
		} else {
			s = qualify(t.Module, t.Name)
		}
	case TEnum:
		if t.Enum != nil {
			s = qualify(t.Enum.Module, t.Enum.Name)
		} else {
			s = qualify(t.Module, t.Name)
		}
	case TUnion:
		parts := make([]string, len(t.Alts))
		for i, a := range t.Alts {
			parts[i] = TypeString(a)
		}
		s = strings.Join(parts, "|")
	}
	if t.Nullable {
		s += "?"
	}
	return s
}
