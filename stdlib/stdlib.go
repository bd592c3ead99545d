// Package stdlib defines the uniform module-dispatch contract (§4.8, §6) that
// every NAAb standard-library module implements, and registers the small set
// of modules this core ships with. Most stdlib module *implementations*
// (file I/O, HTTP, JSON, crypto, ...) are external collaborators per §1; this
// package provides the registry/contract plus a handful of modules the
// interpreter itself depends on for built-ins (math, string, array, debug).
package stdlib

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/naab-lang/naab/value"
)

// Module is the uniform contract every stdlib module implements (§4.8, §6).
type Module interface {
	HasFunction(name string) bool
	Call(name string, args []*value.Value) (*value.Value, error)
}

// Registry is the process-wide stdlib module table, registered at startup by
// name (§4.8, §5). Mutations pass through a mutex even though registration
// normally only happens once, per §9's "mutex-guarded even in single-threaded
// mode to enable future multi-interpreter hosting."
type Registry struct {
	mu      sync.Mutex
	modules map[string]Module
}

func NewRegistry() *Registry {
	r := &Registry{modules: map[string]Module{}}
	r.Register("math", mathModule{})
	r.Register("string", stringModule{})
	r.Register("array", arrayModule{})
	r.Register("json", jsonModule{})
	return r
}

// GCStatsSource is implemented by the interpreter's collector so the debug
// module can expose gc_stats() without stdlib depending on package gc
// (§9 supplemental: "debug.gc_stats() ... so NAAb test programs can assert
// reclamation without a private API").
type GCStatsSource interface {
	Live() int
	Collections() int
	LastFreed() int
}

// RegisterDebug wires the debug module's gc_stats() to src, called once by
// the interpreter after constructing its collector (§4.7, §8 scenario ii).
func (r *Registry) RegisterDebug(src GCStatsSource) {
	r.Register("debug", debugModule{src: src})
}

type debugModule struct{ src GCStatsSource }

var debugFns = map[string]bool{"gc_stats": true}

func (debugModule) HasFunction(name string) bool { return debugFns[name] }

func (m debugModule) Call(name string, args []*value.Value) (*value.Value, error) {
	switch name {
	case "gc_stats":
		d := value.NewDict()
		if m.src != nil {
			d.DictSet("live", value.NewInt(int64(m.src.Live())))
			d.DictSet("collections", value.NewInt(int64(m.src.Collections())))
			d.DictSet("last_freed", value.NewInt(int64(m.src.LastFreed())))
		}
		return d, nil
	}
	return nil, fmt.Errorf("unimplemented debug function %q", name)
}

func (r *Registry) Register(name string, m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = m
}

func (r *Registry) Lookup(name string) (Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[name]
	return m, ok
}

// Call resolves module.function(args) per §4.8: look up the module, check
// HasFunction, then invoke Call. Errors are the module's responsibility to
// marshal; this layer only adds module+function context on NotFound.
func (r *Registry) Call(module, fn string, args []*value.Value) (*value.Value, error) {
	m, ok := r.Lookup(module)
	if !ok {
		return nil, fmt.Errorf("no such module %q", module)
	}
	if !m.HasFunction(fn) {
		return nil, fmt.Errorf("module %q has no function %q", module, fn)
	}
	v, err := m.Call(fn, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", module, fn, err)
	}
	return v, nil
}

// ---------------------------------------------------------------- math

type mathModule struct{}

var mathFns = map[string]bool{"sqrt": true, "abs": true, "floor": true, "ceil": true, "pow": true, "min": true, "max": true}

func (mathModule) HasFunction(name string) bool { return mathFns[name] }

func (mathModule) Call(name string, args []*value.Value) (*value.Value, error) {
	f := func(i int) (float64, error) {
		if i >= len(args) {
			return 0, fmt.Errorf("missing argument %d", i)
		}
		v := args[i]
		switch v.Tag {
		case value.Int:
			return float64(v.I), nil
		case value.Float:
			return v.F, nil
		}
		return 0, fmt.Errorf("argument %d must be numeric", i)
	}
	switch name {
	case "sqrt":
		x, err := f(0)
		if err != nil {
			return nil, err
		}
		return value.NewFloat(math.Sqrt(x)), nil
	case "abs":
		x, err := f(0)
		if err != nil {
			return nil, err
		}
		if args[0].Tag == value.Int {
			if args[0].I < 0 {
				return value.NewInt(-args[0].I), nil
			}
			return value.NewInt(args[0].I), nil
		}
		return value.NewFloat(math.Abs(x)), nil
	case "floor":
		x, err := f(0)
		if err != nil {
			return nil, err
		}
		return value.NewFloat(math.Floor(x)), nil
	case "ceil":
		x, err := f(0)
		if err != nil {
			return nil, err
		}
		return value.NewFloat(math.Ceil(x)), nil
	case "pow":
		x, err := f(0)
		if err != nil {
			return nil, err
		}
		y, err := f(1)
		if err != nil {
			return nil, err
		}
		return value.NewFloat(math.Pow(x, y)), nil
	case "min", "max":
		x, err := f(0)
		if err != nil {
			return nil, err
		}
		y, err := f(1)
		if err != nil {
			return nil, err
		}
		if (name == "min") == (x < y) {
			return value.NewFloat(x), nil
		}
		return value.NewFloat(y), nil
	}
	return nil, fmt.Errorf("unimplemented math function %q", name)
}

// ---------------------------------------------------------------- string

type stringModule struct{}

var stringFns = map[string]bool{"upper": true, "lower": true, "trim": true, "split": true, "join": true, "contains": true, "replace": true}

func (stringModule) HasFunction(name string) bool { return stringFns[name] }

func (stringModule) Call(name string, args []*value.Value) (*value.Value, error) {
	str := func(i int) (string, error) {
		if i >= len(args) || args[i].Tag != value.String {
			return "", fmt.Errorf("argument %d must be a string", i)
		}
		return args[i].S, nil
	}
	switch name {
	case "upper":
		s, err := str(0)
		if err != nil {
			return nil, err
		}
		return value.NewString(strings.ToUpper(s)), nil
	case "lower":
		s, err := str(0)
		if err != nil {
			return nil, err
		}
		return value.NewString(strings.ToLower(s)), nil
	case "trim":
		s, err := str(0)
		if err != nil {
			return nil, err
		}
		return value.NewString(strings.TrimSpace(s)), nil
	case "contains":
		s, err := str(0)
		if err != nil {
			return nil, err
		}
		sub, err := str(1)
		if err != nil {
			return nil, err
		}
		return value.NewBool(strings.Contains(s, sub)), nil
	case "replace":
		s, err := str(0)
		if err != nil {
			return nil, err
		}
		old, err := str(1)
		if err != nil {
			return nil, err
		}
		nw, err := str(2)
		if err != nil {
			return nil, err
		}
		return value.NewString(strings.ReplaceAll(s, old, nw)), nil
	case "split":
		s, err := str(0)
		if err != nil {
			return nil, err
		}
		sep, err := str(1)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(s, sep)
		elems := make([]*value.Value, len(parts))
		for i, p := range parts {
			elems[i] = value.NewString(p)
		}
		return value.NewList(elems), nil
	case "join":
		if len(args) < 2 || args[0].Tag != value.List {
			return nil, fmt.Errorf("join expects (list, separator)")
		}
		sep, err := str(1)
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(args[0].Elems))
		for i, e := range args[0].Elems {
			parts[i] = e.String()
		}
		return value.NewString(strings.Join(parts, sep)), nil
	}
	return nil, fmt.Errorf("unimplemented string function %q", name)
}

// ---------------------------------------------------------------- json

// jsonModule implements the round-trip contract from §8: primitives and
// list/dict structure survive encode/decode; struct values encode as dicts
// of their fields by name. Dict key order is not preserved: stringify writes
// keys in sorted order and parse yields them in no defined order.
type jsonModule struct{}

var jsonFns = map[string]bool{"stringify": true, "parse": true}

func (jsonModule) HasFunction(name string) bool { return jsonFns[name] }

func (jsonModule) Call(name string, args []*value.Value) (*value.Value, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%s expects one argument", name)
	}
	switch name {
	case "stringify":
		data, err := json.Marshal(valueToJSON(args[0]))
		if err != nil {
			return nil, err
		}
		return value.NewString(string(data)), nil
	case "parse":
		if args[0].Tag != value.String {
			return nil, fmt.Errorf("parse expects a string")
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(args[0].S), &decoded); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return jsonToValue(decoded), nil
	}
	return nil, fmt.Errorf("unimplemented json function %q", name)
}

func valueToJSON(v *value.Value) interface{} {
	if v == nil {
		return nil
	}
	switch v.Tag {
	case value.Null:
		return nil
	case value.Bool:
		return v.B
	case value.Int:
		return v.I
	case value.Float:
		return v.F
	case value.String:
		return v.S
	case value.List:
		out := make([]interface{}, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = valueToJSON(e)
		}
		return out
	case value.Dict:
		out := make(map[string]interface{}, len(v.Dict))
		for _, k := range v.DictKeys {
			out[k] = valueToJSON(v.Dict[k])
		}
		return out
	case value.Struct:
		out := make(map[string]interface{}, len(v.Fields))
		for i, f := range v.Fields {
			if i < len(v.StructDef.Fields) {
				out[v.StructDef.Fields[i].Name] = valueToJSON(f)
			}
		}
		return out
	}
	return v.String()
}

func jsonToValue(v interface{}) *value.Value {
	switch t := v.(type) {
	case nil:
		return value.NewNull()
	case bool:
		return value.NewBool(t)
	case float64:
		if t == float64(int64(t)) {
			return value.NewInt(int64(t))
		}
		return value.NewFloat(t)
	case string:
		return value.NewString(t)
	case []interface{}:
		elems := make([]*value.Value, len(t))
		for i, e := range t {
			elems[i] = jsonToValue(e)
		}
		return value.NewList(elems)
	case map[string]interface{}:
		d := value.NewDict()
		for k, e := range t {
			d.DictSet(k, jsonToValue(e))
		}
		return d
	}
	return value.NewNull()
}

// ---------------------------------------------------------------- array

type arrayModule struct{}

var arrayFns = map[string]bool{"sort": true, "reverse": true, "push": true, "contains": true}

func (arrayModule) HasFunction(name string) bool { return arrayFns[name] }

func (arrayModule) Call(name string, args []*value.Value) (*value.Value, error) {
	if len(args) == 0 || args[0].Tag != value.List {
		return nil, fmt.Errorf("argument 0 must be a list")
	}
	list := args[0]
	switch name {
	case "sort":
		elems := append([]*value.Value{}, list.Elems...)
		var sortErr error
		sort.SliceStable(elems, func(i, j int) bool {
			less, err := value.Less(elems[i], elems[j])
			if err != nil {
				sortErr = err
			}
			return less
		})
		if sortErr != nil {
			return nil, sortErr
		}
		return value.NewList(elems), nil
	case "reverse":
		n := len(list.Elems)
		elems := make([]*value.Value, n)
		for i, e := range list.Elems {
			elems[n-1-i] = e
		}
		return value.NewList(elems), nil
	case "push":
		if len(args) < 2 {
			return nil, fmt.Errorf("push expects (list, value)")
		}
		elems := append(append([]*value.Value{}, list.Elems...), args[1])
		return value.NewList(elems), nil
	case "contains":
		if len(args) < 2 {
			return nil, fmt.Errorf("contains expects (list, value)")
		}
		for _, e := range list.Elems {
			if value.Equal(e, args[1]) {
				return value.NewBool(true), nil
			}
		}
		return value.NewBool(false), nil
	}
	return nil, fmt.Errorf("unimplemented array function %q", name)
}
