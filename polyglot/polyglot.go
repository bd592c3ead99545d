// Package polyglot implements NAAb's foreign-language execution layer
// (§4.9): a registry of per-language executors, binding marshalling across
// the NAAb/foreign boundary, and error mapping back into errs.Polyglot.
package polyglot

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/security"
	"github.com/naab-lang/naab/token"
	"github.com/naab-lang/naab/value"
)

// Executor runs one polyglot block body for a given language (§4.9's
// per-language executor table: embedded interpreter, fresh-context VM,
// compile-and-cache, or subprocess, depending on the language).
type Executor interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Execute(ctx context.Context, req Request) (*value.Value, error)
}

// Request carries one polyglot block's evaluation inputs across the
// NAAb/foreign boundary.
type Request struct {
	Body     string
	Bindings map[string]*value.Value
	JSON     bool
	Timeout  time.Duration
	Pos      token.Pos
}

// Registry maps a language tag ("python", "javascript", "shell", ...) to its
// Executor, initialized lazily on first use and shut down together at
// process exit (§4.9, §5). Adding a language is adding one more Register
// call.
type Registry struct {
	mu        sync.Mutex
	executors map[string]Executor
	live      map[string]bool
	sec       *security.Validators
}

func NewRegistry(sec *security.Validators) *Registry {
	r := &Registry{executors: map[string]Executor{}, live: map[string]bool{}, sec: sec}
	r.Register("python", newEmbeddedExecutor("python3"))
	r.Register("javascript", newFreshContextExecutor("node"))
	r.Register("ruby", newSubprocessExecutor("ruby", "-e", nil))
	r.Register("php", newSubprocessExecutor("php", "-r", nil))
	r.Register("shell", newShellExecutor())
	r.Register("subprocess", newGenericExecutor())
	r.Register("cpp", newCompiledExecutor("cpp", ".cpp", []string{"g++", "-O2", "-o"}, nil))
	r.Register("rust", newCompiledExecutor("rust", ".rs", []string{"rustc", "-O", "-o"}, nil))
	r.Register("csharp", newCompiledExecutor("csharp", ".cs", []string{"csc", "-out:"}, []string{"mono"}))
	r.Register("go", newCompiledExecutor("go", ".go", []string{"go", "build", "-o"}, nil))
	return r
}

func (r *Registry) Register(lang string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[lang] = e
}

// Languages returns the registered language tags, for diagnostics.
func (r *Registry) Languages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.executors))
	for lang := range r.executors {
		out = append(out, lang)
	}
	return out
}

// Execute dispatches req to lang's executor, initializing it on first use
// and mapping any failure to errs.Polyglot with foreign type/language/line
// context (§4.9 error mapping). Timeouts surface as PolyglotError of kind
// Timeout (§5 Cancellation & timeouts).
func (r *Registry) Execute(ctx context.Context, lang string, req Request) (*value.Value, error) {
	r.mu.Lock()
	exec, ok := r.executors[lang]
	initialized := r.live[lang]
	r.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.Polyglot, req.Pos, "no executor registered for language %q", lang)
	}
	if !initialized {
		if err := exec.Initialize(ctx); err != nil {
			return nil, errs.New(errs.Polyglot, req.Pos, "failed to initialize %s runtime: %v", lang, err)
		}
		r.mu.Lock()
		r.live[lang] = true
		r.mu.Unlock()
	}
	if r.sec != nil {
		for _, b := range req.Bindings {
			if b.Tag == value.String {
				if err := security.ValidateUTF8String(b.S, req.Pos); err != nil {
					return nil, err
				}
			}
		}
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	res, err := exec.Execute(ctx, req)
	if err != nil {
		return nil, r.mapError(ctx, lang, req, err)
	}
	if res != nil && res.Tag == value.String {
		if verr := security.ValidateUTF8String(res.S, req.Pos); verr != nil {
			return nil, verr
		}
	}
	return res, nil
}

// mapError converts an executor failure into the errs.Polyglot shape user
// code observes (§4.9): foreign error class name where discoverable, the
// line within the block body (not the enclosing NAAb file) where the foreign
// runtime reports one, and Timeout for deadline expiry.
func (r *Registry) mapError(ctx context.Context, lang string, req Request, err error) error {
	var pe *errs.Error
	if errors.As(err, &pe) {
		if pe.Language == "" {
			pe.Language = lang
		}
		return pe
	}
	out := &errs.Error{Kind: errs.Polyglot, Message: err.Error(), Pos: req.Pos, Language: lang}
	if ctx.Err() == context.DeadlineExceeded {
		out.ForeignType = "Timeout"
		out.Message = "execution timed out after " + req.Timeout.String()
		return out
	}
	var ff *foreignFailure
	if errors.As(err, &ff) {
		out.ForeignType, out.ForeignLine = classifyForeignError(lang, ff.stderr)
		// The Python and JavaScript wrappers run two preamble lines plus one
		// line per binding ahead of the body.
		preamble := 0
		if lang == "python" || lang == "javascript" {
			preamble = 2 + len(req.Bindings)
		}
		if out.ForeignLine > preamble {
			out.ForeignLine -= preamble
		}
	}
	return out
}

var (
	pyErrClass   = regexp.MustCompile(`(?m)^(\w+(?:Error|Exception|Interrupt|Exit|Warning))(?::|$)`)
	pyErrLine    = regexp.MustCompile(`line (\d+)`)
	jsErrClass   = regexp.MustCompile(`(\w*Error)(?::|$)`)
	rubyErrClass = regexp.MustCompile(`\(([A-Za-z:]+Error)\)`)
)

// classifyForeignError extracts the foreign error class name and the line
// number within the block body from a runtime's stderr, best effort per
// language (§4.9). The line is returned as the runtime reports it; mapError
// offsets it back to the raw body for the Python and JavaScript wrappers,
// which prepend preamble lines before the body.
func classifyForeignError(lang, stderr string) (string, int) {
	line := 0
	if m := pyErrLine.FindStringSubmatch(stderr); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			line = n
		}
	}
	switch lang {
	case "python":
		if m := pyErrClass.FindStringSubmatch(stderr); m != nil {
			// The wrapper inserts two preamble lines plus one per binding; the
			// traceback's last reported line is the most specific.
			all := pyErrLine.FindAllStringSubmatch(stderr, -1)
			if len(all) > 0 {
				if n, err := strconv.Atoi(all[len(all)-1][1]); err == nil {
					line = n
				}
			}
			return m[1], line
		}
	case "javascript":
		if m := jsErrClass.FindStringSubmatch(stderr); m != nil {
			return m[1], line
		}
	case "ruby":
		if m := rubyErrClass.FindStringSubmatch(stderr); m != nil {
			return m[1], line
		}
	}
	return "", line
}

// Shutdown tears down every executor that was ever initialized.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for lang, initialized := range r.live {
		if initialized {
			_ = r.executors[lang].Shutdown(ctx)
		}
	}
}

// maxExactJSONInt is the largest magnitude an int64 survives a float64
// round-trip through foreign JSON layers without precision loss; anything
// bigger crosses the boundary as a string (§6: "foreign overflow -> string").
const maxExactJSONInt = int64(1) << 53

// marshalBindings converts NAAb bindings to a JSON-ready map for languages
// that exchange data as JSON over stdin/stdout (§4.9, §6 binding protocol).
func marshalBindings(bindings map[string]*value.Value) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(bindings))
	for k, v := range bindings {
		out[k] = toJSONable(v)
	}
	return out, nil
}

func toJSONable(v *value.Value) interface{} {
	if v == nil {
		return nil
	}
	switch v.Tag {
	case value.Null:
		return nil
	case value.Bool:
		return v.B
	case value.Int:
		if v.I > maxExactJSONInt || v.I < -maxExactJSONInt {
			return strconv.FormatInt(v.I, 10)
		}
		return v.I
	case value.Float:
		return v.F
	case value.String:
		return v.S
	case value.List:
		out := make([]interface{}, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = toJSONable(e)
		}
		return out
	case value.Dict:
		out := make(map[string]interface{}, len(v.Dict))
		for _, k := range v.DictKeys {
			out[k] = toJSONable(v.Dict[k])
		}
		return out
	case value.Struct:
		// Structs cross the boundary as a map of fields by name (§6).
		out := make(map[string]interface{}, len(v.Fields))
		for i, f := range v.Fields {
			if i < len(v.StructDef.Fields) {
				out[v.StructDef.Fields[i].Name] = toJSONable(f)
			}
		}
		return out
	case value.Enum:
		variant := v.EnumDef.Variants[v.VariantIndex].Name
		if len(v.Payload) == 0 {
			return variant
		}
		payload := make([]interface{}, len(v.Payload))
		for i, p := range v.Payload {
			payload[i] = toJSONable(p)
		}
		return map[string]interface{}{variant: payload}
	default:
		return v.String()
	}
}

func fromJSONable(v interface{}) *value.Value {
	switch t := v.(type) {
	case nil:
		return value.NewNull()
	case bool:
		return value.NewBool(t)
	case int64:
		return value.NewInt(t)
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
			elems[i] = fromJSONable(e)
		}
		return value.NewList(elems)
	case map[string]interface{}:
		d := value.NewDict()
		for k, e := range t {
			d.DictSet(k, fromJSONable(e))
		}
		return d
	}
	return value.NewNull()
}

func marshalJSON(bindings map[string]*value.Value) ([]byte, error) {
	m, err := marshalBindings(bindings)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
