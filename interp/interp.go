// Package interp implements NAAb's tree-walking interpreter (§4.6): a
// recursive evaluator over the ast package's node families, backed by the
// env package for lexical scope, the value package for runtime values, and
// the gc package for cycle-aware reclamation.
package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"golang.org/x/mod/module"

	"github.com/naab-lang/naab/ast"
	"github.com/naab-lang/naab/audit"
	"github.com/naab-lang/naab/config"
	"github.com/naab-lang/naab/dispatch"
	"github.com/naab-lang/naab/env"
	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/gc"
	"github.com/naab-lang/naab/parser"
	"github.com/naab-lang/naab/polyglot"
	"github.com/naab-lang/naab/security"
	"github.com/naab-lang/naab/stdlib"
	"github.com/naab-lang/naab/token"
	"github.com/naab-lang/naab/value"
)

// LoadState tracks a module's position in the load state machine (§4.6
// import cycle detection).
type LoadState int

const (
	NotLoaded LoadState = iota
	Loading
	Loaded
)

// Module is a loaded NAAb source module: its own root environment, exposed
// as a dict-like namespace to importers (§4.6).
type Module struct {
	Path  string
	State LoadState
	Env   *env.Environment
}

// Options configures a new Interpreter (§6), mirroring the shape of the
// teacher's own interpreter Options: I/O streams, filesystem, and limits are
// all caller-suppliable rather than read from the environment by this
// package directly.
type Options struct {
	Config *config.Config
	Stdout io.Writer
	Stderr io.Writer

	// SourceDir is the directory `use` imports resolve relative to.
	SourceDir string

	// Audit, when non-nil, receives security-sensitive events (block
	// execute, module load, path rejection) per §4.12. Nil disables audit
	// logging; the CLI decides whether and where to open a log (§6).
	Audit *audit.Log
}

// Interpreter is the evaluator's top-level context: global scope, module
// table, struct/enum registry, stdlib dispatch table, and the collector.
type Interpreter struct {
	opt Options

	Registry *value.Registry
	Stdlib   *stdlib.Registry
	GC       *gc.GC
	Security *security.Validators
	Poly     *polyglot.Registry
	Dispatch *dispatch.Dispatcher

	Global *env.Environment

	mu      sync.Mutex
	modules map[string]*Module

	// loadStack is the chain of module paths currently in Loading state, in
	// import order, so a cycle can be reported naming every module in it
	// (§8 property 4), not just the one where the cycle was detected.
	loadStack []string

	fs afs.Service

	callStack []errs.Frame
	depth     int
}

// New constructs an Interpreter with fresh global state (§6).
func New(opt Options) *Interpreter {
	if opt.Config == nil {
		opt.Config = config.Default()
	}
	if opt.SourceDir != "" {
		// The source tree root is always part of the allow-list (§4.1).
		opt.Config.AllowedDirs = append(opt.Config.AllowedDirs, opt.SourceDir)
	}
	sec := security.New(opt.Config)
	poly := polyglot.NewRegistry(sec)
	in := &Interpreter{
		opt:      opt,
		Registry: value.NewRegistry(),
		Stdlib:   stdlib.NewRegistry(),
		GC:       gc.New(opt.Config.GCThreshold),
		Security: sec,
		Poly:     poly,
		Dispatch: dispatch.New(poly, opt.Config.PolyglotTimeout),
		Global:   env.New(),
		modules:  map[string]*Module{},
		fs:       afs.New(),
	}
	in.Stdlib.RegisterDebug(in.GC)
	in.registerBuiltins()
	return in
}

// registerBuiltins binds the handful of global callables NAAb code can
// invoke directly rather than through module.function() dispatch (§4.7(b):
// "explicitly via a built-in gc_collect() callable from NAAb code").
func (in *Interpreter) registerBuiltins() {
	in.Global.Define("gc_collect", &value.Value{Tag: value.Func, Fn: &value.FuncValue{
		Name: "gc_collect",
		Native: func(args []*value.Value) (*value.Value, error) {
			in.GC.Collect(in)
			return value.NewNull(), nil
		},
	}})
}

// GCRoots implements gc.RootSource: every binding reachable from the global
// scope, every loaded module's root environment, and the live call stack's
// locals (§4.7).
func (in *Interpreter) GCRoots() []*value.Value {
	var roots []*value.Value
	roots = append(roots, in.Global.Roots()...)
	in.mu.Lock()
	mods := make([]*Module, 0, len(in.modules))
	for _, m := range in.modules {
		mods = append(mods, m)
	}
	in.mu.Unlock()
	for _, m := range mods {
		if m.Env != nil {
			roots = append(roots, m.Env.Roots()...)
		}
	}
	return roots
}

// Run parses and evaluates src as the program's entry module (§6).
func (in *Interpreter) Run(file, src string) (*value.Value, error) {
	prog, err := parser.ParseWithCaps(file, src, in.opt.Config.Caps)
	if err != nil {
		return nil, err
	}
	return in.EvalProgram(prog, in.Global)
}

// EvalProgram evaluates every top-level statement of prog in e, returning the
// value of a trailing bare return, or null when there is none (used by
// module loading and tests).
func (in *Interpreter) EvalProgram(prog *ast.Program, e *env.Environment) (*value.Value, error) {
	sig, err := in.execStmts(prog.Stmts, e)
	if err != nil {
		return nil, in.attachStack(err)
	}
	if sig.kind == sigReturn {
		return sig.value, nil
	}
	return value.NewNull(), nil
}

// pushFrame/popFrame maintain the call stack used for stack traces (§3 Call-
// stack frame, §7) and the recursion-depth guard (§4.1).
func (in *Interpreter) pushFrame(fn string, pos token.Pos) error {
	if in.depth >= in.opt.Config.Caps.InterpreterCallDepth {
		return errs.New(errs.StackOverflow, pos, "call stack depth exceeds limit of %d", in.opt.Config.Caps.InterpreterCallDepth)
	}
	in.depth++
	in.callStack = append(in.callStack, errs.Frame{Function: fn, File: pos.File, Line: pos.Line})
	return nil
}

func (in *Interpreter) popFrame() {
	in.depth--
	if len(in.callStack) > 0 {
		in.callStack = in.callStack[:len(in.callStack)-1]
	}
}

func (in *Interpreter) attachStack(err error) error {
	var ne *errs.Error
	if !errors.As(err, &ne) {
		return err
	}
	for i := len(in.callStack) - 1; i >= 0; i-- {
		ne.PushFrame(in.callStack[i])
	}
	return err
}

// auditEvent appends one entry to the configured audit log, if any (§4.12).
// Logging failures are deliberately swallowed: the audit stream must never
// turn a working program into a failing one mid-run.
func (in *Interpreter) auditEvent(event, details string, metadata map[string]string) {
	if in.opt.Audit == nil {
		return
	}
	_, _ = in.opt.Audit.Append(event, details, metadata)
}

// resolveModulePath turns a dotted import path ("pkg.sub") into a source
// file path relative to the interpreter's SourceDir (§4.6).
func (in *Interpreter) resolveModulePath(dotted string) string {
	parts := strings.Split(dotted, ".")
	return path.Join(in.opt.SourceDir, path.Join(parts...)+".naab")
}

// validateModulePath rejects `use` paths that aren't shaped like a slash
// import path (§4.3: "module names are path-shaped"), grounded on the same
// syntax family Go itself enforces for import paths, via
// golang.org/x/mod/module.CheckImportPath.
func validateModulePath(dotted string, pos token.Pos) error {
	asImportPath := strings.ReplaceAll(dotted, ".", "/")
	if err := module.CheckImportPath(asImportPath); err != nil {
		return errs.New(errs.Import, pos, "invalid module path %q: %v", dotted, err)
	}
	return nil
}

// LoadModule implements the NotLoaded -> Loading -> Loaded state machine
// with cycle detection (§4.6: importing a module already in Loading state is
// an ImportError).
func (in *Interpreter) LoadModule(dotted string, pos token.Pos) (*Module, error) {
	if err := validateModulePath(dotted, pos); err != nil {
		return nil, err
	}
	in.mu.Lock()
	mod, exists := in.modules[dotted]
	if exists {
		switch mod.State {
		case Loading:
			cycle := append(append([]string{}, in.loadStack...), dotted)
			in.mu.Unlock()
			return nil, errs.New(errs.Import, pos, "import cycle detected: %s", strings.Join(cycle, " -> "))
		case Loaded:
			in.mu.Unlock()
			return mod, nil
		}
	}
	mod = &Module{Path: dotted, State: Loading}
	in.modules[dotted] = mod
	in.loadStack = append(in.loadStack, dotted)
	in.mu.Unlock()

	defer func() {
		in.mu.Lock()
		if n := len(in.loadStack); n > 0 && in.loadStack[n-1] == dotted {
			in.loadStack = in.loadStack[:n-1]
		}
		in.mu.Unlock()
	}()

	filePath := in.resolveModulePath(dotted)
	canonical, err := in.Security.CanonicalizePath(filePath, pos)
	if err != nil {
		in.auditEvent("path_rejection", filePath, map[string]string{"module": dotted})
		in.mu.Lock()
		delete(in.modules, dotted)
		in.mu.Unlock()
		return nil, err
	}
	filePath = canonical
	in.auditEvent("module_load", dotted, map[string]string{"path": filePath})
	data, err := in.fs.DownloadWithURL(context.Background(), "file://"+filePath)
	if err != nil {
		in.mu.Lock()
		delete(in.modules, dotted)
		in.mu.Unlock()
		return nil, errs.New(errs.Import, pos, "cannot load module %q: %v", dotted, err)
	}

	prog, err := parser.ParseWithCaps(filePath, string(data), in.opt.Config.Caps)
	if err != nil {
		in.mu.Lock()
		delete(in.modules, dotted)
		in.mu.Unlock()
		return nil, err
	}

	modEnv := env.New()
	modEnv.IsModuleRoot = true
	modEnv.ModuleName = dotted
	if _, err := in.EvalProgram(prog, modEnv); err != nil {
		in.mu.Lock()
		delete(in.modules, dotted)
		in.mu.Unlock()
		return nil, err
	}

	in.mu.Lock()
	mod.State = Loaded
	mod.Env = modEnv
	in.mu.Unlock()
	return mod, nil
}

func undefinedNameError(e *env.Environment, name string, pos token.Pos) error {
	suggestion := errs.BestSuggestion(name, e.AllNames(), 2)
	msg := fmt.Sprintf("undefined name %q", name)
	if suggestion != "" {
		msg += ", " + errs.Suggestion(suggestion)
	}
	return errs.New(errs.Name, pos, "%s", msg)
}
