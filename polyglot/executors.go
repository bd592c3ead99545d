package polyglot

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/minio/highwayhash"
	"golang.org/x/sync/singleflight"

	"github.com/naab-lang/naab/value"
)

// embeddedExecutor runs §4.9's Python row: each Execute starts a new python3
// subprocess for the block, with bindings and results exchanged as JSON over
// stdin/stdout. No interpreter is embedded in the host process and no state
// is kept between blocks.
type embeddedExecutor struct {
	bin string
}

func newEmbeddedExecutor(bin string) *embeddedExecutor { return &embeddedExecutor{bin: bin} }

func (e *embeddedExecutor) Initialize(ctx context.Context) error {
	if _, err := exec.LookPath(e.bin); err != nil {
		return fmt.Errorf("%s not found on PATH: %w", e.bin, err)
	}
	return nil
}

func (e *embeddedExecutor) Shutdown(ctx context.Context) error { return nil }

func (e *embeddedExecutor) Execute(ctx context.Context, req Request) (*value.Value, error) {
	return runScriptSubprocess(ctx, e.bin, []string{"-c", wrapPythonJSON(req.Body, req.Bindings)}, req)
}

// wrapPythonJSON injects the binding names as real Python locals before the
// body runs. Indentation in the body is preserved verbatim (§4.9: Python is
// whitespace-sensitive, the lexer captured the body line-oriented).
func wrapPythonJSON(body string, bindings map[string]*value.Value) string {
	var b strings.Builder
	b.WriteString("import json,sys\n_b=json.loads(sys.stdin.read())\n")
	for name := range bindings {
		fmt.Fprintf(&b, "%s=_b[%q]\n", name, name)
	}
	b.WriteString(body)
	b.WriteString("\nprint(json.dumps(result if 'result' in dir() else None))\n")
	return b.String()
}

// freshContextExecutor models NAAb's JavaScript row (§4.9): a fresh VM
// context per block invocation, no state shared across calls. The body is
// wrapped in an IIFE so `return` works for multi-statement blocks.
type freshContextExecutor struct {
	bin string
}

func newFreshContextExecutor(bin string) *freshContextExecutor {
	return &freshContextExecutor{bin: bin}
}

func (e *freshContextExecutor) Initialize(ctx context.Context) error {
	if _, err := exec.LookPath(e.bin); err != nil {
		return fmt.Errorf("%s not found on PATH: %w", e.bin, err)
	}
	return nil
}

func (e *freshContextExecutor) Shutdown(ctx context.Context) error { return nil }

func (e *freshContextExecutor) Execute(ctx context.Context, req Request) (*value.Value, error) {
	var decls strings.Builder
	for name := range req.Bindings {
		fmt.Fprintf(&decls, "const %s = __b[%q];\n", name, name)
	}
	script := "const __b = JSON.parse(require('fs').readFileSync(0, 'utf8'));\n" +
		decls.String() +
		"const __r = (() => {\n" + wrapJSBody(req.Body) + "\n})();\n" +
		"console.log(JSON.stringify(__r === undefined ? null : __r));\n"
	return runScriptSubprocess(ctx, e.bin, []string{"-e", script}, req)
}

// wrapJSBody turns a bare final expression into the IIFE's return value:
// single-expression bodies are returned directly, multi-statement bodies are
// expected to use `return` themselves (or bind `result`).
func wrapJSBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if !strings.ContainsAny(trimmed, ";\n") && !strings.HasPrefix(trimmed, "return") {
		return "return (" + trimmed + ");"
	}
	if strings.Contains(trimmed, "result") && !strings.Contains(trimmed, "return") {
		return trimmed + "\nreturn typeof result === 'undefined' ? null : result;"
	}
	return trimmed
}

// subprocessExecutor is the spawn-per-call fallback (§4.9's Ruby/PHP/generic
// row): bin is invoked with its inline-script flag, bindings arrive as JSON
// on stdin, and the single value printed on stdout is the block's result.
type subprocessExecutor struct {
	bin        string
	scriptFlag string
	args       []string
}

func newSubprocessExecutor(bin, scriptFlag string, extraArgs []string) *subprocessExecutor {
	return &subprocessExecutor{bin: bin, scriptFlag: scriptFlag, args: extraArgs}
}

func (e *subprocessExecutor) Initialize(ctx context.Context) error {
	if _, err := exec.LookPath(e.bin); err != nil {
		return fmt.Errorf("%s not found on PATH: %w", e.bin, err)
	}
	return nil
}

func (e *subprocessExecutor) Shutdown(ctx context.Context) error { return nil }

func (e *subprocessExecutor) Execute(ctx context.Context, req Request) (*value.Value, error) {
	args := append(append([]string{}, e.args...), e.scriptFlag, req.Body)
	return runScriptSubprocess(ctx, e.bin, args, req)
}

// genericExecutor is §4.9's generic-subprocess row: the body itself names the
// program and its arguments, stdout is the result (raw, or one JSON document
// in sovereign-pipe mode).
type genericExecutor struct{}

func newGenericExecutor() *genericExecutor { return &genericExecutor{} }

func (e *genericExecutor) Initialize(ctx context.Context) error { return nil }
func (e *genericExecutor) Shutdown(ctx context.Context) error   { return nil }

func (e *genericExecutor) Execute(ctx context.Context, req Request) (*value.Value, error) {
	fields := strings.Fields(req.Body)
	if len(fields) == 0 {
		return value.NewNull(), nil
	}
	return runRawSubprocess(ctx, fields[0], fields[1:], req)
}

// shellExecutor runs the block body via `sh -c` when it contains compound
// operators (pipes, redirection, &&), otherwise splits it as a direct argv
// to avoid an unnecessary shell fork (§4.9's Shell row).
type shellExecutor struct{}

func newShellExecutor() *shellExecutor { return &shellExecutor{} }

func (e *shellExecutor) Initialize(ctx context.Context) error { return nil }
func (e *shellExecutor) Shutdown(ctx context.Context) error   { return nil }

var shellMetaChars = []string{"|", "&&", "||", ">", "<", ";", "$("}

func (e *shellExecutor) Execute(ctx context.Context, req Request) (*value.Value, error) {
	if containsAny(req.Body, shellMetaChars) {
		return runRawSubprocess(ctx, "sh", []string{"-c", req.Body}, req)
	}
	fields := strings.Fields(req.Body)
	if len(fields) == 0 {
		return value.NewString(""), nil
	}
	return runRawSubprocess(ctx, fields[0], fields[1:], req)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// compiledExecutor is §4.9's compile-and-cache row for C++/Rust/C#/Go:
// source is hashed (HighwayHash, content-addressed), the compiled artifact
// cached on disk, and concurrent requests for the same source deduplicated
// through a singleflight group so two goroutines racing on the same
// dependency-independent polyglot block don't compile it twice (§4.10).
// Temp source file names carry the content hash plus the CreateTemp nonce, so
// parallel dispatch never collides on paths (§4.9: "thread-safe temporary
// file paths").
type compiledExecutor struct {
	lang       string
	srcExt     string
	compileCmd []string
	runCmd     []string // non-nil when the artifact is not directly executable (C# under mono)
	cacheDir   string
	group      singleflight.Group
}

var highwayKey = []byte("NAABPOLYGLOTCOMPILECACHEHWHKEY32")

func newCompiledExecutor(lang, srcExt string, compileCmd, runCmd []string) *compiledExecutor {
	dir := filepath.Join(os.TempDir(), "naab-polyglot-cache", lang)
	return &compiledExecutor{lang: lang, srcExt: srcExt, compileCmd: compileCmd, runCmd: runCmd, cacheDir: dir}
}

func (e *compiledExecutor) Initialize(ctx context.Context) error {
	if _, err := exec.LookPath(e.compileCmd[0]); err != nil {
		return fmt.Errorf("%s not found on PATH: %w", e.compileCmd[0], err)
	}
	return os.MkdirAll(e.cacheDir, 0o755)
}

func (e *compiledExecutor) Shutdown(ctx context.Context) error { return nil }

func (e *compiledExecutor) contentHash(body string) (string, error) {
	h, err := highwayhash.New64(highwayKey)
	if err != nil {
		return "", err
	}
	if _, err := h.Write([]byte(body)); err != nil {
		return "", err
	}
	return hex.EncodeToString(uint64ToBytes(h.Sum64())), nil
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

func (e *compiledExecutor) Execute(ctx context.Context, req Request) (*value.Value, error) {
	src := wrapCompiledSource(e.lang, req.Body)
	key, err := e.contentHash(src)
	if err != nil {
		return nil, err
	}
	binPath := filepath.Join(e.cacheDir, key)

	_, err, _ = e.group.Do(key, func() (interface{}, error) {
		if _, statErr := os.Stat(binPath); statErr == nil {
			return nil, nil
		}
		return nil, e.compile(ctx, src, key, binPath)
	})
	if err != nil {
		return nil, err
	}
	if len(e.runCmd) > 0 {
		args := append(append([]string{}, e.runCmd[1:]...), binPath)
		return runRawSubprocess(ctx, e.runCmd[0], args, req)
	}
	return runRawSubprocess(ctx, binPath, nil, req)
}

func (e *compiledExecutor) compile(ctx context.Context, src, key, binPath string) error {
	srcFile, err := os.CreateTemp(e.cacheDir, "src-"+key+"-*"+e.srcExt)
	if err != nil {
		return err
	}
	defer os.Remove(srcFile.Name())
	if _, err := srcFile.WriteString(src); err != nil {
		return err
	}
	srcFile.Close()

	var args []string
	for _, a := range e.compileCmd[1:] {
		if strings.HasSuffix(a, ":") {
			// csc-style joined flag: -out:<path>
			args = append(args, a+binPath)
		} else {
			args = append(args, a)
		}
	}
	if !strings.HasSuffix(e.compileCmd[len(e.compileCmd)-1], ":") {
		args = append(args, binPath)
	}
	args = append(args, srcFile.Name())
	cmd := exec.CommandContext(ctx, e.compileCmd[0], args...)
	var errOut bytes.Buffer
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s compile failed: %s", e.lang, errOut.String())
	}
	return nil
}

// wrapCompiledSource generates a self-contained translation unit around a
// bare block body so common idioms compile without user boilerplate (§4.9:
// the C++ wrapper injects standard STL headers; Go/Rust bodies get a main
// wrapper when they don't declare one). Bodies that already carry their own
// entry point pass through untouched.
func wrapCompiledSource(lang, body string) string {
	switch lang {
	case "cpp":
		if strings.Contains(body, "int main") {
			return body
		}
		return "#include <algorithm>\n#include <iostream>\n#include <map>\n" +
			"#include <string>\n#include <vector>\n\n" +
			"int main() {\n" + body + "\nreturn 0;\n}\n"
	case "rust":
		if strings.Contains(body, "fn main") {
			return body
		}
		return "fn main() {\n" + body + "\n}\n"
	case "go":
		if strings.Contains(body, "package main") {
			return body
		}
		return "package main\n\nimport \"fmt\"\n\nvar _ = fmt.Println\n\nfunc main() {\n" + body + "\n}\n"
	case "csharp":
		if strings.Contains(body, "static void Main") || strings.Contains(body, "static int Main") {
			return body
		}
		return "using System;\n\nclass Program {\n    static void Main() {\n" + body + "\n    }\n}\n"
	}
	return body
}

// runScriptSubprocess is the shared plumbing for every JSON-framed executor:
// write marshalled bindings to stdin, run, parse the single JSON value on
// stdout (§4.9).
func runScriptSubprocess(ctx context.Context, bin string, args []string, req Request) (*value.Value, error) {
	payload, err := marshalJSON(req.Bindings)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return nil, &foreignFailure{stderr: strings.TrimSpace(errOut.String()), err: err}
	}
	return decodeResult(out.String(), true)
}

// runRawSubprocess runs argv-framed executors (shell, generic, compiled):
// stdout is the result, decoded as JSON only in sovereign-pipe mode.
func runRawSubprocess(ctx context.Context, bin string, args []string, req Request) (*value.Value, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if len(req.Bindings) > 0 {
		payload, err := marshalJSON(req.Bindings)
		if err != nil {
			return nil, err
		}
		cmd.Stdin = bytes.NewReader(payload)
	}
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return nil, &foreignFailure{stderr: strings.TrimSpace(errOut.String()), err: err}
	}
	return decodeResult(out.String(), req.JSON)
}

// decodeResult converts a foreign process's stdout into a NAAb value. Empty
// output is null. With tryJSON set, stdout that parses as one JSON document
// is decoded; output that does not parse is returned as raw text rather than
// rejected. Without tryJSON, stdout is always returned as text.
func decodeResult(stdout string, tryJSON bool) (*value.Value, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return value.NewNull(), nil
	}
	if tryJSON {
		var decoded interface{}
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return fromJSONable(decoded), nil
		}
	}
	return value.NewString(strings.TrimRight(stdout, "\n")), nil
}

// foreignFailure carries a foreign process's stderr back to the registry's
// error-mapping layer, which extracts the foreign error class and
// block-relative line from it (§4.9).
type foreignFailure struct {
	stderr string
	err    error
}

func (f *foreignFailure) Error() string {
	if f.stderr != "" {
		return f.stderr
	}
	return f.err.Error()
}

func (f *foreignFailure) Unwrap() error { return f.err }
