// Package security implements NAAb's trust-boundary guards (§4.11): path
// canonicalization against an allow-list, inbound FFI value validation,
// overflow-checked arithmetic primitives, and deserialization caps. Every
// check here produces a typed errs.Error rather than panicking or silently
// truncating, since these are the seams where foreign/untrusted data enters
// the interpreter (polyglot marshalling, file I/O, regex compilation).
package security

import (
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/naab-lang/naab/config"
	"github.com/naab-lang/naab/errs"
	"github.com/naab-lang/naab/token"
)

// Validators bundles the runtime's configured caps and allow-list so callers
// don't have to thread config.Config through every call site.
type Validators struct {
	allowedDirs []string
	caps        config.Caps

	mu      sync.Mutex
	handles map[string]interface{} // opaque foreign pointer handle table (§4.11)
}

func New(cfg *config.Config) *Validators {
	v := &Validators{handles: map[string]interface{}{}}
	if cfg != nil {
		// Allow-list entries are themselves resolved through the same
		// canonicalizer the checked paths go through, so a symlinked allow
		// directory still matches its resolved form.
		for _, dir := range cfg.AllowedDirs {
			if real, err := filepath.EvalSymlinks(dir); err == nil {
				v.allowedDirs = append(v.allowedDirs, real)
			} else {
				v.allowedDirs = append(v.allowedDirs, filepath.Clean(dir))
			}
		}
		v.caps = cfg.Caps
	}
	return v
}

// CanonicalizePath resolves p to an absolute, symlink-free path and checks it
// falls within one of the configured allow-listed directories (§4.1, §4.11).
// maxPathBytes caps total path length before any filesystem call (§4.11).
const maxPathBytes = 4096

func (v *Validators) CanonicalizePath(p string, pos token.Pos) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", errs.New(errs.Path, pos, "path contains a null byte")
	}
	if len(p) > maxPathBytes {
		return "", errs.New(errs.Path, pos, "path exceeds %d bytes", maxPathBytes)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errs.New(errs.Path, pos, "cannot resolve path %q: %v", p, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// A not-yet-existing file (e.g. about to be created) can't be resolved
		// through EvalSymlinks; fall back to the cleaned absolute path so
		// writes to new files still pass the allow-list check.
		real = filepath.Clean(abs)
	}
	if len(v.allowedDirs) == 0 {
		return real, nil
	}
	for _, dir := range v.allowedDirs {
		rel, err := filepath.Rel(dir, real)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return real, nil
		}
	}
	return "", errs.New(errs.Path, pos, "path %q escapes the allowed directory set", p)
}

// ValidateFFIInt checks an inbound integer from a foreign runtime falls
// within [min, max] (§4.11: bounds-check before crossing into NAAb's int).
func ValidateFFIInt(v int64, min, max int64, pos token.Pos) error {
	if v < min || v > max {
		return errs.New(errs.Arithmetic, pos, "foreign integer %d out of bounds [%d, %d]", v, min, max)
	}
	return nil
}

// ValidateUTF8String rejects a foreign string that is not valid UTF-8 before
// it is wrapped in a NAAb string value (§4.11).
func ValidateUTF8String(s string, pos token.Pos) error {
	if !utf8.ValidString(s) {
		return errs.New(errs.Polyglot, pos, "foreign string is not valid UTF-8")
	}
	return nil
}

// ValidateRegexPattern caps the length of a pattern string before it is
// compiled, to keep a hostile or buggy pattern from triggering catastrophic
// backtracking or unbounded memory use downstream (§4.11).
func (v *Validators) ValidateRegexPattern(pattern string, pos token.Pos) error {
	const maxPatternBytes = 4096
	if len(pattern) > maxPatternBytes {
		return errs.New(errs.ResourceLimit, pos, "regex pattern exceeds %d bytes", maxPatternBytes)
	}
	return nil
}

// ValidateJSONDepth walks decoded JSON (already unmarshalled into
// interface{}) and rejects nesting beyond maxDepth, guarding against stack
// exhaustion from a hostile polyglot JSON payload (§4.9, §4.11).
func ValidateJSONDepth(v interface{}, maxDepth int, pos token.Pos) error {
	return validateDepth(v, maxDepth, 0, pos)
}

func validateDepth(v interface{}, maxDepth, depth int, pos token.Pos) error {
	if depth > maxDepth {
		return errs.New(errs.ResourceLimit, pos, "JSON nesting exceeds depth %d", maxDepth)
	}
	switch t := v.(type) {
	case map[string]interface{}:
		for _, child := range t {
			if err := validateDepth(child, maxDepth, depth+1, pos); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, child := range t {
			if err := validateDepth(child, maxDepth, depth+1, pos); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddOverflows, SubOverflows, MulOverflows implement the overflow checks
// interp's arithmetic evaluator calls before trusting a machine-word int64
// result (§4.11: "arithmetic overflow-checking primitives").
func AddOverflows(a, b int64) bool {
	r := a + b
	return (b > 0 && r < a) || (b < 0 && r > a)
}

func SubOverflows(a, b int64) bool {
	r := a - b
	return (b < 0 && r < a) || (b > 0 && r > a)
}

func MulOverflows(a, b int64) bool {
	if a == 0 || b == 0 {
		return false
	}
	r := a * b
	return r/b != a
}

// RegisterHandle stores an opaque foreign pointer under a fresh UUID handle
// id, never exposing the underlying Go value to NAAb code directly (§4.11,
// §3 ForeignValue).
func (v *Validators) RegisterHandle(ptr interface{}) string {
	id := uuid.NewString()
	v.mu.Lock()
	v.handles[id] = ptr
	v.mu.Unlock()
	return id
}

func (v *Validators) LookupHandle(id string) (interface{}, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ptr, ok := v.handles[id]
	return ptr, ok
}

func (v *Validators) ReleaseHandle(id string) {
	v.mu.Lock()
	delete(v.handles, id)
	v.mu.Unlock()
}
