// Package config defines the runtime's configuration surface (§6, §4.1): input
// caps, GC threshold, polyglot timeout, allow-list directories, and audit-log
// settings. The core never reads env vars or flags itself — that belongs to
// the CLI (out of scope, §1) — but it owns the shape of the structure and
// knows how to (de)serialize it, mirroring the teacher's own Options struct.
package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Caps holds the configurable input caps from §4.1.
type Caps struct {
	SourceFileBytes     int64 `yaml:"sourceFileBytes"`
	StringLiteralBytes  int64 `yaml:"stringLiteralBytes"`
	PolyglotBodyBytes   int64 `yaml:"polyglotBodyBytes"`
	ParserRecursion     int   `yaml:"parserRecursion"`
	InterpreterCallDepth int  `yaml:"interpreterCallDepth"`
	CollectionElements  int  `yaml:"collectionElements"`
}

// DefaultCaps returns the defaults enumerated in §4.1's table.
func DefaultCaps() Caps {
	return Caps{
		SourceFileBytes:      10 * 1024 * 1024,
		StringLiteralBytes:   1 * 1024 * 1024,
		PolyglotBodyBytes:    1 * 1024 * 1024,
		ParserRecursion:      1000,
		InterpreterCallDepth: 10000,
		CollectionElements:   1000000,
	}
}

// Config is the full runtime configuration (§6 Configuration).
type Config struct {
	Caps Caps `yaml:"caps"`

	// GCThreshold is the allocation count since last GC that triggers an
	// automatic collection (§4.7).
	GCThreshold int `yaml:"gcThreshold"`

	// PolyglotTimeout is the default per-block execution timeout (§4.9, §5).
	PolyglotTimeout time.Duration `yaml:"polyglotTimeout"`

	// AllowedDirs is the allow-list of directories paths must canonicalize
	// into (§4.1). Default() fills it with the working directory and the user
	// cache directory; an empty list disables the check and accepts every path.
	AllowedDirs []string `yaml:"allowedDirs"`

	// AuditLogPath is the default location for the tamper-evident log (§6).
	AuditLogPath string `yaml:"auditLogPath"`

	// AuditHMACKey, when non-empty, enables HMAC-SHA256 signing of audit
	// entries (§4.12). Never serialized back out in WriteYAML's zero case
	// disclosure — callers own key handling.
	AuditHMACKey []byte `yaml:"auditHMACKey,omitempty"`

	// Production, when true, scrubs absolute paths and stack offsets from
	// user-visible error output (§7).
	Production bool `yaml:"production"`
}

// Default returns the out-of-the-box configuration: default caps, a 10,000
// allocation GC threshold, a 30s polyglot timeout, and an allow-list of the
// current working directory plus the user cache directory, per §4.1/§4.9.
func Default() *Config {
	cwd, _ := os.Getwd()
	cache, _ := os.UserCacheDir()
	allowed := []string{}
	if cwd != "" {
		allowed = append(allowed, cwd)
	}
	if cache != "" {
		allowed = append(allowed, filepath.Join(cache, "naab"))
	}
	return &Config{
		Caps:            DefaultCaps(),
		GCThreshold:     10000,
		PolyglotTimeout: 30 * time.Second,
		AllowedDirs:     allowed,
		AuditLogPath:    filepath.Join(cache, "naab", "audit.log"),
	}
}

// FromYAML parses a Config from r, starting from Default() so omitted fields
// keep their defaults.
func FromYAML(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, err
	}
	return cfg, nil
}

// WriteYAML serializes cfg to w.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(c)
}
