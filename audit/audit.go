// Package audit implements NAAb's tamper-evident audit log (§4.12):
// security-sensitive events (block load, block execute, path rejection, FFI
// rejection, policy violation, auth action) are appended to a hash-chained,
// line-delimited JSON log, optionally HMAC-signed, with a standalone offline
// verifier.
package audit

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// genesisHash is prev_hash for the first entry in a chain (§4.12).
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one line of the audit log.
type Entry struct {
	Sequence  uint64            `json:"sequence"`
	Timestamp string            `json:"timestamp"`
	PrevHash  string            `json:"prev_hash"`
	Event     string            `json:"event"`
	Details   string            `json:"details"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Hash      string            `json:"hash"`
	Signature string            `json:"signature"`
}

// Log is an append-only, hash-chained audit log backed by a file. A mutex
// guards Append; every instance stamps a process-run identifier into each
// entry's metadata so log files from concurrent runs stay distinguishable
// (§5 Shared resources: "the audit log... is process-wide; all mutations
// pass through a mutex").
type Log struct {
	mu       sync.Mutex
	f        *os.File
	hmacKey  []byte
	seq      uint64
	prevHash string
	runID    string
}

// Open opens (creating if needed) the log file at path for appending,
// replaying existing entries to recover the chain's sequence/prevHash
// position. hmacKey, if non-empty, enables HMAC-SHA256 signing (§4.12).
func Open(path string, hmacKey []byte) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	l := &Log{f: f, hmacKey: hmacKey, prevHash: genesisHash, runID: uuid.NewString()}
	if err := l.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) recover() error {
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	scanner := bufio.NewScanner(l.f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var last Entry
	seen := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return fmt.Errorf("audit: corrupt log line: %w", err)
		}
		last = e
		seen = true
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if seen {
		l.seq = last.Sequence + 1
		l.prevHash = last.Hash
	}
	if _, err := l.f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return nil
}

// Append writes one entry, chaining it to the previous entry's hash, and
// flushes it to disk before returning (§4.12).
func (l *Log) Append(event, details string, metadata map[string]string) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["run_id"] = l.runID

	e := Entry{
		Sequence: l.seq,
		// RFC 3339 in UTC renders as ISO 8601 (§4.12).
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		PrevHash:  l.prevHash,
		Event:     event,
		Details:   details,
		Metadata:  md,
	}
	e.Hash = computeHash(e.Sequence, e.Timestamp, e.PrevHash, e.Event, e.Details, e.Metadata)
	if len(l.hmacKey) > 0 {
		e.Signature = computeSignature(l.hmacKey, e.Hash)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return nil, err
	}
	if err := l.f.Sync(); err != nil {
		return nil, err
	}

	l.seq++
	l.prevHash = e.Hash
	return &e, nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// canonical builds the pipe-delimited string hashed for an entry's integrity
// check: "sequence|timestamp|prev_hash|event|details|sorted(metadata)" with a
// fixed escape scheme (backslash and pipe are backslash-escaped) so the
// string reconstructs identically from the same field values whether built
// at append time or at verify time (§4.12).
func canonical(seq uint64, timestamp, prevHash, event, details string, metadata map[string]string) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = escape(k) + "=" + escape(metadata[k])
	}

	parts := []string{
		fmt.Sprintf("%d", seq),
		escape(timestamp),
		escape(prevHash),
		escape(event),
		escape(details),
		strings.Join(pairs, ","),
	}
	return strings.Join(parts, "|")
}

// escape applies the canonical form's fixed escape scheme: backslash first
// (so it can't be confused with an escape it introduces), then the field
// separator and the metadata pair separators.
func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `|`, `\|`, `=`, `\=`, `,`, `\,`)
	return r.Replace(s)
}

func computeHash(seq uint64, timestamp, prevHash, event, details string, metadata map[string]string) string {
	sum := sha256.Sum256([]byte(canonical(seq, timestamp, prevHash, event, details, metadata)))
	return hex.EncodeToString(sum[:])
}

func computeSignature(key []byte, hash string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(hash))
	return hex.EncodeToString(mac.Sum(nil))
}
