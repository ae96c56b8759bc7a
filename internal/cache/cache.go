// Package cache deduplicates jobs by content: a stable key over the
// alignment-relevant inputs maps to the job that first produced artifacts
// for that content.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/example/tts-reader/internal/voice"
)

// ErrInconsistent marks a cache index entry whose origin job is READY but
// whose artifacts are gone. The caller must fail rather than resynthesize, so
// a corrupted cache is never papered over.
var ErrInconsistent = errors.New("cache inconsistency")

const indexFile = "index.json"

// Key derives the deterministic content key for a job: the script with all
// whitespace removed, the sorted role→voice-name mapping, and the model id,
// hashed with SHA-256. Formatting-only script differences yield equal keys;
// any wording, casting, or model change yields a different key.
func Key(script string, reg voice.Registry, model string) (string, error) {
	slim := make(map[string]string, len(reg))
	var missing []string
	for role, v := range reg {
		if v.Name == "" {
			missing = append(missing, role)
			continue
		}
		slim[role] = v.Name
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("registry missing voice names for roles: %s", strings.Join(missing, ", "))
	}

	// Struct field order plus encoding/json's sorted map keys make the
	// serialization deterministic.
	payload := struct {
		Model    string            `json:"model"`
		Registry map[string]string `json:"registry"`
		Script   string            `json:"script"`
	}{
		Model:    model,
		Registry: slim,
		Script:   stripWhitespace(script),
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serialize cache key payload: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Index is the persistent key→origin-job mapping for one cache root.
type Index struct {
	root string
}

func NewIndex(root string) *Index {
	return &Index{root: root}
}

type indexEntry struct {
	JobID string `json:"job_id"`
}

// LookupOrigin returns the recorded origin job for a key. A missing or
// malformed index is a cache miss, never an error.
func (ix *Index) LookupOrigin(key string) (string, bool) {
	idx := ix.load()
	entry, ok := idx[key]
	if !ok || entry.JobID == "" {
		return "", false
	}
	return entry.JobID, true
}

// RecordOrigin writes or overwrites the origin job for a key. The caller is
// responsible for only recording jobs that reached the terminal success
// state. The index file is replaced atomically so readers never observe a
// partial write.
func (ix *Index) RecordOrigin(key, jobID string) error {
	idx := ix.load()
	idx[key] = indexEntry{JobID: jobID}

	if err := os.MkdirAll(ix.root, 0o755); err != nil {
		return fmt.Errorf("create cache root: %w", err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize cache index: %w", err)
	}

	path := filepath.Join(ix.root, indexFile)
	tmp, err := os.CreateTemp(ix.root, indexFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache index: %w", err)
	}
	return nil
}

func (ix *Index) load() map[string]indexEntry {
	data, err := os.ReadFile(filepath.Join(ix.root, indexFile))
	if err != nil {
		return map[string]indexEntry{}
	}
	var idx map[string]indexEntry
	if err := json.Unmarshal(data, &idx); err != nil || idx == nil {
		return map[string]indexEntry{}
	}
	return idx
}

// LinkOrCopy shares an artifact into a new job directory without failing when
// the cheaper mechanisms are unavailable: hard link, then symlink, then a
// full byte copy. An existing destination is left untouched.
func LinkOrCopy(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	if abs, err := filepath.Abs(src); err == nil {
		if err := os.Symlink(abs, dst); err == nil {
			return nil
		}
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source artifact: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination artifact: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy artifact: %w", err)
	}
	return out.Close()
}
