package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/example/tts-reader/internal/align"
)

var (
	// ErrNotFound is returned for job ids with no persisted record.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a lifecycle step is rejected.
	// The stored state is left unchanged; only the error text and update
	// timestamp are refreshed, preserving forensic information without
	// corrupting the recorded stage.
	ErrInvalidTransition = errors.New("invalid state transition")
)

const (
	statusFile   = "status.json"
	requestFile  = "request.json"
	scriptFile   = "script.txt"
	manifestFile = "manifest.json"
	timingsFile  = "timings.json"
	audioFile    = "tts_out.wav"
)

// Request is the immutable payload a job was created with.
type Request struct {
	Script string   `json:"script"`
	Roles  []string `json:"roles"`
}

// StatusRecord is the persisted lifecycle record, the single source of truth
// for a job's state. Timestamps are unix seconds.
type StatusRecord struct {
	ID        string  `json:"id"`
	State     State   `json:"state"`
	Error     string  `json:"error,omitempty"`
	CreatedAt float64 `json:"createdAt"`
	UpdatedAt float64 `json:"updatedAt"`
}

// Manifest is what a player needs to render and play a finished job.
type Manifest struct {
	AudioURL   string `json:"audioUrl"`
	TimingsURL string `json:"timingsUrl"`
	Script     string `json:"script"`
}

// Timings is the persisted alignment artifact.
type Timings struct {
	Words []align.WordTiming `json:"words"`
}

// Store persists jobs as one directory per id under root. Each record write
// replaces the whole file atomically; the design assumes a single writer per
// job id, so no cross-process locking beyond atomic replace is needed.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs root: %w", err)
	}
	return &Store{root: root}, nil
}

// Dir returns the directory of one job.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Exists reports whether a job directory is present.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.Dir(id))
	return err == nil
}

// Create allocates a job id, persists the request alongside the raw script,
// and initializes the status record in PENDING.
func (s *Store) Create(req Request) (string, error) {
	id := uuid.New().String()
	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, requestFile), req); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, scriptFile), []byte(req.Script), 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}

	now := unixNow()
	status := StatusRecord{
		ID:        id,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := writeJSON(filepath.Join(dir, statusFile), status); err != nil {
		return "", err
	}
	return id, nil
}

// Status reads a job's lifecycle record.
func (s *Store) Status(id string) (StatusRecord, error) {
	var st StatusRecord
	if err := readJSON(filepath.Join(s.Dir(id), statusFile), &st); err != nil {
		if os.IsNotExist(err) {
			return StatusRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return StatusRecord{}, fmt.Errorf("read status: %w", err)
	}
	return st, nil
}

// Transition moves a job to the next lifecycle state via a full
// read-modify-write of the status record. errMsg is recorded alongside the
// state (used for FAILED). A rejected transition keeps the stored state but
// still records errMsg and refreshes the update timestamp.
func (s *Store) Transition(id string, next State, errMsg string) error {
	path := filepath.Join(s.Dir(id), statusFile)

	var st StatusRecord
	if err := readJSON(path, &st); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("read status: %w", err)
	}

	if !CanTransition(st.State, next) {
		if errMsg != "" {
			st.Error = errMsg
		}
		st.UpdatedAt = unixNow()
		if err := writeJSON(path, st); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.State, next)
	}

	st.State = next
	if errMsg != "" {
		st.Error = errMsg
	}
	st.UpdatedAt = unixNow()
	return writeJSON(path, st)
}

// Request reads back the immutable creation payload.
func (s *Store) Request(id string) (Request, error) {
	var req Request
	if err := readJSON(filepath.Join(s.Dir(id), requestFile), &req); err != nil {
		if os.IsNotExist(err) {
			return Request{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Request{}, fmt.Errorf("read request: %w", err)
	}
	return req, nil
}

func (s *Store) WriteManifest(id string, m Manifest) error {
	return writeJSON(filepath.Join(s.Dir(id), manifestFile), m)
}

// Manifest reads a job's manifest. os.IsNotExist on the returned error means
// the job has not produced one yet.
func (s *Store) Manifest(id string) (Manifest, error) {
	var m Manifest
	if err := readJSON(filepath.Join(s.Dir(id), manifestFile), &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (s *Store) WriteTimings(id string, words []align.WordTiming) error {
	if words == nil {
		words = []align.WordTiming{}
	}
	return writeJSON(filepath.Join(s.Dir(id), timingsFile), Timings{Words: words})
}

// AudioPath returns where a job's final audio lives; the file may not exist
// yet.
func (s *Store) AudioPath(id string) string {
	return filepath.Join(s.Dir(id), audioFile)
}

// TimingsPath returns where a job's timings artifact lives; the file may not
// exist yet.
func (s *Store) TimingsPath(id string) string {
	return filepath.Join(s.Dir(id), timingsFile)
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
