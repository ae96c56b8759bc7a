package job

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/example/tts-reader/internal/align"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestCreateAndStatus(t *testing.T) {
	s := newTestStore(t)

	req := Request{Script: "SCRIPT:\n[narrator] Hello.", Roles: []string{"narrator"}}
	id, err := s.Create(req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id == "" {
		t.Fatal("Create() returned empty id")
	}

	st, err := s.Status(id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.ID != id {
		t.Errorf("status id = %q, want %q", st.ID, id)
	}
	if st.State != StatePending {
		t.Errorf("initial state = %s, want %s", st.State, StatePending)
	}
	if st.CreatedAt == 0 || st.UpdatedAt != st.CreatedAt {
		t.Errorf("timestamps = %f/%f, want equal and nonzero", st.CreatedAt, st.UpdatedAt)
	}

	got, err := s.Request(id)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Errorf("Request() = %#v, want %#v", got, req)
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir(id), "script.txt"))
	if err != nil {
		t.Fatalf("read script.txt: %v", err)
	}
	if string(raw) != req.Script {
		t.Errorf("script.txt = %q, want %q", raw, req.Script)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Status("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Status() error = %v, want ErrNotFound", err)
	}
	if _, err := s.Request("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Request() error = %v, want ErrNotFound", err)
	}
	if err := s.Transition("missing", StateSynthesizing, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Transition() error = %v, want ErrNotFound", err)
	}
}

func TestTransitionWalk(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(Request{Script: "SCRIPT:\n[narrator] Hi.", Roles: []string{"narrator"}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for _, next := range []State{StateSynthesizing, StateAligning, StateReady} {
		if err := s.Transition(id, next, ""); err != nil {
			t.Fatalf("Transition(%s) error = %v", next, err)
		}
		st, err := s.Status(id)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if st.State != next {
			t.Fatalf("state = %s, want %s", st.State, next)
		}
	}
}

func TestTransitionRejectionKeepsState(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(Request{Script: "SCRIPT:\n[narrator] Hi.", Roles: []string{"narrator"}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for _, next := range []State{StateSynthesizing, StateAligning, StateReady} {
		if err := s.Transition(id, next, ""); err != nil {
			t.Fatalf("Transition(%s) error = %v", next, err)
		}
	}

	before, err := s.Status(id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	// READY is terminal: a late failure report must not change the state,
	// but leaves its message and a fresh timestamp behind.
	err = s.Transition(id, StateFailed, "late failure")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition() error = %v, want ErrInvalidTransition", err)
	}

	after, err := s.Status(id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if after.State != StateReady {
		t.Errorf("state after rejected transition = %s, want READY", after.State)
	}
	if after.Error != "late failure" {
		t.Errorf("error after rejected transition = %q, want %q", after.Error, "late failure")
	}
	if after.UpdatedAt < before.UpdatedAt {
		t.Errorf("updatedAt went backwards: %f -> %f", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestTransitionRejectionWithoutMessageStillTouches(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(Request{Script: "SCRIPT:\n[narrator] Hi.", Roles: []string{"narrator"}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err = s.Transition(id, StateReady, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition() error = %v, want ErrInvalidTransition", err)
	}
	st, err := s.Status(id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != StatePending {
		t.Errorf("state = %s, want PENDING", st.State)
	}
	if st.Error != "" {
		t.Errorf("error = %q, want empty", st.Error)
	}
}

func TestManifestAndTimings(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(Request{Script: "SCRIPT:\n[narrator] Hi.", Roles: []string{"narrator"}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := s.Manifest(id); !os.IsNotExist(err) {
		t.Fatalf("Manifest() before write error = %v, want IsNotExist", err)
	}

	m := Manifest{AudioURL: "/v1/tts/jobs/" + id + "/audio", TimingsURL: "/v1/tts/jobs/" + id + "/timings", Script: "[narrator] Hi."}
	if err := s.WriteManifest(id, m); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}
	got, err := s.Manifest(id)
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if got != m {
		t.Errorf("Manifest() = %#v, want %#v", got, m)
	}

	words := []align.WordTiming{{Word: "hi", Start: 0, End: 0.4, Idx: 0}}
	if err := s.WriteTimings(id, words); err != nil {
		t.Fatalf("WriteTimings() error = %v", err)
	}
	if _, err := os.Stat(s.TimingsPath(id)); err != nil {
		t.Fatalf("timings artifact missing: %v", err)
	}

	// nil slice persists as an empty array, not null.
	if err := s.WriteTimings(id, nil); err != nil {
		t.Fatalf("WriteTimings(nil) error = %v", err)
	}
	raw, err := os.ReadFile(s.TimingsPath(id))
	if err != nil {
		t.Fatalf("read timings: %v", err)
	}
	if !strings.Contains(string(raw), "[]") {
		t.Errorf("timings with nil words = %s, want empty array", raw)
	}
}
