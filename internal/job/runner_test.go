package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/tts-reader/internal/align"
	"github.com/example/tts-reader/internal/cache"
	"github.com/example/tts-reader/internal/config"
	"github.com/example/tts-reader/internal/script"
	"github.com/example/tts-reader/internal/voice"
)

type fakeProducer struct {
	calls int
	err   error
}

func (f *fakeProducer) Produce(_ context.Context, _ *script.Document, _ string, _ voice.Registry, outPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("RIFFfake"), 0o644)
}

type fakeAligner struct {
	calls int
	words []align.WordTiming
	err   error
}

func (f *fakeAligner) Align(_ context.Context, _, _ string) ([]align.WordTiming, error) {
	f.calls++
	return f.words, f.err
}

type runnerFixture struct {
	store  *Store
	runner *Runner
	prod   *fakeProducer
	ali    *fakeAligner
	idx    *cache.Index
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	dir := t.TempDir()

	voicesPath := filepath.Join(dir, "voices.yml")
	regYAML := "narrator:\n  name: Kore\nspeaker_a:\n  name: Puck\n"
	if err := os.WriteFile(voicesPath, []byte(regYAML), 0o644); err != nil {
		t.Fatalf("write voices: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = dir
	cfg.Paths.VoicesPath = voicesPath

	store, err := NewStore(cfg.JobsDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	prod := &fakeProducer{}
	ali := &fakeAligner{words: []align.WordTiming{
		{Word: "hello", Start: 0, End: 0.4, Idx: 0},
		{Word: "there", Start: 0.4, End: 0.8, Idx: 1},
	}}
	idx := cache.NewIndex(cfg.CacheDir())

	return &runnerFixture{
		store:  store,
		runner: NewRunner(store, &cfg, prod, ali, idx, nil),
		prod:   prod,
		ali:    ali,
		idx:    idx,
	}
}

func (fx *runnerFixture) submit(t *testing.T, text string) string {
	t.Helper()
	id, err := fx.store.Create(Request{Script: text, Roles: []string{"narrator"}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return id
}

const runnerScript = "SCRIPT:\n[narrator] Hello there."

func TestRunnerSuccess(t *testing.T) {
	fx := newRunnerFixture(t)
	id := fx.submit(t, runnerScript)

	fx.runner.Run(context.Background(), id)

	st, err := fx.store.Status(id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != StateReady {
		t.Fatalf("state = %s (%s), want READY", st.State, st.Error)
	}
	if fx.prod.calls != 1 || fx.ali.calls != 1 {
		t.Errorf("producer/aligner calls = %d/%d, want 1/1", fx.prod.calls, fx.ali.calls)
	}

	if _, err := os.Stat(fx.store.AudioPath(id)); err != nil {
		t.Errorf("audio artifact missing: %v", err)
	}
	if _, err := os.Stat(fx.store.TimingsPath(id)); err != nil {
		t.Errorf("timings artifact missing: %v", err)
	}

	m, err := fx.store.Manifest(id)
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if m.AudioURL != "/v1/tts/jobs/"+id+"/audio" {
		t.Errorf("audio url = %q", m.AudioURL)
	}
	if m.Script != "[narrator] Hello there." {
		t.Errorf("manifest script = %q", m.Script)
	}
}

func TestRunnerCacheHitSkipsSynthesis(t *testing.T) {
	fx := newRunnerFixture(t)

	first := fx.submit(t, runnerScript)
	fx.runner.Run(context.Background(), first)

	// Same content, different formatting: the key must match the first job.
	second := fx.submit(t, "SCRIPT:\n\n[narrator]   Hello   there.\n")
	fx.runner.Run(context.Background(), second)

	st, err := fx.store.Status(second)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != StateReady {
		t.Fatalf("state = %s (%s), want READY", st.State, st.Error)
	}
	if fx.prod.calls != 1 {
		t.Errorf("producer calls = %d, want 1 (second job must reuse)", fx.prod.calls)
	}
	if fx.ali.calls != 1 {
		t.Errorf("aligner calls = %d, want 1 (second job must reuse)", fx.ali.calls)
	}
	if _, err := os.Stat(fx.store.AudioPath(second)); err != nil {
		t.Errorf("reused audio artifact missing: %v", err)
	}
}

func TestRunnerCueDifferenceSharesCache(t *testing.T) {
	fx := newRunnerFixture(t)

	first := fx.submit(t, runnerScript)
	fx.runner.Run(context.Background(), first)

	// Cues and character labels are stripped from the alignment view, so
	// these jobs speak the same words and must share the first job's audio.
	second := fx.submit(t, "SCRIPT:\n[narrator] <Jo> (smiles softly) Hello there.")
	fx.runner.Run(context.Background(), second)

	st, err := fx.store.Status(second)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != StateReady {
		t.Fatalf("state = %s (%s), want READY", st.State, st.Error)
	}
	if fx.prod.calls != 1 {
		t.Errorf("producer calls = %d, want 1 (cue-only difference must reuse)", fx.prod.calls)
	}
}

func TestRunnerCacheInconsistencyFails(t *testing.T) {
	fx := newRunnerFixture(t)

	first := fx.submit(t, runnerScript)
	fx.runner.Run(context.Background(), first)
	if err := os.Remove(fx.store.AudioPath(first)); err != nil {
		t.Fatalf("remove origin audio: %v", err)
	}

	second := fx.submit(t, runnerScript)
	fx.runner.Run(context.Background(), second)

	st, err := fx.store.Status(second)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != StateFailed {
		t.Fatalf("state = %s, want FAILED", st.State)
	}
	if !strings.Contains(st.Error, "cache inconsistency") {
		t.Errorf("error = %q, want cache inconsistency", st.Error)
	}
	if fx.prod.calls != 1 {
		t.Errorf("producer calls = %d, want 1 (no resynthesis on inconsistency)", fx.prod.calls)
	}
}

func TestRunnerNonReadyOriginFallsThrough(t *testing.T) {
	fx := newRunnerFixture(t)

	first := fx.submit(t, runnerScript)
	key := recordedKey(t, fx, runnerScript)
	// Origin exists but is still PENDING: not reusable, resynthesize.
	if err := fx.idx.RecordOrigin(key, first); err != nil {
		t.Fatalf("RecordOrigin() error = %v", err)
	}

	second := fx.submit(t, runnerScript)
	fx.runner.Run(context.Background(), second)

	st, err := fx.store.Status(second)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != StateReady {
		t.Fatalf("state = %s (%s), want READY", st.State, st.Error)
	}
	if fx.prod.calls != 1 {
		t.Errorf("producer calls = %d, want 1", fx.prod.calls)
	}
}

func recordedKey(t *testing.T, fx *runnerFixture, text string) string {
	t.Helper()
	doc, err := script.Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	reg := voice.Registry{"narrator": {Name: "Kore"}}
	key, err := cache.Key(script.AlignmentText(script.DisplayScript(doc)), reg, config.DefaultConfig().Synth.Model)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	return key
}

func TestRunnerFailures(t *testing.T) {
	tests := []struct {
		name      string
		script    string
		prodErr   error
		aliErr    error
		wantMsg   string
		checkMiss bool
	}{
		{
			name:      "synthesis failure",
			script:    runnerScript,
			prodErr:   errors.New("upstream refused"),
			wantMsg:   "upstream refused",
			checkMiss: true,
		},
		{
			name:      "alignment failure",
			script:    runnerScript,
			aliErr:    errors.New("transcription unavailable"),
			wantMsg:   "transcription unavailable",
			checkMiss: true,
		},
		{
			name:    "script without section",
			script:  "[narrator] no header",
			wantMsg: "SCRIPT:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newRunnerFixture(t)
			fx.prod.err = tt.prodErr
			fx.ali.err = tt.aliErr

			id := fx.submit(t, tt.script)
			fx.runner.Run(context.Background(), id)

			st, err := fx.store.Status(id)
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if st.State != StateFailed {
				t.Fatalf("state = %s, want FAILED", st.State)
			}
			if !strings.Contains(st.Error, tt.wantMsg) {
				t.Errorf("error = %q, want it to mention %q", st.Error, tt.wantMsg)
			}

			// A failed job must never become a cache origin.
			if tt.checkMiss {
				key := recordedKey(t, fx, tt.script)
				if origin, ok := fx.idx.LookupOrigin(key); ok {
					t.Errorf("failed job recorded as cache origin %q", origin)
				}
			}
		})
	}
}

func TestRunnerMissingRoleFails(t *testing.T) {
	fx := newRunnerFixture(t)

	id, err := fx.store.Create(Request{Script: runnerScript, Roles: []string{"narrator", "speaker_z"}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	fx.runner.Run(context.Background(), id)

	st, err := fx.store.Status(id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != StateFailed {
		t.Fatalf("state = %s, want FAILED", st.State)
	}
	if !strings.Contains(st.Error, "speaker_z") {
		t.Errorf("error = %q, want missing role named", st.Error)
	}
}
