package align

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tts_out.wav")
	if err := os.WriteFile(path, []byte("RIFFfake"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestWhisperClientTranscribe(t *testing.T) {
	var gotPath string
	var gotModel, gotFormat, gotGranularity string
	var gotFile []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		gotGranularity = r.FormValue("timestamp_granularities[]")

		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		buf := make([]byte, 32)
		n, _ := f.Read(buf)
		gotFile = buf[:n]

		_, _ = w.Write([]byte(`{
			"words": [
				{"word": "Hello", "start": 0.1, "end": 0.5},
				{"word": "there", "start": 0.6, "end": 1.0},
				{"word": "ghost", "start": null, "end": null}
			]
		}`))
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.URL, 5*time.Second)
	words, err := c.Transcribe(context.Background(), writeTestAudio(t), "tiny.en", "auto", "int8")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if gotPath != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotModel != "tiny.en" || gotFormat != "verbose_json" || gotGranularity != "word" {
		t.Errorf("form fields = %q/%q/%q", gotModel, gotFormat, gotGranularity)
	}
	if string(gotFile) != "RIFFfake" {
		t.Errorf("uploaded file = %q", gotFile)
	}

	// The word without timestamps is dropped.
	want := []Word{
		{Token: "Hello", Start: 0.1, End: 0.5},
		{Token: "there", Start: 0.6, End: 1.0},
	}
	if len(words) != len(want) {
		t.Fatalf("words = %v, want %v", words, want)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word %d = %+v, want %+v", i, words[i], want[i])
		}
	}
}

func TestWhisperClientSegmentFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"segments": [
				{"words": [{"word": "one", "start": 0.0, "end": 0.3}]},
				{"words": [{"word": "two", "start": 0.4, "end": 0.7}]}
			]
		}`))
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.URL, 5*time.Second)
	words, err := c.Transcribe(context.Background(), writeTestAudio(t), "tiny.en", "", "")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if len(words) != 2 || words[0].Token != "one" || words[1].Token != "two" {
		t.Errorf("words = %v, want one and two from segments", words)
	}
}

func TestWhisperClientEmptyTranscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"words": []}`))
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.URL, 5*time.Second)
	words, err := c.Transcribe(context.Background(), writeTestAudio(t), "tiny.en", "", "")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if len(words) != 0 {
		t.Errorf("words = %v, want none", words)
	}
}

func TestWhisperClientErrors(t *testing.T) {
	t.Run("missing audio file", func(t *testing.T) {
		c := NewWhisperClient("http://127.0.0.1:0", time.Second)
		_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "absent.wav"), "m", "", "")
		if err == nil {
			t.Fatal("Transcribe() expected error")
		}
	})

	t.Run("server error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewWhisperClient(srv.URL, time.Second)
		_, err := c.Transcribe(context.Background(), writeTestAudio(t), "m", "", "")
		if err == nil || !strings.Contains(err.Error(), "model not loaded") {
			t.Fatalf("Transcribe() error = %v, want model not loaded mentioned", err)
		}
	})
}
