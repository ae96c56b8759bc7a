package align

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WhisperClient talks to a faster-whisper-compatible transcription server
// over its OpenAI-style audio transcription endpoint, requesting word-level
// timestamps.
type WhisperClient struct {
	hc       *http.Client
	endpoint string
}

func NewWhisperClient(endpoint string, timeout time.Duration) *WhisperClient {
	return &WhisperClient{
		hc:       &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

type whisperWord struct {
	Word  string   `json:"word"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

type whisperSegment struct {
	Words []whisperWord `json:"words"`
}

type whisperResponse struct {
	Words    []whisperWord    `json:"words"`
	Segments []whisperSegment `json:"segments"`
}

// Transcribe uploads the audio file and returns its word-level transcription.
// Words without timestamps are dropped. A response with zero words is not an
// error; the engine has a fallback for silent or unintelligible audio.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath, model, device, computeType string) ([]Word, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	fields := map[string]string{
		"model":                     model,
		"response_format":           "verbose_json",
		"timestamp_granularities[]": "word",
		"device":                    device,
		"compute_type":              computeType,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("build transcription request: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}

	url := c.endpoint + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call transcription service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription service returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var decoded whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	raw := decoded.Words
	if len(raw) == 0 {
		for _, seg := range decoded.Segments {
			raw = append(raw, seg.Words...)
		}
	}

	out := make([]Word, 0, len(raw))
	for _, w := range raw {
		if w.Start == nil || w.End == nil {
			continue
		}
		out = append(out, Word{Token: w.Word, Start: *w.Start, End: *w.End})
	}
	return out, nil
}
