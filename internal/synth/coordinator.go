package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/example/tts-reader/internal/audio"
	"github.com/example/tts-reader/internal/config"
	"github.com/example/tts-reader/internal/script"
	"github.com/example/tts-reader/internal/voice"
)

// Coordinator drives the external synthesizer for one job: a single call for
// short scripts, or a bounded worker pool of per-chunk calls stitched back
// together in script order.
type Coordinator struct {
	client Synthesizer
	cfg    config.SynthConfig
	log    *slog.Logger
}

func NewCoordinator(client Synthesizer, cfg config.SynthConfig, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{client: client, cfg: cfg, log: log}
}

// Produce synthesizes the document and writes the final WAV to outPath.
func (c *Coordinator) Produce(ctx context.Context, doc *script.Document, preamble string, reg voice.Registry, outPath string) error {
	speakers, err := speakerMap(reg)
	if err != nil {
		return err
	}

	var wavBytes []byte
	if c.cfg.Chunked {
		wavBytes, err = c.chunked(ctx, doc, preamble, speakers)
	} else {
		wavBytes, err = c.singlePass(ctx, doc, preamble, speakers)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outPath, wavBytes, 0o644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	return nil
}

func speakerMap(reg voice.Registry) (map[string]string, error) {
	if len(reg) == 0 {
		return nil, errors.New("registry must contain at least one role")
	}
	speakers := make(map[string]string, len(reg))
	for role, v := range reg {
		if v.Name == "" {
			return nil, fmt.Errorf("voice name missing for role %q", role)
		}
		speakers[role] = v.Name
	}
	return speakers, nil
}

func (c *Coordinator) singlePass(ctx context.Context, doc *script.Document, preamble string, speakers map[string]string) ([]byte, error) {
	lines := make([]string, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		if s := script.FormatLine(line); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return nil, errors.New("empty script after parsing")
	}

	payload := buildPayload(preamble, doc.Style, doc.Vocal, lines)
	data, mime, err := c.client.Synthesize(ctx, payload, speakers, c.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return ensureWAV(data, mime)
}

type chunkResult struct {
	index int
	wav   []byte
}

func (c *Coordinator) chunked(ctx context.Context, doc *script.Document, preamble string, speakers map[string]string) ([]byte, error) {
	chunks := groupLines(doc.Lines, c.cfg.LinesPerChunk)
	if len(chunks) == 0 {
		return nil, errors.New("empty script after parsing")
	}

	payloads := make([]string, len(chunks))
	for i, lines := range chunks {
		payloads[i] = buildPayload(preamble, doc.Style, doc.Vocal, lines)
	}

	// One chunk's failure aborts the whole batch: cancel the remaining
	// calls and keep only the first error.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := c.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	results := make([][]byte, len(payloads))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for i, payload := range payloads {
		wg.Add(1)
		go func(i int, payload string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			res, err := c.synthesizeChunk(ctx, i, payload, speakers)
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			results[res.index] = res.wav
		}(i, payload)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reassembly depends only on chunk index order, never on which call
	// finished first.
	silence := time.Duration(c.cfg.SilenceMs) * time.Millisecond
	merged, err := audio.Concat(results, silence)
	if err != nil {
		return nil, fmt.Errorf("merge chunks: %w", err)
	}
	return merged, nil
}

func (c *Coordinator) synthesizeChunk(ctx context.Context, index int, payload string, speakers map[string]string) (chunkResult, error) {
	start := time.Now()
	data, mime, err := c.client.Synthesize(ctx, payload, speakers, c.cfg.Model)
	if err != nil {
		return chunkResult{}, fmt.Errorf("chunk %d: %w", index, err)
	}
	wavBytes, err := ensureWAV(data, mime)
	if err != nil {
		return chunkResult{}, fmt.Errorf("chunk %d: %w", index, err)
	}
	c.log.Info("chunk synthesized",
		slog.Int("chunk", index),
		slog.Int("wav_bytes", len(wavBytes)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return chunkResult{index: index, wav: wavBytes}, nil
}

// ensureWAV passes WAV payloads through untouched and wraps anything else as
// raw PCM in a WAV container.
func ensureWAV(data []byte, mime string) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNoAudio
	}
	if strings.Contains(strings.ToLower(mime), "wav") {
		return data, nil
	}
	return audio.WrapPCM16(data)
}
