package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/example/tts-reader/internal/align"
	"github.com/example/tts-reader/internal/cache"
	"github.com/example/tts-reader/internal/config"
	"github.com/example/tts-reader/internal/script"
	"github.com/example/tts-reader/internal/synth"
	"github.com/example/tts-reader/internal/voice"
)

// AudioProducer synthesizes a parsed document into a WAV file at outPath.
type AudioProducer interface {
	Produce(ctx context.Context, doc *script.Document, preamble string, reg voice.Registry, outPath string) error
}

// Aligner computes per-word timings for audio against reference text.
type Aligner interface {
	Align(ctx context.Context, audioPath, refText string) ([]align.WordTiming, error)
}

// Runner executes one job's full pipeline on a background goroutine and
// always drives it to a terminal state. Callers observe failures only
// through polled job status; no error escapes the background execution.
type Runner struct {
	store *Store
	cfg   *config.Config
	coord AudioProducer
	align Aligner
	cache *cache.Index
	log   *slog.Logger
}

func NewRunner(store *Store, cfg *config.Config, coord AudioProducer, aligner Aligner, idx *cache.Index, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{store: store, cfg: cfg, coord: coord, align: aligner, cache: idx, log: log}
}

// Run drives the job with the given id to READY or FAILED. Errors at any
// pipeline step are converted into a FAILED transition carrying the error's
// message and are not propagated.
func (r *Runner) Run(ctx context.Context, id string) {
	start := time.Now()
	if err := r.run(ctx, id); err != nil {
		r.log.Error("job failed",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		if terr := r.store.Transition(id, StateFailed, err.Error()); terr != nil {
			r.log.Error("record job failure",
				slog.String("job_id", id),
				slog.String("error", terr.Error()),
			)
		}
		return
	}
	r.log.Info("job ready",
		slog.String("job_id", id),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

func (r *Runner) run(ctx context.Context, id string) error {
	if err := r.store.Transition(id, StateSynthesizing, ""); err != nil {
		return err
	}

	req, err := r.store.Request(id)
	if err != nil {
		return err
	}

	reg, err := voice.Resolve(req.Roles, r.cfg.Paths.VoicesPath)
	if err != nil {
		return err
	}

	doc, err := script.Parse(req.Script)
	if err != nil {
		return err
	}
	if doc.Skipped > 0 {
		r.log.Warn("script lines skipped",
			slog.String("job_id", id),
			slog.Int("skipped", doc.Skipped),
		)
	}

	display := script.DisplayScript(doc)
	if r.cfg.Normalize.DialectRewrite {
		display = script.ApplyDialectRewrite(display)
	}
	refText := script.AlignmentText(display)

	// Keyed on the alignment view: cue and label differences share audio,
	// wording changes invalidate it.
	key, err := cache.Key(refText, reg, r.cfg.Synth.Model)
	if err != nil {
		return err
	}

	if origin, ok := r.cache.LookupOrigin(key); ok {
		hit, err := r.reuseOrigin(id, origin, display)
		if err != nil {
			return err
		}
		if hit {
			r.log.Info("cache hit",
				slog.String("job_id", id),
				slog.String("origin_job_id", origin),
			)
			return nil
		}
	}
	r.log.Info("cache miss", slog.String("job_id", id))

	preamble := synth.LoadPreamble(r.cfg.Paths.InstructionsPath, r.cfg.Synth.UseInstructions)

	audioPath := r.store.AudioPath(id)
	if err := r.coord.Produce(ctx, doc, preamble, reg, audioPath); err != nil {
		return err
	}

	if err := r.store.Transition(id, StateAligning, ""); err != nil {
		return err
	}

	words, err := r.align.Align(ctx, audioPath, refText)
	if err != nil {
		return err
	}
	if err := r.store.WriteTimings(id, words); err != nil {
		return err
	}
	if err := r.store.WriteManifest(id, r.manifest(id, display)); err != nil {
		return err
	}

	if err := r.store.Transition(id, StateReady, ""); err != nil {
		return err
	}

	// Recorded only now, after READY: a job that failed earlier must never
	// become a cache origin.
	return r.cache.RecordOrigin(key, id)
}

// reuseOrigin links a READY origin job's artifacts into this job. Returns
// false when the origin is not (or no longer) in READY, which falls through
// to a fresh synthesis. A READY origin with missing artifacts is a fatal
// cache-consistency error, never a silent resynthesize.
func (r *Runner) reuseOrigin(id, origin, display string) (bool, error) {
	st, err := r.store.Status(origin)
	if err != nil || st.State != StateReady {
		return false, nil
	}

	originAudio := r.store.AudioPath(origin)
	originTimings := r.store.TimingsPath(origin)
	if !fileExists(originAudio) || !fileExists(originTimings) {
		return false, fmt.Errorf("%w: READY job %s missing artifacts", cache.ErrInconsistent, origin)
	}

	if err := cache.LinkOrCopy(originAudio, r.store.AudioPath(id)); err != nil {
		return false, err
	}
	if err := cache.LinkOrCopy(originTimings, r.store.TimingsPath(id)); err != nil {
		return false, err
	}
	if err := r.store.WriteManifest(id, r.manifest(id, display)); err != nil {
		return false, err
	}

	if err := r.store.Transition(id, StateAligning, ""); err != nil {
		return false, err
	}
	if err := r.store.Transition(id, StateReady, ""); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Runner) manifest(id, display string) Manifest {
	return Manifest{
		AudioURL:   "/v1/tts/jobs/" + id + "/audio",
		TimingsURL: "/v1/tts/jobs/" + id + "/timings",
		Script:     display,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
