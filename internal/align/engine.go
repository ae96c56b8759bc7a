// Package align assigns per-word timestamps to known reference text using a
// speech recognizer's imperfect output as a time reference. Every reference
// token receives a plausible, ordered timestamp even where the transcription
// is wrong, missing, or extra.
package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/tts-reader/internal/config"
)

const (
	// minimum duration and ordering slack, in seconds
	timeEps = 1e-3
	// span given to tokens placed without any time signal
	tinySpan = 0.01
	// window extrapolated from a single neighboring hypothesis word
	neighborSpan = 0.02
)

// ErrAudioMissing is returned when the audio to align does not exist.
var ErrAudioMissing = errors.New("audio file not found")

// Word is one transcribed token with its timestamps in seconds.
type Word struct {
	Token string
	Start float64
	End   float64
}

// WordTiming is the final alignment artifact entry: one reference token with
// its span and stable index. JSON keys match the persisted timings format.
type WordTiming struct {
	Word  string  `json:"w"`
	Start float64 `json:"s"`
	End   float64 `json:"e"`
	Idx   int     `json:"idx"`
}

// Transcriber is the external speech-recognition capability.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, model, device, computeType string) ([]Word, error)
}

// Engine reconciles transcribed audio against reference text.
type Engine struct {
	tr  Transcriber
	cfg config.AlignConfig
	log *slog.Logger
}

func NewEngine(tr Transcriber, cfg config.AlignConfig, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{tr: tr, cfg: cfg, log: log}
}

// Align produces one WordTiming per reference token of refText, in order,
// with non-decreasing starts and a minimum span per token.
func (e *Engine) Align(ctx context.Context, audioPath, refText string) ([]WordTiming, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAudioMissing, audioPath)
	}

	ref := Tokenize(refText)
	if len(ref) == 0 {
		return []WordTiming{}, nil
	}

	raw, err := e.tr.Transcribe(ctx, audioPath, e.cfg.Model, e.cfg.Device, e.cfg.ComputeType)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	hyp := normalizeHypothesis(raw)
	if len(hyp) == 0 {
		e.log.Warn("transcriber produced no usable words, falling back to fixed spans",
			slog.Int("ref_tokens", len(ref)))
		return ladder(ref), nil
	}

	hypTokens := make([]string, len(hyp))
	for i, w := range hyp {
		hypTokens[i] = w.Token
	}

	return assignTimings(ref, hyp, opcodes(hypTokens, ref)), nil
}

// normalizeHypothesis normalizes raw transcriber words, drops the ones that
// normalize away entirely, and clamps the stream monotonic. ASR timestamps
// are not trusted to already be ordered.
func normalizeHypothesis(raw []Word) []Word {
	out := make([]Word, 0, len(raw))
	for _, w := range raw {
		tok := NormalizeToken(w.Token)
		if tok == "" {
			continue
		}
		out = append(out, Word{Token: tok, Start: w.Start, End: w.End})
	}

	last := 0.0
	for i := range out {
		if out[i].Start < last-timeEps {
			out[i].Start = last
		}
		if out[i].End < out[i].Start+timeEps {
			out[i].End = out[i].Start + timeEps
		}
		last = out[i].End
	}
	return out
}

// ladder places every reference token in a tiny fixed-width span, strictly
// increasing. Used when transcription yields zero signal.
func ladder(ref []string) []WordTiming {
	out := make([]WordTiming, len(ref))
	t := 0.0
	for i, tok := range ref {
		out[i] = WordTiming{Word: tok, Start: t, End: t + tinySpan, Idx: i}
		t += tinySpan
	}
	return out
}

// assignTimings walks the edit script and assigns each reference token its
// span: equal runs copy hypothesis timestamps verbatim, replace/insert runs
// distribute tokens evenly across a window inferred from the surrounding
// hypothesis words, delete runs consume hypothesis only.
func assignTimings(ref []string, hyp []Word, ops []op) []WordTiming {
	out := make([]WordTiming, len(ref))
	for i, tok := range ref {
		out[i] = WordTiming{Word: tok, Idx: i}
	}
	n := len(hyp)

	window := func(i1, i2 int) (float64, float64) {
		if i2 > i1 {
			return hyp[i1].Start, hyp[i2-1].End
		}
		// Empty hypothesis run: interpolate between neighbors.
		hasLeft := i1-1 >= 0
		hasRight := i1 < n
		switch {
		case hasLeft && hasRight && hyp[i1].Start > hyp[i1-1].End:
			return hyp[i1-1].End, hyp[i1].Start
		case hasLeft:
			return hyp[i1-1].End, hyp[i1-1].End + neighborSpan
		case hasRight:
			return max(0, hyp[i1].Start-neighborSpan), hyp[i1].Start
		default:
			return 0, neighborSpan
		}
	}

	assignLinear := func(j1, j2 int, t0, t1 float64) {
		count := j2 - j1
		if count < 1 {
			count = 1
		}
		span := t1 - t0
		if span <= 0 {
			// Degenerate window: fall back to fixed slices from its
			// lower bound.
			cur := t0
			for j := j1; j < j2; j++ {
				out[j].Start = cur
				out[j].End = cur + tinySpan
				cur += tinySpan
			}
			return
		}
		step := span / float64(count)
		cur := t0
		for j := j1; j < j2; j++ {
			s := cur
			e := s + step
			if j == j2-1 {
				e = t1
			}
			out[j].Start = s
			out[j].End = max(e, s+timeEps)
			cur = e
		}
	}

	for _, o := range ops {
		switch o.tag {
		case opEqual:
			k := o.i1
			for j := o.j1; j < o.j2; j++ {
				if k < n {
					out[j].Start = hyp[k].Start
					out[j].End = hyp[k].End
				} else {
					// Hypothesis ran out mid-run: continue in tiny
					// spans from the last assigned end.
					last := 0.0
					if j > o.j1 {
						last = out[j-1].End
					} else if n > 0 {
						last = hyp[n-1].End
					}
					out[j].Start = last
					out[j].End = last + tinySpan
				}
				k++
			}
		case opReplace, opInsert:
			t0, t1 := window(o.i1, o.i2)
			assignLinear(o.j1, o.j2, t0, t1)
		case opDelete:
			// ASR had extra tokens; nothing to place.
		}
	}

	// Final pass: no token may start behind its predecessor's end, and every
	// token keeps a minimum duration.
	last := 0.0
	for i := range out {
		if out[i].Start < last-timeEps {
			out[i].Start = last
		}
		if out[i].End < out[i].Start+timeEps {
			out[i].End = out[i].Start + timeEps
		}
		last = out[i].End
	}
	return out
}
