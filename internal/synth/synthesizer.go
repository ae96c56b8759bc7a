// Package synth turns a parsed script into one WAV file, either in a single
// external synthesis call or by splitting into chunks synthesized
// concurrently and stitched back together.
package synth

import (
	"context"
	"errors"
)

// ErrNoAudio is returned when the synthesizer responds without an audio
// payload.
var ErrNoAudio = errors.New("synthesizer returned no audio payload")

// Synthesizer is the external text-to-speech capability. It returns the
// audio bytes plus their MIME type; audio that is not a WAV container is
// treated as raw PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, payload string, speakers map[string]string, model string) (data []byte, mimeType string, err error)
}
