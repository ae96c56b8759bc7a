package synth

import (
	"strings"

	"github.com/example/tts-reader/internal/script"
)

// groupLines slices the formatted script lines into chunks of at most
// linesPerChunk. A trailing chunk smaller than half the target is merged into
// its predecessor instead of being synthesized as a fragment.
func groupLines(lines []script.Line, linesPerChunk int) [][]string {
	var formatted []string
	for _, line := range lines {
		if s := script.FormatLine(line); s != "" {
			formatted = append(formatted, s)
		}
	}
	if len(formatted) == 0 {
		return nil
	}
	if linesPerChunk < 1 {
		linesPerChunk = 1
	}

	var chunks [][]string
	for i := 0; i < len(formatted); i += linesPerChunk {
		end := min(i+linesPerChunk, len(formatted))
		chunks = append(chunks, formatted[i:end:end])
	}

	if n := len(chunks); n >= 2 && len(chunks[n-1]) < linesPerChunk/2 {
		chunks[n-2] = append(chunks[n-2], chunks[n-1]...)
		chunks = chunks[:n-1]
	}

	return chunks
}

// buildPayload assembles one synthesis payload: the optional instruction
// preamble, the shared style and vocal blocks replicated so every call sees
// consistent context, then the chunk's script lines in canonical form.
func buildPayload(preamble, style, vocal string, lines []string) string {
	var parts []string
	if strings.TrimSpace(preamble) != "" {
		parts = append(parts, strings.TrimSpace(preamble))
	}
	if strings.TrimSpace(style) != "" {
		parts = append(parts, "STYLE DESCRIPTION:", strings.TrimSpace(style))
	}
	if strings.TrimSpace(vocal) != "" {
		parts = append(parts, "VOCAL DICTIONARY:", strings.TrimSpace(vocal))
	}
	parts = append(parts, "SCRIPT:", strings.TrimSpace(strings.Join(lines, "\n")))
	return strings.Join(parts, "\n\n")
}
