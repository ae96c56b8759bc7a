package synth

import (
	"os"
	"strings"
)

// LoadPreamble reads the global instruction preamble prepended to synthesis
// payloads. Returns "" when disabled or when the file is missing or empty;
// a preamble is guidance, never a hard requirement.
func LoadPreamble(path string, enabled bool) string {
	if !enabled || path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
