package script

import (
	"regexp"
	"strings"
)

var (
	leadingTag = regexp.MustCompile(`^\s*\[[^\]]+\]\s*`)
	parenStrip = regexp.MustCompile(`\([^)]*\)`)
	wsRun      = regexp.MustCompile(`\s+`)
)

// DisplayScript renders the document for the reader UI: one line per turn,
// labeled with the character when present, else the engine role, with the
// full utterance including cues.
func DisplayScript(doc *Document) string {
	var out []string
	for _, line := range doc.Lines {
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		label := line.Role
		if line.Character != "" {
			label = line.Character
		}
		out = append(out, "["+label+"] "+text)
	}
	return strings.Join(out, "\n")
}

// AlignmentText reduces a display script to the words actually expected to be
// spoken: label tags and parenthetical cues removed, whitespace collapsed.
// This is the reference text the alignment engine matches transcribed audio
// against.
func AlignmentText(display string) string {
	var out []string
	for _, raw := range strings.Split(display, "\n") {
		txt := leadingTag.ReplaceAllString(raw, "")
		txt = parenStrip.ReplaceAllString(txt, "")
		txt = strings.TrimSpace(wsRun.ReplaceAllString(txt, " "))
		if txt != "" {
			out = append(out, txt)
		}
	}
	return strings.Join(out, "\n")
}

// FormatLine reconstructs a turn in the canonical "[role] <character> text"
// input form, as replicated into per-chunk synthesis payloads.
func FormatLine(line Line) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(strings.TrimSpace(line.Role))
	b.WriteString("] ")
	if c := strings.TrimSpace(line.Character); c != "" {
		b.WriteString("<")
		b.WriteString(c)
		b.WriteString("> ")
	}
	b.WriteString(strings.TrimSpace(line.Text))
	return strings.TrimSpace(b.String())
}
