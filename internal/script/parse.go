package script

import (
	"errors"
	"regexp"
	"strings"
)

// ErrScriptSectionMissing is returned when the input has no SCRIPT: section.
var ErrScriptSectionMissing = errors.New("SCRIPT: section is required")

// Line is one speaker turn of the script.
type Line struct {
	Role        string   // engine role from the [role] tag
	Character   string   // optional display character from the <character> tag
	Text        string   // full spoken text, inline () cues included
	SimpleCues  []string // free-form () cues, kept verbatim for display
	ControlCues []string // UPPER_SNAKE_CASE () stage directions
}

// Document is the parsed script: two free-form metadata blocks plus the
// ordered speaker turns. Skipped counts non-blank script lines that did not
// match the line grammar; they are tolerated, not errors.
type Document struct {
	Style   string
	Vocal   string
	Lines   []Line
	Skipped int
}

var (
	styleHdr  = regexp.MustCompile(`(?i)^\s*STYLE DESCRIPTION:\s*$`)
	vocalHdr  = regexp.MustCompile(`(?i)^\s*VOCAL DICTIONARY:\s*$`)
	scriptHdr = regexp.MustCompile(`(?i)^\s*SCRIPT:\s*$`)

	// [role] <character> utterance — the character tag is optional.
	roleLine = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*(?:<([^>]+)>\s*)?(.*)$`)

	parenGroup = regexp.MustCompile(`\(([^)]*)\)`)
	controlCue = regexp.MustCompile(`^[A-Z0-9_]+$`)
)

// Parse splits the raw text into its labeled sections and parses the script
// block into speaker turns. Only the SCRIPT: section is required.
func Parse(text string) (*Document, error) {
	style, vocal, scriptBlock, err := splitSections(text)
	if err != nil {
		return nil, err
	}

	doc := &Document{Style: style, Vocal: vocal}
	for _, raw := range strings.Split(scriptBlock, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		m := roleLine.FindStringSubmatch(raw)
		if m == nil {
			doc.Skipped++
			continue
		}
		utter := strings.TrimSpace(m[3])
		simple, control := classifyCues(utter)
		doc.Lines = append(doc.Lines, Line{
			Role:        strings.TrimSpace(m[1]),
			Character:   strings.TrimSpace(m[2]),
			Text:        utter,
			SimpleCues:  simple,
			ControlCues: control,
		})
	}

	return doc, nil
}

func splitSections(text string) (style, vocal, script string, err error) {
	lines := strings.Split(text, "\n")

	idxStyle, idxVocal, idxScript := -1, -1, -1
	for i, ln := range lines {
		switch {
		case idxStyle < 0 && styleHdr.MatchString(ln):
			idxStyle = i
		case idxVocal < 0 && vocalHdr.MatchString(ln):
			idxVocal = i
		case idxScript < 0 && scriptHdr.MatchString(ln):
			idxScript = i
		}
	}
	if idxScript < 0 {
		return "", "", "", ErrScriptSectionMissing
	}

	block := func(start, end int) string {
		if start < 0 {
			return ""
		}
		start++ // skip the header line itself
		if end < 0 || end > len(lines) {
			end = len(lines)
		}
		if start >= end {
			return ""
		}
		return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
	}

	// Bound each section at the next known header so blocks never run into
	// each other.
	endOfStyle := idxScript
	if idxVocal >= 0 && idxVocal < endOfStyle {
		endOfStyle = idxVocal
	}

	style = block(idxStyle, endOfStyle)
	vocal = block(idxVocal, idxScript)
	script = block(idxScript, -1)
	return style, vocal, script, nil
}

// classifyCues extracts parenthetical groups from an utterance and separates
// free-form simple cues from UPPER_SNAKE_CASE control cues.
func classifyCues(utter string) (simple, control []string) {
	for _, m := range parenGroup.FindAllStringSubmatch(utter, -1) {
		inner := strings.TrimSpace(m[1])
		if inner == "" {
			continue
		}
		if controlCue.MatchString(inner) {
			control = append(control, inner)
		} else {
			simple = append(simple, inner)
		}
	}
	return simple, control
}
