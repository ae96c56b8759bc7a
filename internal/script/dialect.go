package script

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// dialectMap restores standard spellings for narrator dialect: h-dropping,
// g-dropping, and colloquial contractions. Keys are matched whole-token,
// case-insensitively.
var dialectMap = map[string]string{
	// h-dropping pronouns
	"'e": "he", "'im": "him", "'is": "his", "'er": "her", "'ers": "hers",
	"'em": "them", "'ave": "have", "'ad": "had", "'as": "has",
	"'adn't": "hadn't", "'aven't": "haven't", "'asn't": "hasn't",

	// h-dropping words
	"'ouse": "house", "'all": "hall", "'and": "hand", "'ands": "hands",
	"'andful": "handful", "'air": "hair", "'ead": "head", "'eart": "heart",
	"'ard": "hard", "'ardly": "hardly", "'ungry": "hungry", "'onest": "honest",
	"'ours": "hours", "'istory": "history", "'oliday": "holiday",
	"'ospital": "hospital", "'orrible": "horrible", "'urry": "hurry",
	"'urts": "hurts",

	// colloquial conjunction
	"an'": "and",

	// g-dropping
	"nothin'": "nothing", "somethin'": "something", "everythin'": "everything",
	"anythin'": "anything", "goin'": "going", "comin'": "coming",
	"doin'": "doing", "makin'": "making", "sayin'": "saying",
	"thinkin'": "thinking", "talkin'": "talking", "lookin'": "looking",
	"watchin'": "watching", "breathin'": "breathing", "livin'": "living",
	"burnin'": "burning", "workin'": "working", "waitin'": "waiting",
	"walkin'": "walking", "runnin'": "running", "turnin'": "turning",
	"openin'": "opening", "closin'": "closing",
}

// dialectKeys holds the map keys sorted longest-first so prefix matching
// prefers the most specific entry ("'aven't" before "'ave").
var dialectKeys = func() []string {
	keys := make([]string, 0, len(dialectMap))
	for k := range dialectMap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return keys
}()

var (
	smartApos   = strings.NewReplacer("’", "'", "‘", "'")
	displayLine = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*(.*)$`)
)

// ApplyDialectRewrite rewrites narrator-labeled lines of a display script to
// standard spellings. Lines for other speakers, parenthetical cues, and lines
// without a label pass through untouched.
func ApplyDialectRewrite(display string) string {
	lines := strings.Split(display, "\n")
	for i, raw := range lines {
		m := displayLine.FindStringSubmatch(raw)
		if m == nil || strings.TrimSpace(m[1]) != "Narrator" {
			continue
		}
		text := capitalizeSentences(rewriteDialect(m[2]))
		lines[i] = strings.TrimRight("["+m[1]+"] "+text, " \t")
	}
	return strings.Join(lines, "\n")
}

// rewriteDialect runs the token rewrites over the text outside parenthetical
// cue regions.
func rewriteDialect(text string) string {
	return mapOutsideParens(smartApos.Replace(text), rewriteSegment)
}

// mapOutsideParens applies fn to the stretches of text outside (...) groups,
// leaving the groups themselves verbatim.
func mapOutsideParens(text string, fn func(string) string) string {
	var b strings.Builder
	pos := 0
	for _, loc := range parenStrip.FindAllStringIndex(text, -1) {
		b.WriteString(fn(text[pos:loc[0]]))
		b.WriteString(text[loc[0]:loc[1]])
		pos = loc[1]
	}
	b.WriteString(fn(text[pos:]))
	return b.String()
}

func isWordByte(c byte) bool {
	return c == '\'' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isLetterByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// rewriteSegment splits a cue-free segment into word runs (letters and
// apostrophes) and rewrites each run.
func rewriteSegment(seg string) string {
	var b strings.Builder
	i := 0
	for i < len(seg) {
		if !isWordByte(seg[i]) {
			b.WriteByte(seg[i])
			i++
			continue
		}
		j := i
		for j < len(seg) && isWordByte(seg[j]) {
			j++
		}
		b.WriteString(rewriteRun(seg[i:j]))
		i = j
	}
	return b.String()
}

// rewriteRun rewrites one word run: dictionary entries first, then the
// generic h-insertion ('e → he style apostrophes before vowels) and
// g-dropping (in' → ing) repairs.
func rewriteRun(run string) string {
	var b strings.Builder
	i := 0
	for i < len(run) {
		// A key may only start where no letter precedes it (run start or
		// just after an apostrophe) and must end before a non-letter.
		atBoundary := i == 0 || !isLetterByte(run[i-1])
		if atBoundary {
			if rep, n := matchDialectKey(run[i:]); n > 0 {
				b.WriteString(rep)
				i += n
				continue
			}
		}
		b.WriteByte(run[i])
		i++
	}
	return fixDroppedLetters(b.String())
}

func matchDialectKey(rest string) (string, int) {
	lower := strings.ToLower(rest)
	for _, key := range dialectKeys {
		if !strings.HasPrefix(lower, key) {
			continue
		}
		if len(key) < len(rest) && isLetterByte(rest[len(key)]) {
			continue
		}
		return dialectMap[key], len(key)
	}
	return "", 0
}

// fixDroppedLetters repairs tokens the dictionary does not list: a leading
// apostrophe before a vowel becomes h, and a trailing in' becomes ing.
func fixDroppedLetters(run string) string {
	if len(run) > 1 && run[0] == '\'' && strings.ContainsRune("aeiouAEIOU", rune(run[1])) {
		run = "h" + run[1:]
	}
	if len(run) > 3 && strings.HasSuffix(strings.ToLower(run), "in'") {
		run = run[:len(run)-1] + "g"
	}
	return run
}

// capitalizeSentences restores sentence-initial capitals that the lowercase
// dictionary replacements may have clobbered. Parenthetical cues are skipped,
// and sentence state carries across them so a cue mid-sentence does not force
// a capital on the word that follows it.
func capitalizeSentences(text string) string {
	st := &capState{expect: true}
	return mapOutsideParens(text, st.segment)
}

type capState struct {
	expect        bool
	sawTerminator bool
}

func (st *capState) segment(seg string) string {
	runes := []rune(seg)
	for i, r := range runes {
		switch {
		case r == '.' || r == '!' || r == '?' || r == '…':
			st.sawTerminator = true
		case unicode.IsSpace(r):
			if st.sawTerminator {
				st.expect = true
				st.sawTerminator = false
			}
		case strings.ContainsRune(`"'“”‘’([)]`, r):
			// quoting and bracketing characters do not consume the
			// pending capital and do not clear a terminator
		case unicode.IsLetter(r):
			if st.expect {
				runes[i] = unicode.ToUpper(r)
			}
			st.expect = false
			st.sawTerminator = false
		default:
			st.sawTerminator = false
			st.expect = false
		}
	}
	return string(runes)
}
