package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the target passage length for stored chunks.
	DefaultMaxChars = 900
	// DefaultOverlap is carried between consecutive chunks so a semantic
	// unit spanning a split point is fully present in at least one chunk.
	DefaultOverlap = 200
)

// Split points tried in order before falling back to a hard character cut.
var separators = []string{"\n\n", "\n", ". ", " "}

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	spaceRuns    = regexp.MustCompile(`[ \t]+`)
)

// Clean normalizes extracted text before chunking: line endings to LF,
// 3+ consecutive newlines to exactly 2, runs of spaces/tabs to one space.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Splitter cuts cleaned text into overlapping passages of at most MaxChars
// characters. Identical input always yields an identical chunk sequence.
type Splitter struct {
	MaxChars int
	Overlap  int
}

func New() *Splitter {
	return &Splitter{MaxChars: DefaultMaxChars, Overlap: DefaultOverlap}
}

func NewSplitter(maxChars, overlap int) *Splitter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars / 2
	}
	return &Splitter{MaxChars: maxChars, Overlap: overlap}
}

// Chunk cleans the text and splits it. This is the entry point used by the
// ingestion path; Split is exported separately so the window arithmetic can
// be tested on already-clean text.
func (s *Splitter) Chunk(text string) []string {
	return s.Split(Clean(text))
}

// Split walks the text with a window of MaxChars, preferring to end each
// chunk on a separator boundary. The next chunk starts exactly Overlap
// characters before the previous end, so concatenating chunks with the
// overlap removed reconstructs the input byte for byte. Cuts and starts
// never land inside a multi-byte rune; on multi-byte text the start backs
// off to the enclosing rune boundary, widening that overlap by up to three
// bytes.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= s.MaxChars {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + s.MaxChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		end = s.cut(text, start, end)
		chunks = append(chunks, text[start:end])
		start = runeStart(text, end-s.Overlap)
	}
	return chunks
}

// cut picks the end of the window starting at start. It looks back over the
// tail of the window for the highest-priority separator, and hard-cuts at
// the window edge when none is found. The cut always lands after
// start+Overlap so each iteration makes progress.
func (s *Splitter) cut(text string, start, end int) int {
	floor := end - s.MaxChars/10
	if floor <= start+s.Overlap {
		floor = start + s.Overlap + 1
	}
	if floor >= end {
		return runeStart(text, end)
	}
	window := text[floor:end]
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return floor + i + len(sep)
		}
	}
	return runeStart(text, end)
}

// runeStart backs i off to the nearest rune boundary so a hard cut never
// splits a multi-byte character.
func runeStart(text string, i int) int {
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}
