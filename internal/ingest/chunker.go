// Package ingest splits structured course documents into passages and loads them into the answerer.
package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Defaults for the course catalogue format.
const (
	DefaultSectionDelimiter = "=== "
	DefaultMinSectionLength = 50
)

// DefaultEntryCodes are the discipline codes that start an entry line.
var DefaultEntryCodes = []string{"IAL", "ISO", "IBD", "ISW", "IES", "IED", "ILP", "MAT"}

// Kind tells whether a chunk is a whole section or a single entry inside one.
type Kind string

const (
	KindSection Kind = "section"
	KindEntry   Kind = "entry"
)

// Chunk is one passage produced from a document.
type Chunk struct {
	Kind    Kind
	Section int // 0-based index of the kept section the chunk belongs to
	Text    string
}

// Chunker splits documents at section delimiter lines and discipline-code entry lines.
type Chunker struct {
	delimiter        string
	minSectionLength int
	codes            []string
}

// NewChunker creates a chunker. Empty or non-positive arguments take the defaults.
func NewChunker(delimiter string, minSectionLength int, codes []string) *Chunker {
	if delimiter == "" {
		delimiter = DefaultSectionDelimiter
	}
	if minSectionLength <= 0 {
		minSectionLength = DefaultMinSectionLength
	}
	if len(codes) == 0 {
		codes = DefaultEntryCodes
	}
	return &Chunker{
		delimiter:        delimiter,
		minSectionLength: minSectionLength,
		codes:            append([]string(nil), codes...),
	}
}

// Chunk returns, for each section in document order, the section passage followed by
// its entry passages. A section runs from a delimiter line up to the next one; text
// before the first delimiter forms a section of its own. Sections whose trimmed text
// has fewer than minSectionLength runes are dropped along with their entries.
func (c *Chunker) Chunk(text string) []Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var chunks []Chunk
	kept := 0
	for _, lines := range c.sections(strings.Split(text, "\n")) {
		body := strings.TrimSpace(strings.Join(lines, "\n"))
		if utf8.RuneCountInString(body) < c.minSectionLength {
			continue
		}
		chunks = append(chunks, Chunk{Kind: KindSection, Section: kept, Text: body})
		for _, entry := range c.entries(lines) {
			chunks = append(chunks, Chunk{Kind: KindEntry, Section: kept, Text: entry})
		}
		kept++
	}
	return chunks
}

// Texts returns the passage texts of Chunk(text).
func (c *Chunker) Texts(text string) []string {
	chunks := c.Chunk(text)
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out
}

func (c *Chunker) sections(lines []string) [][]string {
	var out [][]string
	var cur []string
	for _, line := range lines {
		if c.isDelimiter(line) {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = []string{line}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// entries pairs each code line with the next non-blank line, unless that line
// starts another entry or a section.
func (c *Chunker) entries(lines []string) []string {
	var out []string
	for i, line := range lines {
		head := strings.TrimSpace(line)
		if !c.isEntry(head) {
			continue
		}
		entry := head
		for _, next := range lines[i+1:] {
			desc := strings.TrimSpace(next)
			if desc == "" {
				continue
			}
			if !c.isEntry(desc) && !c.isDelimiter(next) {
				entry += "\n" + desc
			}
			break
		}
		out = append(out, entry)
	}
	return out
}

func (c *Chunker) isDelimiter(line string) bool {
	return strings.HasPrefix(line, c.delimiter)
}

// isEntry reports whether line starts with a code that is not followed by a letter,
// so "IAL101" and "MAT 2" match but "MATERIAL" does not.
func (c *Chunker) isEntry(line string) bool {
	for _, code := range c.codes {
		if !strings.HasPrefix(line, code) {
			continue
		}
		rest := line[len(code):]
		if rest == "" {
			return true
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
