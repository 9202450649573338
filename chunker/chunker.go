// Package chunker splits raw documents into bounded, embeddable text
// segments, preferring natural structural boundaries over blind cuts.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxChunks caps the output regardless of input size. Splitting a
// pathological input is truncated at this bound rather than exhausting
// the embedding budget.
const MaxChunks = 500

const defaultTargetSize = 500

var (
	crlfRe      = regexp.MustCompile(`\r\n`)
	spaceRunRe  = regexp.MustCompile(`[ \t]+`)
	separatorRe = regexp.MustCompile(`\n\s*[-=]{3,}\s*\n`)
	headingRe   = regexp.MustCompile(`\n##?[ \t]+\S`)
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
)

// Options configure a Chunker. TargetSize is the preferred maximum
// chunk length in characters (runes, not bytes). MinChunkLength drops
// fragments at or below that length as noise; zero keeps everything.
type Options struct {
	TargetSize     int
	MinChunkLength int
}

type Chunker struct {
	targetSize int
	minLength  int
}

func New(opts Options) *Chunker {
	if opts.TargetSize <= 0 {
		opts.TargetSize = defaultTargetSize
	}
	if opts.MinChunkLength < 0 {
		opts.MinChunkLength = 0
	}
	return &Chunker{
		targetSize: opts.TargetSize,
		minLength:  opts.MinChunkLength,
	}
}

// Split returns the ordered chunks of text. Strategies are tried in
// priority order: explicit ---/=== separators, then #/## headings, then
// blank-line paragraphs. Sections that still exceed the target size are
// sub-split by lines and sentences; a single oversized sentence is hard
// truncated to the target size.
func (c *Chunker) Split(text string) []string {
	text = crlfRe.ReplaceAllString(text, "\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if utf8.RuneCountInString(text) <= c.targetSize {
		return []string{text}
	}

	sections := separatorRe.Split(text, -1)
	if len(sections) == 1 {
		sections = splitBeforeHeadings(text)
	}
	if len(sections) == 1 {
		sections = paragraphRe.Split(text, -1)
	}

	var chunks []string
	for _, section := range sections {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		if utf8.RuneCountInString(section) <= c.targetSize {
			if utf8.RuneCountInString(section) > c.minLength {
				chunks = append(chunks, section)
			}
		} else {
			chunks = append(chunks, c.splitLargeSection(section)...)
		}
	}

	if len(chunks) > MaxChunks {
		chunks = chunks[:MaxChunks]
	}
	return chunks
}

// splitBeforeHeadings cuts the text immediately before every line that
// starts a # or ## heading, keeping the heading with its section.
func splitBeforeHeadings(text string) []string {
	locs := headingRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	var sections []string
	prev := 0
	for _, loc := range locs {
		cut := loc[0] + 1
		if cut > prev {
			sections = append(sections, text[prev:cut])
		}
		prev = cut
	}
	sections = append(sections, text[prev:])
	return sections
}

// splitLargeSection accumulates lines into a buffer that is flushed
// whenever the next line would exceed the target size. Oversized lines
// fall back to sentence accumulation.
func (c *Chunker) splitLargeSection(section string) []string {
	var chunks []string
	var current string

	flush := func() {
		trimmed := strings.TrimSpace(current)
		if utf8.RuneCountInString(trimmed) > c.minLength {
			chunks = append(chunks, trimmed)
		}
	}

	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if utf8.RuneCountInString(current)+utf8.RuneCountInString(line)+1 > c.targetSize {
			if current != "" {
				flush()
			}

			if utf8.RuneCountInString(line) > c.targetSize {
				current = ""
				for _, sentence := range splitSentences(line) {
					if utf8.RuneCountInString(current)+utf8.RuneCountInString(sentence)+1 > c.targetSize {
						if current != "" {
							flush()
						}
						if utf8.RuneCountInString(sentence) > c.targetSize {
							chunks = append(chunks, truncateRunes(sentence, c.targetSize))
							current = ""
						} else {
							current = sentence
						}
					} else {
						if current != "" {
							current += " "
						}
						current += sentence
					}
				}
			} else {
				current = line
			}
		} else {
			if current != "" {
				current += "\n"
			}
			current += line
		}
	}

	if current != "" {
		flush()
	}
	return chunks
}

// splitSentences splits after ., ! or ? followed by whitespace.
func splitSentences(line string) []string {
	runes := []rune(line)
	var sentences []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			sentence := strings.TrimSpace(string(runes[start : i+1]))
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
			start = i + 1
		}
	}
	if start < len(runes) {
		tail := strings.TrimSpace(string(runes[start:]))
		if tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
