package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_SmallTextReturnsSingleChunk(t *testing.T) {
	c := New(Options{TargetSize: 500})

	text := "A short note that easily fits in one chunk."
	chunks := c.Split("  " + text + "\n")

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplit_EmptyText(t *testing.T) {
	c := New(Options{TargetSize: 500})

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  \n"))
}

func TestSplit_SectionSeparators(t *testing.T) {
	c := New(Options{TargetSize: 40})

	text := "first section body text\n---\nsecond section body text\n====\nthird section body"
	chunks := c.Split(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, "first section body text", chunks[0])
	assert.Equal(t, "second section body text", chunks[1])
	assert.Equal(t, "third section body", chunks[2])
}

func TestSplit_Headings(t *testing.T) {
	c := New(Options{TargetSize: 40})

	text := "intro paragraph before any heading\n# First\nbody of first\n## Second\nbody of second"
	chunks := c.Split(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, "intro paragraph before any heading", chunks[0])
	assert.True(t, strings.HasPrefix(chunks[1], "# First"))
	assert.True(t, strings.HasPrefix(chunks[2], "## Second"))
}

func TestSplit_Paragraphs(t *testing.T) {
	c := New(Options{TargetSize: 40})

	text := "first paragraph body here\n\nsecond paragraph body here\n\n\nthird paragraph"
	chunks := c.Split(text)

	require.Len(t, chunks, 3)
	assert.Equal(t, "first paragraph body here", chunks[0])
	assert.Equal(t, "second paragraph body here", chunks[1])
	assert.Equal(t, "third paragraph", chunks[2])
}

func TestSplit_UnstructuredDocument(t *testing.T) {
	c := New(Options{TargetSize: 500})

	// 12 lines of 100 characters, no blank lines, no separators.
	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, strings.Repeat(string(rune('a'+i)), 100))
	}
	text := strings.Join(lines, "\n")
	require.Equal(t, 1211, utf8.RuneCountInString(text))

	chunks := c.Split(text)

	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 500)
	}

	// Every original line survives, in order.
	joined := strings.Join(chunks, "\n")
	for _, line := range lines {
		assert.Contains(t, joined, line)
	}
	assert.Equal(t, strings.Join(lines, "\n"), joined)
}

func TestSplit_SentenceAccumulation(t *testing.T) {
	c := New(Options{TargetSize: 60})

	// One long line of short sentences forces the sentence splitter.
	line := "Alpha is first. Bravo follows on. Charlie is third. Delta ends it."
	chunks := c.Split(line + "\n\nclosing paragraph")

	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 60)
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
	assert.Contains(t, chunks[0], "Alpha is first.")
}

func TestSplit_OversizedSentenceTruncated(t *testing.T) {
	c := New(Options{TargetSize: 500})

	chunks := c.Split(strings.Repeat("x", 600))

	require.Len(t, chunks, 1)
	assert.Equal(t, 500, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, strings.Repeat("x", 500), chunks[0])
}

func TestSplit_CappedAtMaxChunks(t *testing.T) {
	c := New(Options{TargetSize: 30})

	var sb strings.Builder
	for i := 0; i < MaxChunks+100; i++ {
		fmt.Fprintf(&sb, "paragraph body number %04d\n\n", i)
	}

	chunks := c.Split(sb.String())
	assert.Len(t, chunks, MaxChunks)
}

func TestSplit_Idempotent(t *testing.T) {
	c := New(Options{TargetSize: 120})

	text := "# Title\nsome body text for the first part\n\nsecond paragraph with more words in it\n---\nanother section entirely, long enough to matter. And one more sentence here."
	first := c.Split(text)
	second := c.Split(text)

	assert.Equal(t, first, second)
}

func TestSplit_NoEmptyChunks(t *testing.T) {
	c := New(Options{TargetSize: 50})

	text := "one\n\n\n\n\ntwo\n\n   \n\nthree" + strings.Repeat("\n\n", 5) + strings.Repeat("tail words here ", 20)
	for _, chunk := range c.Split(text) {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
}

func TestSplit_MinChunkLengthFiltersNoise(t *testing.T) {
	c := New(Options{TargetSize: 50, MinChunkLength: 30})

	long := strings.Repeat("a", 45)
	text := long + "\n\ntiny\n\n" + long

	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.Greater(t, utf8.RuneCountInString(chunk), 30)
	}
}

func TestSplit_NormalizesWhitespace(t *testing.T) {
	c := New(Options{TargetSize: 500})

	chunks := c.Split("spaced\t\tout   words\r\nnext line")
	require.Len(t, chunks, 1)
	assert.Equal(t, "spaced out words\nnext line", chunks[0])
}
