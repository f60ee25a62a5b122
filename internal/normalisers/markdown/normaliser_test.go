package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensions(t *testing.T) {
	exts := New().Extensions()
	assert.Contains(t, exts, ".md")
	assert.Contains(t, exts, ".markdown")
}

func TestNormalise_StripsFormatting(t *testing.T) {
	input := `# Title

Some **bold** and [linked](https://example.com) text.

- item one
- item two

> a quote
`
	got, err := New().Normalise(context.Background(), "doc.md", []byte(input))
	require.NoError(t, err)

	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "**")
	assert.NotContains(t, got, "](")
	assert.NotContains(t, got, "- item")
	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "Some bold and linked text.")
	assert.Contains(t, got, "item one")
	assert.Contains(t, got, "a quote")
}

func TestNormalise_KeepsCodeContent(t *testing.T) {
	input := "Before\n\n```go\nfunc main() {}\n```\n\nAfter"
	got, err := New().Normalise(context.Background(), "doc.md", []byte(input))
	require.NoError(t, err)

	assert.Contains(t, got, "func main() {}")
	assert.NotContains(t, got, "```")
}

func TestNormalise_PreservesParagraphBreaks(t *testing.T) {
	input := "First paragraph.\n\nSecond paragraph.\n\n\n\nThird."
	got, err := New().Normalise(context.Background(), "doc.md", []byte(input))
	require.NoError(t, err)

	assert.Contains(t, got, "First paragraph.\n\nSecond paragraph.")
	assert.NotContains(t, got, "\n\n\n")
}
