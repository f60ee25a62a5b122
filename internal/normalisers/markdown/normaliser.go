package markdown

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".md", ".markdown", ".mdown"}
}

// Normalise converts markdown to plain text with formatting stripped.
// Paragraph breaks are preserved so downstream chunking can still find
// structural boundaries.
func (n *Normaliser) Normalise(_ context.Context, _ string, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", domain.ErrUnsupportedType
	}

	content := string(raw)
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	return stripMarkdown(content), nil
}

// stripMarkdown removes common markdown formatting for plain text content.
// This is a simplified implementation that handles common cases.
func stripMarkdown(content string) string {
	// Remove code fences but keep the code itself; code often carries
	// the content users search for.
	fences := regexp.MustCompile("(?m)^```[^\n]*$")
	content = fences.ReplaceAllString(content, "")

	// Unwrap inline code (`code`)
	inlineCode := regexp.MustCompile("`([^`]+)`")
	content = inlineCode.ReplaceAllString(content, "$1")

	// Remove images ![alt](url)
	images := regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	content = images.ReplaceAllString(content, "")

	// Convert links [text](url) to just text
	links := regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	content = links.ReplaceAllString(content, "$1")

	// Remove heading markers (# ## ### etc)
	headings := regexp.MustCompile(`(?m)^#{1,6}\s+`)
	content = headings.ReplaceAllString(content, "")

	// Remove bold/italic markers
	content = strings.ReplaceAll(content, "**", "")
	content = strings.ReplaceAll(content, "__", "")

	// Remove blockquote markers
	blockquote := regexp.MustCompile(`(?m)^>\s*`)
	content = blockquote.ReplaceAllString(content, "")

	// Remove horizontal rules
	hr := regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	content = hr.ReplaceAllString(content, "")

	// Remove list markers (- * + and numbered)
	listMarkers := regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	content = listMarkers.ReplaceAllString(content, "")
	numberedList := regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	content = numberedList.ReplaceAllString(content, "")

	// Collapse multiple newlines
	multiNewlines := regexp.MustCompile(`\n{3,}`)
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
