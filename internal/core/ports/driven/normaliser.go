package driven

import "context"

// Normaliser converts raw file bytes into clean text ready for chunking.
// Heavier formats (PDF, DOCX) are extracted by external tooling before the
// engine sees them; normalisers here cover the plain-text family.
type Normaliser interface {
	// Extensions returns the file extensions this normaliser handles,
	// lower case with the leading dot (".txt", ".md").
	Extensions() []string

	// Normalise converts raw bytes into text.
	Normalise(ctx context.Context, filename string, raw []byte) (string, error)
}
