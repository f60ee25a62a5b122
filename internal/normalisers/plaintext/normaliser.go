package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{
		".txt",
		".text",
		".log",
		".csv",
		".json",
		".yaml",
		".yml",
		".toml",
		".xml",
	}
}

// Normalise extracts text from a plain text file. Line endings are unified
// to \n; byte-order marks are dropped.
func (n *Normaliser) Normalise(_ context.Context, _ string, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", domain.ErrUnsupportedType
	}

	content := string(raw)
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	return content, nil
}
