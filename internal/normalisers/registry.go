package normalisers

import (
	"path/filepath"
	"strings"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
)

// Registry selects a normaliser by file extension.
type Registry struct {
	byExt map[string]driven.Normaliser
}

// NewRegistry creates a registry over the given normalisers. A later
// normaliser claiming an already-registered extension wins.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{byExt: make(map[string]driven.Normaliser)}
	for _, n := range normalisers {
		for _, ext := range n.Extensions() {
			r.byExt[strings.ToLower(ext)] = n
		}
	}
	return r
}

// For returns the normaliser for the given filename.
// Unknown extensions return domain.ErrUnsupportedType.
func (r *Registry) For(filename string) (driven.Normaliser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	n, ok := r.byExt[ext]
	if !ok {
		return nil, domain.ErrUnsupportedType
	}
	return n, nil
}

// Extensions returns every registered extension.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}
