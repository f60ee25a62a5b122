package driving

import (
	"context"

	"github.com/cosmica-labs/cosmica-cli/internal/core/domain"
)

// IngestService adds documents to the knowledge base.
type IngestService interface {
	// IngestFile reads, normalises, chunks, embeds and indexes a file.
	// Returns the resulting document record. Failures after chunk
	// insertion leave the document in StatusFailed with its chunks
	// tombstoned.
	IngestFile(ctx context.Context, path string) (*domain.Document, error)

	// IngestText ingests raw text under the given name.
	IngestText(ctx context.Context, name, text string) (*domain.Document, error)
}
