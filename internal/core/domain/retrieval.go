package domain

// RetrievedChunk is a per-query similarity search result. It is ephemeral
// and never persisted.
type RetrievedChunk struct {
	// ChunkID is the matched chunk's index position.
	ChunkID int `json:"chunk_id"`

	// DocumentID is the owning document.
	DocumentID string `json:"document_id"`

	// Sequence is the chunk's order within its document.
	Sequence int `json:"sequence"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Similarity is the cosine-derived score in [0, 1].
	Similarity float64 `json:"similarity"`
}

// QueryOptions configures a retrieval query.
type QueryOptions struct {
	// TopK is the number of nearest neighbours requested from the index.
	// Zero means the configured default.
	TopK int

	// DocumentIDs restricts retrieval to the given documents when non-empty.
	DocumentIDs []string
}

// Answer is the outcome of a question put to the knowledge base.
type Answer struct {
	// Text is the generated answer, or the fallback notice when no
	// language model is configured.
	Text string `json:"text"`

	// Sources are the chunks the answer was grounded on, ordered by
	// descending similarity.
	Sources []RetrievedChunk `json:"sources"`

	// ConversationID is the conversation the exchange was recorded in.
	// Empty for stateless queries.
	ConversationID string `json:"conversation_id,omitempty"`
}

// AnswerContext is the assembled generation payload for one query.
type AnswerContext struct {
	// ConversationID identifies the conversation the context was built for.
	ConversationID string

	// Text is the full prompt: system instruction, summary, verbatim
	// turns, retrieved chunks, and the query.
	Text string

	// UsedChunks are the chunks included in Text, ordered by descending
	// similarity (ties broken by ascending sequence, then document ID).
	UsedChunks []RetrievedChunk
}
