// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the engine to function:
//
//   - VectorIndex: Graph-based approximate nearest-neighbour search
//   - DocumentStore: Document, chunk, and tombstone persistence
//   - ConversationStore: Conversation turn and summary persistence
//   - EmbeddingService: Generates vector embeddings (external capability)
//   - Normaliser: Converts raw file bytes into clean text
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - LLMService: Generation and summary condensation. Without it,
//     answering degrades to printing the assembled context, and turns
//     evicted from the conversation window stay queued unsummarised.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
