package driven

import "github.com/cosmica-labs/cosmica-cli/internal/core/domain"

// SettingsStore persists the engine's tunable parameters.
type SettingsStore interface {
	// Load reads settings from storage. Missing values fall back to the
	// engine defaults; a missing file yields the defaults outright.
	Load() (domain.Settings, error)

	// Save persists settings to storage.
	Save(settings domain.Settings) error

	// Path returns the backing file path.
	Path() string
}

// Prompt names recognised by PromptStore implementations.
const (
	// PromptAnswerSystem is the knowledge-bound system prompt used when
	// generating answers from retrieved context.
	PromptAnswerSystem = "answer_system"

	// PromptCondense folds evicted conversation turns into the rolling
	// summary.
	PromptCondense = "condense"
)

// PromptStore loads LLM prompt templates, allowing user customisation.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	Load(name string) (string, error)

	// Reload clears any caches, forcing fresh loads from storage.
	Reload()

	// Dir returns the prompt directory path.
	Dir() string
}
