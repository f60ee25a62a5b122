// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - SettingsStore: TOML-based engine settings storage
//   - PromptStore: user-editable LLM prompt templates
//
// Provider credentials are not stored in files; they come from the
// environment (see Credentials).
package file
