// Command cosmica is a local document Q&A engine: it indexes documents on
// device and answers questions about them, optionally through an OpenAI or
// Azure OpenAI model.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cosmica-labs/cosmica-cli/internal/adapters/driven/config/file"
	"github.com/cosmica-labs/cosmica-cli/internal/adapters/driven/embedding/openai"
	llmopenai "github.com/cosmica-labs/cosmica-cli/internal/adapters/driven/llm/openai"
	"github.com/cosmica-labs/cosmica-cli/internal/adapters/driven/storage/sqlite"
	"github.com/cosmica-labs/cosmica-cli/internal/adapters/driving/cli"
	"github.com/cosmica-labs/cosmica-cli/internal/core/ports/driven"
	"github.com/cosmica-labs/cosmica-cli/internal/core/services"
	"github.com/cosmica-labs/cosmica-cli/internal/index/hnsw"
	"github.com/cosmica-labs/cosmica-cli/internal/logger"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers/markdown"
	"github.com/cosmica-labs/cosmica-cli/internal/normalisers/plaintext"
)

// version is injected at build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	creds, err := file.LoadCredentials()
	if err != nil {
		return err
	}

	settingsStore, err := file.NewSettingsStore("")
	if err != nil {
		return err
	}
	settings, err := settingsStore.Load()
	if err != nil {
		// Defaults still let read-only commands work.
		logger.Warn("Loading settings: %v (using defaults)", err)
	}

	promptStore, err := file.NewPromptStore("")
	if err != nil {
		return err
	}

	store, err := sqlite.NewStore("")
	if err != nil {
		return err
	}

	var embedder driven.EmbeddingService
	if creds.HasEmbedding() {
		service, err := openai.NewEmbeddingService(openai.Config{
			APIKey:          creds.OpenAIAPIKey,
			BaseURL:         creds.OpenAIBaseURL,
			Model:           creds.EmbeddingModel,
			AzureDeployment: creds.AzureEmbeddingDeployment,
			AzureAPIVersion: creds.AzureAPIVersion,
		})
		if err != nil {
			return err
		}
		embedder = service
	}

	var llm driven.LLMService
	if creds.HasChat() {
		service, err := llmopenai.NewLLMService(llmopenai.Config{
			APIKey:          creds.OpenAIAPIKey,
			BaseURL:         creds.OpenAIBaseURL,
			Model:           creds.ChatModel,
			AzureDeployment: creds.AzureChatDeployment,
			AzureAPIVersion: creds.AzureAPIVersion,
		})
		if err != nil {
			return err
		}
		service.SetPromptStore(promptStore)
		llm = service
	}

	// The index dimension follows the embedder; settings only decide it
	// when no embedder is configured yet.
	dimension := settings.Dimension
	if embedder != nil {
		dimension = embedder.Dimensions()
	}

	indexPath := filepath.Join(filepath.Dir(store.Path()), "index.covx")
	index, err := openIndex(indexPath, dimension, settings.HNSWM, settings.EFConstruction)
	if err != nil {
		return err
	}

	registry := normalisers.NewRegistry(plaintext.New(), markdown.New())

	engine, err := services.NewEngine(
		services.EngineConfig{Settings: settings, IndexPath: indexPath},
		store.DocumentStore(),
		store.ConversationStore(),
		index,
		embedder,
		llm,
		promptStore,
		registry,
	)
	if err != nil {
		return err
	}
	defer engine.Close() //nolint:errcheck

	cli.SetVersion(version)
	cli.SetSettingsStore(settingsStore)
	cli.SetServices(cli.Services{
		Ingest:        engine.Ingest,
		Query:         engine.Query,
		Documents:     engine.Documents,
		Conversations: engine.Memory,
		Maintenance:   engine.Maintenance,
		Scheduler:     engine.Scheduler,
		Registry:      registry,
	})

	return cli.Execute()
}

// openIndex loads the persisted index, or builds a fresh one when none
// exists yet.
func openIndex(path string, dimension, m, efConstruction int) (*hnsw.Index, error) {
	if _, err := os.Stat(path); err == nil {
		index, err := hnsw.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading index from %s: %w", path, err)
		}
		return index, nil
	}
	return hnsw.New(hnsw.Config{
		Dimension:      dimension,
		M:              m,
		EFConstruction: efConstruction,
	})
}
