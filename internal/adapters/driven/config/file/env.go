package file

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Credentials holds provider secrets and endpoints read from the
// environment. They are never written to the settings file.
//
// Variables use the COSMICA_ prefix, e.g. COSMICA_OPENAI_API_KEY.
type Credentials struct {
	// OpenAIAPIKey authenticates against OpenAI or Azure OpenAI.
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// OpenAIBaseURL overrides the API base URL. For Azure this is the
	// resource endpoint, e.g. https://myresource.openai.azure.com.
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	// EmbeddingModel selects the embedding model.
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL"`

	// ChatModel selects the generation model.
	ChatModel string `envconfig:"CHAT_MODEL"`

	// AzureEmbeddingDeployment switches embedding calls to Azure mode.
	AzureEmbeddingDeployment string `envconfig:"AZURE_EMBEDDING_DEPLOYMENT"`

	// AzureChatDeployment switches generation calls to Azure mode.
	AzureChatDeployment string `envconfig:"AZURE_CHAT_DEPLOYMENT"`

	// AzureAPIVersion is the api-version query parameter for Azure mode.
	AzureAPIVersion string `envconfig:"AZURE_API_VERSION"`
}

// HasEmbedding reports whether embedding calls can be configured.
func (c Credentials) HasEmbedding() bool {
	return c.OpenAIAPIKey != ""
}

// HasChat reports whether generation calls can be configured.
func (c Credentials) HasChat() bool {
	return c.OpenAIAPIKey != ""
}

// LoadCredentials reads credentials from the environment. A .env file in
// the working directory is loaded first when present; real environment
// variables win over .env entries.
func LoadCredentials() (Credentials, error) {
	// Missing .env is the common case, not an error.
	_ = godotenv.Load()

	var creds Credentials
	if err := envconfig.Process("cosmica", &creds); err != nil {
		return Credentials{}, fmt.Errorf("reading environment: %w", err)
	}
	return creds, nil
}
