package providers

import (
	"context"
)

const (
	ProviderVertex    = "vertex"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderAzure     = "azure"
)

type Config struct {
	Provider    string      `json:"provider"`
	Credentials Credentials `json:"credentials"`
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`

	// BaseURL overrides the vendor endpoint for OpenAI and Anthropic.
	BaseURL string `json:"base_url,omitempty"`

	// Project and Location select the Vertex AI deployment.
	Project  string `json:"project,omitempty"`
	Location string `json:"location,omitempty"`

	// Region selects the AWS region for Bedrock.
	Region string `json:"region,omitempty"`
}

type Credentials struct {
	ApiKey string            `json:"api_key"`
	Azure  *AzureCredentials `json:"azure,omitempty"`
}

// AzureCredentials locate an Azure OpenAI resource. With UseIdentity the
// ambient Azure AD identity is used instead of ApiKey.
type AzureCredentials struct {
	Endpoint    string `json:"endpoint"`
	UseIdentity bool   `json:"use_identity"`
	ApiVersion  string `json:"api_version,omitempty"`
}

// Client sends a prompt verbatim to a generative model. Implementations
// perform a single attempt.
type Client interface {
	Generate(ctx context.Context, config *Config, prompt string) (*CompletionResponse, error)
}
