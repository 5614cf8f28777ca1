package factory

import (
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/auth"
	"github.com/NeuralTrust/PromptArmor/pkg/domain/safety"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers/anthropic"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers/azure"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers/bedrock"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers/gemini"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers/openai"
)

type ProviderLocator interface {
	Get(provider string) (providers.Client, error)
}

type providerLocator struct {
	googleCredentials *auth.Credentials

	mu      sync.Mutex
	clients map[string]providers.Client
}

// NewProviderLocator builds vendor clients lazily. Google credentials back
// the vertex provider and may be nil when it is not used.
func NewProviderLocator(googleCredentials *auth.Credentials) ProviderLocator {
	return &providerLocator{
		googleCredentials: googleCredentials,
		clients:           make(map[string]providers.Client),
	}
}

func (f *providerLocator) Get(provider string) (providers.Client, error) {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		name = providers.ProviderVertex
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cli, ok := f.clients[name]; ok {
		return cli, nil
	}

	var cli providers.Client
	switch name {
	case providers.ProviderVertex, providers.ProviderGemini:
		cli = gemini.NewGeminiClient(f.googleCredentials)
	case providers.ProviderOpenAI:
		cli = openai.NewOpenaiClient()
	case providers.ProviderAnthropic:
		cli = anthropic.NewAnthropicClient()
	case providers.ProviderBedrock:
		cli = bedrock.NewBedrockClient()
	case providers.ProviderAzure:
		cli = azure.NewAzureClient()
	default:
		return nil, fmt.Errorf("%w: %s", safety.ErrUnsupportedProvider, provider)
	}
	f.clients[name] = cli
	return cli, nil
}
