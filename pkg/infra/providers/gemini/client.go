package gemini

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/auth"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers"
	"golang.org/x/sync/singleflight"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-1.5-flash"

type client struct {
	credentials *auth.Credentials
	clientPool  *sync.Map
	sf          singleflight.Group
}

// NewGeminiClient serves both the Vertex AI backend, authenticated with the
// given Google credentials, and the Gemini API backend when an API key is set.
func NewGeminiClient(credentials *auth.Credentials) providers.Client {
	return &client{
		credentials: credentials,
		clientPool:  &sync.Map{},
	}
}

func (c *client) Generate(
	ctx context.Context,
	config *providers.Config,
	prompt string,
) (*providers.CompletionResponse, error) {
	model := config.Model
	if model == "" {
		model = DefaultModel
	}

	genaiClient, err := c.getOrCreateClient(ctx, config)
	if err != nil {
		return nil, err
	}

	result, err := genaiClient.Models.GenerateContent(ctx, model, genai.Text(prompt), generateContentConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	responseText := result.Text()
	if responseText == "" {
		return nil, fmt.Errorf("no completions returned")
	}

	completionResp := &providers.CompletionResponse{
		ID:       fmt.Sprintf("gemini-%d", time.Now().UnixNano()),
		Provider: providerName(config),
		Model:    model,
		Response: responseText,
	}
	if result.UsageMetadata != nil {
		completionResp.Usage = providers.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return completionResp, nil
}

// generateContentConfig returns nil when no sampling option is set so the
// model defaults apply.
func generateContentConfig(config *providers.Config) *genai.GenerateContentConfig {
	if config.Temperature <= 0 && config.MaxTokens <= 0 {
		return nil
	}
	genConfig := &genai.GenerateContentConfig{}
	if config.Temperature > 0 {
		temperature := float32(config.Temperature)
		genConfig.Temperature = &temperature
	}
	if config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(config.MaxTokens)
	}
	return genConfig
}

func providerName(config *providers.Config) string {
	if config.Provider == "" {
		return providers.ProviderVertex
	}
	return config.Provider
}

func (c *client) clientConfig(config *providers.Config) (*genai.ClientConfig, error) {
	if config.Provider == providers.ProviderGemini {
		if config.Credentials.ApiKey == "" {
			return nil, fmt.Errorf("API key is required")
		}
		return &genai.ClientConfig{
			APIKey:  config.Credentials.ApiKey,
			Backend: genai.BackendGeminiAPI,
		}, nil
	}

	if config.Project == "" || config.Location == "" {
		return nil, fmt.Errorf("vertex project and location are required")
	}
	if c.credentials == nil {
		return nil, fmt.Errorf("google credentials are required for vertex")
	}
	return &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     config.Project,
		Location:    config.Location,
		Credentials: c.credentials,
	}, nil
}

func (c *client) getOrCreateClient(ctx context.Context, config *providers.Config) (*genai.Client, error) {
	clientCfg, err := c.clientConfig(config)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d|%s|%s|%s", clientCfg.Backend, clientCfg.Project, clientCfg.Location, clientCfg.APIKey)

	if v, ok := c.clientPool.Load(key); ok {
		if cli, ok := v.(*genai.Client); ok {
			return cli, nil
		}
	}
	v, err, _ := c.sf.Do(key, func() (any, error) {
		if v2, ok := c.clientPool.Load(key); ok {
			return v2, nil
		}
		cli, err := genai.NewClient(ctx, clientCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client: %w", err)
		}
		c.clientPool.Store(key, cli)
		return cli, nil
	})
	if err != nil {
		return nil, err
	}
	cli, ok := v.(*genai.Client)
	if !ok {
		return nil, fmt.Errorf("unexpected genai client type %T", v)
	}
	return cli, nil
}
