package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/httpx"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers"
	"github.com/valyala/fastjson"
)

const (
	DefaultApiVersion = "2024-02-15-preview"
	cognitiveScope    = "https://cognitiveservices.azure.com/.default"
	chatPath          = "%s/openai/deployments/%s/chat/completions?api-version=%s"
	maxErrorBody      = 2048
)

type client struct {
	httpClient httpx.Client

	mu            sync.Mutex
	credential    azcore.TokenCredential
	newCredential func() (azcore.TokenCredential, error)
}

type Option func(*client)

func WithHTTPClient(c httpx.Client) Option {
	return func(cl *client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTokenCredential replaces the default Azure credential chain.
func WithTokenCredential(cred azcore.TokenCredential) Option {
	return func(cl *client) {
		cl.credential = cred
	}
}

func NewAzureClient(opts ...Option) providers.Client {
	c := &client{
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		newCredential: defaultCredential,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultCredential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	return cred, nil
}

// Generate sends the prompt as the only user message of an Azure OpenAI chat
// completion. Authentication uses the api-key header, or an Azure AD bearer
// token when UseIdentity is set.
func (c *client) Generate(
	ctx context.Context,
	config *providers.Config,
	prompt string,
) (*providers.CompletionResponse, error) {
	azureCfg := config.Credentials.Azure
	if azureCfg == nil || azureCfg.Endpoint == "" {
		return nil, fmt.Errorf("azure endpoint is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model (deployment ID) is required")
	}
	if !azureCfg.UseIdentity && config.Credentials.ApiKey == "" {
		return nil, fmt.Errorf("API key is required when not using Azure identity")
	}

	apiVersion := azureCfg.ApiVersion
	if apiVersion == "" {
		apiVersion = DefaultApiVersion
	}
	url := fmt.Sprintf(chatPath, strings.TrimSuffix(azureCfg.Endpoint, "/"), config.Model, apiVersion)

	reqBody := map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if config.Temperature > 0 {
		reqBody["temperature"] = config.Temperature
	}
	if config.MaxTokens > 0 {
		reqBody["max_tokens"] = config.MaxTokens
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if azureCfg.UseIdentity {
		token, err := c.adToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Azure AD token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("api-key", config.Credentials.ApiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body := string(respBody)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, fmt.Errorf("non-200 status: %d: %s", resp.StatusCode, body)
	}

	return parseCompletion(respBody, config.Model)
}

func parseCompletion(body []byte, deployment string) (*providers.CompletionResponse, error) {
	var p fastjson.Parser
	root, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	choices := root.GetArray("choices")
	if len(choices) == 0 {
		return nil, fmt.Errorf("no completions returned")
	}
	content := choices[0].Get("message", "content")
	if content == nil || content.Type() != fastjson.TypeString {
		return nil, fmt.Errorf("invalid content format")
	}

	id := string(root.GetStringBytes("id"))
	if id == "" {
		id = fmt.Sprintf("azure-%d", time.Now().UnixNano())
	}

	return &providers.CompletionResponse{
		ID:       id,
		Provider: providers.ProviderAzure,
		Model:    deployment,
		Response: string(content.GetStringBytes()),
		Usage: providers.Usage{
			PromptTokens:     root.GetInt("usage", "prompt_tokens"),
			CompletionTokens: root.GetInt("usage", "completion_tokens"),
			TotalTokens:      root.GetInt("usage", "total_tokens"),
		},
	}, nil
}

func (c *client) adToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.credential == nil {
		cred, err := c.newCredential()
		if err != nil {
			c.mu.Unlock()
			return "", err
		}
		c.credential = cred
	}
	cred := c.credential
	c.mu.Unlock()

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{cognitiveScope},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token.Token, nil
}
