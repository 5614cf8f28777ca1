package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenaiClient_Generate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "gpt-4o-mini", body["model"])
			messages, _ := body["messages"].([]any)
			require.Len(t, messages, 1)
			msg, _ := messages[0].(map[string]any)
			assert.Equal(t, "user", msg["role"])
			assert.Equal(t, "what is model armor?", msg["content"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
				"choices":[{"index":0,"message":{"role":"assistant","content":"A prompt firewall."},"finish_reason":"stop"}],
				"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}}`))
		}))
		defer server.Close()

		client := openai.NewOpenaiClient()
		resp, err := client.Generate(context.Background(), &providers.Config{
			Provider:    providers.ProviderOpenAI,
			Credentials: providers.Credentials{ApiKey: "sk-test"},
			Model:       "gpt-4o-mini",
			BaseURL:     server.URL + "/",
		}, "what is model armor?")

		require.NoError(t, err)
		assert.Equal(t, "chatcmpl-1", resp.ID)
		assert.Equal(t, providers.ProviderOpenAI, resp.Provider)
		assert.Equal(t, "A prompt firewall.", resp.Response)
		assert.Equal(t, 9, resp.Usage.TotalTokens)
	})

	t.Run("Server error is not retried", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		}))
		defer server.Close()

		client := openai.NewOpenaiClient()
		_, err := client.Generate(context.Background(), &providers.Config{
			Credentials: providers.Credentials{ApiKey: "sk-test"},
			Model:       "gpt-4o-mini",
			BaseURL:     server.URL + "/",
		}, "hello")

		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("Validation", func(t *testing.T) {
		client := openai.NewOpenaiClient()

		_, err := client.Generate(context.Background(), &providers.Config{Model: "gpt-4o-mini"}, "hello")
		assert.EqualError(t, err, "API key is required")

		_, err = client.Generate(context.Background(), &providers.Config{Credentials: providers.Credentials{ApiKey: "k"}}, "hello")
		assert.EqualError(t, err, "model is required")
	})
}
