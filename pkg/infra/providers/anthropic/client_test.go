package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_Generate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/messages", r.URL.Path)
			assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))

			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(1024), body["max_tokens"])
			assert.Nil(t, body["system"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
				"content":[{"type":"text","text":"Hello there."}],"stop_reason":"end_turn",
				"usage":{"input_tokens":3,"output_tokens":2}}`))
		}))
		defer server.Close()

		client := anthropic.NewAnthropicClient()
		resp, err := client.Generate(context.Background(), &providers.Config{
			Credentials: providers.Credentials{ApiKey: "sk-ant-test"},
			Model:       "claude-3-5-haiku-latest",
			BaseURL:     server.URL + "/",
		}, "hi")

		require.NoError(t, err)
		assert.Equal(t, "msg_1", resp.ID)
		assert.Equal(t, providers.ProviderAnthropic, resp.Provider)
		assert.Equal(t, "Hello there.", resp.Response)
		assert.Equal(t, 5, resp.Usage.TotalTokens)
	})

	t.Run("Validation", func(t *testing.T) {
		client := anthropic.NewAnthropicClient()

		_, err := client.Generate(context.Background(), &providers.Config{Model: "m"}, "hi")
		assert.EqualError(t, err, "API key is required")
	})
}
