package httpx_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NeuralTrust/PromptArmor/pkg/infra/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastHTTPClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/check", r.URL.Path)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "promptarmor-test", r.Header.Get("User-Agent"))
		assert.JSONEq(t, `{"a":1}`, string(body))

		w.Header().Set("X-Trace", "t-1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := httpx.NewFastHTTPClient(
		httpx.WithTimeout(2*time.Second),
		httpx.WithUserAgent("promptarmor-test"),
	)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL+"/v1/check", bytes.NewReader([]byte(`{"a":1}`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer abc")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "t-1", resp.Header.Get("X-Trace"))
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestFastHTTPClient_Do_CanceledContext(t *testing.T) {
	client := httpx.NewFastHTTPClient()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1/never", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
}
