package modelarmor

import "github.com/NeuralTrust/PromptArmor/pkg/infra/httpx"

type ModelArmorClientOption func(*ModelArmorClient)

func WithHTTPClient(client httpx.Client) ModelArmorClientOption {
	return func(c *ModelArmorClient) {
		if client != nil {
			c.client = client
		}
	}
}

func WithCircuitBreaker(breaker httpx.CircuitBreaker) ModelArmorClientOption {
	return func(c *ModelArmorClient) {
		c.circuitBreaker = breaker
	}
}

// WithEndpoint replaces the regional base URL, e.g. for a local emulator.
func WithEndpoint(endpoint string) ModelArmorClientOption {
	return func(c *ModelArmorClient) {
		c.endpoint = endpoint
	}
}
