package providers

// CompletionResponse is the text produced for a forwarded prompt. Provider
// names the client that produced it.
type CompletionResponse struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Response string `json:"response"`
	Usage    Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderOrDefault is the provider recorded on the response, or fallback
// when the client left it empty.
func (r *CompletionResponse) ProviderOrDefault(fallback string) string {
	if r == nil || r.Provider == "" {
		return fallback
	}
	return r.Provider
}
