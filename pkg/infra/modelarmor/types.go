package modelarmor

import "github.com/NeuralTrust/PromptArmor/pkg/domain/safety"

type sanitizeUserPromptRequest struct {
	UserPromptData userPromptData `json:"user_prompt_data"`
}

type userPromptData struct {
	Text string `json:"text"`
}

// Classification is the outcome of one sanitizeUserPrompt call.
type Classification struct {
	Verdict   *safety.Verdict `json:"verdict"`
	LatencyMs int64           `json:"latency_ms"`
}
