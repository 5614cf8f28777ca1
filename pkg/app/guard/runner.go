package guard

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/NeuralTrust/PromptArmor/pkg/app/report"
	"github.com/NeuralTrust/PromptArmor/pkg/domain/safety"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/modelarmor"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/prometheus"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/providers"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateStart      State = "start"
	StateClassified State = "classified"
	StateBlocked    State = "blocked"
	StateGenerating State = "generating"
	StateDone       State = "done"
)

// Settings is everything a single run needs besides the prompt.
type Settings struct {
	Template   safety.Template
	Generation providers.Config
	// GenerationTimeout bounds the generation call when positive.
	GenerationTimeout time.Duration
}

// Outcome describes how far a run got. State is the last state reached;
// a run that failed stays in the state it failed from.
type Outcome struct {
	RunID      string                        `json:"run_id"`
	State      State                         `json:"state"`
	Verdict    *safety.Verdict               `json:"verdict,omitempty"`
	LatencyMs  int64                         `json:"latency_ms"`
	Generation *providers.CompletionResponse `json:"generation,omitempty"`
}

type Runner interface {
	Run(ctx context.Context, prompt string) (*Outcome, error)
}

type runner struct {
	classifier modelarmor.Client
	generator  providers.Client
	settings   Settings
	out        io.Writer
	logger     *logrus.Logger
	metrics    *prometheus.Metrics
}

func NewRunner(
	classifier modelarmor.Client,
	generator providers.Client,
	settings Settings,
	out io.Writer,
	logger *logrus.Logger,
	metrics *prometheus.Metrics,
) Runner {
	return &runner{
		classifier: classifier,
		generator:  generator,
		settings:   settings,
		out:        out,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run classifies the prompt, prints the verdict report and forwards the
// unmodified prompt to the generation provider unless a match was found.
func (r *runner) Run(ctx context.Context, prompt string) (*Outcome, error) {
	outcome := &Outcome{
		RunID: uuid.New().String(),
		State: StateStart,
	}
	log := r.logger.WithField("run_id", outcome.RunID)

	if strings.TrimSpace(prompt) == "" {
		return outcome, safety.ErrEmptyPrompt
	}

	r.printf("\n🔐 Step 1: Sending prompt to Model Armor for safety check...\n")
	classification, err := r.classifier.SanitizeUserPrompt(ctx, prompt, r.settings.Template)
	if err != nil {
		log.WithError(err).Error("prompt classification failed")
		r.recordRun("error")
		return outcome, err
	}

	if classification.Verdict == nil {
		classification.Verdict = safety.UnknownVerdict()
	}
	outcome.State = StateClassified
	outcome.Verdict = classification.Verdict
	outcome.LatencyMs = classification.LatencyMs
	r.recordVerdict(classification)

	if err := report.Write(r.out, classification.Verdict, classification.LatencyMs); err != nil {
		log.WithError(err).Warn("failed to write verdict report")
	}

	model := r.modelName()
	if classification.Verdict.Blocked() {
		outcome.State = StateBlocked
		log.WithField("match_state", classification.Verdict.OverallMatchState).Info("prompt blocked, generation skipped")
		r.printf("\n🚫 Unsafe input detected by Model Armor. Prompt will NOT be sent to %s.\n", model)
		r.recordRun(string(StateBlocked))
		return outcome, nil
	}

	r.printf("\n✅ Model Armor passed. Sending to %s...\n", model)
	r.printf("\n🧠 Step 2: Sending safe prompt to %s...\n", model)
	outcome.State = StateGenerating

	genCtx := ctx
	if r.settings.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, r.settings.GenerationTimeout)
		defer cancel()
	}
	genCfg := r.settings.Generation
	resp, err := r.generator.Generate(genCtx, &genCfg, prompt)
	if err != nil {
		genErr := &safety.GenerationError{
			Provider: r.settings.Generation.Provider,
			Model:    model,
			Err:      err,
		}
		log.WithError(err).WithField("provider", genErr.Provider).Error("generation failed")
		r.recordGeneration(genErr.Provider, "error")
		r.recordRun("error")
		return outcome, genErr
	}

	outcome.State = StateDone
	outcome.Generation = resp
	provider := resp.ProviderOrDefault(r.settings.Generation.Provider)
	log.WithFields(logrus.Fields{
		"provider":      provider,
		"model":         resp.Model,
		"total_tokens":  resp.Usage.TotalTokens,
		"response_size": len(resp.Response),
	}).Info("generation completed")
	r.recordGeneration(provider, "success")
	r.recordRun(string(StateDone))

	r.printf("\n🧠 %s's Response:\n%s\n", model, resp.Response)
	return outcome, nil
}

func (r *runner) modelName() string {
	if r.settings.Generation.Model != "" {
		return r.settings.Generation.Model
	}
	return r.settings.Generation.Provider
}

func (r *runner) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(r.out, format, args...); err != nil {
		r.logger.WithError(err).Debug("console write failed")
	}
}

func (r *runner) recordVerdict(c *modelarmor.Classification) {
	if r.metrics == nil {
		return
	}
	r.metrics.ClassificationLatency.Observe(float64(c.LatencyMs))
	r.metrics.VerdictsTotal.WithLabelValues(string(c.Verdict.OverallMatchState)).Inc()
}

func (r *runner) recordGeneration(provider, status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.GenerationsTotal.WithLabelValues(provider, status).Inc()
}

func (r *runner) recordRun(state string) {
	if r.metrics == nil {
		return
	}
	r.metrics.RunsTotal.WithLabelValues(state).Inc()
}
