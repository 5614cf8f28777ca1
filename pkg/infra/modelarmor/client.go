package modelarmor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NeuralTrust/PromptArmor/pkg/domain/safety"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/auth/google"
	"github.com/NeuralTrust/PromptArmor/pkg/infra/httpx"
	"github.com/sirupsen/logrus"
)

const (
	sanitizeUserPromptPath = "/v1/projects/%s/locations/%s/templates/%s:sanitizeUserPrompt"
	maxErrorBodyLength     = 2048
)

type Client interface {
	SanitizeUserPrompt(ctx context.Context, prompt string, template safety.Template) (*Classification, error)
}

// RegionalEndpoint is the Model Armor base URL serving a region.
func RegionalEndpoint(region string) string {
	return fmt.Sprintf("https://modelarmor.%s.rep.googleapis.com", region)
}

type ModelArmorClient struct {
	client         httpx.Client
	tokens         google.TokenProvider
	logger         *logrus.Logger
	circuitBreaker httpx.CircuitBreaker
	endpoint       string
}

func NewModelArmorClient(tokens google.TokenProvider, logger *logrus.Logger, opts ...ModelArmorClientOption) Client {
	c := &ModelArmorClient{
		client: &http.Client{Timeout: 30 * time.Second},
		tokens: tokens,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SanitizeURL builds the sanitizeUserPrompt URL for a template.
func (c *ModelArmorClient) SanitizeURL(template safety.Template) string {
	base := c.endpoint
	if base == "" {
		base = RegionalEndpoint(template.Region)
	}
	return strings.TrimSuffix(base, "/") + fmt.Sprintf(
		sanitizeUserPromptPath,
		url.PathEscape(template.ProjectID),
		url.PathEscape(template.Region),
		url.PathEscape(template.TemplateID),
	)
}

func (c *ModelArmorClient) SanitizeUserPrompt(
	ctx context.Context,
	prompt string,
	template safety.Template,
) (*Classification, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, safety.ErrEmptyPrompt
	}
	if err := template.Validate(); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var result *Classification
	call := func() error {
		var callErr error
		result, callErr = c.executeSanitizeRequest(ctx, prompt, template, token)
		return callErr
	}
	if c.circuitBreaker != nil {
		err = c.circuitBreaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		var classifierErr *safety.ClassifierError
		if errors.As(err, &classifierErr) {
			return nil, classifierErr
		}
		return nil, &safety.ClassifierError{Err: err}
	}
	return result, nil
}

func (c *ModelArmorClient) executeSanitizeRequest(
	ctx context.Context,
	prompt string,
	template safety.Template,
	token string,
) (*Classification, error) {
	body, err := json.Marshal(sanitizeUserPromptRequest{
		UserPromptData: userPromptData{Text: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sanitize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.SanitizeURL(template), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create sanitize request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"project_id":    template.ProjectID,
		"region":        template.Region,
		"template_id":   template.TemplateID,
		"prompt_length": len(prompt),
	}).Debug("sending prompt to model armor")

	startTime := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.WithError(err).Error("failed to call model armor")
		}
		return nil, &safety.ClassifierError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	latencyMs := time.Since(startTime).Milliseconds()
	if err != nil {
		return nil, &safety.ClassifierError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read model armor response: %w", err),
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.WithField("status_code", resp.StatusCode).Error("model armor returned non-2xx status")
		return nil, &safety.ClassifierError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), maxErrorBodyLength),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	verdict, parseErr := parseResponse(respBody)
	if parseErr != nil {
		c.logger.WithError(parseErr).Warn("model armor response incomplete, using placeholder verdict")
	}

	c.logger.WithFields(logrus.Fields{
		"match_state": verdict.OverallMatchState,
		"latency_ms":  latencyMs,
	}).Info("model armor verdict received")

	return &Classification{
		Verdict:   verdict,
		LatencyMs: latencyMs,
	}, nil
}

// IsBreakerSuccess keeps client-side rejections (4xx) from opening the breaker.
func IsBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var classifierErr *safety.ClassifierError
	if errors.As(err, &classifierErr) {
		return classifierErr.StatusCode >= 400 && classifierErr.StatusCode < 500
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
