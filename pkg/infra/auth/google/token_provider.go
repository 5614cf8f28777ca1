package google

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"github.com/NeuralTrust/PromptArmor/pkg/domain/safety"
	"github.com/sirupsen/logrus"
)

const (
	CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	DefaultExpirySkew = 60 * time.Second
)

type TokenProvider interface {
	// Token returns a bearer token for Google Cloud APIs. Failures are
	// reported as *safety.AuthError.
	Token(ctx context.Context) (string, error)
}

// DetectCredentials resolves Application Default Credentials with the
// cloud-platform scope.
func DetectCredentials() (*auth.Credentials, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes: []string{CloudPlatformScope},
	})
	if err != nil {
		return nil, safety.NewAuthError(err)
	}
	return creds, nil
}

type tokenProvider struct {
	source     auth.TokenProvider
	logger     *logrus.Logger
	cache      bool
	expirySkew time.Duration
	now        func() time.Time

	mu     sync.Mutex
	cached *auth.Token
}

func NewTokenProvider(source auth.TokenProvider, logger *logrus.Logger, opts ...TokenProviderOption) TokenProvider {
	p := &tokenProvider{
		source:     source,
		logger:     logger,
		expirySkew: DefaultExpirySkew,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *tokenProvider) Token(ctx context.Context) (string, error) {
	if p.source == nil {
		return "", safety.NewAuthError(errors.New("no credentials configured"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache && p.usable(p.cached) {
		return p.cached.Value, nil
	}

	tok, err := p.source.Token(ctx)
	if err != nil {
		p.logger.WithError(err).Error("failed to refresh google access token")
		return "", safety.NewAuthError(err)
	}
	if tok == nil || tok.Value == "" {
		return "", safety.NewAuthError(errors.New("empty access token"))
	}

	p.logger.WithField("expires_at", tok.Expiry).Debug("google access token refreshed")
	if p.cache {
		p.cached = tok
	}
	return tok.Value, nil
}

// usable treats a token without expiry as valid and otherwise requires it
// to outlive the skew window.
func (p *tokenProvider) usable(tok *auth.Token) bool {
	if tok == nil || tok.Value == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return p.now().Add(p.expirySkew).Before(tok.Expiry)
}
