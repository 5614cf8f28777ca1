package google

import "time"

type TokenProviderOption func(*tokenProvider)

// WithCache keeps the last token until it is within the expiry skew.
func WithCache(enabled bool) TokenProviderOption {
	return func(p *tokenProvider) {
		p.cache = enabled
	}
}

func WithExpirySkew(skew time.Duration) TokenProviderOption {
	return func(p *tokenProvider) {
		if skew >= 0 {
			p.expirySkew = skew
		}
	}
}

func withClock(now func() time.Time) TokenProviderOption {
	return func(p *tokenProvider) {
		p.now = now
	}
}
