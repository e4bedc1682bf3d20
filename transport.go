package lingoclient

import (
	"context"
	"log/slog"
	"net/http"
)

// Transport wraps an http.RoundTripper to add Authorization headers taken
// from a TokenManager.
type Transport struct {
	Base   http.RoundTripper
	Tokens *TokenManager
	Logger *slog.Logger
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Tokens.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	// Clone the request to avoid mutating the original
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+token)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req2)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		if err := t.Tokens.Invalidate(context.WithoutCancel(req.Context())); err != nil {
			t.logger().Error("failed to clear credentials", "err", err)
		}
	}
	return resp, nil
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// NewTransport creates a Transport over http.DefaultTransport
func NewTransport(tokens *TokenManager) *Transport {
	return &Transport{
		Base:   http.DefaultTransport,
		Tokens: tokens,
	}
}
