package lingoclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Refresher exchanges a refresh token for a new credential.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error)
}

// RefresherFunc adapts a function to Refresher
type RefresherFunc func(ctx context.Context, refreshToken string) (*TokenGrant, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	return f(ctx, refreshToken)
}

// Authenticator performs a full re-authentication.
type Authenticator interface {
	Login(ctx context.Context) (*TokenGrant, error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context) (*TokenGrant, error)

func (f AuthenticatorFunc) Login(ctx context.Context) (*TokenGrant, error) {
	return f(ctx)
}

// CodeSource yields a short-lived platform authorization code, e.g. the code
// returned by the mini-program login API or typed in by the user.
type CodeSource interface {
	Code(ctx context.Context) (string, error)
}

// CodeSourceFunc adapts a function to CodeSource
type CodeSourceFunc func(ctx context.Context) (string, error)

func (f CodeSourceFunc) Code(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticCode always returns the same code.
type StaticCode string

func (c StaticCode) Code(context.Context) (string, error) {
	return string(c), nil
}

// RefreshRequest is the body of the refresh endpoint
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() error {
	v := &ValidationError{}
	if r.RefreshToken == "" {
		v.Add("refresh_token", "required")
	}
	return v.OrNil()
}

// LoginRequest is the body of the login endpoint
type LoginRequest struct {
	Code string `json:"code"`
}

func (r LoginRequest) Validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(r.Code) == "" {
		v.Add("code", "required")
	}
	return v.OrNil()
}

// Auth endpoints. Both are public: they are what produces credentials.
var (
	RefreshEndpoint = MustEndpoint[RefreshRequest, TokenGrant]("auth.refresh", http.MethodPost, "/v1/api/auth/refresh", Public())
	LoginEndpoint   = MustEndpoint[LoginRequest, TokenGrant]("auth.login", http.MethodPost, "/v1/api/auth/login", Public())
)

// APIRefresher calls the refresh endpoint through a Client.
type APIRefresher struct {
	call func(context.Context, RefreshRequest) (TokenGrant, error)
}

// NewAPIRefresher binds endpoint to c.
func NewAPIRefresher(c *Client, endpoint Endpoint[RefreshRequest, TokenGrant]) *APIRefresher {
	return &APIRefresher{call: Bind(c, endpoint)}
}

// Refresh implements Refresher
func (r *APIRefresher) Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	grant, err := r.call(ctx, RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	if grant.AccessToken == "" {
		return nil, errors.New("refresh response has no access token")
	}
	return &grant, nil
}

// APIAuthenticator obtains a platform code and exchanges it at the login endpoint.
type APIAuthenticator struct {
	codes CodeSource
	call  func(context.Context, LoginRequest) (TokenGrant, error)
}

// NewAPIAuthenticator binds endpoint to c.
func NewAPIAuthenticator(c *Client, codes CodeSource, endpoint Endpoint[LoginRequest, TokenGrant]) *APIAuthenticator {
	return &APIAuthenticator{codes: codes, call: Bind(c, endpoint)}
}

// Login implements Authenticator
func (a *APIAuthenticator) Login(ctx context.Context) (*TokenGrant, error) {
	code, err := a.codes.Code(ctx)
	if err != nil {
		return nil, err
	}
	grant, err := a.call(ctx, LoginRequest{Code: code})
	if err != nil {
		return nil, err
	}
	return &grant, nil
}
