package lingoclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DefaultTokenTTL is assumed when neither the server response nor the access
// token itself says when the token expires.
const DefaultTokenTTL = 2 * time.Hour

// User is the last known profile snapshot of the signed-in learner.
type User struct {
	ID        string         `json:"id"`
	OpenID    string         `json:"openid,omitempty"`
	Nickname  string         `json:"nickname,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Level     string         `json:"level,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Credential holds the authentication state for the current user.
// An AccessToken says nothing about validity; only ExpiresAt does.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user,omitempty"`
}

// HasAccessToken returns true if an access token is stored
func (c *Credential) HasAccessToken() bool {
	return c != nil && c.AccessToken != ""
}

// HasRefreshToken returns true if a refresh token is available
func (c *Credential) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// IsExpired returns true if the access token has expired
func (c *Credential) IsExpired() bool {
	return c.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the token is expired at the given instant.
// A missing expiry counts as expired.
func (c *Credential) IsExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// OAuth2Token converts the credential for use with golang.org/x/oauth2.
func (c *Credential) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt,
	}
}

// Timestamp decodes the expires_at field of token responses. Servers send
// either unix seconds, unix milliseconds or an RFC 3339 string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = fromUnix(n)
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	t.Time = fromUnix(int64(n))
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Unix())
}

// fromUnix treats values past the year 33658 in seconds as milliseconds.
func fromUnix(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// TokenGrant is the body returned by the refresh and login endpoints.
type TokenGrant struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    Timestamp `json:"expires_at"`
	User         *User     `json:"user,omitempty"`
}

// Credential builds the credential to store from a grant. Fields the grant
// leaves empty are carried over from prev, which may be nil.
func (g *TokenGrant) Credential(now time.Time, prev *Credential) *Credential {
	cred := &Credential{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		ExpiresAt:    g.ExpiresAt.Time,
		User:         g.User,
	}

	if cred.ExpiresAt.IsZero() {
		if exp, ok := TokenExpiry(g.AccessToken); ok {
			cred.ExpiresAt = exp
		} else {
			cred.ExpiresAt = now.Add(DefaultTokenTTL)
		}
	}

	if prev != nil {
		// Use new refresh token if provided, otherwise keep the old one
		if cred.RefreshToken == "" {
			cred.RefreshToken = prev.RefreshToken
		}
		if cred.User == nil {
			cred.User = prev.User
		}
	}

	return cred
}

// TokenExpiry reads the exp claim of a JWT access token without verifying it.
// The server is the only party that validates tokens; the client only needs
// to know when to refresh.
func TokenExpiry(accessToken string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
