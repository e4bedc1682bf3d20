package lingoclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultFlightTimeout bounds each step (refresh, re-login) of a flight.
const DefaultFlightTimeout = 30 * time.Second

// Phase is the coordination state of a TokenManager.
type Phase int

const (
	// PhaseIdle means no refresh or re-login is in flight.
	PhaseIdle Phase = iota
	// PhaseRefreshing means one refresh-token exchange is in flight.
	PhaseRefreshing
	// PhaseRelogging means one full re-authentication is in flight.
	PhaseRelogging
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRefreshing:
		return "refreshing"
	case PhaseRelogging:
		return "relogging"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// flight is the shared handle concurrent callers wait on. token and err are
// written once before done is closed.
type flight struct {
	phase Phase
	done  chan struct{}
	token string
	err   error
}

// TokenManager makes sure authenticated requests carry a valid access token.
//
// While the stored token is missing or expired, at most one refresh or
// re-login runs at a time; every caller arriving in that window waits for the
// result of the flight already running instead of starting its own. A failed
// refresh turns into a re-login inside the same flight, so the waiters share
// exactly one fallback attempt.
type TokenManager struct {
	mu              sync.Mutex
	store           CredentialStore
	refresher       Refresher
	authenticator   Authenticator
	current         *flight
	now             func() time.Time
	flightTimeout   time.Duration
	reloginCooldown time.Duration
	lastLoginFail   time.Time
	logger          *slog.Logger
}

// TokenManagerOption configures a TokenManager
type TokenManagerOption func(*TokenManager)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) TokenManagerOption {
	return func(tm *TokenManager) {
		tm.now = now
	}
}

// WithFlightTimeout bounds each refresh and re-login attempt.
func WithFlightTimeout(d time.Duration) TokenManagerOption {
	return func(tm *TokenManager) {
		if d > 0 {
			tm.flightTimeout = d
		}
	}
}

// WithReloginCooldown makes re-login attempts fail fast with ErrLoginRequired
// for d after a failed re-login. Zero disables the cooldown.
func WithReloginCooldown(d time.Duration) TokenManagerOption {
	return func(tm *TokenManager) {
		tm.reloginCooldown = d
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger *slog.Logger) TokenManagerOption {
	return func(tm *TokenManager) {
		if logger != nil {
			tm.logger = logger
		}
	}
}

// NewTokenManager creates a manager over store. refresher and authenticator
// may be nil, in which case the corresponding step always fails.
func NewTokenManager(store CredentialStore, refresher Refresher, authenticator Authenticator, opts ...TokenManagerOption) *TokenManager {
	tm := &TokenManager{
		store:         store,
		refresher:     refresher,
		authenticator: authenticator,
		now:           time.Now,
		flightTimeout: DefaultFlightTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Phase reports whether a refresh or re-login is currently in flight.
func (tm *TokenManager) Phase() Phase {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.current == nil {
		return PhaseIdle
	}
	return tm.current.phase
}

// Token returns a currently valid access token, refreshing or re-logging in
// if needed. Failure of every path yields an error matching ErrLoginRequired.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	f, token, err := tm.acquire(ctx)
	if err != nil || f == nil {
		return token, err
	}
	return tm.wait(ctx, f)
}

// acquire reads the stored credential and decides, under tm.mu, whether it
// can be used as is, or which flight to start or join. Reading under the lock
// means a caller can never start a second flight with a credential the
// previous flight already replaced.
func (tm *TokenManager) acquire(ctx context.Context) (*flight, string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	cred, err := tm.store.LoadCredential(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load credential: %w", err)
	}

	switch {
	case !cred.HasAccessToken():
		return tm.startLocked(ctx, PhaseRelogging), "", nil
	case cred.IsExpiredAt(tm.now()):
		return tm.startLocked(ctx, PhaseRefreshing), "", nil
	default:
		return nil, cred.AccessToken, nil
	}
}

// startLocked joins the flight in progress or starts a new one in phase.
// Caller must hold tm.mu
func (tm *TokenManager) startLocked(ctx context.Context, phase Phase) *flight {
	if tm.current != nil {
		return tm.current
	}
	f := &flight{phase: phase, done: make(chan struct{})}
	tm.current = f
	go tm.run(context.WithoutCancel(ctx), f)
	return f
}

func (tm *TokenManager) wait(ctx context.Context, f *flight) (string, error) {
	select {
	case <-f.done:
		return f.token, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// run executes a flight. The flight is detached from the caller that started
// it so one cancelled caller does not fail everyone waiting.
func (tm *TokenManager) run(ctx context.Context, f *flight) {
	defer func() {
		tm.mu.Lock()
		tm.current = nil
		tm.mu.Unlock()
		close(f.done)
	}()

	if f.phase == PhaseRefreshing {
		token, err := tm.refresh(ctx)
		if err == nil {
			f.token = token
			return
		}
		tm.logger.Warn("token refresh failed, falling back to login", "err", err)

		tm.mu.Lock()
		f.phase = PhaseRelogging
		tm.mu.Unlock()
	}

	f.token, f.err = tm.relogin(ctx)
}

func (tm *TokenManager) refresh(parent context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(parent, tm.flightTimeout)
	defer cancel()

	if tm.refresher == nil {
		return "", errors.New("no refresher configured")
	}

	cred, err := tm.store.LoadCredential(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if !cred.HasRefreshToken() {
		return "", errors.New("no refresh token stored")
	}

	grant, err := tm.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", err
	}

	newCred := grant.Credential(tm.now(), cred)
	if err := tm.store.SaveCredential(ctx, newCred); err != nil {
		return "", fmt.Errorf("failed to store refreshed credential: %w", err)
	}
	tm.logger.Info("access token refreshed", "expires_at", newCred.ExpiresAt)
	return newCred.AccessToken, nil
}

func (tm *TokenManager) relogin(parent context.Context) (string, error) {
	tm.mu.Lock()
	coolingDown := tm.reloginCooldown > 0 && !tm.lastLoginFail.IsZero() &&
		tm.now().Sub(tm.lastLoginFail) < tm.reloginCooldown
	tm.mu.Unlock()
	if coolingDown {
		return "", fmt.Errorf("%w: previous login failed less than %s ago", ErrLoginRequired, tm.reloginCooldown)
	}

	token, err := tm.login(parent)

	tm.mu.Lock()
	if err != nil {
		tm.lastLoginFail = tm.now()
	} else {
		tm.lastLoginFail = time.Time{}
	}
	tm.mu.Unlock()

	if err != nil {
		tm.logger.Warn("login failed", "err", err)
		return "", fmt.Errorf("%w: %w", ErrLoginRequired, err)
	}
	return token, nil
}

func (tm *TokenManager) login(parent context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(parent, tm.flightTimeout)
	defer cancel()

	if tm.authenticator == nil {
		return "", errors.New("no authenticator configured")
	}

	grant, err := tm.authenticator.Login(ctx)
	if err != nil {
		return "", err
	}
	if grant.AccessToken == "" {
		return "", errors.New("login response has no access token")
	}

	prev, _ := tm.store.LoadCredential(ctx)
	cred := grant.Credential(tm.now(), prev)
	if err := tm.store.SaveCredential(ctx, cred); err != nil {
		return "", fmt.Errorf("failed to store credential: %w", err)
	}
	tm.logger.Info("logged in", "expires_at", cred.ExpiresAt)
	return cred.AccessToken, nil
}

// Login runs (or joins) a re-login flight regardless of the stored credential.
// A refresh already in flight is allowed to finish first; its token is not
// returned.
func (tm *TokenManager) Login(ctx context.Context) (string, error) {
	return tm.force(ctx, PhaseRelogging)
}

// Refresh runs (or joins) a refresh flight regardless of the stored expiry.
// A re-login already in flight is allowed to finish first.
func (tm *TokenManager) Refresh(ctx context.Context) (string, error) {
	return tm.force(ctx, PhaseRefreshing)
}

// force joins a flight in phase, or waits out a flight in another phase and
// then starts its own.
func (tm *TokenManager) force(ctx context.Context, phase Phase) (string, error) {
	for {
		tm.mu.Lock()
		f := tm.current
		if f == nil || f.phase == phase {
			f = tm.startLocked(ctx, phase)
			tm.mu.Unlock()
			return tm.wait(ctx, f)
		}
		tm.mu.Unlock()

		select {
		case <-f.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Invalidate clears every credential field. It is called when the server
// rejects a request with 401; the next request starts from a clean slate.
func (tm *TokenManager) Invalidate(ctx context.Context) error {
	if err := tm.store.ClearCredential(ctx); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	tm.logger.Warn("credentials cleared after unauthorized response")
	return nil
}

// Logout removes the stored credential
func (tm *TokenManager) Logout(ctx context.Context) error {
	return tm.store.ClearCredential(ctx)
}

// Credential returns the stored credential without validating it.
func (tm *TokenManager) Credential(ctx context.Context) (*Credential, error) {
	return tm.store.LoadCredential(ctx)
}

// IsLoggedIn returns true if there is a valid (non-expired) credential
func (tm *TokenManager) IsLoggedIn(ctx context.Context) bool {
	cred, err := tm.store.LoadCredential(ctx)
	if err != nil || !cred.HasAccessToken() {
		return false
	}
	return !cred.IsExpiredAt(tm.now())
}

// Authorize sets the bearer Authorization header on req.
func (tm *TokenManager) Authorize(ctx context.Context, req *http.Request) error {
	token, err := tm.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// TokenSource adapts the manager to oauth2.TokenSource. Tokens obtained
// through it go through the same single-flight coordination.
func (tm *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, tm: tm}
}

type tokenSource struct {
	ctx context.Context
	tm  *TokenManager
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	access, err := s.tm.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if cred, err := s.tm.store.LoadCredential(s.ctx); err == nil && cred != nil && cred.AccessToken == access {
		tok.Expiry = cred.ExpiresAt
	}
	return tok, nil
}
