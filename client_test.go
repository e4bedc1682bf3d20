package lingoclient_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lc "github.com/panyam/lingoclient"
	"github.com/panyam/lingoclient/internal/apitest"
)

type echoResult struct {
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Vars      map[string]string `json:"vars"`
	Query     map[string]string `json:"query"`
	Body      map[string]any    `json:"body"`
	RequestID string            `json:"request_id"`
}

func newResolver(srv *apitest.Server) *lc.Resolver {
	return lc.NewResolver(lc.EnvProduction, lc.DomainTable{
		lc.EnvProduction: {
			"v1": srv.BaseURL("v1"),
			"v2": srv.BaseURL("v2"),
		},
	})
}

func newClient(t *testing.T, srv *apitest.Server, opts ...lc.ClientOption) (*lc.Client, *lc.Store) {
	t.Helper()
	store := lc.NewStore(nil)
	opts = append([]lc.ClientOption{lc.WithCodeSource(lc.StaticCode(apitest.ValidCode))}, opts...)
	return lc.NewClient(newResolver(srv), store, opts...), store
}

func storeToken(t *testing.T, store *lc.Store, access, refresh string, exp time.Time) {
	t.Helper()
	require.NoError(t, store.SaveCredential(context.Background(), &lc.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    exp,
		User:         &lc.User{ID: "42", OpenID: "openid-42"},
	}))
}

// runConcurrently starts n calls at once and returns their errors.
func runConcurrently(t *testing.T, n int, call func() error) []error {
	t.Helper()
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = call()
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func echo(c *lc.Client) func() error {
	return func() error {
		_, err := c.Do(context.Background(), lc.Call{Method: http.MethodGet, Path: "/v1/api/echo"}, nil)
		return err
	}
}

func TestValidTokenIsAttachedWithoutAuthCalls(t *testing.T) {
	srv := apitest.New(t)
	c, store := newClient(t, srv)

	token := apitest.MintToken("42", time.Now().Add(time.Hour))
	storeToken(t, store, token, srv.IssueRefreshToken("42"), time.Now().Add(time.Hour))

	var out echoResult
	_, err := c.Do(context.Background(), lc.Call{Method: http.MethodGet, Path: "/v1/api/echo"}, &out)
	require.NoError(t, err)

	assert.Equal(t, int32(0), srv.RefreshCalls.Load())
	assert.Equal(t, int32(0), srv.LoginCalls.Load())
	assert.Equal(t, []string{"Bearer " + token}, srv.LastAuthorization())
	assert.NotEmpty(t, out.RequestID)
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	srv := apitest.New(t)
	c, store := newClient(t, srv)

	old := apitest.MintToken("42", time.Now().Add(-time.Minute))
	storeToken(t, store, old, srv.IssueRefreshToken("42"), time.Now().Add(-time.Minute))

	_, err := c.Do(context.Background(), lc.Call{Method: http.MethodGet, Path: "/v1/api/echo"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.RefreshCalls.Load())
	assert.Equal(t, int32(0), srv.LoginCalls.Load())

	cred, err := store.LoadCredential(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.NotEqual(t, old, cred.AccessToken)
	assert.True(t, cred.ExpiresAt.After(time.Now()))
	assert.Equal(t, []string{"Bearer " + cred.AccessToken}, srv.LastAuthorization())
	// The user carried over from the previous credential
	assert.Equal(t, "42", cred.User.ID)
}

func TestFailedRefreshFallsBackToLogin(t *testing.T) {
	srv := apitest.New(t)
	srv.FailRefresh.Store(true)
	c, store := newClient(t, srv)

	storeToken(t, store, "stale", "rt-stale", time.Now().Add(-time.Minute))

	var out echoResult
	_, err := c.Do(context.Background(), lc.Call{Method: http.MethodGet, Path: "/v1/api/echo"}, &out)
	require.NoError(t, err)

	assert.Equal(t, int32(1), srv.RefreshCalls.Load())
	assert.Equal(t, int32(1), srv.LoginCalls.Load())

	cred, err := store.LoadCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer " + cred.AccessToken}, srv.LastAuthorization())
	assert.Equal(t, "openid-42", cred.User.OpenID)
}

func TestUnauthorizedClearsCredentials(t *testing.T) {
	srv := apitest.New(t)
	c, store := newClient(t, srv)
	ctx := context.Background()

	storeToken(t, store, apitest.MintToken("42", time.Now().Add(time.Hour)), srv.IssueRefreshToken("42"), time.Now().Add(time.Hour))

	srv.Unauthorized.Store(true)
	_, err := c.Do(ctx, lc.Call{Method: http.MethodGet, Path: "/v1/api/echo"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lc.ErrUnauthorized))
	assert.True(t, lc.IsUnauthorized(err))

	var apiErr *lc.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	for _, key := range []string{lc.KeyNameAccessToken, lc.KeyNameRefreshToken, lc.KeyNameExpiresAt, lc.KeyNameUser} {
		var v any
		found, err := store.Get(ctx, key, &v)
		require.NoError(t, err)
		assert.False(t, found, "key %s should be cleared", key)
	}
	cred, err := store.LoadCredential(ctx)
	require.NoError(t, err)
	assert.Nil(t, cred)

	// The next request goes through the no-token path.
	srv.Unauthorized.Store(false)
	_, err = c.Do(ctx, lc.Call{Method: http.MethodGet, Path: "/v1/api/echo"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.LoginCalls.Load())
	assert.Equal(t, int32(0), srv.RefreshCalls.Load())
}

func TestConcurrentExpiredRequestsShareOneRefresh(t *testing.T) {
	srv := apitest.New(t, apitest.WithAuthDelay(100*time.Millisecond))
	c, store := newClient(t, srv)

	storeToken(t, store, "stale", srv.IssueRefreshToken("42"), time.Now().Add(-time.Minute))

	const n = 20
	for i, err := range runConcurrently(t, n, echo(c)) {
		require.NoError(t, err, "request %d", i)
	}

	assert.Equal(t, int32(1), srv.RefreshCalls.Load())
	assert.Equal(t, int32(0), srv.LoginCalls.Load())

	cred, err := store.LoadCredential(context.Background())
	require.NoError(t, err)
	auths := srv.LastAuthorization()
	require.Len(t, auths, n)
	for _, auth := range auths {
		assert.Equal(t, "Bearer "+cred.AccessToken, auth)
	}
}

func TestConcurrentRequestsWithoutTokenShareOneLogin(t *testing.T) {
	srv := apitest.New(t, apitest.WithAuthDelay(100*time.Millisecond))
	c, store := newClient(t, srv)

	const n = 20
	for i, err := range runConcurrently(t, n, echo(c)) {
		require.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), srv.LoginCalls.Load())

	cred, err := store.LoadCredential(context.Background())
	require.NoError(t, err)
	for _, auth := range srv.LastAuthorization() {
		assert.Equal(t, "Bearer "+cred.AccessToken, auth)
	}
}

func TestConcurrentRequestsShareFailedLogin(t *testing.T) {
	srv := apitest.New(t, apitest.WithAuthDelay(100*time.Millisecond))
	srv.FailLogin.Store(true)
	// The cooldown keeps stragglers that arrive after the flight from
	// starting a second login.
	c, _ := newClient(t, srv, lc.WithTokenOptions(lc.WithReloginCooldown(time.Minute)))

	const n = 20
	for i, err := range runConcurrently(t, n, echo(c)) {
		require.Error(t, err, "request %d", i)
		assert.True(t, errors.Is(err, lc.ErrLoginRequired), "request %d: %v", i, err)
	}
	assert.Equal(t, int32(1), srv.LoginCalls.Load())
	assert.Equal(t, int32(0), srv.APICalls.Load())
}

func TestFailedRefreshEscalatesOnceForAllWaiters(t *testing.T) {
	srv := apitest.New(t, apitest.WithAuthDelay(100*time.Millisecond))
	srv.FailRefresh.Store(true)
	c, store := newClient(t, srv)

	storeToken(t, store, "stale", "rt-stale", time.Now().Add(-time.Minute))

	const n = 20
	for i, err := range runConcurrently(t, n, echo(c)) {
		require.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), srv.RefreshCalls.Load())
	assert.Equal(t, int32(1), srv.LoginCalls.Load())
	assert.Equal(t, lc.PhaseIdle, c.Tokens().Phase())
}

func TestPublicCallsNeverTouchTokens(t *testing.T) {
	srv := apitest.New(t)
	c, store := newClient(t, srv)
	ctx := context.Background()

	storeToken(t, store, "stale", "rt-stale", time.Now().Add(-time.Minute))

	_, err := c.Do(ctx, lc.Call{Method: http.MethodGet, Path: "/v1/api/app/config", Public: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{""}, srv.LastAuthorization())
	assert.Equal(t, int32(0), srv.RefreshCalls.Load())
	assert.Equal(t, int32(0), srv.LoginCalls.Load())
	assert.Equal(t, lc.PhaseIdle, c.Tokens().Phase())

	cred, err := store.LoadCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stale", cred.AccessToken)
	assert.Equal(t, "rt-stale", cred.RefreshToken)
}

func TestPathParamsAreRemovedFromPayload(t *testing.T) {
	srv := apitest.New(t)
	c, _ := newClient(t, srv)
	ctx := context.Background()

	var out echoResult
	_, err := c.Do(ctx, lc.Call{
		Method: http.MethodPost,
		Path:   "/v1/api/echo/:id",
		Params: map[string]any{"id": "42", "foo": "bar"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "/v1/api/echo/42", out.Path)
	assert.Equal(t, map[string]any{"foo": "bar"}, out.Body)

	_, err = c.Do(ctx, lc.Call{
		Method: http.MethodGet,
		Path:   "/v1/api/echo/:id",
		Params: struct {
			ID  int    `json:"id"`
			Foo string `json:"foo"`
		}{ID: 7, Foo: "bar"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "/v1/api/echo/7", out.Path)
	assert.Equal(t, "bar", out.Query["foo"])
	assert.NotContains(t, out.Query, "id")
	assert.NotEmpty(t, out.Query[lc.DefaultCacheBustParam])
}

func TestBusinessErrorIsReturned(t *testing.T) {
	srv := apitest.New(t)
	c, store := newClient(t, srv)
	storeToken(t, store, apitest.MintToken("42", time.Now().Add(time.Hour)), "rt", time.Now().Add(time.Hour))

	_, err := c.Do(context.Background(), lc.Call{Method: http.MethodGet, Path: "/v1/api/fail"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lc.ErrBusiness))

	var apiErr *lc.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "E42", apiErr.Code)
	assert.Equal(t, "something went wrong", apiErr.Message)

	// Business errors leave the credential alone
	cred, err := store.LoadCredential(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, cred)
}

func TestConfigErrorsFailBeforeNetwork(t *testing.T) {
	srv := apitest.New(t)
	c, _ := newClient(t, srv)
	ctx := context.Background()

	tests := []struct {
		name string
		call lc.Call
	}{
		{"no leading slash", lc.Call{Method: http.MethodGet, Path: "v1/api/echo"}},
		{"unknown version", lc.Call{Method: http.MethodGet, Path: "/v9/api/echo"}},
		{"bad method", lc.Call{Method: "FETCH", Path: "/v1/api/echo"}},
		{"non-object params", lc.Call{Method: http.MethodPost, Path: "/v1/api/echo", Params: []int{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Do(ctx, tt.call, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, lc.ErrConfig), "got %v", err)
		})
	}

	assert.Equal(t, int32(0), srv.APICalls.Load())
	assert.Equal(t, int32(0), srv.LoginCalls.Load())
}

func TestTransportError(t *testing.T) {
	srv := apitest.New(t)
	c, store := newClient(t, srv)
	storeToken(t, store, "token", "rt", time.Now().Add(time.Hour))
	srv.Close()

	_, err := c.Do(context.Background(), lc.Call{Method: http.MethodGet, Path: "/v1/api/echo"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lc.ErrTransport))

	var apiErr *lc.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestDefaultHeadersAndVersions(t *testing.T) {
	srv := apitest.New(t)
	c, store := newClient(t, srv, lc.WithHeader("X-App-Version", "3.1.0"))
	storeToken(t, store, apitest.MintToken("42", time.Now().Add(time.Hour)), "rt", time.Now().Add(time.Hour))

	var out echoResult
	_, err := c.Do(context.Background(), lc.Call{
		Method: http.MethodPut,
		Path:   "/v2/api/echo",
		Params: map[string]any{"text": "hello"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "/v2/api/echo", out.Path)
	assert.Equal(t, http.MethodPut, out.Method)
	assert.Equal(t, "hello", out.Body["text"])
}

func TestHTTPClientAttachesBearer(t *testing.T) {
	srv := apitest.New(t)
	c, store := newClient(t, srv)
	token := apitest.MintToken("42", time.Now().Add(time.Hour))
	storeToken(t, store, token, "rt", time.Now().Add(time.Hour))

	hc := c.HTTPClient()
	resp, err := hc.Get(srv.BaseURL("v1") + "/api/echo")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer " + token}, srv.LastAuthorization())

	srv.Unauthorized.Store(true)
	resp, err = hc.Get(srv.BaseURL("v1") + "/api/echo")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, c.IsLoggedIn(context.Background()))
}

func TestLogout(t *testing.T) {
	srv := apitest.New(t)
	c, store := newClient(t, srv)
	ctx := context.Background()
	storeToken(t, store, apitest.MintToken("42", time.Now().Add(time.Hour)), "rt", time.Now().Add(time.Hour))
	require.True(t, c.IsLoggedIn(ctx))

	require.NoError(t, c.Logout(ctx))
	assert.False(t, c.IsLoggedIn(ctx))

	openid, err := lc.KeyOpenID.Get(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "openid-42", openid, "logout keeps non-credential keys")
}

func TestLoginWithoutCodeSource(t *testing.T) {
	srv := apitest.New(t)
	c := lc.NewClient(newResolver(srv), lc.NewStore(nil))

	_, err := c.Do(context.Background(), lc.Call{Method: http.MethodGet, Path: "/v1/api/echo"}, nil)
	require.Error(t, err)
	assert.True(t, lc.IsLoginRequired(err))
	assert.True(t, strings.Contains(err.Error(), "no authenticator configured"))
}

func TestNewClientDoesNotModifyResolver(t *testing.T) {
	srv := apitest.New(t)
	resolver := newResolver(srv)
	c := lc.NewClient(resolver, lc.NewStore(nil), lc.WithLogger(slog.Default()))

	assert.Nil(t, resolver.Logger)
	assert.NotNil(t, c.Resolver().Logger)
	assert.NotSame(t, resolver, c.Resolver())
}
