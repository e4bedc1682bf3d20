package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lc "github.com/panyam/lingoclient"
)

// Needs a running server: LINGO_TEST_REDIS_URL=redis://localhost:6379/15
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	url := os.Getenv("LINGO_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LINGO_TEST_REDIS_URL not set")
	}
	b, err := Dial(context.Background(), url, "lingotest:"+uuid.NewString()+":")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := b.Keys(ctx)
		for _, k := range keys {
			b.Remove(ctx, k)
		}
		b.Close()
	})
	return b
}

func TestBackend(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, found, err := b.Get(ctx, "openid")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Set(ctx, "openid", []byte(`"oid"`)))
	v, found, err := b.Get(ctx, "openid")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `"oid"`, string(v))

	require.NoError(t, b.Remove(ctx, "openid"))
	_, found, _ = b.Get(ctx, "openid")
	assert.False(t, found)
}

func TestBackendWithStore(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, lc.NewStore(b).SaveCredential(ctx, &lc.Credential{
		AccessToken: "at", RefreshToken: "rt", ExpiresAt: exp,
	}))

	cred, err := lc.NewStore(b).LoadCredential(ctx)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "at", cred.AccessToken)
	assert.True(t, cred.ExpiresAt.Equal(exp))

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"access_token", "expires_at", "refresh_token"}, keys)
}

func TestDialBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "not a url", "")
	assert.Error(t, err)
}
