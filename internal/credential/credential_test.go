package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExpiryISO(t *testing.T) {
	future := TokenDocument{ExpiresAt: time.Now().Add(time.Hour).UTC().Format(time.RFC3339)}
	assert.False(t, future.IsExpired())

	soon := TokenDocument{ExpiresAt: time.Now().Add(2 * time.Minute).UTC().Format(time.RFC3339)}
	assert.True(t, soon.IsExpired())

	past := TokenDocument{ExpiresAt: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)}
	assert.True(t, past.IsExpired())
}

func TestTokenExpiryUnix(t *testing.T) {
	future := TokenDocument{ExpiresAt: "9999999999"}
	assert.False(t, future.IsExpired())

	past := TokenDocument{ExpiresAt: "1"}
	assert.True(t, past.IsExpired())
}

func TestTokenExpiryMissingOrMalformed(t *testing.T) {
	assert.True(t, (TokenDocument{}).IsExpired())
	assert.True(t, (TokenDocument{ExpiresAt: "not-a-date"}).IsExpired())
}

func TestFingerprintStableAcrossCalls(t *testing.T) {
	c := New("id1", "name", "/tmp/x", TokenDocument{ProfileArn: "arn:aws:x", ClientID: "client-1"})
	fp1 := c.Fingerprint()
	c.SetToken(c.Token())
	fp2 := c.Fingerprint()
	assert.Equal(t, fp1, fp2)
}

func TestFingerprintFallsBackWhenIdentityEmpty(t *testing.T) {
	c := New("id1", "name", "/tmp/x", TokenDocument{})
	assert.NotEmpty(t, c.Fingerprint())
}

func TestAvailablePredicate(t *testing.T) {
	c := New("id1", "n", "/tmp/x", TokenDocument{})
	assert.True(t, c.Available())

	c.SetEnabled(false)
	assert.False(t, c.Available())
	c.SetEnabled(true)

	c.SetHealth(HealthSuspended)
	assert.False(t, c.Available())

	c.SetHealth(HealthCooldown)
	assert.True(t, c.Available(), "cooldown is tracked by the quota ledger, not credential health alone")
}

func TestValidateRefreshTokenRejectsTruncated(t *testing.T) {
	ok, _ := ValidateRefreshToken("short")
	assert.False(t, ok)

	ok, _ = ValidateRefreshToken("")
	assert.False(t, ok)

	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}
	ok, _ = ValidateRefreshToken(string(long))
	assert.True(t, ok)

	truncated := string(long[:120]) + "..."
	ok, _ = ValidateRefreshToken(truncated)
	assert.False(t, ok)
}

func TestRefreshURLByAuthMethod(t *testing.T) {
	assert.Equal(t, "https://prod.us-east-1.auth.desktop.kiro.dev/refreshToken", RefreshURL("us-east-1", AuthSocial))
	assert.Equal(t, "https://oidc.eu-west-1.amazonaws.com/token", RefreshURL("eu-west-1", AuthIDC))
	assert.Equal(t, "https://prod.us-east-1.auth.desktop.kiro.dev/refreshToken", RefreshURL("", ""))
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	store := NewStore()

	doc := TokenDocument{
		AccessToken:  "at",
		RefreshToken: "rt",
		Region:       "us-east-1",
		AuthMethod:   AuthSocial,
		ExpiresAt:    "9999999999",
	}
	require.NoError(t, store.Save(path, doc))

	loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, doc.AccessToken, loaded.AccessToken)
	assert.Equal(t, doc.RefreshToken, loaded.RefreshToken)
}

func TestRefresherSocialSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accessToken":"new-access","expiresIn":3600}`))
	}))
	defer srv.Close()

	long := make([]byte, 120)
	for i := range long {
		long[i] = 'r'
	}
	path := filepath.Join(t.TempDir(), "tok.json")
	cred := New("c1", "n", path, TokenDocument{
		RefreshToken: string(long),
		Region:       "us-east-1",
		AuthMethod:   AuthSocial,
	})

	r := &Refresher{
		Client: srv.Client(),
		Store:  NewStore(),
		URLFunc: func(string, AuthMethod) string {
			return srv.URL
		},
	}

	newToken, err := r.Refresh(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "new-access", newToken)
	assert.Equal(t, "new-access", cred.Token().AccessToken)

	loaded, err := NewStore().Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new-access", loaded.AccessToken)
}

func TestRefresherRejectsTruncatedTokenWithoutCallingNetwork(t *testing.T) {
	cred := New("c1", "n", filepath.Join(t.TempDir(), "tok.json"), TokenDocument{
		RefreshToken: "short",
		Region:       "us-east-1",
		AuthMethod:   AuthSocial,
	})
	r := &Refresher{Client: http.DefaultClient, Store: NewStore()}
	_, err := r.Refresh(context.Background(), cred)
	require.Error(t, err)
	var rerr *RefreshError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, RefreshSchema, rerr.Kind)
}
