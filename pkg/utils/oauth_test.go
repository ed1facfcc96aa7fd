package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jakechorley/fairshare/internal/config"
)

func withTokenDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	original := TokenDir
	TokenDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { TokenDir = original })
}

func TestMissingScopes(t *testing.T) {
	assert.Empty(t, MissingScopes("openid "+ScopeSheets))
	assert.Equal(t, []string{ScopeSheets}, MissingScopes("openid email"))
	assert.Equal(t, []string{ScopeSheets}, MissingScopes(""))
}

func TestTokenFileRoundTrip(t *testing.T) {
	withTokenDir(t)

	token, err := LoadTokenFromFile("test")
	require.NoError(t, err)
	assert.Nil(t, token, "no file yet")

	expiry := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, SaveTokenToFile("test", &oauth2.Token{AccessToken: "abc", RefreshToken: "def", Expiry: expiry}))

	token, err = LoadTokenFromFile("test")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "abc", token.AccessToken)
	assert.Equal(t, "def", token.RefreshToken)
	assert.True(t, expiry.Equal(token.Expiry))

	other, err := LoadTokenFromFile("prod")
	require.NoError(t, err)
	assert.Nil(t, other, "tokens are per environment")

	require.NoError(t, DeleteTokenFile("test"))
	require.NoError(t, DeleteTokenFile("test"), "deleting twice is fine")
	token, err = LoadTokenFromFile("test")
	require.NoError(t, err)
	assert.Nil(t, token)
}

func TestGetOAuthConfig(t *testing.T) {
	cfg := &config.OAuthClientConfig{
		Installed: config.OAuthInstalled{
			ClientID:     "client-id.apps.googleusercontent.com",
			AuthURI:      "https://accounts.google.com/o/oauth2/auth",
			TokenURI:     "https://oauth2.googleapis.com/token",
			ClientSecret: "secret",
			RedirectURIs: []string{"http://localhost"},
		},
	}

	oauthConfig, err := GetOAuthConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "client-id.apps.googleusercontent.com", oauthConfig.ClientID)
	assert.Equal(t, []string{ScopeSheets}, oauthConfig.Scopes)
	assert.Equal(t, "http://localhost:3000/oauth/callback", oauthConfig.RedirectURL)
}
