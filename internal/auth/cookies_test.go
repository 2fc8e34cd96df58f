package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionJar(expires time.Time) []*network.Cookie {
	exp := float64(expires.Unix())
	return []*network.Cookie{
		{Name: "auth_token", Value: "tok", Domain: ".x.com", Expires: exp},
		{Name: "ct0", Value: "csrf", Domain: ".x.com", Expires: exp},
		{Name: "lang", Value: "en", Domain: ".x.com", Expires: exp},
	}
}

func TestCookieStoreRoundtrip(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "nested", "cookies.json"))

	expires := time.Now().Add(30 * 24 * time.Hour)
	require.NoError(t, cs.Save(sessionJar(expires)))

	stored, err := cs.Load()
	require.NoError(t, err)
	assert.Len(t, stored.Cookies, 3)
	assert.WithinDuration(t, expires, stored.ExpiresAt, 2*time.Second,
		"validity follows the earliest session cookie expiry")

	assert.True(t, cs.IsValid())
}

func TestCookieStoreExpired(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, cs.Save(sessionJar(time.Now().Add(-time.Hour))))

	assert.False(t, cs.IsValid())
}

func TestCookieStoreMissingSessionCookie(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

	exp := float64(time.Now().Add(24 * time.Hour).Unix())
	jar := []*network.Cookie{
		{Name: "auth_token", Value: "tok", Expires: exp},
		// no ct0
	}
	require.NoError(t, cs.Save(jar))
	assert.False(t, cs.IsValid())
}

func TestCookieStoreAbsent(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	assert.False(t, cs.IsValid())
}

func TestCookieStoreClear(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, cs.Save(sessionJar(time.Now().Add(time.Hour))))

	require.NoError(t, cs.Clear())
	assert.False(t, cs.IsValid())

	assert.NoError(t, cs.Clear(), "clearing an empty store is fine")
}
