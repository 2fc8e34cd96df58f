// Package auth handles the interactive platform login and keeps the
// session cookies it produces.
package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
)

// sessionCookies are the cookie names that carry the login. Both must be
// present for a stored jar to count as valid.
var sessionCookies = []string{"auth_token", "ct0"}

// CookieStore persists captured session cookies for ephemeral browser
// sessions (no persistent profile directory).
type CookieStore struct {
	path string
}

// StoredCookies is the on-disk shape.
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

// Save persists cookies to disk.
// TODO: Encrypt cookies at rest
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0o700); err != nil {
		return err
	}

	// Validity follows the earliest expiry among the session cookies.
	var earliest time.Time
	for _, c := range cookies {
		if !isSessionCookie(c.Name) {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0)
		if earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}

	stored := StoredCookies{
		Cookies:    cookies,
		CapturedAt: time.Now(),
		ExpiresAt:  earliest,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, data, 0o600)
}

// Load retrieves cookies from disk.
func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// IsValid checks that a stored jar exists, has not expired, and carries
// every session cookie.
func (cs *CookieStore) IsValid() bool {
	stored, err := cs.Load()
	if err != nil {
		return false
	}
	if time.Now().After(stored.ExpiresAt) {
		return false
	}

	found := 0
	for _, c := range stored.Cookies {
		if isSessionCookie(c.Name) && c.Value != "" {
			found++
		}
	}
	return found == len(sessionCookies)
}

// Clear removes stored cookies.
func (cs *CookieStore) Clear() error {
	err := os.Remove(cs.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func isSessionCookie(name string) bool {
	for _, s := range sessionCookies {
		if name == s {
			return true
		}
	}
	return false
}
