// Package auth supplies bearer tokens for remote calls. The token exchange
// flow itself lives outside this module; callers plug in whatever source
// their sign-in flow produces.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthExpired reports that no usable token is available and the user must
// re-authenticate. Surfaced distinctly so callers can prompt for sign-in
// instead of failing silently.
var ErrAuthExpired = errors.New("authentication expired")

// TokenSource yields the current bearer token for authenticated fetches.
type TokenSource interface {
	Token() (string, error)
}

// Static is a fixed-token source, used for tests and short-lived sessions.
type Static string

func (s Static) Token() (string, error) {
	if s == "" {
		return "", ErrAuthExpired
	}
	return string(s), nil
}

// TokenFile holds a saved bearer token.
type TokenFile struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   string    `json:"account"`
}

// IsExpired returns true if the token has expired (with optional margin).
// A zero ExpiresAt means the expiry is unknown and the token is assumed live.
func (t *TokenFile) IsExpired(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// FileSource reads tokens from a token file, re-reading when an external
// refresher replaces the file. Safe for concurrent use.
type FileSource struct {
	path   string
	margin time.Duration

	mu     sync.Mutex
	cached *TokenFile
	loaded time.Time
}

// reloadInterval bounds how stale the in-memory copy of the token file can get.
const reloadInterval = 30 * time.Second

// NewFileSource creates a source over the token file at path. margin is
// subtracted from the expiry so callers never hand out a token about to die
// mid-request.
func NewFileSource(path string, margin time.Duration) *FileSource {
	return &FileSource{path: path, margin: margin}
}

func (f *FileSource) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached == nil || time.Since(f.loaded) > reloadInterval {
		tf, err := LoadTokenFile(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", ErrAuthExpired
			}
			return "", fmt.Errorf("read token file: %w", err)
		}
		f.cached = tf
		f.loaded = time.Now()
	}

	if f.cached.Token == "" || f.cached.IsExpired(f.margin) {
		f.cached = nil
		return "", ErrAuthExpired
	}
	return f.cached.Token, nil
}

// SaveTokenFile writes the token file at path with owner-only permissions.
// The expiry is filled in from the token's own claims when absent.
func SaveTokenFile(path string, tf *TokenFile) error {
	if tf.ExpiresAt.IsZero() {
		if exp, err := ExpiryFromToken(tf.Token); err == nil {
			tf.ExpiresAt = exp
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadTokenFile reads a token file from path.
func LoadTokenFile(path string) (*TokenFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tf, nil
}

// DefaultTokenPath returns the conventional token file location.
func DefaultTokenPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "driveview", "token.json")
}

// ExpiryFromToken extracts the exp claim from a JWT without verifying the
// signature. Verification belongs to the issuer; this side only needs to
// know when to stop presenting the token.
func ExpiryFromToken(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time, nil
}
