// Package auth tracks the remote credential's validity. Refreshing an
// expired credential is the external auth flow's job; this package only
// answers the save orchestrator's routing question: do we currently hold a
// usable credential?
package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials holds the session token issued by the auth service, a JWT
// whose exp claim bounds its usefulness.
type Credentials struct {
	mu    sync.RWMutex
	token string
	exp   time.Time
}

// now is swappable in tests.
var now = time.Now

// SetToken installs a fresh session token. The token is parsed unverified:
// signature checking is the server's concern, the client only needs the
// expiry for routing.
func (c *Credentials) SetToken(token string) error {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		// no exp claim: treat as non-expiring
		c.mu.Lock()
		c.token, c.exp = token, time.Time{}
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.token, c.exp = token, exp.Time
	c.mu.Unlock()
	return nil
}

// Token returns the current session token, empty when none is held.
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Valid reports whether a token is held and unexpired.
func (c *Credentials) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return false
	}
	if c.exp.IsZero() {
		return true
	}
	return now().Before(c.exp)
}

// Clear drops the credential (logout, refresh failure).
func (c *Credentials) Clear() {
	c.mu.Lock()
	c.token, c.exp = "", time.Time{}
	c.mu.Unlock()
}
