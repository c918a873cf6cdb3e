// Package session keeps the bearer token of the signed-in user.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/C2SE29-Capstone2/kinderchat/internal/auth"
	"github.com/C2SE29-Capstone2/kinderchat/internal/chat"
)

// ErrNotLoggedIn is returned by accessors that need a live token.
var ErrNotLoggedIn = errors.New("not logged in")

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Provider holds the current token. It is safe for concurrent use and
// satisfies chat.Session.
type Provider struct {
	mu     sync.RWMutex
	token  string
	claims *auth.Claims
	now    func() time.Time
}

// NewProvider returns a logged out provider.
func NewProvider() *Provider {
	return &Provider{now: time.Now}
}

// SetToken installs a token handed out by the server. Claims are decoded
// without verification; the server remains the authority.
func (p *Provider) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("set token: %w", auth.ErrInvalidToken)
	}
	claims, err := auth.ParseUnverified(token)
	if err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	if claims.UserID <= 0 {
		return fmt.Errorf("set token: %w: missing user id", auth.ErrInvalidToken)
	}

	p.mu.Lock()
	p.token = token
	p.claims = claims
	p.mu.Unlock()
	return nil
}

// Login authenticates through a and installs the returned token.
func (p *Provider) Login(ctx context.Context, a Authenticator, username, password string) error {
	token, err := a.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return p.SetToken(token)
}

// Logout forgets the token. Engines polling with this provider stop on
// their next tick.
func (p *Provider) Logout() {
	p.mu.Lock()
	p.token = ""
	p.claims = nil
	p.mu.Unlock()
}

// Token returns the bearer token, or "" when logged out or expired.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.liveLocked() {
		return ""
	}
	return p.token
}

// UserID returns the id of the signed-in user, or 0.
func (p *Provider) UserID() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.liveLocked() {
		return 0
	}
	return p.claims.UserID
}

// Username returns the account name carried by the token.
func (p *Provider) Username() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.claims == nil {
		return ""
	}
	return p.claims.Username
}

// Role maps the account role onto a conversation side.
func (p *Provider) Role() (chat.Role, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.liveLocked() {
		return "", ErrNotLoggedIn
	}
	return chat.ParseRole(p.claims.Role)
}

// ExpiresAt returns the token expiry, or the zero time if unknown.
func (p *Provider) ExpiresAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.claims == nil {
		return time.Time{}
	}
	return p.claims.Expiry()
}

func (p *Provider) liveLocked() bool {
	if p.token == "" || p.claims == nil {
		return false
	}
	exp := p.claims.Expiry()
	return exp.IsZero() || p.now().Before(exp)
}

var _ chat.Session = (*Provider)(nil)
