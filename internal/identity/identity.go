// Package identity resolves the owner of an API request. Authentication
// happens upstream; a gateway forwards the authenticated owner id in a
// header, optionally proving itself with a shared secret.
package identity

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Provider returns the owner id of a request
type Provider interface {
	Identify(r *http.Request) (string, error)
}

// Config is injected at startup; the provider reads nothing else.
type Config struct {
	Header             string
	SharedSecretHeader string
	SharedSecret       string
}

// HeaderProvider trusts an owner id forwarded by the gateway
type HeaderProvider struct {
	cfg Config
}

// NewHeaderProvider creates a header-based provider
func NewHeaderProvider(cfg Config) *HeaderProvider {
	if cfg.Header == "" {
		cfg.Header = "X-Owner-ID"
	}
	if cfg.SharedSecretHeader == "" {
		cfg.SharedSecretHeader = "X-Gateway-Secret"
	}
	return &HeaderProvider{cfg: cfg}
}

// Identify returns the trimmed owner header. When a shared secret is
// configured the request must also carry it.
func (p *HeaderProvider) Identify(r *http.Request) (string, error) {
	if p.cfg.SharedSecret != "" {
		got := r.Header.Get(p.cfg.SharedSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(p.cfg.SharedSecret)) != 1 {
			return "", ErrUnauthenticated
		}
	}

	owner := strings.TrimSpace(r.Header.Get(p.cfg.Header))
	if owner == "" {
		return "", ErrUnauthenticated
	}
	return owner, nil
}

// Static always resolves to one owner. The local server uses it for the
// configured user.
type Static string

// Identify returns the fixed owner id
func (s Static) Identify(*http.Request) (string, error) {
	if s == "" {
		return "", ErrUnauthenticated
	}
	return string(s), nil
}
