// Package auth resolves the bearer token of an API request into the lexgate
// scopes it grants: running checks, reading grammar preferences, or both.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Scope is a permission a token may carry.
type Scope string

const (
	// ScopeCheck allows grammar and speller checks.
	ScopeCheck Scope = "check"
	// ScopePreferences allows reading grammar preference tables.
	ScopePreferences Scope = "preferences"
	// ScopeAll is implied by the API key and may also be granted to a token.
	ScopeAll Scope = "*"
)

var (
	ErrMissingToken    = errors.New("missing Authorization header")
	ErrMalformedHeader = errors.New("invalid Authorization header format")
	ErrUnknownToken    = errors.New("invalid API key")
)

// TokenConfig is a bearer token with the scope names it grants.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is the caller behind an accepted token.
type Principal struct {
	// Name identifies the token in logs without revealing it:
	// "api_key" or "tokens[N]".
	Name   string
	Scopes []Scope
}

// Allows reports whether p holds any of anyOf. ScopeAll satisfies everything
// and an empty anyOf always passes.
func (p Principal) Allows(anyOf ...Scope) bool {
	if len(anyOf) == 0 {
		return true
	}
	for _, held := range p.Scopes {
		if held == ScopeAll {
			return true
		}
		for _, want := range anyOf {
			if held == want {
				return true
			}
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type key struct {
	secret    []byte
	principal Principal
}

// Keyring holds the API key and the scoped tokens of one server.
type Keyring struct {
	keys []key
}

// NewKeyring builds a keyring. Empty tokens are skipped, and so are blank
// scope names.
func NewKeyring(apiKey string, tokens []TokenConfig) *Keyring {
	k := &Keyring{}
	if apiKey != "" {
		k.keys = append(k.keys, key{
			secret:    []byte(apiKey),
			principal: Principal{Name: "api_key", Scopes: []Scope{ScopeAll}},
		})
	}
	for i, t := range tokens {
		if t.Token == "" {
			continue
		}
		scopes := make([]Scope, 0, len(t.Scopes))
		for _, s := range t.Scopes {
			if s = strings.TrimSpace(s); s != "" {
				scopes = append(scopes, Scope(s))
			}
		}
		k.keys = append(k.keys, key{
			secret:    []byte(t.Token),
			principal: Principal{Name: fmt.Sprintf("tokens[%d]", i), Scopes: scopes},
		})
	}
	return k
}

// Enabled reports whether any token is configured. Without one the API is open.
func (k *Keyring) Enabled() bool {
	return len(k.keys) > 0
}

// Lookup returns the principal for presented. Every configured key is
// compared so the match position does not show in timing.
func (k *Keyring) Lookup(presented string) (Principal, bool) {
	if presented == "" {
		return Principal{}, false
	}
	var (
		found Principal
		ok    bool
	)
	for _, e := range k.keys {
		if subtle.ConstantTimeCompare([]byte(presented), e.secret) == 1 && !ok {
			found, ok = e.principal, true
		}
	}
	return found, ok
}

// Resolve reads the bearer token of r and looks it up.
func (k *Keyring) Resolve(r *http.Request) (Principal, error) {
	token, err := BearerToken(r)
	if err != nil {
		return Principal{}, err
	}
	p, ok := k.Lookup(token)
	if !ok {
		return Principal{}, ErrUnknownToken
	}
	return p, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
