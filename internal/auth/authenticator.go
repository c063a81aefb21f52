package auth

import (
	"time"
)

// Method names the credential type a principal authenticated with.
type Method string

const (
	MethodAuto   Method = "auto"
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
)

// Principal is an authenticated identity.
type Principal struct {
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Method    Method    `json:"auth_method"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Result is the structured outcome of an authentication attempt.
// Failures carry the method tried and a message, never a principal.
type Result struct {
	Authenticated bool       `json:"authenticated"`
	Principal     *Principal `json:"-"`
	AuthMethod    Method     `json:"auth_method"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// Authenticator resolves a credential string against the configured
// token manager and key store.
type Authenticator struct {
	tokens *TokenManager
	keys   *KeyStore
}

// NewAuthenticator creates an authenticator. Either backend may be nil
// when that credential type is disabled.
func NewAuthenticator(tokens *TokenManager, keys *KeyStore) *Authenticator {
	return &Authenticator{tokens: tokens, keys: keys}
}

// Authenticate validates a credential. Method auto tries JWT first,
// then API key.
func (a *Authenticator) Authenticate(credential string, method Method) *Result {
	if credential == "" {
		return &Result{AuthMethod: method, ErrorMessage: "missing credential"}
	}

	switch method {
	case MethodJWT:
		return a.tryJWT(credential)
	case MethodAPIKey:
		return a.tryAPIKey(credential)
	case MethodAuto, "":
		if r := a.tryJWT(credential); r.Authenticated {
			return r
		}
		if r := a.tryAPIKey(credential); r.Authenticated {
			return r
		}
		return &Result{AuthMethod: MethodAuto, ErrorMessage: "credential not recognized"}
	default:
		return &Result{AuthMethod: method, ErrorMessage: "unknown authentication method"}
	}
}

func (a *Authenticator) tryJWT(credential string) *Result {
	if a.tokens == nil {
		return &Result{AuthMethod: MethodJWT, ErrorMessage: "token authentication disabled"}
	}
	principal, err := a.tokens.Validate(credential)
	if err != nil {
		return &Result{AuthMethod: MethodJWT, ErrorMessage: err.Error()}
	}
	return &Result{Authenticated: true, Principal: principal, AuthMethod: MethodJWT}
}

func (a *Authenticator) tryAPIKey(credential string) *Result {
	if a.keys == nil {
		return &Result{AuthMethod: MethodAPIKey, ErrorMessage: "API key authentication disabled"}
	}
	principal, err := a.keys.Validate(credential)
	if err != nil {
		return &Result{AuthMethod: MethodAPIKey, ErrorMessage: err.Error()}
	}
	return &Result{Authenticated: true, Principal: principal, AuthMethod: MethodAPIKey}
}
