// Package auth protects the watcher API. Callers authenticate with a static
// bearer token, an OIDC browser session or, for local system users, HTTP
// Basic auth checked against PAM.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"subscription_watcher/config"
)

var log = logrus.WithField("component", "auth")

// ContextKey is a type for context keys used by the auth package.
type ContextKey string

const (
	// ClientContextKey is the context key for the authenticated caller.
	ClientContextKey ContextKey = "auth_client"

	// TokenQueryParam carries the token for clients that cannot set headers,
	// such as browser WebSocket connections.
	TokenQueryParam = "access_token"

	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "sw_session"

	// OriginalURLCookieName stores the page to return to after login.
	OriginalURLCookieName = "sw_original_url"

	// DefaultRedirect is where logins and logouts land without a redirect.
	DefaultRedirect = "/api/auth/status"

	// DefaultSessionDuration is the session lifetime.
	DefaultSessionDuration = 24 * time.Hour

	// StateExpiry is how long OIDC state tokens are valid.
	StateExpiry = 10 * time.Minute
)

// How a client authenticated.
const (
	MethodToken = "token"
	MethodOIDC  = "oidc"
	MethodLocal = "local"
)

// Client is an authenticated API client or signed-in user.
type Client struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	Email  string `json:"email,omitempty"`
}

// Authenticator checks requests against the configured API tokens, OIDC
// sessions and local users.
type Authenticator struct {
	// Keyed by the SHA-256 of each token.
	clients map[[sha256.Size]byte]*Client

	sessions *SessionStore
	provider *Provider // nil without OIDC

	localAdmins   map[string]bool
	pamService    string
	checkPassword func(service, username, password string) error
}

// New creates an authenticator from cfg, discovering the OIDC provider when
// one is configured. Returns nil when no method is configured, which leaves
// the API open.
func New(ctx context.Context, cfg *config.Config) (*Authenticator, error) {
	if len(cfg.APITokens) == 0 && cfg.OIDC == nil && cfg.Local == nil {
		return nil, nil
	}

	a := &Authenticator{
		clients:       make(map[[sha256.Size]byte]*Client, len(cfg.APITokens)),
		sessions:      NewSessionStore(ctx),
		localAdmins:   make(map[string]bool),
		checkPassword: validatePAMAuth,
	}
	for _, t := range cfg.APITokens {
		a.clients[sha256.Sum256([]byte(t.Token))] = &Client{Name: t.Name, Method: MethodToken}
	}

	if cfg.OIDC != nil {
		p, err := NewProvider(ctx, cfg.OIDC, a.sessions)
		if err != nil {
			return nil, err
		}
		a.provider = p
		log.WithField("issuer", cfg.OIDC.ConfigURL).Info("OIDC login enabled")
	}

	if cfg.Local != nil {
		for _, name := range cfg.Local.Admins {
			a.localAdmins[strings.TrimSpace(name)] = true
		}
		a.pamService = cfg.Local.GetPAMService()
		log.WithField("users", len(a.localAdmins)).Info("Local login enabled")
	}
	return a, nil
}

// Provider returns the OIDC provider, or nil when browser login is off.
func (a *Authenticator) Provider() *Provider {
	if a == nil {
		return nil
	}
	return a.provider
}

// Authenticate returns the client owning token.
func (a *Authenticator) Authenticate(token string) (*Client, bool) {
	if token == "" {
		return nil, false
	}
	sum := sha256.Sum256([]byte(token))
	for key, client := range a.clients {
		if subtle.ConstantTimeCompare(key[:], sum[:]) == 1 {
			return client, true
		}
	}
	return nil, false
}

// tokenFromRequest reads a bearer token from the Authorization header or
// the access_token query parameter. ok is false when the request carries
// no token at all.
func tokenFromRequest(r *http.Request) (token string, ok bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token), true
		}
		return "", false
	}
	token = r.URL.Query().Get(TokenQueryParam)
	return token, token != ""
}

// identify resolves the caller from a bearer token or a session cookie.
// A presented token is never combined with a session.
func (a *Authenticator) identify(r *http.Request) (*Client, bool) {
	if token, ok := tokenFromRequest(r); ok {
		return a.Authenticate(token)
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return a.sessions.Get(cookie.Value)
	}
	return nil, false
}

// Middleware returns HTTP middleware that requires an authenticated caller.
// A nil Authenticator lets every request through.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, ok := a.identify(r)
		if !ok && len(a.localAdmins) > 0 {
			client, ok = a.handleLocalAuth(w, r)
		}
		if !ok {
			log.WithField("path", r.URL.Path).WithField("remote", r.RemoteAddr).Debug("Rejected unauthenticated request")
			a.handleUnauthorized(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), ClientContextKey, client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleLocalAuth checks HTTP Basic credentials of a configured local user
// against PAM. On success it also starts a session so later requests skip
// PAM.
func (a *Authenticator) handleLocalAuth(w http.ResponseWriter, r *http.Request) (*Client, bool) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, false
	}
	entry := log.WithField("user", username).WithField("remote", r.RemoteAddr)
	if !a.localAdmins[username] {
		entry.Warn("Local login failed: not a local admin")
		return nil, false
	}
	if err := a.checkPassword(a.pamService, username, password); err != nil {
		entry.WithError(err).Warn("Local login failed")
		return nil, false
	}

	client := &Client{Name: username, Method: MethodLocal}
	sessionID, err := a.sessions.Create(client)
	if err != nil {
		entry.WithError(err).Error("Failed to create session")
		return client, true
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(DefaultSessionDuration.Seconds()),
	})
	entry.Info("Local user authenticated")
	return client, true
}

// handleUnauthorized answers with 401 and the challenges the caller can
// satisfy. With OIDC configured the body carries a login URL that returns
// to the requested page.
func (a *Authenticator) handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("WWW-Authenticate", `Bearer realm="subscription_watcher"`)
	if len(a.localAdmins) > 0 {
		w.Header().Add("WWW-Authenticate", `Basic realm="subscription_watcher (local)"`)
	}
	body := map[string]string{"error": "authentication required"}
	if a.provider != nil {
		body["login_url"] = "/login?redirect=" + url.QueryEscape(r.URL.RequestURI())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(body)
}

// StatusHandler reports which login methods are enabled and, if the request
// is authenticated, who the caller is.
func (a *Authenticator) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"auth_enabled":  a != nil,
		"authenticated": a == nil,
		"oidc_enabled":  a.Provider() != nil,
		"local_enabled": a != nil && len(a.localAdmins) > 0,
	}
	if a != nil {
		if client, ok := a.identify(r); ok {
			status["authenticated"] = true
			status["client"] = client
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// GetClientFromContext retrieves the authenticated client from the request
// context. It returns nil when the API is open.
func GetClientFromContext(ctx context.Context) *Client {
	if client, ok := ctx.Value(ClientContextKey).(*Client); ok {
		return client
	}
	return nil
}
