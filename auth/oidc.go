package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"subscription_watcher/config"
)

// Provider runs the OIDC authorization code flow for browser users.
type Provider struct {
	config       *config.OIDCConfig
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	sessions     *SessionStore
	states       *StateStore
	adminClaim   string
	secure       bool // Cookies are Secure when the service URL is https
}

// NewProvider discovers the identity provider named by cfg.ConfigURL.
// Sessions created by a successful login are stored in sessions.
func NewProvider(ctx context.Context, cfg *config.OIDCConfig, sessions *SessionStore) (*Provider, error) {
	if cfg == nil {
		return nil, errors.New("OIDC config is nil")
	}

	// The discovery document is fetched from config_url as given, which
	// need not be issuer + /.well-known/openid-configuration.
	doc, err := fetchDiscoveryDocument(ctx, cfg.ConfigURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OIDC discovery document at %s: %w", cfg.ConfigURL, err)
	}

	provider, err := oidc.NewProvider(ctx, doc.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider for issuer %s: %w", doc.Issuer, err)
	}

	return &Provider{
		config: cfg,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  strings.TrimSuffix(cfg.ServiceURL, "/") + cfg.GetCallback(),
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", "groups"},
		},
		verifier:   provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		sessions:   sessions,
		states:     NewStateStore(ctx),
		adminClaim: cfg.GetAdminClaim(),
		secure:     strings.HasPrefix(cfg.ServiceURL, "https"),
	}, nil
}

type discoveryDocument struct {
	Issuer string `json:"issuer"`
}

func fetchDiscoveryDocument(ctx context.Context, configURL string) (*discoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s: %s", resp.Status, string(body))
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if doc.Issuer == "" {
		return nil, errors.New("discovery document missing issuer")
	}
	return &doc, nil
}

// CallbackPath returns the path the identity provider redirects back to.
func (p *Provider) CallbackPath() string {
	return p.config.GetCallback()
}

// LoginHandler redirects the browser to the identity provider. The
// redirect query parameter names the page to return to afterwards.
func (p *Provider) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state, err := generateRandomString(32)
	if err != nil {
		log.WithError(err).Error("Failed to generate state")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	p.states.Set(state)

	http.SetCookie(w, &http.Cookie{
		Name:     OriginalURLCookieName,
		Value:    safeRedirect(r.URL.Query().Get("redirect")),
		Path:     "/",
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(StateExpiry.Seconds()),
	})

	http.Redirect(w, r, p.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler completes the login: it exchanges the code, verifies the
// ID token and starts a session for admin users.
func (p *Provider) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if !p.states.Validate(q.Get("state")) {
		log.Warn("Invalid OIDC state")
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		log.WithField("error", errParam).WithField("description", q.Get("error_description")).Warn("OIDC provider returned an error")
		http.Error(w, "Authentication error: "+q.Get("error_description"), http.StatusUnauthorized)
		return
	}

	token, err := p.oauth2Config.Exchange(ctx, q.Get("code"))
	if err != nil {
		log.WithError(err).Error("Failed to exchange code")
		http.Error(w, "Failed to exchange authorization code", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		log.Error("No ID token in response")
		http.Error(w, "No ID token in response", http.StatusInternalServerError)
		return
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		log.WithError(err).Warn("Failed to verify ID token")
		http.Error(w, "Failed to verify ID token", http.StatusUnauthorized)
		return
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		log.WithError(err).Error("Failed to extract claims")
		http.Error(w, "Failed to extract claims", http.StatusInternalServerError)
		return
	}

	client := clientFromClaims(claims)
	if !p.checkAdminClaim(claims) {
		log.WithField("user", client.Name).WithField("email", client.Email).Warn("Login denied: not an admin")
		http.Error(w, "Access denied: admin privileges required", http.StatusForbidden)
		return
	}

	sessionID, err := p.sessions.Create(client)
	if err != nil {
		log.WithError(err).Error("Failed to create session")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	log.WithField("user", client.Name).WithField("email", client.Email).Info("User logged in")

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(DefaultSessionDuration.Seconds()),
	})

	target := DefaultRedirect
	if cookie, err := r.Cookie(OriginalURLCookieName); err == nil {
		target = safeRedirect(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     OriginalURLCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// LogoutHandler ends the caller's session.
func (p *Provider) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		p.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	log.Info("User logged out")
	http.Redirect(w, r, DefaultRedirect, http.StatusTemporaryRedirect)
}

// clientFromClaims names the user by display name, falling back to the
// preferred username and then the subject.
func clientFromClaims(claims map[string]any) *Client {
	client := &Client{Method: MethodOIDC}
	if email, ok := claims["email"].(string); ok {
		client.Email = email
	}
	for _, key := range []string{"name", "preferred_username", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			client.Name = v
			break
		}
	}
	return client
}

// checkAdminClaim reports whether the claims grant admin access: either an
// "admin" boolean or the configured claim holding true, "admin" or a list
// containing "admin".
func (p *Provider) checkAdminClaim(claims map[string]any) bool {
	if admin, ok := claims["admin"].(bool); ok && admin {
		return true
	}

	switch v := claims[p.adminClaim].(type) {
	case bool:
		return v
	case string:
		lower := strings.ToLower(v)
		return lower == "admin" || lower == "true" || lower == "1"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "admin") {
				return true
			}
		}
	}
	return false
}

// safeRedirect keeps post-login redirects on this host.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return DefaultRedirect
	}
	return target
}
