// Package auth validates Azure AD access tokens for the chat API and
// produces the MSAL configuration the browser client signs in with.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cbattlegear/azure-data-chat/config"
	"github.com/cbattlegear/azure-data-chat/log"
	"github.com/cbattlegear/azure-data-chat/tokencache"
)

const (
	claimsCacheSize = 1000
	claimsCacheTTL  = 15 * time.Minute
)

// cachedClaims carries the token expiry alongside the claims so a cache
// hit never outlives the token it came from.
type cachedClaims struct {
	claims    map[string]any
	expiresAt time.Time
}

// Helper validates bearer tokens against the Azure AD tenant. Validated
// claims are cached in memory and, when a token cache store is configured,
// in SQLite, keyed by the token's SHA-256.
type Helper struct {
	enabled     bool
	clientAppID string
	serverAppID string
	authority   string

	verifier *oidc.IDTokenVerifier
	cache    *expirable.LRU[string, cachedClaims]
	store    *tokencache.Store
}

// NewHelper builds the helper. With authentication disabled it only
// carries the app registration values for AuthSetup; enabled, it runs
// OIDC discovery against the tenant's v2.0 endpoint.
func NewHelper(ctx context.Context, cfg *config.Config, store *tokencache.Store) (*Helper, error) {
	h := &Helper{
		clientAppID: cfg.ClientAppID,
		serverAppID: cfg.ServerAppID,
		authority:   cfg.Authority(),
		store:       store,
	}
	if !cfg.UseAuthentication {
		log.Info().Msg("azure ad authentication disabled")
		return h, nil
	}
	if cfg.TenantID == "" || cfg.ServerAppID == "" || cfg.ClientAppID == "" {
		return nil, errors.New("AZURE_USE_AUTHENTICATION requires AZURE_TENANT_ID, AZURE_SERVER_APP_ID and AZURE_CLIENT_APP_ID")
	}

	discoverCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	provider, err := oidc.NewProvider(discoverCtx, h.authority+"/v2.0")
	if err != nil {
		return nil, fmt.Errorf("failed to discover azure ad issuer: %w", err)
	}

	// Audience is checked by hand below; Azure AD issues both the bare
	// app id and the api:// form depending on how the scope was requested.
	h.verifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	h.cache = expirable.NewLRU[string, cachedClaims](claimsCacheSize, nil, claimsCacheTTL)
	h.enabled = true

	log.Info().Str("authority", h.authority).Msg("azure ad authentication enabled")
	return h, nil
}

// Enabled reports whether bearer tokens are being validated.
func (h *Helper) Enabled() bool {
	return h != nil && h.enabled
}

// ClaimsIfEnabled resolves the claims for the request's Authorization
// header. A missing, malformed or invalid token yields an empty claims
// map, never a request failure; the chat pipeline decides what to do with
// an anonymous caller.
func (h *Helper) ClaimsIfEnabled(ctx context.Context, authorizationHeader string) map[string]any {
	if !h.Enabled() {
		return map[string]any{}
	}

	token, ok := parseBearer(authorizationHeader)
	if !ok {
		return map[string]any{}
	}

	claims, err := h.validate(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("bearer token validation failed")
		return map[string]any{}
	}
	return claims
}

// validate resolves claims for a raw token: memory cache, then the SQLite
// store, then full verification against the tenant.
func (h *Helper) validate(ctx context.Context, rawToken string) (map[string]any, error) {
	key := tokenKey(rawToken)
	now := time.Now()

	if cached, ok := h.cache.Get(key); ok && now.Before(cached.expiresAt) {
		return cached.claims, nil
	}

	if claims, ok, err := h.store.Get(key, now); err != nil {
		log.Warn().Err(err).Msg("token cache read failed")
	} else if ok {
		return claims, nil
	}

	idToken, err := h.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !audienceMatches(idToken.Audience, h.serverAppID) {
		return nil, fmt.Errorf("token audience %v does not match the server app", idToken.Audience)
	}

	var parsed struct {
		OID               string   `json:"oid"`
		Groups            []string `json:"groups"`
		Name              string   `json:"name"`
		PreferredUsername string   `json:"preferred_username"`
	}
	if err := idToken.Claims(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}

	claims := map[string]any{
		"oid":                parsed.OID,
		"groups":             parsed.Groups,
		"name":               parsed.Name,
		"preferred_username": parsed.PreferredUsername,
	}

	h.cache.Add(key, cachedClaims{claims: claims, expiresAt: idToken.Expiry})
	if err := h.store.Put(key, claims, idToken.Expiry); err != nil {
		log.Warn().Err(err).Msg("token cache write failed")
	}
	return claims, nil
}

func audienceMatches(audience []string, serverAppID string) bool {
	for _, aud := range audience {
		if aud == serverAppID || aud == "api://"+serverAppID {
			return true
		}
	}
	return false
}

func parseBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
