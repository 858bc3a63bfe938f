package auth

import "fmt"

// Setup is the payload of GET /auth_setup. The browser client feeds
// MSALConfig straight into msal-browser, so the field names follow its
// configuration schema.
type Setup struct {
	UseLogin     bool         `json:"useLogin"`
	MSALConfig   MSALConfig   `json:"msalConfig"`
	LoginRequest ScopeRequest `json:"loginRequest"`
	TokenRequest ScopeRequest `json:"tokenRequest"`
}

type MSALConfig struct {
	Auth  MSALAuth  `json:"auth"`
	Cache MSALCache `json:"cache"`
}

type MSALAuth struct {
	ClientID                  string `json:"clientId"`
	Authority                 string `json:"authority"`
	RedirectURI               string `json:"redirectUri"`
	PostLogoutRedirectURI     string `json:"postLogoutRedirectUri"`
	NavigateToLoginRequestURL bool   `json:"navigateToLoginRequestUrl"`
}

type MSALCache struct {
	CacheLocation          string `json:"cacheLocation"`
	StoreAuthStateInCookie bool   `json:"storeAuthStateInCookie"`
}

type ScopeRequest struct {
	Scopes []string `json:"scopes"`
}

// AuthSetup returns the sign-in configuration for the browser client.
// With authentication disabled UseLogin is false and the client skips the
// login flow entirely.
func (h *Helper) AuthSetup() Setup {
	if h == nil {
		h = &Helper{}
	}
	return Setup{
		UseLogin: h.enabled,
		MSALConfig: MSALConfig{
			Auth: MSALAuth{
				ClientID:              h.clientAppID,
				Authority:             h.authority,
				RedirectURI:           "/redirect",
				PostLogoutRedirectURI: "/",
			},
			Cache: MSALCache{CacheLocation: "localStorage"},
		},
		LoginRequest: ScopeRequest{Scopes: []string{".default"}},
		TokenRequest: ScopeRequest{Scopes: []string{fmt.Sprintf("api://%s/access_as_user", h.serverAppID)}},
	}
}
