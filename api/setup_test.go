package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cbattlegear/azure-data-chat/auth"
	"github.com/cbattlegear/azure-data-chat/config"
	"github.com/cbattlegear/azure-data-chat/metrics"
)

func TestBasePath(t *testing.T) {
	cfg := &config.Config{BasePath: "/app", StaticDir: "static"}
	r := gin.New()
	NewHandlers(cfg, &fakeRunner{}, &fakeAuth{}, nil).Register(r)

	w := get(r, "/basepath")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var payload map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["basepath"] != "/app" {
		t.Errorf("basepath = %q, want /app", payload["basepath"])
	}
}

func TestAuthSetupEndpoint(t *testing.T) {
	authProvider := &fakeAuth{
		setup: auth.Setup{
			UseLogin: true,
			MSALConfig: msalFixture("client-123",
				"https://login.microsoftonline.com/tenant-1"),
			LoginRequest: auth.ScopeRequest{Scopes: []string{".default"}},
			TokenRequest: auth.ScopeRequest{Scopes: []string{"api://server-1/access_as_user"}},
		},
	}
	r := newTestRouter(&fakeRunner{}, authProvider)

	w := get(r, "/auth_setup")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var setup auth.Setup
	if err := json.Unmarshal(w.Body.Bytes(), &setup); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !setup.UseLogin {
		t.Error("useLogin = false, want true")
	}
	if setup.MSALConfig.Auth.ClientID != "client-123" {
		t.Errorf("clientId = %q, want client-123", setup.MSALConfig.Auth.ClientID)
	}

	// msal-browser reads these keys verbatim.
	body := w.Body.String()
	for _, key := range []string{`"msalConfig"`, `"clientId"`, `"redirectUri"`, `"cacheLocation"`} {
		if !strings.Contains(body, key) {
			t.Errorf("body missing %s: %s", key, body)
		}
	}
}

func msalFixture(clientID, authority string) auth.MSALConfig {
	return auth.MSALConfig{
		Auth: auth.MSALAuth{
			ClientID:              clientID,
			Authority:             authority,
			RedirectURI:           "/redirect",
			PostLogoutRedirectURI: "/",
		},
		Cache: auth.MSALCache{CacheLocation: "localStorage"},
	}
}

func TestMetricsRouteRegisteredWhenWired(t *testing.T) {
	m := metrics.New()
	m.ObserveChat("sync", nil)

	cfg := &config.Config{BasePath: "/", StaticDir: "static"}
	r := gin.New()
	NewHandlers(cfg, &fakeRunner{}, &fakeAuth{}, m).Register(r)

	w := get(r, "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "datachat_chat_requests_total") {
		t.Errorf("metrics output missing chat counter: %s", w.Body.String())
	}
}

func TestMetricsRouteAbsentWithoutMetrics(t *testing.T) {
	r := newTestRouter(&fakeRunner{}, &fakeAuth{})

	if w := get(r, "/metrics"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
