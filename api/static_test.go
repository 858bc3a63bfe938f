package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cbattlegear/azure-data-chat/config"
)

// staticRouter builds a router serving a throwaway frontend build.
func staticRouter(t *testing.T) (*gin.Engine, *Handlers) {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"index.html":           "<html>data chat</html>",
		"favicon.ico":          "icon-bytes",
		"assets/index-a1b2.js": "console.log('app')",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	cfg := &config.Config{BasePath: "/", StaticDir: dir}
	h := NewHandlers(cfg, &fakeRunner{}, &fakeAuth{}, nil)
	r := gin.New()
	h.Register(r)
	return r, h
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestIndexServedUncached(t *testing.T) {
	r, _ := staticRouter(t)

	w := get(r, "/")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "data chat") {
		t.Errorf("body = %q, want index.html content", w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
		t.Errorf("cache-control = %q, want no-cache", cc)
	}
}

func TestRedirectIsEmptyPage(t *testing.T) {
	r, _ := staticRouter(t)

	w := get(r, "/redirect")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "" {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestFavicon(t *testing.T) {
	r, _ := staticRouter(t)

	w := get(r, "/favicon.ico")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=86400") {
		t.Errorf("cache-control = %q, want a day-long max-age", cc)
	}
}

func TestFaviconMissing(t *testing.T) {
	cfg := &config.Config{BasePath: "/", StaticDir: t.TempDir()}
	h := NewHandlers(cfg, &fakeRunner{}, &fakeAuth{}, nil)
	r := gin.New()
	h.Register(r)

	if w := get(r, "/favicon.ico"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAssetsImmutableCaching(t *testing.T) {
	r, _ := staticRouter(t)

	w := get(r, "/assets/index-a1b2.js")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "console.log('app')" {
		t.Errorf("body = %q, want asset content", w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "immutable") {
		t.Errorf("cache-control = %q, want immutable", cc)
	}
}

func TestAssetsMissing(t *testing.T) {
	r, _ := staticRouter(t)

	if w := get(r, "/assets/missing.js"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAssetsRejectsTraversal(t *testing.T) {
	_, h := staticRouter(t)

	// The raw parameter can carry dot segments when the client skips
	// path normalization, so the handler is exercised directly.
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/assets/x", nil)
	c.Params = gin.Params{{Key: "filepath", Value: "/../index.html"}}

	h.Assets(c)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
