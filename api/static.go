package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// Index serves the frontend entry point. HTML is never cached so a new
// deployment takes effect immediately.
func (h *Handlers) Index(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.File(filepath.Join(h.cfg.StaticDir, "index.html"))
}

// Redirect is the empty page MSAL lands on after login; the script in
// index.html picks the flow up from there.
func (h *Handlers) Redirect(c *gin.Context) {
	c.String(http.StatusOK, "")
}

func (h *Handlers) Favicon(c *gin.Context) {
	path := filepath.Join(h.cfg.StaticDir, "favicon.ico")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400, must-revalidate")
	c.File(path)
}

// Assets serves the bundler output. File names carry a content hash, so
// they cache as immutable.
func (h *Handlers) Assets(c *gin.Context) {
	rel := c.Param("filepath")

	// Security: prevent path traversal
	if strings.Contains(rel, "..") {
		c.Status(http.StatusForbidden)
		return
	}

	full := filepath.Join(h.cfg.StaticDir, "assets", rel)
	if _, err := os.Stat(full); os.IsNotExist(err) {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.File(full)
}
