package api

import (
	"github.com/gin-gonic/gin"
)

// Register wires all routes onto the router.
func (h *Handlers) Register(r *gin.Engine) {
	// Frontend
	r.GET("/", h.Index)
	r.GET("/redirect", h.Redirect)
	r.GET("/favicon.ico", h.Favicon)
	r.GET("/assets/*filepath", h.Assets)

	// Client bootstrap configuration
	r.GET("/basepath", h.BasePath)
	r.GET("/auth_setup", h.AuthSetup)

	// Chat pipeline
	r.POST("/chat", h.Chat)

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}
