package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BasePath tells the frontend which base path the app is served under,
// so a deployment behind a path-routing gateway keeps working.
func (h *Handlers) BasePath(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"basepath": h.cfg.BasePath})
}

// AuthSetup hands the browser its MSAL sign-in configuration.
func (h *Handlers) AuthSetup(c *gin.Context) {
	c.JSON(http.StatusOK, h.auth.AuthSetup())
}
