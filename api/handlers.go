// Package api exposes the HTTP surface: the chat endpoint, the
// configuration endpoints the frontend bootstraps from, and the static
// files of the built frontend.
package api

import (
	"context"

	"github.com/cbattlegear/azure-data-chat/approaches"
	"github.com/cbattlegear/azure-data-chat/auth"
	"github.com/cbattlegear/azure-data-chat/config"
	"github.com/cbattlegear/azure-data-chat/metrics"
)

// ChatRunner is the chat pipeline as the API layer consumes it.
type ChatRunner interface {
	Run(ctx context.Context, messages []approaches.Message, opts approaches.RunOptions) (*approaches.ChatResponse, error)
	RunStream(ctx context.Context, messages []approaches.Message, opts approaches.RunOptions) (<-chan approaches.StreamEvent, error)
}

// AuthProvider resolves the caller's identity and the sign-in
// configuration handed to the browser.
type AuthProvider interface {
	AuthSetup() auth.Setup
	ClaimsIfEnabled(ctx context.Context, authorizationHeader string) map[string]any
}

// Handlers holds the components the HTTP handlers dispatch to.
type Handlers struct {
	cfg     *config.Config
	chat    ChatRunner
	auth    AuthProvider
	metrics *metrics.Metrics
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *config.Config, chat ChatRunner, authProvider AuthProvider, m *metrics.Metrics) *Handlers {
	return &Handlers{cfg: cfg, chat: chat, auth: authProvider, metrics: m}
}
