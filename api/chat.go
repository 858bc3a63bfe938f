package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cbattlegear/azure-data-chat/approaches"
	"github.com/cbattlegear/azure-data-chat/log"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Messages     []approaches.Message `json:"messages"`
	Stream       bool                 `json:"stream"`
	Context      RequestContext       `json:"context"`
	SessionState json.RawMessage      `json:"session_state"`
}

// RequestContext is the client-settable part of the request context.
type RequestContext struct {
	Overrides approaches.Overrides `json:"overrides"`
}

// Chat runs the chat pipeline for a conversation. The response is a
// single JSON document, or newline-delimited JSON chunks when the client
// asked to stream.
func (h *Handlers) Chat(c *gin.Context) {
	if !isJSONRequest(c) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "request must be json"})
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages must not be empty"})
		return
	}

	opts := approaches.RunOptions{
		Overrides:    req.Context.Overrides,
		AuthClaims:   h.auth.ClaimsIfEnabled(c.Request.Context(), c.GetHeader("Authorization")),
		SessionState: req.SessionState,
	}

	if req.Stream {
		h.chatStream(c, req.Messages, opts)
		return
	}

	resp, err := h.chat.Run(c.Request.Context(), req.Messages, opts)
	if err != nil {
		log.Error().Err(err).Str("request_id", c.GetString(log.ContextKeyRequestID)).Msg("chat request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// chatStream writes the pipeline's chunks as NDJSON, flushing after each
// line. An error before the first byte still gets a regular 500; after
// that the error travels as the final line.
func (h *Handlers) chatStream(c *gin.Context, messages []approaches.Message, opts approaches.RunOptions) {
	events, err := h.chat.RunStream(c.Request.Context(), messages, opts)
	if err != nil {
		log.Error().Err(err).Str("request_id", c.GetString(log.ContextKeyRequestID)).Msg("chat stream failed to start")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	for ev := range events {
		if ev.Err != nil {
			log.Error().Err(ev.Err).Str("request_id", c.GetString(log.ContextKeyRequestID)).Msg("chat stream failed")
			if err := enc.Encode(gin.H{"error": ev.Err.Error()}); err == nil {
				c.Writer.Flush()
			}
			return
		}
		if err := enc.Encode(ev.Chunk); err != nil {
			// Client went away; drain so the pipeline can finish up.
			for range events {
			}
			return
		}
		c.Writer.Flush()
	}
}

func isJSONRequest(c *gin.Context) bool {
	contentType := c.ContentType()
	return contentType == "application/json" || strings.HasSuffix(contentType, "+json")
}
