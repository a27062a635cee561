package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kiro-gateway/proxy/internal/adapters/anthropic"
	"github.com/kiro-gateway/proxy/internal/adapters/gemini"
	"github.com/kiro-gateway/proxy/internal/adapters/openai"
	"github.com/kiro-gateway/proxy/internal/dispatcher"
	"github.com/kiro-gateway/proxy/internal/logging"
	"github.com/kiro-gateway/proxy/internal/sse"
)

// chatCompletions handles POST /v1/chat/completions.
func (s *Server) chatCompletions(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "could not read request body"}})
		return
	}
	t := openai.ParseChatCompletionsRequest(raw, s.Models)

	res, derr := s.Dispatcher.Dispatch(c.Request.Context(), dispatcher.Request{
		Protocol:       "openai-chat-completions",
		ConversationID: dispatcher.SessionFingerprint(t.History),
		History:        t.History,
		CurrentContent: t.Current.Content,
		CurrentImages:  t.Current.Images,
		Model:          t.Model,
		Tools:          t.Tools,
	})
	recordDispatchOutcome("openai-chat-completions", string(res.Kind))
	if derr != nil {
		writeAdapterError(c, res.StatusCode, res.UserMessage)
		return
	}

	id := openai.ChatCompletionID(res.FlowID)
	if !t.Stream {
		c.Data(http.StatusOK, "application/json", openai.BuildChatCompletion(id, t.Model, res.Summary))
		return
	}
	withSSEWriter(c, func(w io.Writer) error {
		return openai.StreamChatCompletion(w, id, t.Model, res.Summary)
	})
}

// responses handles POST /v1/responses.
func (s *Server) responses(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "could not read request body"}})
		return
	}
	t := openai.ParseResponsesRequest(raw, s.Models)

	res, derr := s.Dispatcher.Dispatch(c.Request.Context(), dispatcher.Request{
		Protocol:       "openai-responses",
		ConversationID: dispatcher.SessionFingerprint(t.History),
		History:        t.History,
		CurrentContent: t.Current.Content,
		CurrentImages:  t.Current.Images,
		Model:          t.Model,
		Tools:          t.Tools,
	})
	recordDispatchOutcome("openai-responses", string(res.Kind))
	id := "resp_" + res.FlowID
	if derr != nil {
		if t.Stream {
			withSSEWriter(c, func(w io.Writer) error {
				return openai.StreamResponseFailed(w, id, res.UserMessage)
			})
			return
		}
		writeAdapterError(c, res.StatusCode, res.UserMessage)
		return
	}

	if !t.Stream {
		c.Data(http.StatusOK, "application/json", openai.BuildResponse(id, t.Model, res.Summary))
		return
	}
	withSSEWriter(c, func(w io.Writer) error {
		return openai.StreamResponse(w, id, t.Model, res.Summary)
	})
}

// messages handles POST /v1/messages.
func (s *Server) messages(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "could not read request body"}})
		return
	}
	t := anthropic.ParseMessagesRequest(raw, s.Models)

	res, derr := s.Dispatcher.Dispatch(c.Request.Context(), dispatcher.Request{
		Protocol:       "anthropic-messages",
		ConversationID: dispatcher.SessionFingerprint(t.History),
		History:        t.History,
		CurrentContent: t.Current.Content,
		CurrentImages:  t.Current.Images,
		Model:          t.Model,
		Tools:          t.Tools,
	})
	recordDispatchOutcome("anthropic-messages", string(res.Kind))
	if derr != nil {
		writeAdapterError(c, res.StatusCode, res.UserMessage)
		return
	}

	id := "msg_" + res.FlowID
	if !t.Stream {
		c.Data(http.StatusOK, "application/json", anthropic.BuildMessage(id, t.Model, res.Summary))
		return
	}
	withSSEWriter(c, func(w io.Writer) error {
		return anthropic.StreamMessage(w, id, t.Model, res.Summary)
	})
}

// countTokens handles POST /v1/messages/count_tokens without calling upstream.
func (s *Server) countTokens(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "could not read request body"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"input_tokens": anthropic.CountTokens(raw)})
}

// generateContent handles POST /v1/models/{model}:generateContent (and the ?alt=sse variant).
func (s *Server) generateContent(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "could not read request body"}})
		return
	}
	t := gemini.ParseGenerateContentRequest(raw)
	model := s.Models.Resolve(c.Param("model"))

	res, derr := s.Dispatcher.Dispatch(c.Request.Context(), dispatcher.Request{
		Protocol:       "gemini-generatecontent",
		ConversationID: dispatcher.SessionFingerprint(t.History),
		History:        t.History,
		CurrentContent: t.Current.Content,
		CurrentImages:  t.Current.Images,
		Model:          model,
		Tools:          t.Tools,
	})
	recordDispatchOutcome("gemini-generatecontent", string(res.Kind))
	if derr != nil {
		writeAdapterError(c, res.StatusCode, res.UserMessage)
		return
	}

	streaming := c.Query("alt") == "sse"
	if !streaming {
		c.Data(http.StatusOK, "application/json", gemini.BuildGenerateContentResponse(res.Summary))
		return
	}
	withSSEWriter(c, func(w io.Writer) error {
		for _, chunk := range gemini.StreamGenerateContentChunks(res.Summary) {
			if err := sse.WriteData(w, chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

// listModels handles GET /v1/models.
func (s *Server) listModels(c *gin.Context) {
	entries := s.Registry.List()
	data := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		data = append(data, gin.H{
			"id": e.ID, "object": "model", "owned_by": e.OwnedBy, "created": e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// tailLogs handles GET /debug/logs, returning the most recent in-process log entries
// (default 200, capped at the ring buffer's capacity) for operational diagnosis without
// shelling into the log file.
func (s *Server) tailLogs(c *gin.Context) {
	n := 200
	if raw := c.Query("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	c.JSON(http.StatusOK, gin.H{"entries": logging.GetRecentGlobalEntries(n)})
}

func writeAdapterError(c *gin.Context, status int, message string) {
	if status == 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": gin.H{"message": message}})
}

// withSSEWriter sets the streaming response headers and runs fn against the response
// writer, which gin guarantees implements http.Flusher.
func withSSEWriter(c *gin.Context, fn func(io.Writer) error) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	_ = fn(c.Writer)
}
