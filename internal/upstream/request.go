// Package upstream builds and sends the upstream generateAssistantResponse request, per
// spec §4.F and §6.
package upstream

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kiro-gateway/proxy/internal/kiromodel"
)

const (
	// Endpoint is the single upstream base URL every call targets.
	Endpoint = "https://q.us-east-1.amazonaws.com"
	// GenerateAssistantResponsePath is the streaming-reply generation endpoint.
	GenerateAssistantResponsePath = "/generateAssistantResponse"
	kiroVersion                   = "0.1.0"
)

// Origins is the fallback chain tried when the upstream rejects the first origin, §4.F.
var Origins = []string{"AI_EDITOR", "CLI"}

// ToolSpecification is one request-scope tool definition sent upstream.
type ToolSpecification struct {
	ToolSpecification struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		InputSchema struct {
			JSON json.RawMessage `json:"json"`
		} `json:"inputSchema"`
	} `json:"toolSpecification"`
}

// NewToolSpecification builds one tool entry for the request-scope tools array.
func NewToolSpecification(name, description string, schema json.RawMessage) ToolSpecification {
	var t ToolSpecification
	t.ToolSpecification.Name = name
	t.ToolSpecification.Description = description
	t.ToolSpecification.InputSchema.JSON = schema
	return t
}

// Body is the upstream request body shape from spec §3/§4.F. Tools are request-scope
// (a sibling of conversationState, not repeated per history turn).
type Body struct {
	ConversationState struct {
		ConversationID string            `json:"conversationId"`
		History        []kiromodel.Entry `json:"history"`
		CurrentMessage struct {
			UserInputMessage kiromodel.UserInputMessage `json:"userInputMessage"`
		} `json:"currentMessage"`
		ChatTriggerType string `json:"chatTriggerType"`
	} `json:"conversationState"`
	ProfileArn string              `json:"profileArn,omitempty"`
	Tools      []ToolSpecification `json:"tools,omitempty"`
}

// BuildBody assembles the upstream request body for one turn. tools is the request-scope
// tool list declared by the inbound request, if any.
func BuildBody(conversationID string, history []kiromodel.Entry, current kiromodel.UserInputMessage, profileArn string, tools []ToolSpecification) *Body {
	b := &Body{}
	b.ConversationState.ConversationID = conversationID
	b.ConversationState.History = history
	b.ConversationState.CurrentMessage.UserInputMessage = current
	b.ConversationState.ChatTriggerType = "MANUAL"
	b.ProfileArn = profileArn
	b.Tools = tools
	return b
}

// NewInvocationID returns a fresh amz-sdk-invocation-id value.
func NewInvocationID() string {
	return uuid.NewString()
}
