package upstream

import (
	"encoding/json"
	"testing"

	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBodyShape(t *testing.T) {
	history := []kiromodel.Entry{kiromodel.UserEntry(kiromodel.UserInputMessage{Content: "hi"})}
	current := kiromodel.UserInputMessage{Content: "hello", ModelID: "claude-sonnet-4"}

	body := BuildBody("conv-1", history, current, "arn:aws:profile", nil)
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	cs := m["conversationState"].(map[string]any)
	assert.Equal(t, "conv-1", cs["conversationId"])
	assert.Equal(t, "MANUAL", cs["chatTriggerType"])
	assert.Equal(t, "arn:aws:profile", m["profileArn"])
}

func TestBuildBodyIncludesToolsAtRequestScope(t *testing.T) {
	body := BuildBody("c", nil, kiromodel.UserInputMessage{Content: "x"}, "", nil)
	body.Tools = []ToolSpecification{NewToolSpecification("get_time", "returns time", json.RawMessage(`{"type":"object"}`))}

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	tools := m["tools"].([]any)
	require.Len(t, tools, 1)
	spec := tools[0].(map[string]any)["toolSpecification"].(map[string]any)
	assert.Equal(t, "get_time", spec["name"])
}

func TestHeadersIncludeRequiredFields(t *testing.T) {
	h := Headers("tok123", "fp456")
	assert.Equal(t, "Bearer tok123", h.Get("authorization"))
	assert.Contains(t, h.Get("x-amz-user-agent"), "KiroIDE-")
	assert.Contains(t, h.Get("x-amz-user-agent"), "fp456")
	assert.Equal(t, "vibe", h.Get("x-amzn-kiro-agent-mode"))
	assert.Equal(t, "attempt=1; max=1", h.Get("amz-sdk-request"))
	assert.NotEmpty(t, h.Get("amz-sdk-invocation-id"))
}
