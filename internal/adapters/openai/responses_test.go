package openai

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-gateway/proxy/internal/eventstream"
	"github.com/kiro-gateway/proxy/internal/kiromodel"
)

func TestParseResponsesRequestBareStringInput(t *testing.T) {
	got := ParseResponsesRequest([]byte(`{"model":"gpt-4o","input":"hello there"}`), kiromodel.NewModelMapper(nil))
	assert.Equal(t, "hello there", got.Current.Content)
	assert.Empty(t, got.History)
}

func TestParseResponsesRequestTypedItems(t *testing.T) {
	raw := []byte(`{"model":"gpt-4o","input":[
		{"type":"message","role":"user","content":"first"},
		{"type":"message","role":"assistant","content":"reply"},
		{"type":"message","role":"user","content":"second"}
	]}`)
	got := ParseResponsesRequest(raw, kiromodel.NewModelMapper(nil))
	require.Len(t, got.History, 2)
	assert.Equal(t, "second", got.Current.Content)
}

func TestParseResponsesRequestDropsOrphanToolCall(t *testing.T) {
	// NormalizeOpenAIResponsesToolOrder strips a function_call with no matching
	// function_call_output anywhere in the request, since the upstream history shape
	// requires every tool_use to be paired with a tool_result.
	raw := []byte(`{"model":"gpt-4o","input":[
		{"type":"message","role":"user","content":"go"},
		{"type":"function_call","call_id":"orphan","name":"lookup","arguments":"{}"},
		{"type":"message","role":"user","content":"done"}
	]}`)
	got := ParseResponsesRequest(raw, kiromodel.NewModelMapper(nil))
	for _, entry := range got.History {
		if entry.Assistant != nil {
			require.Empty(t, entry.Assistant.ToolUses, "orphan tool call should have been stripped before parsing")
		}
	}
}

func TestBuildResponseIncludesOutputText(t *testing.T) {
	summary := eventstream.Summary{Content: []string{"hi"}}
	raw := BuildResponse("resp_1", "claude-sonnet-4", summary)
	assert.Contains(t, string(raw), `"output_text"`)
}

func TestStreamResponseEmitsCreatedThenCompleted(t *testing.T) {
	var buf bytes.Buffer
	err := StreamResponse(&buf, "resp_1", "claude-sonnet-4", eventstream.Summary{Content: []string{"hi"}})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "event: response.created")
	assert.Contains(t, out, "event: response.output_item.added")
	assert.Contains(t, out, "event: response.output_text.delta")
	assert.Contains(t, out, "event: response.completed")
}
