package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-gateway/proxy/internal/eventstream"
)

func TestParseGenerateContentRequestMapsRolesAndSystemInstruction(t *testing.T) {
	raw := []byte(`{
		"systemInstruction": {"parts":[{"text":"be terse"}]},
		"contents": [
			{"role":"user","parts":[{"text":"hi"}]},
			{"role":"model","parts":[{"text":"hello"}]},
			{"role":"user","parts":[{"text":"bye"}]}
		]
	}`)
	got := ParseGenerateContentRequest(raw)
	require.Len(t, got.History, 2)
	assert.Equal(t, "be terse\n\nhi", got.History[0].User.Content)
	assert.Equal(t, "hello", got.History[1].Assistant.Content)
	assert.Equal(t, "bye", got.Current.Content)
}

func TestParseGenerateContentRequestFunctionCallAndResponse(t *testing.T) {
	raw := []byte(`{"contents":[
		{"role":"user","parts":[{"text":"run it"}]},
		{"role":"model","parts":[{"functionCall":{"name":"lookup","args":{"q":"x"}}}]},
		{"role":"user","parts":[{"functionResponse":{"name":"lookup","response":{"result":42}}}]}
	]}`)
	got := ParseGenerateContentRequest(raw)
	require.Len(t, got.History, 2)
	assert.Equal(t, "lookup", got.History[1].Assistant.ToolUses[0].Name)
	require.NotNil(t, got.Current.Context)
	assert.Equal(t, "lookup", got.Current.Context.ToolResults[0].ToolUseID)
}

func TestBuildGenerateContentResponseIncludesCandidate(t *testing.T) {
	raw := BuildGenerateContentResponse(eventstream.Summary{Content: []string{"hi"}})
	assert.Contains(t, string(raw), `"finishReason":"STOP"`)
}

func TestStreamGenerateContentChunksLastCarriesUsage(t *testing.T) {
	chunks := StreamGenerateContentChunks(eventstream.Summary{Content: []string{"hi"}, InputTokens: 2, OutputTokens: 1})
	require.NotEmpty(t, chunks)
	last := string(chunks[len(chunks)-1])
	assert.Contains(t, last, "usageMetadata")
	assert.Contains(t, last, "finishReason")
}
