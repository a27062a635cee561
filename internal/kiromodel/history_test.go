package kiromodel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairDropsLeadingAssistant(t *testing.T) {
	history := []Entry{
		AssistantEntry(AssistantResponseMessage{Content: "stray"}),
		UserEntry(UserInputMessage{Content: "hi"}),
	}
	out := Repair(history)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsUser())
}

func TestRepairCollapsesConsecutiveSameRole(t *testing.T) {
	history := []Entry{
		UserEntry(UserInputMessage{Content: "a"}),
		UserEntry(UserInputMessage{Content: "b"}),
		AssistantEntry(AssistantResponseMessage{Content: "c"}),
	}
	out := Repair(history)
	require.Len(t, out, 2)
	assert.Equal(t, "a\nb", out[0].User.Content)
}

func TestRepairStripsIncompleteToolResults(t *testing.T) {
	history := []Entry{
		UserEntry(UserInputMessage{Content: "do thing"}),
		AssistantEntry(AssistantResponseMessage{
			Content: "",
			ToolUses: []ToolUse{
				{ToolUseID: "tu_1", Name: "get_time", Input: json.RawMessage(`{}`)},
				{ToolUseID: "tu_2", Name: "get_date", Input: json.RawMessage(`{}`)},
			},
		}),
		UserEntry(UserInputMessage{
			Content: "",
			Context: &UserInputMessageContext{
				ToolResults: []ToolResult{{ToolUseID: "tu_1"}},
			},
		}),
	}
	out := Repair(history)
	require.Len(t, out, 3)
	assert.Empty(t, out[1].Assistant.ToolUses, "incomplete tool results mean the toolUses must be dropped")
}

func TestRepairKeepsCompleteToolPairing(t *testing.T) {
	history := []Entry{
		UserEntry(UserInputMessage{Content: "do thing"}),
		AssistantEntry(AssistantResponseMessage{
			ToolUses: []ToolUse{{ToolUseID: "tu_1", Name: "get_time", Input: json.RawMessage(`{}`)}},
		}),
		UserEntry(UserInputMessage{
			Context: &UserInputMessageContext{ToolResults: []ToolResult{{ToolUseID: "tu_1"}}},
		}),
	}
	out := Repair(history)
	require.Len(t, out[1].Assistant.ToolUses, 1)
	require.NotNil(t, out[2].User.Context)
	assert.Len(t, out[2].User.Context.ToolResults, 1)
}

func TestRepairFiltersOrphanToolResults(t *testing.T) {
	history := []Entry{
		UserEntry(UserInputMessage{Content: "hi"}),
		AssistantEntry(AssistantResponseMessage{Content: "hello"}),
		UserEntry(UserInputMessage{
			Content: "thanks",
			Context: &UserInputMessageContext{ToolResults: []ToolResult{{ToolUseID: "tu_orphan"}}},
		}),
	}
	out := Repair(history)
	assert.Nil(t, out[2].User.Context)
}

func TestResolveModelKnownUpstreamPassesThrough(t *testing.T) {
	m := NewModelMapper(nil)
	assert.Equal(t, "claude-opus-4.6", m.Resolve("claude-opus-4.6"))
}

func TestResolveModelFallbackBySubstring(t *testing.T) {
	m := NewModelMapper(nil)
	assert.Equal(t, "claude-opus-4.5", m.Resolve("some-custom-opus-variant"))
	assert.Equal(t, "claude-haiku-4.5", m.Resolve("mini-haiku-beta"))
}

func TestResolveModelDefault(t *testing.T) {
	m := NewModelMapper(nil)
	assert.Equal(t, DefaultUpstreamModel, m.Resolve("totally-unknown-model"))
	assert.Equal(t, DefaultUpstreamModel, m.Resolve(""))
}

func TestResolveModelCustomOverride(t *testing.T) {
	m := NewModelMapper(map[string]string{"my-alias": "claude-opus-4.6"})
	assert.Equal(t, "claude-opus-4.6", m.Resolve("my-alias"))
}
