// Package kiromodel holds the upstream conversation shapes shared by every protocol
// adapter: the alternating history array, its repair pass, and model-name mapping.
package kiromodel

import (
	"encoding/json"
)

// Image is an inline image attached to a user turn.
type Image struct {
	Format string `json:"format"`
	Source struct {
		Bytes string `json:"bytes"`
	} `json:"source"`
}

// ToolResult is one tool result attached to a user turn's context.
type ToolResult struct {
	ToolUseID string          `json:"toolUseId"`
	Content   json.RawMessage `json:"content,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// ToolUse is one tool call an assistant turn made.
type ToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

// UserInputMessageContext carries tool results answering the previous assistant turn.
type UserInputMessageContext struct {
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// UserInputMessage is one user turn.
type UserInputMessage struct {
	Content string                   `json:"content"`
	ModelID string                   `json:"modelId,omitempty"`
	Images  []Image                  `json:"images,omitempty"`
	Origin  string                   `json:"origin,omitempty"`
	Context *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// AssistantResponseMessage is one assistant turn.
type AssistantResponseMessage struct {
	Content  string    `json:"content"`
	ModelID  string    `json:"modelId,omitempty"`
	ToolUses []ToolUse `json:"toolUses,omitempty"`
}

// Entry is one history item: exactly one of User or Assistant is set.
type Entry struct {
	User      *UserInputMessage         `json:"userInputMessage,omitempty"`
	Assistant *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// IsUser reports whether this entry is a user turn.
func (e Entry) IsUser() bool { return e.User != nil }

// IsAssistant reports whether this entry is an assistant turn.
func (e Entry) IsAssistant() bool { return e.Assistant != nil }

// UserEntry constructs a user history entry.
func UserEntry(msg UserInputMessage) Entry { return Entry{User: &msg} }

// AssistantEntry constructs an assistant history entry.
func AssistantEntry(msg AssistantResponseMessage) Entry { return Entry{Assistant: &msg} }

// Repair enforces §4.G invariants (1)-(3) on history, in place conceptually but returning
// a new slice: it must run unconditionally after any compaction (invariant 4).
//
//  1. History MUST begin with a user entry (a leading assistant entry is dropped).
//  2. Entries MUST strictly alternate; consecutive same-role entries are collapsed by
//     concatenating their text content (tool uses/results from later duplicates are merged in).
//  3. Tool-use/tool-result pairing: an assistant entry's toolUses must be answered in full by
//     the immediately following user entry's toolResults, else the toolUses are dropped;
//     orphan toolResults referencing no known toolUseId are filtered.
func Repair(history []Entry) []Entry {
	history = dropLeadingAssistant(history)
	history = collapseConsecutiveSameRole(history)
	history = repairToolPairing(history)
	return history
}

func dropLeadingAssistant(history []Entry) []Entry {
	for len(history) > 0 && history[0].IsAssistant() {
		history = history[1:]
	}
	return history
}

func collapseConsecutiveSameRole(history []Entry) []Entry {
	if len(history) == 0 {
		return history
	}
	out := make([]Entry, 0, len(history))
	out = append(out, history[0])
	for _, cur := range history[1:] {
		last := &out[len(out)-1]
		switch {
		case last.IsUser() && cur.IsUser():
			last.User.Content = joinNonEmpty(last.User.Content, cur.User.Content)
			if cur.User.Context != nil {
				if last.User.Context == nil {
					last.User.Context = &UserInputMessageContext{}
				}
				last.User.Context.ToolResults = append(last.User.Context.ToolResults, cur.User.Context.ToolResults...)
			}
			if len(cur.User.Images) > 0 {
				last.User.Images = append(last.User.Images, cur.User.Images...)
			}
		case last.IsAssistant() && cur.IsAssistant():
			last.Assistant.Content = joinNonEmpty(last.Assistant.Content, cur.Assistant.Content)
			last.Assistant.ToolUses = append(last.Assistant.ToolUses, cur.Assistant.ToolUses...)
		default:
			out = append(out, cur)
		}
	}
	return out
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}

func repairToolPairing(history []Entry) []Entry {
	out := make([]Entry, len(history))
	copy(out, history)

	for i := range out {
		if !out[i].IsAssistant() || len(out[i].Assistant.ToolUses) == 0 {
			continue
		}
		expected := map[string]bool{}
		for _, tu := range out[i].Assistant.ToolUses {
			expected[tu.ToolUseID] = true
		}

		var got map[string]bool
		if i+1 < len(out) && out[i+1].IsUser() && out[i+1].User.Context != nil {
			got = map[string]bool{}
			var kept []ToolResult
			for _, tr := range out[i+1].User.Context.ToolResults {
				if expected[tr.ToolUseID] {
					got[tr.ToolUseID] = true
					kept = append(kept, tr)
				}
			}
			out[i+1].User.Context.ToolResults = kept
			if len(kept) == 0 {
				out[i+1].User.Context = nil
			}
		}

		complete := len(got) == len(expected)
		if !complete {
			out[i].Assistant.ToolUses = nil
		}
	}

	// Filter orphan toolResults: any user entry with toolResults not preceded by a
	// matching toolUse gets them stripped (covers the case where the assistant entry was
	// dropped entirely by a prior compaction pass, not just tool-use-less).
	validIDs := map[string]bool{}
	for _, e := range out {
		if e.IsAssistant() {
			for _, tu := range e.Assistant.ToolUses {
				validIDs[tu.ToolUseID] = true
			}
		}
	}
	for i := range out {
		if !out[i].IsUser() || out[i].User.Context == nil {
			continue
		}
		var kept []ToolResult
		for _, tr := range out[i].User.Context.ToolResults {
			if validIDs[tr.ToolUseID] {
				kept = append(kept, tr)
			}
		}
		if len(kept) == 0 {
			out[i].User.Context = nil
		} else {
			out[i].User.Context.ToolResults = kept
		}
	}

	return out
}
