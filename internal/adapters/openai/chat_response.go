package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/kiro-gateway/proxy/internal/eventstream"
	"github.com/kiro-gateway/proxy/internal/sse"
)

// deltaChunkChars bounds each synthesized streaming content delta, per spec §4.G.
const deltaChunkChars = 80

// toolArgChunkChars bounds each synthesized streaming tool-call argument slice.
const toolArgChunkChars = 200

// finishReason maps an upstream stop reason to an OpenAI finish_reason value.
func finishReason(summary eventstream.Summary) string {
	if len(summary.ToolUses) > 0 {
		return "tool_calls"
	}
	switch strings.ToLower(summary.StopReason) {
	case "max_tokens", "length":
		return "length"
	default:
		return "stop"
	}
}

type chatToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// BuildChatCompletion renders a non-streaming "chat.completion" object for summary.
func BuildChatCompletion(id, model string, summary eventstream.Summary) []byte {
	content := strings.Join(summary.Content, "")
	message := map[string]any{"role": "assistant", "content": content}
	if len(summary.ToolUses) > 0 {
		message["content"] = nil
		calls := make([]chatToolCall, 0, len(summary.ToolUses))
		for i, tu := range summary.ToolUses {
			tc := chatToolCall{Index: i, ID: tu.ID, Type: "function"}
			tc.Function.Name = tu.Name
			tc.Function.Arguments = string(tu.Input)
			calls = append(calls, tc)
		}
		message["tool_calls"] = calls
	}

	obj := map[string]any{
		"id":      id,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       message,
				"finish_reason": finishReason(summary),
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     summary.InputTokens,
			"completion_tokens": summary.OutputTokens,
			"total_tokens":      summary.InputTokens + summary.OutputTokens,
		},
	}
	b, _ := json.Marshal(obj)
	return b
}

// StreamChatCompletion synthesizes a streaming "chat.completion.chunk" sequence from a
// fully-decoded (non-streaming) upstream summary, per spec §4.G: content in ≤80-char
// slices, then one frame per tool call (first chunk carries id+name, then 200-char
// argument slices), then a terminal chunk with finish_reason, then [DONE].
func StreamChatCompletion(w io.Writer, id, model string, summary eventstream.Summary) error {
	created := time.Now().Unix()

	// Each frame shares the same envelope; sjson.SetBytes stamps it onto the raw
	// per-frame delta instead of rebuilding the envelope through a Go struct each time.
	chunk := func(delta map[string]any, finish *string) []byte {
		deltaJSON, _ := json.Marshal(delta)
		choice := map[string]any{"index": 0, "finish_reason": finish}
		choiceJSON, _ := json.Marshal(choice)
		choiceJSON, _ = sjson.SetRawBytes(choiceJSON, "delta", deltaJSON)

		b, _ := sjson.SetBytes([]byte(`{"object":"chat.completion.chunk"}`), "id", id)
		b, _ = sjson.SetBytes(b, "created", created)
		b, _ = sjson.SetBytes(b, "model", model)
		b, _ = sjson.SetRawBytes(b, "choices.0", choiceJSON)
		return b
	}

	// Role-announcing first chunk.
	if err := sse.WriteData(w, chunk(map[string]any{"role": "assistant"}, nil)); err != nil {
		return err
	}

	content := strings.Join(summary.Content, "")
	for _, slice := range splitChunks(content, deltaChunkChars) {
		if err := sse.WriteData(w, chunk(map[string]any{"content": slice}, nil)); err != nil {
			return err
		}
	}

	for i, tu := range summary.ToolUses {
		first := map[string]any{
			"tool_calls": []map[string]any{toolCallDelta(i, tu.ID, tu.Name, "")},
		}
		if err := sse.WriteData(w, chunk(first, nil)); err != nil {
			return err
		}
		for _, argSlice := range splitChunks(string(tu.Input), toolArgChunkChars) {
			rest := map[string]any{
				"tool_calls": []map[string]any{toolCallDelta(i, "", "", argSlice)},
			}
			if err := sse.WriteData(w, chunk(rest, nil)); err != nil {
				return err
			}
		}
	}

	reason := finishReason(summary)
	if err := sse.WriteData(w, chunk(map[string]any{}, &reason)); err != nil {
		return err
	}
	return sse.WriteDone(w)
}

func toolCallDelta(index int, id, name, args string) map[string]any {
	d := map[string]any{"index": index}
	if id != "" {
		d["id"] = id
		d["type"] = "function"
	}
	fn := map[string]any{}
	if name != "" {
		fn["name"] = name
	}
	fn["arguments"] = args
	d["function"] = fn
	return d
}

// splitChunks splits s into rune-safe slices of at most n characters each. An empty s
// yields no slices.
func splitChunks(s string, n int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var out []string
	for i := 0; i < len(runes); i += n {
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// ChatCompletionID builds an OpenAI-shaped response id from a flow id.
func ChatCompletionID(flowID string) string {
	return fmt.Sprintf("chatcmpl-%s", flowID)
}
