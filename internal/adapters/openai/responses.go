package openai

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kiro-gateway/proxy/internal/eventstream"
	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/kiro-gateway/proxy/internal/sse"
	"github.com/kiro-gateway/proxy/internal/upstream"
	"github.com/kiro-gateway/proxy/internal/util"
)

// ParseResponsesRequest translates an OpenAI Responses body into the shared history shape.
// The "input" field is either a bare string (the current turn, no history) or an array of
// typed items mirroring Chat Completions' message shape.
func ParseResponsesRequest(raw []byte, mapper *kiromodel.ModelMapper) Translated {
	raw = util.NormalizeOpenAIResponsesToolOrder(raw)
	root := gjson.ParseBytes(raw)
	t := Translated{
		Model:  mapper.Resolve(root.Get("model").String()),
		Stream: root.Get("stream").Bool(),
	}
	t.Tools = parseResponsesTools(root.Get("tools"))

	instr := root.Get("instructions").String()

	input := root.Get("input")
	if input.Type == gjson.String {
		t.Current = kiromodel.UserInputMessage{Content: joinText(instr, input.String())}
		return t
	}

	items := input.Array()
	var pendingToolResults []kiromodel.ToolResult
	for i, item := range items {
		isLast := i == len(items)-1
		switch item.Get("type").String() {
		case "", "message":
			role := item.Get("role").String()
			text := contentText(item.Get("content"))
			switch role {
			case "assistant":
				t.History = append(t.History, kiromodel.AssistantEntry(kiromodel.AssistantResponseMessage{Content: text}))
			default:
				msg := kiromodel.UserInputMessage{Content: text}
				if len(pendingToolResults) > 0 {
					msg.Context = &kiromodel.UserInputMessageContext{ToolResults: pendingToolResults}
					pendingToolResults = nil
				}
				if isLast {
					t.Current = msg
				} else {
					t.History = append(t.History, kiromodel.UserEntry(msg))
				}
			}
		case "function_call":
			t.History = append(t.History, kiromodel.AssistantEntry(kiromodel.AssistantResponseMessage{
				ToolUses: []kiromodel.ToolUse{{
					ToolUseID: item.Get("call_id").String(),
					Name:      item.Get("name").String(),
					Input:     json.RawMessage(mustJSONString(item.Get("arguments").String())),
				}},
			}))
		case "function_call_output":
			pendingToolResults = append(pendingToolResults, kiromodel.ToolResult{
				ToolUseID: item.Get("call_id").String(),
				Content:   json.RawMessage(mustJSONString(item.Get("output").String())),
			})
			if isLast {
				t.Current = kiromodel.UserInputMessage{Context: &kiromodel.UserInputMessageContext{ToolResults: pendingToolResults}}
			}
		}
	}

	// Instructions prepend the first user content: the earliest user history entry, else
	// the current turn.
	for i := range t.History {
		if instr != "" && t.History[i].IsUser() {
			t.History[i].User.Content = joinText(instr, t.History[i].User.Content)
			instr = ""
		}
	}
	t.Current.Content = joinText(instr, t.Current.Content)

	return t
}

func parseResponsesTools(tools gjson.Result) []upstream.ToolSpecification {
	if !tools.IsArray() {
		return nil
	}
	var out []upstream.ToolSpecification
	for _, tool := range tools.Array() {
		out = append(out, upstream.NewToolSpecification(
			tool.Get("name").String(),
			tool.Get("description").String(),
			json.RawMessage(tool.Get("parameters").Raw),
		))
	}
	return out
}

// BuildResponse renders a non-streaming "response" object, per spec §4.G.
func BuildResponse(id, model string, summary eventstream.Summary) []byte {
	output := buildOutputItems(summary)
	obj := map[string]any{
		"id":         id,
		"object":     "response",
		"created_at": time.Now().Unix(),
		"model":      model,
		"status":     "completed",
		"output":     output,
		"usage": map[string]any{
			"input_tokens":  summary.InputTokens,
			"output_tokens": summary.OutputTokens,
			"total_tokens":  summary.InputTokens + summary.OutputTokens,
		},
	}
	b, _ := json.Marshal(obj)
	return b
}

func buildOutputItems(summary eventstream.Summary) []map[string]any {
	var items []map[string]any
	if content := strings.Join(summary.Content, ""); content != "" {
		items = append(items, map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "output_text", "text": content},
			},
		})
	}
	for _, tu := range summary.ToolUses {
		items = append(items, map[string]any{
			"type":      "function_call",
			"call_id":   tu.ID,
			"name":      tu.Name,
			"arguments": string(tu.Input),
		})
	}
	return items
}

// StreamResponse synthesizes the Responses streaming event sequence from a fully-decoded
// upstream summary, per spec §4.G: response.created, one output_item.added/delta.../done
// per item, then response.completed.
func StreamResponse(w io.Writer, id, model string, summary eventstream.Summary) error {
	emit := func(event string, payload map[string]any) error {
		payload["type"] = event
		b, _ := json.Marshal(payload)
		return sse.WriteNamedEvent(w, event, b)
	}

	if err := emit("response.created", map[string]any{
		"response": map[string]any{"id": id, "object": "response", "model": model, "status": "in_progress"},
	}); err != nil {
		return err
	}

	outputIndex := 0
	if content := strings.Join(summary.Content, ""); content != "" {
		item := map[string]any{"id": id, "type": "message", "role": "assistant", "content": []any{}}
		if err := emit("response.output_item.added", map[string]any{"output_index": outputIndex, "item": item}); err != nil {
			return err
		}
		for _, slice := range splitChunks(content, deltaChunkChars) {
			if err := emit("response.output_text.delta", map[string]any{"output_index": outputIndex, "delta": slice}); err != nil {
				return err
			}
		}
		item["content"] = []map[string]any{{"type": "output_text", "text": content}}
		if err := emit("response.output_item.done", map[string]any{"output_index": outputIndex, "item": item}); err != nil {
			return err
		}
		outputIndex++
	}

	for _, tu := range summary.ToolUses {
		item := map[string]any{"id": tu.ID, "call_id": tu.ID, "type": "function_call", "name": tu.Name, "arguments": ""}
		if err := emit("response.output_item.added", map[string]any{"output_index": outputIndex, "item": item}); err != nil {
			return err
		}
		item["arguments"] = string(tu.Input)
		if err := emit("response.output_item.done", map[string]any{"output_index": outputIndex, "item": item}); err != nil {
			return err
		}
		outputIndex++
	}

	return emit("response.completed", map[string]any{
		"response": map[string]any{
			"id": id, "object": "response", "model": model, "status": "completed",
			"usage": map[string]any{"input_tokens": summary.InputTokens, "output_tokens": summary.OutputTokens},
		},
	})
}

// StreamResponseFailed emits a response.failed event for a classified upstream error.
func StreamResponseFailed(w io.Writer, id, message string) error {
	b, _ := json.Marshal(map[string]any{
		"type":     "response.failed",
		"response": map[string]any{"id": id, "object": "response", "status": "failed", "error": map[string]any{"message": message}},
	})
	return sse.WriteNamedEvent(w, "response.failed", b)
}
