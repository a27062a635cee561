// Package anthropic translates between the Anthropic Messages wire dialect and the shared
// upstream kiromodel history shape, per spec §4.G.
package anthropic

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kiro-gateway/proxy/internal/eventstream"
	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/kiro-gateway/proxy/internal/sse"
	"github.com/kiro-gateway/proxy/internal/upstream"
	"github.com/kiro-gateway/proxy/internal/util"
)

// Translated mirrors openai.Translated for the Anthropic dialect.
type Translated struct {
	History []kiromodel.Entry
	Current kiromodel.UserInputMessage
	Model   string
	Stream  bool
	Tools   []upstream.ToolSpecification
}

// ParseMessagesRequest translates an Anthropic Messages body. "system" prepends to the
// first user turn; content blocks of type text/image/tool_use/tool_result map 1:1.
func ParseMessagesRequest(raw []byte, mapper *kiromodel.ModelMapper) Translated {
	raw = util.NormalizeClaudeToolResults(raw)
	root := gjson.ParseBytes(raw)
	t := Translated{
		Model:  mapper.Resolve(root.Get("model").String()),
		Stream: root.Get("stream").Bool(),
	}
	t.Tools = parseTools(root.Get("tools"))

	systemPrefix := systemText(root.Get("system"))

	messages := root.Get("messages").Array()
	var pendingToolResults []kiromodel.ToolResult

	for i, m := range messages {
		isLast := i == len(messages)-1
		role := m.Get("role").String()
		blocks := m.Get("content")

		switch role {
		case "user":
			text, images, toolResults := extractUserBlocks(blocks)
			pendingToolResults = append(pendingToolResults, toolResults...)
			if systemPrefix != "" {
				text = joinText(systemPrefix, text)
				systemPrefix = ""
			}
			msg := kiromodel.UserInputMessage{Content: text, Images: images}
			if len(pendingToolResults) > 0 {
				msg.Context = &kiromodel.UserInputMessageContext{ToolResults: pendingToolResults}
				pendingToolResults = nil
			}
			if isLast {
				t.Current = msg
			} else {
				t.History = append(t.History, kiromodel.UserEntry(msg))
			}

		case "assistant":
			text, toolUses := extractAssistantBlocks(blocks)
			t.History = append(t.History, kiromodel.AssistantEntry(kiromodel.AssistantResponseMessage{
				Content: text, ToolUses: toolUses,
			}))
		}
	}

	return t
}

func systemText(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	if !system.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, block := range system.Array() {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(block.Get("text").String())
	}
	return b.String()
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n\n" + b
	}
}

func extractUserBlocks(content gjson.Result) (string, []kiromodel.Image, []kiromodel.ToolResult) {
	if content.Type == gjson.String {
		return content.String(), nil, nil
	}
	var textB strings.Builder
	var images []kiromodel.Image
	var results []kiromodel.ToolResult
	for _, block := range content.Array() {
		switch block.Get("type").String() {
		case "text":
			if textB.Len() > 0 {
				textB.WriteString("\n")
			}
			textB.WriteString(block.Get("text").String())
		case "image":
			if block.Get("source.type").String() == "base64" {
				img := kiromodel.Image{Format: strings.TrimPrefix(block.Get("source.media_type").String(), "image/")}
				img.Source.Bytes = block.Get("source.data").String()
				images = append(images, img)
			}
		case "tool_result":
			results = append(results, kiromodel.ToolResult{
				ToolUseID: block.Get("tool_use_id").String(),
				Content:   json.RawMessage(mustJSONString(toolResultText(block.Get("content")))),
			})
		}
	}
	return textB.String(), images, results
}

func toolResultText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, block := range content.Array() {
		if block.Get("type").String() == "text" {
			b.WriteString(block.Get("text").String())
		}
	}
	return b.String()
}

func extractAssistantBlocks(content gjson.Result) (string, []kiromodel.ToolUse) {
	if content.Type == gjson.String {
		return content.String(), nil
	}
	var textB strings.Builder
	var uses []kiromodel.ToolUse
	for _, block := range content.Array() {
		switch block.Get("type").String() {
		case "text":
			if textB.Len() > 0 {
				textB.WriteString("\n")
			}
			textB.WriteString(block.Get("text").String())
		case "tool_use":
			uses = append(uses, kiromodel.ToolUse{
				ToolUseID: block.Get("id").String(),
				Name:      block.Get("name").String(),
				Input:     json.RawMessage(block.Get("input").Raw),
			})
		}
	}
	return textB.String(), uses
}

func parseTools(tools gjson.Result) []upstream.ToolSpecification {
	if !tools.IsArray() {
		return nil
	}
	var out []upstream.ToolSpecification
	for _, tool := range tools.Array() {
		out = append(out, upstream.NewToolSpecification(
			tool.Get("name").String(),
			tool.Get("description").String(),
			json.RawMessage(tool.Get("input_schema").Raw),
		))
	}
	return out
}

func mustJSONString(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return `""`
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func stopReason(summary eventstream.Summary) string {
	if len(summary.ToolUses) > 0 {
		return "tool_use"
	}
	if strings.EqualFold(summary.StopReason, "max_tokens") {
		return "max_tokens"
	}
	return "end_turn"
}

// BuildMessage renders a non-streaming Anthropic "message" object for summary.
func BuildMessage(id, model string, summary eventstream.Summary) []byte {
	var blocks []map[string]any
	if content := strings.Join(summary.Content, ""); content != "" {
		blocks = append(blocks, map[string]any{"type": "text", "text": content})
	}
	for _, tu := range summary.ToolUses {
		var input any
		_ = json.Unmarshal(tu.Input, &input)
		blocks = append(blocks, map[string]any{
			"type": "tool_use", "id": tu.ID, "name": tu.Name, "input": input,
		})
	}
	obj := map[string]any{
		"id":            id,
		"type":          "message",
		"role":          "assistant",
		"model":         model,
		"content":       blocks,
		"stop_reason":   stopReason(summary),
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  summary.InputTokens,
			"output_tokens": summary.OutputTokens,
		},
	}
	b, _ := json.Marshal(obj)
	return b
}

// StreamMessage synthesizes the Anthropic streaming event sequence from a fully-decoded
// summary: message_start, content_block_start/delta/stop per block, message_delta,
// message_stop.
func StreamMessage(w io.Writer, id, model string, summary eventstream.Summary) error {
	emit := func(event string, payload map[string]any) error {
		payload["type"] = event
		b, _ := json.Marshal(payload)
		return sse.WriteNamedEvent(w, event, b)
	}

	if err := emit("message_start", map[string]any{
		"message": map[string]any{
			"id": id, "type": "message", "role": "assistant", "model": model, "content": []any{},
			"usage": map[string]any{"input_tokens": summary.InputTokens, "output_tokens": 0},
		},
	}); err != nil {
		return err
	}

	index := 0
	content := strings.Join(summary.Content, "")
	if content != "" {
		if err := emit("content_block_start", map[string]any{
			"index": index, "content_block": map[string]any{"type": "text", "text": ""},
		}); err != nil {
			return err
		}
		for _, slice := range splitChunks(content, 80) {
			if err := emit("content_block_delta", map[string]any{
				"index": index, "delta": map[string]any{"type": "text_delta", "text": slice},
			}); err != nil {
				return err
			}
		}
		if err := emit("content_block_stop", map[string]any{"index": index}); err != nil {
			return err
		}
		index++
	}

	for _, tu := range summary.ToolUses {
		if err := emit("content_block_start", map[string]any{
			"index":         index,
			"content_block": map[string]any{"type": "tool_use", "id": tu.ID, "name": tu.Name, "input": map[string]any{}},
		}); err != nil {
			return err
		}
		for _, slice := range splitChunks(string(tu.Input), 200) {
			if err := emit("content_block_delta", map[string]any{
				"index": index, "delta": map[string]any{"type": "input_json_delta", "partial_json": slice},
			}); err != nil {
				return err
			}
		}
		if err := emit("content_block_stop", map[string]any{"index": index}); err != nil {
			return err
		}
		index++
	}

	if err := emit("message_delta", map[string]any{
		"delta": map[string]any{"stop_reason": stopReason(summary), "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": summary.OutputTokens},
	}); err != nil {
		return err
	}
	return emit("message_stop", map[string]any{})
}

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

// CountTokens implements POST /v1/messages/count_tokens without calling upstream, per
// spec §4.G: a local character-based estimate.
func CountTokens(raw []byte) int {
	root := gjson.ParseBytes(raw)
	chars := len(systemText(root.Get("system")))
	for _, m := range root.Get("messages").Array() {
		text, _, _ := extractUserBlocks(m.Get("content"))
		chars += len(text)
	}
	tokens := chars / 4
	if chars%4 != 0 {
		tokens++
	}
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
