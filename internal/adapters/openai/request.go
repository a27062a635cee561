// Package openai translates between the OpenAI Chat Completions / Responses wire
// dialects and the shared upstream kiromodel history shape, per spec §4.G.
package openai

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/kiro-gateway/proxy/internal/upstream"
)

// Translated is the result of translating one inbound request: the history preceding the
// current turn, the current turn itself, the resolved model, and whether streaming was
// requested.
type Translated struct {
	History    []kiromodel.Entry
	Current    kiromodel.UserInputMessage
	Model      string
	Stream     bool
	Tools      []upstream.ToolSpecification
	ResponseID string
}

// ParseChatCompletionsRequest translates an OpenAI Chat Completions body into the shared
// history shape. Role mapping per spec §4.G: system prepends to the first user turn,
// user/assistant map directly, tool becomes toolResults attached to the following user turn.
func ParseChatCompletionsRequest(raw []byte, mapper *kiromodel.ModelMapper) Translated {
	root := gjson.ParseBytes(raw)
	t := Translated{
		Model:  mapper.Resolve(root.Get("model").String()),
		Stream: root.Get("stream").Bool(),
	}

	messages := root.Get("messages").Array()
	t.Tools = parseTools(root.Get("tools"))

	var systemPrefix string
	var pendingToolResults []kiromodel.ToolResult

	flushPendingAsCurrent := func(content string, images []kiromodel.Image) kiromodel.UserInputMessage {
		msg := kiromodel.UserInputMessage{Content: content, Images: images}
		if len(pendingToolResults) > 0 {
			msg.Context = &kiromodel.UserInputMessageContext{ToolResults: pendingToolResults}
			pendingToolResults = nil
		}
		return msg
	}

	for i, m := range messages {
		role := m.Get("role").String()
		isLast := i == len(messages)-1

		switch role {
		case "system", "developer":
			systemPrefix = joinText(systemPrefix, contentText(m.Get("content")))

		case "user":
			text, images := extractUserContent(m.Get("content"))
			if systemPrefix != "" {
				text = joinText(systemPrefix, text)
				systemPrefix = ""
			}
			msg := flushPendingAsCurrent(text, images)
			if isLast {
				t.Current = msg
			} else {
				t.History = append(t.History, kiromodel.UserEntry(msg))
			}

		case "assistant":
			text := contentText(m.Get("content"))
			toolUses := parseToolCalls(m.Get("tool_calls"))
			t.History = append(t.History, kiromodel.AssistantEntry(kiromodel.AssistantResponseMessage{
				Content: text, ToolUses: toolUses,
			}))

		case "tool":
			pendingToolResults = append(pendingToolResults, kiromodel.ToolResult{
				ToolUseID: m.Get("tool_call_id").String(),
				Content:   json.RawMessage(mustJSONString(contentText(m.Get("content")))),
			})
			if isLast {
				t.Current = flushPendingAsCurrent("", nil)
			}
		}
	}

	return t
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

// contentText extracts plain text from an OpenAI "content" field, which may be a bare
// string or an array of typed parts ({"type":"text","text":"..."} among others).
func contentText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, part := range content.Array() {
		if part.Get("type").String() == "text" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(part.Get("text").String())
		}
	}
	return b.String()
}

// extractUserContent additionally pulls image_url parts (data URIs only, per spec §4.G)
// out of a user message's content array.
func extractUserContent(content gjson.Result) (string, []kiromodel.Image) {
	if content.Type == gjson.String {
		return content.String(), nil
	}
	if !content.IsArray() {
		return "", nil
	}
	var textB strings.Builder
	var images []kiromodel.Image
	for _, part := range content.Array() {
		switch part.Get("type").String() {
		case "text":
			if textB.Len() > 0 {
				textB.WriteString("\n")
			}
			textB.WriteString(part.Get("text").String())
		case "image_url":
			url := part.Get("image_url.url").String()
			if img, ok := decodeDataURI(url); ok {
				images = append(images, img)
			}
		}
	}
	return textB.String(), images
}

// decodeDataURI decodes a "data:image/<fmt>;base64,<data>" URI; non-data URIs are skipped
// per spec §4.G ("image_url entries are decoded (data URI only)").
func decodeDataURI(uri string) (kiromodel.Image, bool) {
	const prefix = "data:image/"
	if !strings.HasPrefix(uri, prefix) {
		return kiromodel.Image{}, false
	}
	rest := uri[len(prefix):]
	semi := strings.IndexByte(rest, ';')
	comma := strings.IndexByte(rest, ',')
	if semi < 0 || comma < 0 || comma < semi {
		return kiromodel.Image{}, false
	}
	format := rest[:semi]
	encoding := rest[semi+1 : comma]
	data := rest[comma+1:]
	if encoding != "base64" {
		return kiromodel.Image{}, false
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return kiromodel.Image{}, false
	}
	img := kiromodel.Image{Format: format}
	img.Source.Bytes = data
	return img, true
}

func parseTools(tools gjson.Result) []upstream.ToolSpecification {
	if !tools.IsArray() {
		return nil
	}
	var out []upstream.ToolSpecification
	for _, tool := range tools.Array() {
		fn := tool.Get("function")
		out = append(out, upstream.NewToolSpecification(
			fn.Get("name").String(),
			fn.Get("description").String(),
			json.RawMessage(fn.Get("parameters").Raw),
		))
	}
	return out
}

func parseToolCalls(calls gjson.Result) []kiromodel.ToolUse {
	if !calls.IsArray() {
		return nil
	}
	var out []kiromodel.ToolUse
	for _, c := range calls.Array() {
		out = append(out, kiromodel.ToolUse{
			ToolUseID: c.Get("id").String(),
			Name:      c.Get("function.name").String(),
			Input:     json.RawMessage(mustJSONString(c.Get("function.arguments").String())),
		})
	}
	return out
}

func mustJSONString(s string) string {
	// Tool arguments/results travel as JSON-encoded strings in OpenAI's wire format; if
	// the string is itself valid JSON, pass it through raw, otherwise quote it as a string.
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
