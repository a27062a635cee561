// Package gemini translates between the Gemini GenerateContent wire dialect and the
// shared upstream kiromodel history shape, per spec §4.G.
package gemini

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kiro-gateway/proxy/internal/eventstream"
	"github.com/kiro-gateway/proxy/internal/kiromodel"
	"github.com/kiro-gateway/proxy/internal/upstream"
)

// Translated mirrors openai.Translated for the Gemini dialect. Gemini carries the model
// name in the URL path rather than the body, so callers resolve it separately.
type Translated struct {
	History []kiromodel.Entry
	Current kiromodel.UserInputMessage
	Tools   []upstream.ToolSpecification
}

// ParseGenerateContentRequest translates a Gemini "contents"/"systemInstruction" body.
// Role mapping: "user" -> user turn, "model" -> assistant turn; systemInstruction
// prepends to the first user turn's text.
func ParseGenerateContentRequest(raw []byte) Translated {
	root := gjson.ParseBytes(raw)
	var t Translated
	t.Tools = parseTools(root.Get("tools"))

	systemPrefix := partsText(root.Get("systemInstruction.parts"))

	contents := root.Get("contents").Array()
	for i, c := range contents {
		isLast := i == len(contents)-1
		role := c.Get("role").String()
		parts := c.Get("parts")

		switch role {
		case "model":
			text, toolUses := assistantParts(parts)
			t.History = append(t.History, kiromodel.AssistantEntry(kiromodel.AssistantResponseMessage{
				Content: text, ToolUses: toolUses,
			}))
		default: // "user", "function" (tool responses ride inside user-role parts in Gemini)
			text, images, toolResults := userParts(parts)
			if systemPrefix != "" {
				text = joinText(systemPrefix, text)
				systemPrefix = ""
			}
			msg := kiromodel.UserInputMessage{Content: text, Images: images}
			if len(toolResults) > 0 {
				msg.Context = &kiromodel.UserInputMessageContext{ToolResults: toolResults}
			}
			if isLast {
				t.Current = msg
			} else {
				t.History = append(t.History, kiromodel.UserEntry(msg))
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

func partsText(parts gjson.Result) string {
	if !parts.IsArray() {
		return ""
	}
	var b strings.Builder
	for _, p := range parts.Array() {
		if text := p.Get("text").String(); text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	return b.String()
}

func assistantParts(parts gjson.Result) (string, []kiromodel.ToolUse) {
	var textB strings.Builder
	var uses []kiromodel.ToolUse
	for _, p := range parts.Array() {
		if text := p.Get("text").String(); text != "" {
			if textB.Len() > 0 {
				textB.WriteString("\n")
			}
			textB.WriteString(text)
		}
		if call := p.Get("functionCall"); call.Exists() {
			uses = append(uses, kiromodel.ToolUse{
				ToolUseID: call.Get("name").String(),
				Name:      call.Get("name").String(),
				Input:     json.RawMessage(call.Get("args").Raw),
			})
		}
	}
	return textB.String(), uses
}

func userParts(parts gjson.Result) (string, []kiromodel.Image, []kiromodel.ToolResult) {
	var textB strings.Builder
	var images []kiromodel.Image
	var results []kiromodel.ToolResult
	for _, p := range parts.Array() {
		if text := p.Get("text").String(); text != "" {
			if textB.Len() > 0 {
				textB.WriteString("\n")
			}
			textB.WriteString(text)
		}
		if inline := p.Get("inlineData"); inline.Exists() {
			mime := inline.Get("mimeType").String()
			data := inline.Get("data").String()
			if _, err := base64.StdEncoding.DecodeString(data); err == nil {
				img := kiromodel.Image{Format: strings.TrimPrefix(mime, "image/")}
				img.Source.Bytes = data
				images = append(images, img)
			}
		}
		if resp := p.Get("functionResponse"); resp.Exists() {
			name := resp.Get("name").String()
			results = append(results, kiromodel.ToolResult{
				ToolUseID: name,
				Content:   json.RawMessage(resp.Get("response").Raw),
			})
		}
	}
	return textB.String(), images, results
}

func parseTools(tools gjson.Result) []upstream.ToolSpecification {
	if !tools.IsArray() {
		return nil
	}
	var out []upstream.ToolSpecification
	for _, tool := range tools.Array() {
		for _, fn := range tool.Get("functionDeclarations").Array() {
			out = append(out, upstream.NewToolSpecification(
				fn.Get("name").String(),
				fn.Get("description").String(),
				json.RawMessage(fn.Get("parameters").Raw),
			))
		}
	}
	return out
}

func finishReason(summary eventstream.Summary) string {
	if strings.EqualFold(summary.StopReason, "max_tokens") {
		return "MAX_TOKENS"
	}
	return "STOP"
}

// BuildGenerateContentResponse renders a non-streaming single-candidate reply.
func BuildGenerateContentResponse(summary eventstream.Summary) []byte {
	var parts []map[string]any
	if content := strings.Join(summary.Content, ""); content != "" {
		parts = append(parts, map[string]any{"text": content})
	}
	for _, tu := range summary.ToolUses {
		var args any
		_ = json.Unmarshal(tu.Input, &args)
		parts = append(parts, map[string]any{"functionCall": map[string]any{"name": tu.Name, "args": args}})
	}

	obj := map[string]any{
		"candidates": []map[string]any{
			{
				"content":      map[string]any{"role": "model", "parts": parts},
				"finishReason": finishReason(summary),
				"index":        0,
			},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     summary.InputTokens,
			"candidatesTokenCount": summary.OutputTokens,
			"totalTokenCount":      summary.InputTokens + summary.OutputTokens,
		},
	}
	b, _ := json.Marshal(obj)
	return b
}

// StreamGenerateContentChunks splits a fully-decoded summary into the newline-delimited
// partial-response JSON objects the "?alt=sse" streaming mode emits (spec §4.G): one
// object per content slice (each wrapped as a data: frame by the caller), ending with a
// final object carrying finishReason and usage.
func StreamGenerateContentChunks(summary eventstream.Summary) [][]byte {
	var chunks [][]byte
	content := strings.Join(summary.Content, "")
	slices := splitChunks(content, 80)
	if len(slices) == 0 && len(summary.ToolUses) == 0 {
		slices = []string{""}
	}
	for i, slice := range slices {
		isLast := i == len(slices)-1 && len(summary.ToolUses) == 0
		obj := map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": slice}}},
					"index":   0,
				},
			},
		}
		if isLast {
			cand := obj["candidates"].([]map[string]any)[0]
			cand["finishReason"] = finishReason(summary)
			obj["usageMetadata"] = map[string]any{
				"promptTokenCount":     summary.InputTokens,
				"candidatesTokenCount": summary.OutputTokens,
				"totalTokenCount":      summary.InputTokens + summary.OutputTokens,
			}
		}
		b, _ := json.Marshal(obj)
		chunks = append(chunks, b)
	}

	for i, tu := range summary.ToolUses {
		isLast := i == len(summary.ToolUses)-1
		var args any
		_ = json.Unmarshal(tu.Input, &args)
		obj := map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]any{{"functionCall": map[string]any{"name": tu.Name, "args": args}}},
					},
					"index": 0,
				},
			},
		}
		if isLast {
			cand := obj["candidates"].([]map[string]any)[0]
			cand["finishReason"] = finishReason(summary)
			obj["usageMetadata"] = map[string]any{
				"promptTokenCount":     summary.InputTokens,
				"candidatesTokenCount": summary.OutputTokens,
				"totalTokenCount":      summary.InputTokens + summary.OutputTokens,
			}
		}
		b, _ := json.Marshal(obj)
		chunks = append(chunks, b)
	}
	return chunks
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
