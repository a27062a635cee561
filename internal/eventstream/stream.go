package eventstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// EventKind enumerates the recognized upstream payload shapes.
type EventKind int

const (
	// EventText is an assistantResponseEvent text delta.
	EventText EventKind = iota
	// EventToolUse is a completed (fully accumulated) tool-call.
	EventToolUse
	// EventDone is a synthetic terminal event closing the channel.
	EventDone
)

// Event is a decoded, semantically typed unit pushed to stream consumers.
type Event struct {
	Kind  EventKind
	Text  string
	Tool  ToolUse
	Final *Summary
}

// ToolUse is one accumulated tool call.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Summary is the parse result used by both the full-parse and streaming APIs. The Kiro
// event-stream carries no usage counters of its own, so InputTokens/OutputTokens are left
// zero by the decoder; the dispatcher fills them in with a chars/4 estimate before handing
// the Summary to a protocol adapter.
type Summary struct {
	Content      []string
	ToolUses     []ToolUse
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// toolAccumulator collects fragmented JSON-string input for one toolUseId.
type toolAccumulator struct {
	name  string
	parts strings.Builder
}

// Parse decodes the full reply body and returns the aggregate summary. Used for the
// non-streaming path and as the reference implementation the streaming path must agree with.
func Parse(data []byte) (Summary, error) {
	messages, err := Decode(data)
	if err != nil && len(messages) == 0 {
		return Summary{}, err
	}
	return summarize(messages), nil
}

func summarize(messages []Message) Summary {
	var sum Summary
	acc := map[string]*toolAccumulator{}
	order := []string{}

	for _, m := range messages {
		if len(m.Payload) == 0 {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(m.Payload, &raw); err != nil {
			log.WithError(err).Debug("eventstream: payload not json, ignored")
			continue
		}
		if are, ok := raw["assistantResponseEvent"].(map[string]any); ok {
			if text, ok := are["content"].(string); ok {
				sum.Content = append(sum.Content, text)
			}
			continue
		}
		if toolUseID, ok := raw["toolUseId"].(string); ok {
			a, seen := acc[toolUseID]
			if !seen {
				a = &toolAccumulator{}
				acc[toolUseID] = a
				order = append(order, toolUseID)
			}
			if name, ok := raw["name"].(string); ok && name != "" {
				a.name = name
			}
			switch input := raw["input"].(type) {
			case string:
				a.parts.WriteString(input)
			case map[string]any, nil:
				if input != nil {
					if b, err := json.Marshal(input); err == nil {
						a.parts.Write(b)
					}
				}
			}
			continue
		}
		log.WithField("payload", string(m.Payload)).Debug("eventstream: unrecognized frame shape")
	}

	for _, id := range order {
		a := acc[id]
		raw := json.RawMessage(a.parts.String())
		if len(bytes.TrimSpace(raw)) == 0 || !json.Valid(raw) {
			raw = json.RawMessage("{}")
		}
		sum.ToolUses = append(sum.ToolUses, ToolUse{ID: id, Name: a.name, Input: raw})
	}
	if len(sum.ToolUses) > 0 {
		sum.StopReason = "tool_use"
	} else {
		sum.StopReason = "end_turn"
	}
	return sum
}

// Stream decodes frames from r as they arrive, pushing typed Events to the returned
// channel. The channel is closed once a terminal event is pushed or ctx is cancelled.
// Tool-call input fragments are accumulated by toolUseId and only surfaced as a single
// EventToolUse once the stream ends, per the upstream's fragmentation behavior.
func Stream(ctx context.Context, r io.Reader) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		br := bufio.NewReader(r)
		acc := map[string]*toolAccumulator{}
		order := []string{}
		var content []string

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := DecodeOne(br)
			if err != nil {
				break
			}
			if len(msg.Payload) == 0 {
				continue
			}
			var raw map[string]any
			if err := json.Unmarshal(msg.Payload, &raw); err != nil {
				continue
			}
			if are, ok := raw["assistantResponseEvent"].(map[string]any); ok {
				if text, ok := are["content"].(string); ok && text != "" {
					content = append(content, text)
					select {
					case out <- Event{Kind: EventText, Text: text}:
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			if toolUseID, ok := raw["toolUseId"].(string); ok {
				a, seen := acc[toolUseID]
				if !seen {
					a = &toolAccumulator{}
					acc[toolUseID] = a
					order = append(order, toolUseID)
				}
				if name, ok := raw["name"].(string); ok && name != "" {
					a.name = name
				}
				switch input := raw["input"].(type) {
				case string:
					a.parts.WriteString(input)
				case map[string]any:
					if b, err := json.Marshal(input); err == nil {
						a.parts.Write(b)
					}
				}
			}
		}

		var toolUses []ToolUse
		for _, id := range order {
			a := acc[id]
			rawInput := json.RawMessage(a.parts.String())
			if len(bytes.TrimSpace(rawInput)) == 0 || !json.Valid(rawInput) {
				rawInput = json.RawMessage("{}")
			}
			tu := ToolUse{ID: id, Name: a.name, Input: rawInput}
			toolUses = append(toolUses, tu)
			select {
			case out <- Event{Kind: EventToolUse, Tool: tu}:
			case <-ctx.Done():
				return
			}
		}

		stopReason := "end_turn"
		if len(toolUses) > 0 {
			stopReason = "tool_use"
		}
		final := &Summary{Content: content, ToolUses: toolUses, StopReason: stopReason}
		select {
		case out <- Event{Kind: EventDone, Final: final}:
		case <-ctx.Done():
		}
	}()
	return out
}
