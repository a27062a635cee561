package eventstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte(`{"assistantResponseEvent":{"content":"hello"}}`)
	frame := Encode("assistantResponseEvent", payload)

	msgs, err := Decode(frame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "assistantResponseEvent", msgs[0].EventType)
	assert.JSONEq(t, string(payload), string(msgs[0].Payload))
}

func TestDecodeMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Encode("assistantResponseEvent", []byte(`{"assistantResponseEvent":{"content":"ab"}}`)))
	buf.Write(Encode("assistantResponseEvent", []byte(`{"assistantResponseEvent":{"content":"cd"}}`)))

	msgs, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	sum := summarize(msgs)
	assert.Equal(t, []string{"ab", "cd"}, sum.Content)
}

func TestDecodeRejectsCorruptPreludeCRC(t *testing.T) {
	frame := Encode("assistantResponseEvent", []byte(`{}`))
	frame[8] ^= 0xFF // corrupt a byte inside the prelude CRC

	_, err := Decode(frame)
	assert.Error(t, err)
}

func TestDecodeRejectsCorruptMessageCRC(t *testing.T) {
	frame := Encode("assistantResponseEvent", []byte(`{}`))
	frame[len(frame)-1] ^= 0xFF

	_, err := Decode(frame)
	assert.Error(t, err)
}

func TestSummarizeAccumulatesFragmentedToolInput(t *testing.T) {
	frames := []Message{
		{EventType: "toolUseEvent", Payload: mustJSON(map[string]any{"toolUseId": "tu_1", "name": "get_time", "input": `{"tz"`})},
		{EventType: "toolUseEvent", Payload: mustJSON(map[string]any{"toolUseId": "tu_1", "input": `:"UTC"}`})},
	}
	sum := summarize(frames)
	require.Len(t, sum.ToolUses, 1)
	assert.Equal(t, "tu_1", sum.ToolUses[0].ID)
	assert.Equal(t, "get_time", sum.ToolUses[0].Name)
	assert.JSONEq(t, `{"tz":"UTC"}`, string(sum.ToolUses[0].Input))
	assert.Equal(t, "tool_use", sum.StopReason)
}

func TestStreamMatchesNonStreamingConcatenation(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Encode("assistantResponseEvent", []byte(`{"assistantResponseEvent":{"content":"abc"}}`)))
	buf.Write(Encode("assistantResponseEvent", []byte(`{"assistantResponseEvent":{"content":"def"}}`)))

	full, err := Parse(buf.Bytes())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := Stream(ctx, bytes.NewReader(buf.Bytes()))

	var streamed string
	for ev := range events {
		if ev.Kind == EventText {
			streamed += ev.Text
		}
	}
	var want string
	for _, c := range full.Content {
		want += c
	}
	assert.Equal(t, want, streamed)
}

func mustJSON(v map[string]any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func TestDecodeOneEOFAtCleanBoundary(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader(nil))
	_, err := DecodeOne(r)
	assert.Error(t, err)
}
